package http

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusClientClosedRequest is the non-standard status used when the caller
// went away before the work finished.
const StatusClientClosedRequest = 499

// AppError is one entry of an error envelope. Retryable tells clients the
// same request may succeed later (timeouts, unavailable dependencies).
type AppError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Field     string                 `json:"field,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	Status    int                    `json:"-"`
	Err       error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError creates an error answered with status.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Field: field, Status: status}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// AsRetryable marks the error as transient.
func (e *AppError) AsRetryable() *AppError {
	e.Retryable = true
	return e
}

// Errors is a list of request problems, reported together.
type Errors []*AppError

func (es Errors) Error() string {
	switch len(es) {
	case 0:
		return "no errors"
	case 1:
		return es[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", es[0].Error(), len(es)-1)
}

// Unwrap exposes the entries to errors.Is and errors.As.
func (es Errors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// status is the status of the first entry.
func (es Errors) status() int {
	if len(es) == 0 || es[0].Status == 0 {
		return http.StatusBadRequest
	}
	return es[0].Status
}

// asErrors flattens err into envelope entries; false means err carries no AppError.
func asErrors(err error) (Errors, bool) {
	var list Errors
	if errors.As(err, &list) && len(list) > 0 {
		return list, true
	}
	var one *AppError
	if errors.As(err, &one) {
		return Errors{one}, true
	}
	return nil, false
}

// BadRequestError rejects malformed input before any work starts (400).
func BadRequestError(field, message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", field, message, http.StatusBadRequest)
}

// UnprocessableError rejects well-formed input the analysis cannot use (422).
func UnprocessableError(code, field, message string) *AppError {
	return NewAppError(code, field, message, http.StatusUnprocessableEntity)
}

// NotFoundErrorf reports a missing record (404).
func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", fmt.Sprintf(format, a...), http.StatusNotFound)
}

// ServiceUnavailableError reports a disabled or unreachable dependency (503).
func ServiceUnavailableError(message string) *AppError {
	return NewAppError("ERR_UNAVAILABLE", "", message, http.StatusServiceUnavailable).AsRetryable()
}

// InternalError hides an unexpected failure behind message (500).
func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}
