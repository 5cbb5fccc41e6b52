package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"BrentShift/internal/changepoint"
	domrepo "BrentShift/internal/domain/repository"
	"BrentShift/internal/services/features"
	pkghttp "BrentShift/pkg/http"
)

// Error kinds recorded by the metrics recorder.
const (
	KindValidation  = "validation"
	KindNumerical   = "numerical"
	KindCancelled   = "cancelled"
	KindStorage     = "storage"
	KindUnavailable = "unavailable"
	KindInternal    = "internal"
)

// ErrJobsDisabled is returned when no queue is configured.
var ErrJobsDisabled = errors.New("asynchronous analysis is disabled")

// LimitError reports a request above a configured server limit.
type LimitError struct {
	Field string
	Limit int
	Got   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s is %d, the server allows at most %d", e.Field, e.Got, e.Limit)
}

// InvalidDateError reports an unparsable range bound.
type InvalidDateError struct {
	Field string
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("%s %q is not a valid date", e.Field, e.Value)
}

// Permanent reports whether retrying the same request cannot succeed.
func Permanent(err error) bool {
	var (
		le *LimitError
		te *features.TimestampError
		de *InvalidDateError
	)
	return changepoint.IsValidation(err) || changepoint.IsNumerical(err) ||
		errors.As(err, &le) || errors.As(err, &te) || errors.As(err, &de)
}

// ErrorKind classifies err for metrics.
func ErrorKind(err error) string {
	var ce *changepoint.CancelledError
	switch {
	case errors.As(err, &ce), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case changepoint.IsNumerical(err):
		return KindNumerical
	case Permanent(err):
		return KindValidation
	case errors.Is(err, ErrJobsDisabled):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// MapAnalysisError converts analysis errors into API errors.
func MapAnalysisError(err error) *pkghttp.AppError {
	if err == nil {
		return nil
	}
	var appErr *pkghttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		ide *changepoint.InsufficientDataError
		ise *changepoint.InvalidSeriesError
		ice *changepoint.InsufficientChainsError
		dce *changepoint.DegenerateChainError
		noe *changepoint.NumericOverflowError
		ce  *changepoint.CancelledError
		le  *LimitError
		te  *features.TimestampError
		de  *InvalidDateError
	)
	switch {
	case errors.As(err, &ide):
		return pkghttp.UnprocessableError("ERR_INSUFFICIENT_DATA", "series", err.Error()).
			WithParam("n", ide.N).WithError(err)
	case errors.As(err, &ise):
		return pkghttp.UnprocessableError("ERR_INVALID_SERIES", fmt.Sprintf("series[%d].value", ise.Index), err.Error()).
			WithParam("index", ise.Index).WithError(err)
	case errors.As(err, &ice):
		return pkghttp.UnprocessableError("ERR_INSUFFICIENT_CHAINS", "config.num_chains", err.Error()).
			WithParam("chains", ice.Chains).WithParam("required", ice.Required).WithError(err)
	case errors.As(err, &dce):
		return pkghttp.NewAppError("ERR_DEGENERATE_CHAIN", "", err.Error(), http.StatusInternalServerError).
			WithParam("chain", dce.Chain).WithParam("sweep", dce.Sweep).WithParam("param", dce.Param).WithError(err)
	case errors.As(err, &noe):
		return pkghttp.NewAppError("ERR_NUMERIC_OVERFLOW", "", err.Error(), http.StatusInternalServerError).
			WithParam("chain", noe.Chain).WithParam("sweep", noe.Sweep).WithParam("param", noe.Param).WithError(err)
	case errors.As(err, &ce):
		return cancelled(err, ce.Chain, ce.Sweep)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return cancelled(err, -1, -1)
	case errors.Is(err, changepoint.ErrInvalidConfig):
		return pkghttp.NewAppError("ERR_INVALID_CONFIG", "config", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.As(err, &le):
		return pkghttp.NewAppError("ERR_LIMIT", le.Field, err.Error(), http.StatusBadRequest).
			WithParam("max", le.Limit).WithError(err)
	case errors.As(err, &te):
		return pkghttp.NewAppError("ERR_INVALID_TIMESTAMP", fmt.Sprintf("series[%d].timestamp", te.Index), err.Error(), http.StatusBadRequest).
			WithError(err)
	case errors.As(err, &de):
		return pkghttp.BadRequestError(de.Field, err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrNotFound):
		return pkghttp.NotFoundErrorf("%s", err.Error()).WithError(err)
	case errors.Is(err, ErrJobsDisabled):
		return pkghttp.ServiceUnavailableError(err.Error()).WithError(err)
	default:
		return pkghttp.InternalError("analysis failed").WithError(err)
	}
}

func cancelled(err error, chain, sweep int) *pkghttp.AppError {
	status := pkghttp.StatusClientClosedRequest
	msg := "analysis cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		msg = "analysis timed out"
	}
	e := pkghttp.NewAppError("ERR_CANCELLED", "", msg, status).WithError(err)
	if status == http.StatusGatewayTimeout {
		e.AsRetryable()
	}
	if chain >= 0 {
		e.WithParam("chain", chain).WithParam("sweep", sweep)
	}
	return e
}
