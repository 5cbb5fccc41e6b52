package changepoint

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned (wrapped) when sampler or diagnostics settings are unusable.
var ErrInvalidConfig = errors.New("changepoint: invalid config")

// InsufficientDataError reports a series too short (or too flat) to fit the model.
type InsufficientDataError struct {
	N      int
	Reason string
}

func (e *InsufficientDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient data: n=%d: %s", e.N, e.Reason)
	}
	return fmt.Sprintf("insufficient data: n=%d, need at least 2 observations", e.N)
}

// InvalidSeriesError reports a non-finite observation.
type InvalidSeriesError struct {
	Index int
	Value float64
}

func (e *InvalidSeriesError) Error() string {
	return fmt.Sprintf("invalid series: observation %d is not finite (%v)", e.Index, e.Value)
}

// DegenerateChainError is raised when sigma proposal adaptation collapses.
type DegenerateChainError struct {
	Chain int
	Sweep int
	Param string
	Scale float64
}

func (e *DegenerateChainError) Error() string {
	return fmt.Sprintf("degenerate chain %d at sweep %d: %s proposal scale became %v", e.Chain, e.Sweep, e.Param, e.Scale)
}

// NumericOverflowError is raised when every tau candidate has a non-finite log density.
type NumericOverflowError struct {
	Chain int
	Sweep int
	Param string
}

func (e *NumericOverflowError) Error() string {
	return fmt.Sprintf("numeric overflow in chain %d at sweep %d: %s conditional has no finite candidate", e.Chain, e.Sweep, e.Param)
}

// InsufficientChainsError is raised when convergence indicators need more chains.
type InsufficientChainsError struct {
	Chains   int
	Required int
}

func (e *InsufficientChainsError) Error() string {
	return fmt.Sprintf("insufficient chains: have %d, convergence diagnostics need at least %d", e.Chains, e.Required)
}

// CancelledError reports a sampling run stopped by its context.
type CancelledError struct {
	Chain int
	Sweep int
	Err   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("sampling cancelled in chain %d at sweep %d: %v", e.Chain, e.Sweep, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// IsValidation reports whether err belongs to the input-validation class.
func IsValidation(err error) bool {
	var (
		ide *InsufficientDataError
		ise *InvalidSeriesError
		ice *InsufficientChainsError
	)
	return errors.As(err, &ide) || errors.As(err, &ise) || errors.As(err, &ice) || errors.Is(err, ErrInvalidConfig)
}

// IsNumerical reports whether err was raised by a numerically unstable chain.
func IsNumerical(err error) bool {
	var (
		dce *DegenerateChainError
		noe *NumericOverflowError
	)
	return errors.As(err, &dce) || errors.As(err, &noe)
}
