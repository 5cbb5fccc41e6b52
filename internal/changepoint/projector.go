package changepoint

import (
	"fmt"
	"math"
	"time"
)

// Regime labels attached to projected observations.
const (
	RegimeBefore = "before"
	RegimeAfter  = "after"
)

// ProjectorConfig selects how tau is reduced to a single index.
type ProjectorConfig struct {
	Estimator string
}

// Estimate is the reportable view of one continuous parameter.
// RHat and ESS are nil when they were not computed or are not finite.
type Estimate struct {
	Mean        float64  `json:"mean"`
	SD          float64  `json:"sd"`
	Median      float64  `json:"median"`
	Lower       float64  `json:"lower"`
	Upper       float64  `json:"upper"`
	RHat        *float64 `json:"rhat,omitempty"`
	ESS         *float64 `json:"ess,omitempty"`
	Unconverged bool     `json:"unconverged,omitempty"`
}

// RegimePoint is one observation labelled with its regime.
type RegimePoint struct {
	Index int       `json:"index"`
	Time  time.Time `json:"date"`
	Value float64   `json:"value"`
	// Mass is the posterior probability that the switch happens at this index.
	Mass   float64 `json:"changepoint_prob"`
	Regime string  `json:"regime"`
}

// Projection maps a posterior summary onto the series' time index.
type Projection struct {
	Estimator           string       `json:"estimator"`
	TauIndex            int          `json:"tau_index"`
	TauEstimate         time.Time    `json:"tau_estimate"`
	TauCredibleIndex    [2]int       `json:"tau_credible_index"`
	TauCredibleInterval [2]time.Time `json:"tau_credible_interval"`
	TauProbability      float64      `json:"tau_probability"`

	Mu1   Estimate `json:"mu1"`
	Mu2   Estimate `json:"mu2"`
	Sigma Estimate `json:"sigma"`
	Tau   Estimate `json:"tau"`

	MeanShift     float64  `json:"mean_shift"`
	PercentChange *float64 `json:"percent_change,omitempty"`

	CredibleMass float64  `json:"credible_interval"`
	Chains       int      `json:"num_chains"`
	Draws        int      `json:"draws_per_chain"`
	Converged    bool     `json:"converged"`
	Unconverged  []string `json:"unconverged,omitempty"`

	Regimes []RegimePoint `json:"regimes,omitempty"`
}

// Project shapes a summary for presentation. index and values must both have
// one entry per observation; values may be nil, in which case regimes carry
// zero values.
func Project(sum *SummaryResult, index []time.Time, values []float64, cfg ProjectorConfig) (*Projection, error) {
	if sum == nil {
		return nil, fmt.Errorf("%w: nil summary", ErrInvalidConfig)
	}
	n := sum.N
	if n < 1 {
		return nil, &InsufficientDataError{N: n}
	}
	if len(index) != n {
		return nil, fmt.Errorf("%w: time index has %d entries, series has %d", ErrInvalidConfig, len(index), n)
	}
	if values != nil && len(values) != n {
		return nil, fmt.Errorf("%w: %d values for a series of %d", ErrInvalidConfig, len(values), n)
	}

	est := cfg.Estimator
	if est == "" {
		est = EstimatorMode
	}
	var tau int
	switch est {
	case EstimatorMode:
		tau = sum.TauMode
	case EstimatorMean:
		tau = clampIndex(math.Round(sum.Tau.Mean), n)
	case EstimatorMedian:
		tau = clampIndex(math.Round(sum.Tau.Median), n)
	default:
		return nil, fmt.Errorf("%w: unknown tau estimator %q", ErrInvalidConfig, est)
	}
	lo := clampIndex(math.Floor(sum.Tau.Lower), n)
	hi := clampIndex(math.Ceil(sum.Tau.Upper), n)

	p := &Projection{
		Estimator:           est,
		TauIndex:            tau,
		TauEstimate:         index[tau],
		TauCredibleIndex:    [2]int{lo, hi},
		TauCredibleInterval: [2]time.Time{index[lo], index[hi]},
		Mu1:                 toEstimate(sum.Mu1),
		Mu2:                 toEstimate(sum.Mu2),
		Sigma:               toEstimate(sum.Sigma),
		Tau:                 toEstimate(sum.Tau),
		MeanShift:           sum.Mu2.Mean - sum.Mu1.Mean,
		CredibleMass:        sum.CredibleMass,
		Chains:              sum.Chains,
		Draws:               sum.Draws,
		Converged:           sum.Converged,
		Unconverged:         sum.Unconverged(),
		Regimes:             make([]RegimePoint, n),
	}
	if tau < len(sum.TauPosterior) {
		p.TauProbability = sum.TauPosterior[tau]
	}
	if sum.Mu1.Mean != 0 {
		pct := p.MeanShift / math.Abs(sum.Mu1.Mean) * 100
		p.PercentChange = &pct
	}

	for i := range n {
		rp := RegimePoint{Index: i, Time: index[i], Regime: RegimeAfter}
		if i <= tau {
			rp.Regime = RegimeBefore
		}
		if values != nil {
			rp.Value = values[i]
		}
		if i < len(sum.TauPosterior) {
			rp.Mass = sum.TauPosterior[i]
		}
		p.Regimes[i] = rp
	}
	return p, nil
}

func clampIndex(v float64, n int) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > float64(n-1) {
		return n - 1
	}
	return int(v)
}

func toEstimate(ps ParamSummary) Estimate {
	return Estimate{
		Mean:        ps.Mean,
		SD:          ps.SD,
		Median:      ps.Median,
		Lower:       ps.Lower,
		Upper:       ps.Upper,
		RHat:        finite(ps.RHat),
		ESS:         finite(ps.ESS),
		Unconverged: ps.Unconverged,
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
