package changepoint

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DiagnosticsConfig controls summarization.
type DiagnosticsConfig struct {
	CredibleMass         float64
	ConvergenceThreshold float64
	// RequireConvergence asks for R-hat and ESS; it needs at least two chains.
	RequireConvergence bool
}

// ParamSummary describes the marginal posterior of one parameter.
// RHat and ESS are NaN when fewer than two chains were summarized.
type ParamSummary struct {
	Name        string
	Mean        float64
	SD          float64
	Median      float64
	Lower       float64
	Upper       float64
	RHat        float64
	ESS         float64
	Unconverged bool
}

// SummaryResult is the read-only digest of a set of chains.
type SummaryResult struct {
	N            int
	Chains       int
	Draws        int
	CredibleMass float64
	Threshold    float64

	Tau   ParamSummary
	Mu1   ParamSummary
	Mu2   ParamSummary
	Sigma ParamSummary

	TauMode      int
	TauPosterior []float64
	Acceptance   []float64

	Diagnosed bool
	Converged bool
}

// Param looks a summary up by name.
func (r *SummaryResult) Param(name string) (ParamSummary, bool) {
	switch name {
	case ParamTau:
		return r.Tau, true
	case ParamMu1:
		return r.Mu1, true
	case ParamMu2:
		return r.Mu2, true
	case ParamSigma:
		return r.Sigma, true
	}
	return ParamSummary{}, false
}

// Unconverged lists the parameters whose R-hat exceeded the threshold.
func (r *SummaryResult) Unconverged() []string {
	var out []string
	for _, p := range []ParamSummary{r.Tau, r.Mu1, r.Mu2, r.Sigma} {
		if p.Unconverged {
			out = append(out, p.Name)
		}
	}
	return out
}

// Summarize aggregates fully sampled chains over a series of length n.
func Summarize(chains []Chain, n int, cfg DiagnosticsConfig) (*SummaryResult, error) {
	k := len(chains)
	if k == 0 {
		return nil, &InsufficientChainsError{Chains: 0, Required: 1}
	}
	if cfg.RequireConvergence && k < 2 {
		return nil, &InsufficientChainsError{Chains: k, Required: 2}
	}
	if !(cfg.CredibleMass > 0 && cfg.CredibleMass < 1) {
		return nil, fmt.Errorf("%w: credible mass must be in (0,1), got %v", ErrInvalidConfig, cfg.CredibleMass)
	}
	m := len(chains[0].Samples)
	if m == 0 {
		return nil, fmt.Errorf("%w: chain 0 has no samples", ErrInvalidConfig)
	}
	for _, c := range chains[1:] {
		if len(c.Samples) != m {
			return nil, fmt.Errorf("%w: chain %d has %d samples, chain 0 has %d", ErrInvalidConfig, c.ID, len(c.Samples), m)
		}
	}

	res := &SummaryResult{
		N:            n,
		Chains:       k,
		Draws:        m,
		CredibleMass: cfg.CredibleMass,
		Threshold:    cfg.ConvergenceThreshold,
		Diagnosed:    k >= 2,
		Acceptance:   make([]float64, k),
	}
	for i, c := range chains {
		res.Acceptance[i] = c.Acceptance
	}

	lowerQ := (1 - cfg.CredibleMass) / 2
	summaries := make(map[string]ParamSummary, len(ParamNames))
	for _, name := range ParamNames {
		traces := make([][]float64, k)
		for i, c := range chains {
			traces[i] = c.Trace(name)
		}
		ps := summarizeParam(name, traces, lowerQ)
		if res.Diagnosed {
			ps.RHat = SplitRHat(traces)
			ps.ESS = EffectiveSampleSize(traces)
			ps.Unconverged = math.IsNaN(ps.RHat) || ps.RHat > cfg.ConvergenceThreshold
		}
		summaries[name] = ps
	}
	res.Tau = summaries[ParamTau]
	res.Mu1 = summaries[ParamMu1]
	res.Mu2 = summaries[ParamMu2]
	res.Sigma = summaries[ParamSigma]

	res.TauPosterior = make([]float64, n)
	total := float64(k * m)
	for _, c := range chains {
		for _, s := range c.Samples {
			if s.Tau >= 0 && s.Tau < n {
				res.TauPosterior[s.Tau] += 1 / total
			}
		}
	}
	res.TauMode = floats.MaxIdx(res.TauPosterior)

	res.Converged = res.Diagnosed && len(res.Unconverged()) == 0
	return res, nil
}

func summarizeParam(name string, traces [][]float64, lowerQ float64) ParamSummary {
	var pooled []float64
	for _, t := range traces {
		pooled = append(pooled, t...)
	}
	sort.Float64s(pooled)

	ps := ParamSummary{Name: name, RHat: math.NaN(), ESS: math.NaN()}
	if len(pooled) > 1 {
		ps.Mean, ps.SD = stat.MeanStdDev(pooled, nil)
	} else {
		ps.Mean = pooled[0]
	}
	ps.Median = stat.Quantile(0.5, stat.Empirical, pooled, nil)
	ps.Lower = stat.Quantile(lowerQ, stat.Empirical, pooled, nil)
	ps.Upper = stat.Quantile(1-lowerQ, stat.Empirical, pooled, nil)
	return ps
}

// SplitRHat is the potential scale reduction factor computed after splitting
// every chain in half. Chains shorter than four draws are used unsplit.
func SplitRHat(traces [][]float64) float64 {
	if len(traces) == 0 {
		return math.NaN()
	}
	m := len(traces[0])
	half := m / 2
	if half < 2 {
		return RHat(traces)
	}
	split := make([][]float64, 0, 2*len(traces))
	for _, t := range traces {
		split = append(split, t[:half], t[m-half:])
	}
	return RHat(split)
}

// RHat compares between-chain and within-chain variance of equal-length chains.
// Identical constant chains give 1; constant but different chains give +Inf.
func RHat(traces [][]float64) float64 {
	if len(traces) < 2 {
		return math.NaN()
	}
	n := len(traces[0])
	if n < 2 {
		return math.NaN()
	}
	means := make([]float64, len(traces))
	vars := make([]float64, len(traces))
	for i, t := range traces {
		means[i], vars[i] = stat.MeanVariance(t, nil)
	}
	w := stat.Mean(vars, nil)
	b := float64(n) * stat.Variance(means, nil)
	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	nf := float64(n)
	varPlus := (nf-1)/nf*w + b/nf
	return math.Sqrt(varPlus / w)
}

// EffectiveSampleSize estimates the number of independent draws across chains
// using Geyer's initial monotone positive sequence on the combined
// autocorrelation estimate.
func EffectiveSampleSize(traces [][]float64) float64 {
	k := len(traces)
	if k == 0 {
		return math.NaN()
	}
	m := len(traces[0])
	total := float64(k * m)
	if m < 2 {
		return total
	}

	means := make([]float64, k)
	vars := make([]float64, k)
	for i, t := range traces {
		means[i], vars[i] = stat.MeanVariance(t, nil)
	}
	w := stat.Mean(vars, nil)
	mf := float64(m)
	varPlus := (mf - 1) / mf * w
	if k > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if varPlus == 0 {
		return total
	}

	rho := func(lag int) float64 {
		var acov float64
		for i, t := range traces {
			acov += autocovariance(t, means[i], lag)
		}
		acov /= float64(k)
		return 1 - (w-acov)/varPlus
	}

	var sum float64
	prev := math.Inf(1)
	for lag := 0; lag+1 < m; lag += 2 {
		pair := rho(lag) + rho(lag+1)
		if pair < 0 {
			break
		}
		if pair > prev {
			pair = prev
		}
		sum += pair
		prev = pair
	}
	tau := -1 + 2*sum
	if floor := 1 / math.Log10(math.Max(total, 10)); tau < floor {
		tau = floor
	}
	return total / tau
}

// autocovariance at lag, normalized by the chain length.
func autocovariance(x []float64, mean float64, lag int) float64 {
	var s float64
	for i := 0; i+lag < len(x); i++ {
		s += (x[i] - mean) * (x[i+lag] - mean)
	}
	return s / float64(len(x))
}
