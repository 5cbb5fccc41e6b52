// Package changepoint implements Bayesian single change-point detection for a
// univariate series: a Normal mean-switch model with a shared dispersion, a
// blocked Gibbs/Metropolis sampler, convergence diagnostics and projection of
// the posterior back onto the series' time index.
//
// Nothing in this package touches the filesystem, the network or a display.
package changepoint

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var log2Pi = math.Log(2 * math.Pi)

// Params is one point in the model's parameter space.
type Params struct {
	Tau   int     `json:"tau"`
	Mu1   float64 `json:"mu1"`
	Mu2   float64 `json:"mu2"`
	Sigma float64 `json:"sigma"`
}

// Model binds an observation series to the priors. It is immutable after
// construction and safe to share between chains.
type Model struct {
	x []float64
	n int

	// prefix sums of the centered series: cum[k] = sum(x[0:k]-center)
	center float64
	cum    []float64
	cumSq  []float64

	muMean     float64
	muScale    float64
	sigmaScale float64
	logTau     float64
}

// NewModel validates x and precomputes the sufficient statistics used by the sampler.
func NewModel(x []float64, priors PriorConfig) (*Model, error) {
	n := len(x)
	if n < 2 {
		return nil, &InsufficientDataError{N: n}
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &InvalidSeriesError{Index: i, Value: v}
		}
	}
	if priors.TauPrior == "" {
		priors.TauPrior = TauPriorUniform
	}
	if err := priors.Validate(); err != nil {
		return nil, err
	}

	mean, std := stat.PopMeanStdDev(x, nil)
	m := &Model{
		x:          append([]float64(nil), x...),
		n:          n,
		center:     mean,
		muMean:     mean,
		muScale:    std,
		sigmaScale: priors.SigmaScale,
		logTau:     -math.Log(float64(n)),
	}
	if priors.MuMean != nil {
		m.muMean = *priors.MuMean
	}
	if priors.MuScale != nil {
		m.muScale = *priors.MuScale
	}
	if !(m.muScale > 0) {
		return nil, &InsufficientDataError{N: n, Reason: "series has zero variance, mu prior scale would be 0"}
	}

	m.cum = make([]float64, n+1)
	m.cumSq = make([]float64, n+1)
	for i, v := range m.x {
		d := v - m.center
		m.cum[i+1] = m.cum[i] + d
		m.cumSq[i+1] = m.cumSq[i] + d*d
	}
	return m, nil
}

// N returns the series length.
func (m *Model) N() int { return m.n }

// MuPrior returns the mean and scale of the regime-mean prior.
func (m *Model) MuPrior() (mean, scale float64) { return m.muMean, m.muScale }

// SigmaPriorScale returns the half-Normal scale of the dispersion prior.
func (m *Model) SigmaPriorScale() float64 { return m.sigmaScale }

// LogPrior evaluates the joint log prior density.
func (m *Model) LogPrior(p Params) float64 {
	if p.Tau < 0 || p.Tau >= m.n || !(p.Sigma > 0) {
		return math.Inf(-1)
	}
	mu := distuv.Normal{Mu: m.muMean, Sigma: m.muScale}
	return m.logTau + mu.LogProb(p.Mu1) + mu.LogProb(p.Mu2) + m.logSigmaPrior(p.Sigma)
}

// LogLikelihood sums the per-observation Normal log densities. It walks the
// series once and is the reference the prefix-sum path is checked against.
func (m *Model) LogLikelihood(p Params) float64 {
	if p.Tau < 0 || p.Tau >= m.n || !(p.Sigma > 0) {
		return math.Inf(-1)
	}
	before := distuv.Normal{Mu: p.Mu1, Sigma: p.Sigma}
	after := distuv.Normal{Mu: p.Mu2, Sigma: p.Sigma}
	var ll float64
	for i, v := range m.x {
		if i <= p.Tau {
			ll += before.LogProb(v)
		} else {
			ll += after.LogProb(v)
		}
	}
	return ll
}

// LogPosterior is the unnormalized joint log posterior.
func (m *Model) LogPosterior(p Params) float64 {
	lp := m.LogPrior(p)
	if math.IsInf(lp, -1) {
		return lp
	}
	return lp + m.LogLikelihood(p)
}

func (m *Model) logSigmaPrior(sigma float64) float64 {
	if !(sigma > 0) {
		return math.Inf(-1)
	}
	return math.Ln2 + distuv.Normal{Mu: 0, Sigma: m.sigmaScale}.LogProb(sigma)
}

// regime returns count and centered sums for x[lo:hi].
func (m *Model) regime(lo, hi int) (k, s, q float64) {
	return float64(hi - lo), m.cum[hi] - m.cum[lo], m.cumSq[hi] - m.cumSq[lo]
}

// sumSquares is sum((x_i - mu_i)^2) for a switch at tau, in O(1).
func (m *Model) sumSquares(tau int, mu1, mu2 float64) float64 {
	a, b := mu1-m.center, mu2-m.center
	k1, s1, q1 := m.regime(0, tau+1)
	k2, s2, q2 := m.regime(tau+1, m.n)
	ss := (q1 - 2*a*s1 + k1*a*a) + (q2 - 2*b*s2 + k2*b*b)
	if ss < 0 {
		return 0
	}
	return ss
}

func (m *Model) logLikFromSS(ss, sigma float64) float64 {
	n := float64(m.n)
	return -n*math.Log(sigma) - 0.5*n*log2Pi - ss/(2*sigma*sigma)
}

// TauLogConditional fills dst with the unnormalized log density of every tau
// candidate given the other parameters. dst is reused when large enough.
func (m *Model) TauLogConditional(mu1, mu2, sigma float64, dst []float64) []float64 {
	if cap(dst) < m.n {
		dst = make([]float64, m.n)
	}
	dst = dst[:m.n]
	a, b := mu1-m.center, mu2-m.center
	totK, totS, totQ := m.regime(0, m.n)
	for tau := 0; tau < m.n; tau++ {
		k1, s1, q1 := float64(tau+1), m.cum[tau+1], m.cumSq[tau+1]
		k2, s2, q2 := totK-k1, totS-s1, totQ-q1
		ss := (q1 - 2*a*s1 + k1*a*a) + (q2 - 2*b*s2 + k2*b*b)
		if ss < 0 {
			ss = 0
		}
		dst[tau] = m.logTau + m.logLikFromSS(ss, sigma)
	}
	return dst
}

// TauConditional returns the normalized conditional distribution of tau.
// Probabilities are computed with max-subtraction before exponentiation.
func (m *Model) TauConditional(mu1, mu2, sigma float64, dst []float64) ([]float64, error) {
	dst = m.TauLogConditional(mu1, mu2, sigma, dst)
	if !normalizeLog(dst) {
		return nil, &NumericOverflowError{Param: "tau"}
	}
	return dst, nil
}

// normalizeLog turns log weights into probabilities in place. It reports false
// when no weight is finite.
func normalizeLog(w []float64) bool {
	maxW := math.Inf(-1)
	for _, v := range w {
		if !math.IsNaN(v) && v > maxW {
			maxW = v
		}
	}
	if math.IsInf(maxW, 0) {
		return false
	}
	var total float64
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, -1) {
			w[i] = 0
			continue
		}
		w[i] = math.Exp(v - maxW)
		total += w[i]
	}
	for i := range w {
		w[i] /= total
	}
	return true
}

// MuConditional returns the conjugate Normal posterior of a regime mean
// (regime 1 covers 0..tau, regime 2 covers tau+1..n-1) given tau and sigma.
func (m *Model) MuConditional(regime, tau int, sigma float64) (mean, sd float64) {
	lo, hi := 0, tau+1
	if regime == 2 {
		lo, hi = tau+1, m.n
	}
	k, s, _ := m.regime(lo, hi)
	sum := s + k*m.center

	priorPrec := 1 / (m.muScale * m.muScale)
	dataPrec := k / (sigma * sigma)
	prec := priorPrec + dataPrec
	mean = (priorPrec*m.muMean + sum/(sigma*sigma)) / prec
	return mean, 1 / math.Sqrt(prec)
}

// sigmaLogPosterior is the sigma full conditional up to a constant.
func (m *Model) sigmaLogPosterior(ss, sigma float64) float64 {
	lp := m.logSigmaPrior(sigma)
	if math.IsInf(lp, -1) {
		return lp
	}
	return lp + m.logLikFromSS(ss, sigma)
}
