package changepoint

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// shiftSeries draws n1 points around mu1 followed by n2 points around mu2.
func shiftSeries(seed uint64, n1, n2 int, mu1, mu2, sd float64) []float64 {
	rng := rand.New(rand.NewPCG(seed, 0))
	x := make([]float64, 0, n1+n2)
	for i := 0; i < n1; i++ {
		x = append(x, mu1+sd*rng.NormFloat64())
	}
	for i := 0; i < n2; i++ {
		x = append(x, mu2+sd*rng.NormFloat64())
	}
	return x
}

func TestNewModelRejectsShortSeries(t *testing.T) {
	for _, x := range [][]float64{nil, {1.5}} {
		_, err := NewModel(x, DefaultPriors())
		var ide *InsufficientDataError
		require.ErrorAs(t, err, &ide)
		assert.Equal(t, len(x), ide.N)
		assert.True(t, IsValidation(err))
	}
}

func TestNewModelRejectsNonFinite(t *testing.T) {
	_, err := NewModel([]float64{1, 2, math.NaN(), 4}, DefaultPriors())
	var ise *InvalidSeriesError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 2, ise.Index)

	_, err = NewModel([]float64{1, math.Inf(1)}, DefaultPriors())
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 1, ise.Index)
}

func TestNewModelRejectsConstantSeries(t *testing.T) {
	_, err := NewModel([]float64{3, 3, 3}, DefaultPriors())
	var ide *InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.NotEmpty(t, ide.Reason)
}

func TestNewModelAcceptsTwoPoints(t *testing.T) {
	m, err := NewModel([]float64{1, 3}, DefaultPriors())
	require.NoError(t, err)
	assert.Equal(t, 2, m.N())
	mean, scale := m.MuPrior()
	assert.InDelta(t, 2.0, mean, 1e-12)
	assert.InDelta(t, 1.0, scale, 1e-12)
}

func TestNewModelPriorOverrides(t *testing.T) {
	mean, scale := 10.0, 0.5
	m, err := NewModel([]float64{1, 2, 3}, PriorConfig{MuMean: &mean, MuScale: &scale, SigmaScale: 2})
	require.NoError(t, err)
	gotMean, gotScale := m.MuPrior()
	assert.Equal(t, 10.0, gotMean)
	assert.Equal(t, 0.5, gotScale)
	assert.Equal(t, 2.0, m.SigmaPriorScale())

	_, err = NewModel([]float64{1, 2, 3}, PriorConfig{TauPrior: "poisson", SigmaScale: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLogPriorOutsideSupport(t *testing.T) {
	m, err := NewModel([]float64{1, 2, 3, 4}, DefaultPriors())
	require.NoError(t, err)

	for _, p := range []Params{
		{Tau: -1, Sigma: 1},
		{Tau: 4, Sigma: 1},
		{Tau: 1, Sigma: 0},
		{Tau: 1, Sigma: -2},
	} {
		assert.True(t, math.IsInf(m.LogPrior(p), -1), "%+v", p)
		assert.True(t, math.IsInf(m.LogPosterior(p), -1), "%+v", p)
	}
	assert.False(t, math.IsInf(m.LogPrior(Params{Tau: 3, Mu1: 2, Mu2: 3, Sigma: 1}), 0))
}

func TestPrefixSumsMatchBruteForce(t *testing.T) {
	x := shiftSeries(7, 12, 13, 80, 95, 4)
	m, err := NewModel(x, DefaultPriors())
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(99, 1))
	for trial := 0; trial < 20; trial++ {
		mu1 := 70 + 30*rng.Float64()
		mu2 := 70 + 30*rng.Float64()
		sigma := 0.5 + 10*rng.Float64()
		cond := m.TauLogConditional(mu1, mu2, sigma, nil)
		require.Len(t, cond, len(x))

		for tau := 0; tau < len(x); tau++ {
			p := Params{Tau: tau, Mu1: mu1, Mu2: mu2, Sigma: sigma}
			brute := m.LogLikelihood(p)
			fast := m.logLikFromSS(m.sumSquares(tau, mu1, mu2), sigma)
			assert.InDelta(t, brute, fast, 1e-8, "tau=%d", tau)
			assert.InDelta(t, brute+m.logTau, cond[tau], 1e-8, "tau=%d", tau)
		}
	}
}

func TestTauConditionalIsDistribution(t *testing.T) {
	x := shiftSeries(3, 40, 60, 0, 2, 1)
	m, err := NewModel(x, DefaultPriors())
	require.NoError(t, err)

	cases := []struct{ mu1, mu2, sigma float64 }{
		{0, 2, 1},
		{2, 0, 1},
		{-50, 50, 0.01},
		{1, 1, 1000},
	}
	buf := make([]float64, 3)
	for _, c := range cases {
		probs, err := m.TauConditional(c.mu1, c.mu2, c.sigma, buf)
		require.NoError(t, err)
		require.Len(t, probs, len(x))
		for i, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0, "index %d", i)
		}
		assert.InDelta(t, 1.0, floats.Sum(probs), 1e-9)
	}
}

func TestTauConditionalEqualMeansIsUniform(t *testing.T) {
	m, err := NewModel([]float64{1, 2, 3, 4, 5}, DefaultPriors())
	require.NoError(t, err)
	probs, err := m.TauConditional(3, 3, 1, nil)
	require.NoError(t, err)
	for _, p := range probs {
		assert.InDelta(t, 0.2, p, 1e-12)
	}
}

func TestTauConditionalOverflow(t *testing.T) {
	m, err := NewModel([]float64{1, 2, 3, 4}, DefaultPriors())
	require.NoError(t, err)
	_, err = m.TauConditional(0, 0, 0, nil)
	var noe *NumericOverflowError
	require.ErrorAs(t, err, &noe)
	assert.Equal(t, ParamTau, noe.Param)
	assert.True(t, IsNumerical(err))
}

func TestMuConditionalClosedForm(t *testing.T) {
	x := shiftSeries(11, 30, 20, 1, 4, 1)
	m, err := NewModel(x, DefaultPriors())
	require.NoError(t, err)

	m0, s0 := stat.PopMeanStdDev(x, nil)
	tau, sigma := 29, 0.8
	check := func(regime int, part []float64) {
		k := float64(len(part))
		prec := 1/(s0*s0) + k/(sigma*sigma)
		wantMean := (m0/(s0*s0) + floats.Sum(part)/(sigma*sigma)) / prec
		mean, sd := m.MuConditional(regime, tau, sigma)
		assert.InDelta(t, wantMean, mean, 1e-9)
		assert.InDelta(t, 1/math.Sqrt(prec), sd, 1e-12)
	}
	check(1, x[:tau+1])
	check(2, x[tau+1:])

	// an empty second regime falls back to the prior
	mean, sd := m.MuConditional(2, len(x)-1, sigma)
	assert.InDelta(t, m0, mean, 1e-9)
	assert.InDelta(t, s0, sd, 1e-9)
}

func TestGibbsMuDrawMatchesConjugatePosterior(t *testing.T) {
	x := shiftSeries(5, 25, 25, -1, 2, 1.5)
	m, err := NewModel(x, DefaultPriors())
	require.NoError(t, err)
	cfg := DefaultConfig()
	s, err := NewSampler(m, cfg)
	require.NoError(t, err)

	st := s.newChainState(0)
	st.p = Params{Tau: 24, Sigma: 1.5}
	wantMean, wantSD := m.MuConditional(1, 24, 1.5)

	const draws = 20000
	got := make([]float64, draws)
	for i := range got {
		s.updateMus(st)
		st.p.Tau, st.p.Sigma = 24, 1.5
		got[i] = st.p.Mu1
	}
	mean, variance := stat.MeanVariance(got, nil)
	assert.InDelta(t, wantMean, mean, 5*wantSD/math.Sqrt(draws))
	assert.InEpsilon(t, wantSD*wantSD, variance, 0.05)
}

func TestNormalizeLog(t *testing.T) {
	w := []float64{-1000, math.Inf(-1), -1001, math.NaN()}
	require.True(t, normalizeLog(w))
	assert.InDelta(t, 1/(1+math.Exp(-1)), w[0], 1e-12)
	assert.Equal(t, 0.0, w[1])
	assert.Equal(t, 0.0, w[3])

	assert.False(t, normalizeLog([]float64{math.Inf(-1), math.NaN()}))
}
