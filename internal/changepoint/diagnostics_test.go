package changepoint

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainOf(id int, taus []int, mu1, mu2, sigma []float64) Chain {
	c := Chain{ID: id}
	for i := range taus {
		c.Samples = append(c.Samples, Sample{Chain: id, Iteration: i, Tau: taus[i], Mu1: mu1[i], Mu2: mu2[i], Sigma: sigma[i]})
	}
	return c
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestRHatConstantChains(t *testing.T) {
	assert.Equal(t, 1.0, RHat([][]float64{constant(10, 2), constant(10, 2)}))
	assert.True(t, math.IsInf(RHat([][]float64{constant(10, 2), constant(10, 3)}), 1))
	assert.True(t, math.IsNaN(RHat([][]float64{constant(10, 2)})))
}

func TestSplitRHatDetectsDrift(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	mixed := make([][]float64, 2)
	drifting := make([][]float64, 2)
	for k := range mixed {
		for i := 0; i < 1000; i++ {
			mixed[k] = append(mixed[k], rng.NormFloat64())
			drifting[k] = append(drifting[k], rng.NormFloat64()+float64(i)/100)
		}
	}
	assert.Less(t, SplitRHat(mixed), 1.01)
	// identical drift in both chains is only caught by splitting
	assert.Greater(t, SplitRHat(drifting), 1.5)
}

func TestSplitRHatDecreasesAsChainsMix(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	const total = 20000
	traces := make([][]float64, 2)
	offsets := []float64{10, -10}
	for k := range traces {
		traces[k] = make([]float64, total)
		for i := range traces[k] {
			traces[k][i] = offsets[k]*math.Exp(-float64(i)/20) + rng.NormFloat64()
		}
	}

	prev := math.Inf(1)
	for _, m := range []int{20, 200, 2000, total} {
		prefix := [][]float64{traces[0][:m], traces[1][:m]}
		r := SplitRHat(prefix)
		assert.Less(t, r, prev, "M=%d", m)
		prev = r
	}
	assert.Less(t, prev, 1.01)
}

func TestEffectiveSampleSize(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	iid := make([][]float64, 2)
	sticky := make([][]float64, 2)
	for k := range iid {
		var ar float64
		for i := 0; i < 2000; i++ {
			iid[k] = append(iid[k], rng.NormFloat64())
			ar = 0.95*ar + rng.NormFloat64()
			sticky[k] = append(sticky[k], ar)
		}
	}
	ess := EffectiveSampleSize(iid)
	assert.InDelta(t, 4000, ess, 800)

	// AR(1) with phi=0.95 has an integrated autocorrelation time of 39
	essSticky := EffectiveSampleSize(sticky)
	assert.Less(t, essSticky, 400.0)
	assert.Greater(t, essSticky, 20.0)

	assert.Equal(t, 20.0, EffectiveSampleSize([][]float64{constant(10, 1), constant(10, 1)}))
}

func TestSummarizeStatistics(t *testing.T) {
	n := 10
	taus := []int{3, 3, 3, 4, 3, 4, 3, 3}
	a := chainOf(0, taus, []float64{1, 2, 3, 4, 1, 2, 3, 4}, constant(8, 9), constant(8, 1))
	b := chainOf(1, taus, []float64{4, 3, 2, 1, 4, 3, 2, 1}, constant(8, 9), constant(8, 1))
	a.Acceptance, b.Acceptance = 0.9, 0.8

	sum, err := Summarize([]Chain{a, b}, n, DiagnosticsConfig{CredibleMass: 0.95, ConvergenceThreshold: 1.01, RequireConvergence: true})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Chains)
	assert.Equal(t, 8, sum.Draws)
	assert.True(t, sum.Diagnosed)
	assert.Equal(t, []float64{0.9, 0.8}, sum.Acceptance)

	assert.InDelta(t, 2.5, sum.Mu1.Mean, 1e-12)
	assert.Equal(t, 1.0, sum.Mu1.Lower)
	assert.Equal(t, 4.0, sum.Mu1.Upper)
	assert.Equal(t, 9.0, sum.Mu2.Mean)
	assert.Equal(t, 0.0, sum.Mu2.SD)
	assert.Equal(t, 1.0, sum.Mu2.RHat)

	assert.Equal(t, 3, sum.TauMode)
	assert.InDelta(t, 0.75, sum.TauPosterior[3], 1e-12)
	assert.InDelta(t, 0.25, sum.TauPosterior[4], 1e-12)
	assert.Len(t, sum.TauPosterior, n)

	ps, ok := sum.Param(ParamSigma)
	require.True(t, ok)
	assert.Equal(t, 1.0, ps.Mean)
	_, ok = sum.Param("nu")
	assert.False(t, ok)
}

func TestSummarizeFlagsUnconverged(t *testing.T) {
	taus := []int{1, 1, 1, 1, 1, 1}
	a := chainOf(0, taus, constant(6, 0), constant(6, 5), []float64{1, 1.1, 0.9, 1, 1.1, 0.9})
	b := chainOf(1, taus, constant(6, 3), constant(6, 5), []float64{1, 0.9, 1.1, 1, 0.9, 1.1})

	sum, err := Summarize([]Chain{a, b}, 4, DiagnosticsConfig{CredibleMass: 0.9, ConvergenceThreshold: 1.01, RequireConvergence: true})
	require.NoError(t, err)
	assert.False(t, sum.Converged)
	assert.True(t, sum.Mu1.Unconverged)
	assert.False(t, sum.Mu2.Unconverged)
	assert.False(t, sum.Tau.Unconverged)
	assert.Equal(t, []string{ParamMu1}, sum.Unconverged())
}

func TestSummarizeTauModeTiesToLowestIndex(t *testing.T) {
	taus := []int{5, 2, 5, 2}
	c := chainOf(0, taus, constant(4, 0), constant(4, 1), constant(4, 1))
	sum, err := Summarize([]Chain{c}, 8, DiagnosticsConfig{CredibleMass: 0.95, ConvergenceThreshold: 1.01})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TauMode)
	assert.False(t, sum.Diagnosed)
	assert.False(t, sum.Converged)
	assert.True(t, math.IsNaN(sum.Tau.RHat))
}

func TestSummarizeErrors(t *testing.T) {
	cfg := DiagnosticsConfig{CredibleMass: 0.95, ConvergenceThreshold: 1.01, RequireConvergence: true}
	c := chainOf(0, []int{0, 1}, constant(2, 0), constant(2, 1), constant(2, 1))

	var ice *InsufficientChainsError
	_, err := Summarize([]Chain{c}, 2, cfg)
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, 2, ice.Required)

	_, err = Summarize(nil, 2, cfg)
	require.ErrorAs(t, err, &ice)

	short := chainOf(1, []int{0}, constant(1, 0), constant(1, 1), constant(1, 1))
	_, err = Summarize([]Chain{c, short}, 2, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.CredibleMass = 1
	_, err = Summarize([]Chain{c, c}, 2, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSummarizeSampledChainsConvergeFromDivergentStarts(t *testing.T) {
	x := shiftSeries(17, 100, 100, 0, 5, 1)
	cfg := quickConfig(200, 2000)
	cfg.Inits = []Params{
		{Tau: 10, Mu1: -20, Mu2: 20, Sigma: 1},
		{Tau: 190, Mu1: 20, Mu2: -20, Sigma: 1},
	}
	chains := runSampler(t, x, cfg)
	sum, err := Summarize(chains, len(x), cfg.DiagnosticsConfig())
	require.NoError(t, err)

	for _, ps := range []ParamSummary{sum.Tau, sum.Mu1, sum.Mu2} {
		assert.Less(t, ps.RHat, 1.01, ps.Name)
		assert.Greater(t, ps.ESS, 100.0, ps.Name)
	}
}
