package changepoint

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func dailyIndex(n int) []time.Time {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func summaryFixture() *SummaryResult {
	return &SummaryResult{
		N:            6,
		Chains:       2,
		Draws:        100,
		CredibleMass: 0.9,
		Tau:          ParamSummary{Name: ParamTau, Mean: 3.4, Median: 3, Lower: 1.2, Upper: 4.6, RHat: 1.001, ESS: 150},
		Mu1:          ParamSummary{Name: ParamMu1, Mean: 2, SD: 0.1, RHat: 1.002, ESS: 180},
		Mu2:          ParamSummary{Name: ParamMu2, Mean: 3, SD: 0.2, RHat: math.Inf(1), ESS: math.NaN(), Unconverged: true},
		Sigma:        ParamSummary{Name: ParamSigma, Mean: 0.5, SD: 0.05, RHat: 1, ESS: 90},
		TauMode:      2,
		TauPosterior: []float64{0, 0.1, 0.4, 0.3, 0.2, 0},
		Diagnosed:    true,
	}
}

func TestProjectModeEstimator(t *testing.T) {
	idx := dailyIndex(6)
	values := []float64{1, 2, 3, 4, 5, 6}
	p, err := Project(summaryFixture(), idx, values, ProjectorConfig{})
	require.NoError(t, err)

	assert.Equal(t, EstimatorMode, p.Estimator)
	assert.Equal(t, 2, p.TauIndex)
	assert.Equal(t, idx[2], p.TauEstimate)
	assert.Equal(t, [2]int{1, 5}, p.TauCredibleIndex)
	assert.Equal(t, [2]time.Time{idx[1], idx[5]}, p.TauCredibleInterval)
	assert.InDelta(t, 0.4, p.TauProbability, 1e-12)
	assert.InDelta(t, 1.0, p.MeanShift, 1e-12)
	require.NotNil(t, p.PercentChange)
	assert.InDelta(t, 50.0, *p.PercentChange, 1e-12)

	require.Len(t, p.Regimes, 6)
	for i, rp := range p.Regimes {
		want := RegimeAfter
		if i <= 2 {
			want = RegimeBefore
		}
		assert.Equal(t, want, rp.Regime, "index %d", i)
		assert.Equal(t, values[i], rp.Value)
		assert.Equal(t, idx[i], rp.Time)
	}
	assert.InDelta(t, 0.3, p.Regimes[3].Mass, 1e-12)

	assert.Nil(t, p.Mu2.RHat)
	assert.Nil(t, p.Mu2.ESS)
	require.NotNil(t, p.Mu1.RHat)
	assert.Equal(t, 1.002, *p.Mu1.RHat)
	assert.False(t, p.Converged)
	assert.Equal(t, []string{ParamMu2}, p.Unconverged)
}

func TestProjectMeanAndMedianEstimators(t *testing.T) {
	idx := dailyIndex(6)
	p, err := Project(summaryFixture(), idx, nil, ProjectorConfig{Estimator: EstimatorMean})
	require.NoError(t, err)
	assert.Equal(t, 3, p.TauIndex)
	assert.Equal(t, 0.0, p.Regimes[0].Value)

	p, err = Project(summaryFixture(), idx, nil, ProjectorConfig{Estimator: EstimatorMedian})
	require.NoError(t, err)
	assert.Equal(t, 3, p.TauIndex)

	sum := summaryFixture()
	sum.Tau.Mean = 12
	p, err = Project(sum, idx, nil, ProjectorConfig{Estimator: EstimatorMean})
	require.NoError(t, err)
	assert.Equal(t, 5, p.TauIndex)
}

func TestProjectErrors(t *testing.T) {
	_, err := Project(nil, nil, nil, ProjectorConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Project(summaryFixture(), dailyIndex(5), nil, ProjectorConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Project(summaryFixture(), dailyIndex(6), []float64{1}, ProjectorConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Project(summaryFixture(), dailyIndex(6), nil, ProjectorConfig{Estimator: "map"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProjectionJSON(t *testing.T) {
	p, err := Project(summaryFixture(), dailyIndex(6), nil, ProjectorConfig{})
	require.NoError(t, err)
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	for _, key := range []string{"tau_estimate", "tau_credible_interval", "mu1", "mu2", "sigma", "converged"} {
		assert.Contains(t, out, key)
	}
	mu1 := out["mu1"].(map[string]any)
	assert.Contains(t, mu1, "mean")
	assert.Contains(t, mu1, "sd")
}

// The 200-point scenario: 100 draws around 0 followed by 100 around 5.
func TestAnalysisScenarioTwoHundredPoints(t *testing.T) {
	x := shiftSeries(2024, 100, 100, 0, 5, 1)
	cfg := quickConfig(500, 2000)
	chains := runSampler(t, x, cfg)

	sum, err := Summarize(chains, len(x), cfg.DiagnosticsConfig())
	require.NoError(t, err)
	p, err := Project(sum, dailyIndex(len(x)), x, cfg.ProjectorConfig())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, p.TauIndex, 95)
	assert.LessOrEqual(t, p.TauIndex, 105)
	assert.InDelta(t, 0, p.Mu1.Mean, 0.3)
	assert.InDelta(t, 5, p.Mu2.Mean, 0.3)
	assert.InDelta(t, 1, p.Sigma.Mean, 0.3)
	assert.Less(t, sum.Sigma.RHat, cfg.ConvergenceThreshold)
	assert.True(t, p.Converged, "unconverged: %v", p.Unconverged)
	assert.LessOrEqual(t, p.TauCredibleIndex[0], p.TauIndex)
	assert.GreaterOrEqual(t, p.TauCredibleIndex[1], p.TauIndex)

	for _, c := range chains {
		assert.InDelta(t, 99, tauMode(c, len(x)), 2, "chain %d", c.ID)
	}
}

// A series without a shift must not concentrate the switch point anywhere.
func TestAnalysisNoChangeSpreadsTau(t *testing.T) {
	n := 60
	x := make([]float64, n)
	for i := range x {
		x[i] = 1
		if i%2 == 1 {
			x[i] = -1
		}
	}
	cfg := quickConfig(300, 2000)
	chains := runSampler(t, x, cfg)
	sum, err := Summarize(chains, n, DiagnosticsConfig{CredibleMass: 0.95, ConvergenceThreshold: 1.01})
	require.NoError(t, err)

	uniform := 1 / float64(n)
	for i, mass := range sum.TauPosterior {
		assert.Greater(t, mass, 0.1*uniform, "index %d", i)
		assert.Less(t, mass, 6*uniform, "index %d", i)
	}
	assert.Greater(t, sum.Tau.Upper-sum.Tau.Lower, float64(n)/2)
}

// exactTauPosterior integrates both regime means out analytically and sigma
// over a fine grid, giving p(tau | x) without sampling.
func exactTauPosterior(m *Model, x []float64) []float64 {
	n := len(x)
	m0, s0 := m.MuPrior()
	prior := 1 / (s0 * s0)
	sigmaScale := m.SigmaPriorScale()

	logp := make([]float64, n)
	terms := make([]float64, 0, 800)
	for tau := 0; tau < n; tau++ {
		terms = terms[:0]
		for j := 1; j < 800; j++ {
			sigma := 0.005 * float64(j)
			v := -0.5 * (sigma / sigmaScale) * (sigma / sigmaScale)
			for _, seg := range [][]float64{x[:tau+1], x[tau+1:]} {
				var sum, sq float64
				for _, xi := range seg {
					sum += xi
					sq += xi * xi
				}
				k := float64(len(seg))
				prec := prior + k/(sigma*sigma)
				mean := (prior*m0 + sum/(sigma*sigma)) / prec
				v += -k*math.Log(sigma) - 0.5*math.Log(prec) -
					0.5*(sq/(sigma*sigma)+prior*m0*m0-prec*mean*mean)
			}
			terms = append(terms, v)
		}
		logp[tau] = floats.LogSumExp(terms)
	}
	normalizeLog(logp)
	return logp
}

// The sampled switch-point distribution of a series without a shift must
// match the exact posterior at the default sampler settings.
func TestNoChangePosteriorMatchesExact(t *testing.T) {
	n := 60
	x := make([]float64, n)
	for i := range x {
		x[i] = 1
		if i%2 == 1 {
			x[i] = -1
		}
	}
	cfg := quickConfig(300, 3000)
	m, err := NewModel(x, cfg.Priors)
	require.NoError(t, err)
	exact := exactTauPosterior(m, x)

	chains := runSampler(t, x, cfg)
	sum, err := Summarize(chains, n, cfg.DiagnosticsConfig())
	require.NoError(t, err)

	var tv float64
	for i := range exact {
		tv += math.Abs(sum.TauPosterior[i]-exact[i]) / 2
	}
	assert.Less(t, tv, 0.1)
	assert.InDelta(t, exact[0], sum.TauPosterior[0], 0.02)
	assert.InDelta(t, exact[n-1], sum.TauPosterior[n-1], 0.02)
}
