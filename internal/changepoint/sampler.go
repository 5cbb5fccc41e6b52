package changepoint

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
)

// Parameter names used in samples, summaries and errors.
const (
	ParamTau   = "tau"
	ParamMu1   = "mu1"
	ParamMu2   = "mu2"
	ParamSigma = "sigma"
)

// ParamNames lists the model parameters in summary order.
var ParamNames = []string{ParamTau, ParamMu1, ParamMu2, ParamSigma}

// Sweep phases reported to progress hooks.
const (
	PhaseWarmup   = "warmup"
	PhaseSampling = "sampling"
)

// Sample is one recorded post-warm-up draw.
type Sample struct {
	Chain     int     `json:"chain"`
	Iteration int     `json:"iteration"`
	Tau       int     `json:"tau"`
	Mu1       float64 `json:"mu1"`
	Mu2       float64 `json:"mu2"`
	Sigma     float64 `json:"sigma"`
}

// Params returns the parameter values of the draw.
func (s Sample) Params() Params {
	return Params{Tau: s.Tau, Mu1: s.Mu1, Mu2: s.Mu2, Sigma: s.Sigma}
}

// Chain is the output of one independent sampler run.
type Chain struct {
	ID            int      `json:"id"`
	Samples       []Sample `json:"samples"`
	Acceptance    float64  `json:"acceptance"`
	ProposalScale float64  `json:"proposal_scale"`
}

// Trace returns the draws of one parameter in iteration order.
func (c Chain) Trace(param string) []float64 {
	out := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		switch param {
		case ParamTau:
			out[i] = float64(s.Tau)
		case ParamMu1:
			out[i] = s.Mu1
		case ParamMu2:
			out[i] = s.Mu2
		case ParamSigma:
			out[i] = s.Sigma
		}
	}
	return out
}

// ProgressEvent is emitted by a chain every few sweeps.
type ProgressEvent struct {
	Chain      int     `json:"chain"`
	Sweep      int     `json:"sweep"`
	Total      int     `json:"total"`
	Phase      string  `json:"phase"`
	Acceptance float64 `json:"acceptance"`
	Scale      float64 `json:"proposal_scale"`
	State      Params  `json:"state"`
}

// Recorder receives per-chain sampling statistics.
type Recorder interface {
	ObserveChain(chain int, elapsed time.Duration, acceptance float64)
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithProgress calls fn every `every` sweeps of each chain and after the last
// one. fn is called from several goroutines at once.
func WithProgress(fn func(ProgressEvent), every int) SamplerOption {
	return func(s *Sampler) {
		if every < 1 {
			every = 1
		}
		s.progress = fn
		s.every = every
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) SamplerOption {
	return func(s *Sampler) { s.rec = r }
}

// Sampler draws K independent chains from the posterior of a Model.
type Sampler struct {
	model    *Model
	cfg      Config
	progress func(ProgressEvent)
	every    int
	rec      Recorder
}

// NewSampler validates cfg against the model.
func NewSampler(m *Model, cfg Config, opts ...SamplerOption) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, p := range cfg.Inits {
		if p.Tau < 0 || p.Tau >= m.N() || !(p.Sigma > 0) || math.IsNaN(p.Mu1) || math.IsNaN(p.Mu2) {
			return nil, fmt.Errorf("%w: init for chain %d is outside the support", ErrInvalidConfig, i)
		}
	}
	s := &Sampler{model: m, cfg: cfg, every: 100}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run samples every chain and returns them in chain order. Any chain error
// aborts the whole run; no partial chains are returned.
func (s *Sampler) Run(ctx context.Context) ([]Chain, error) {
	chains := make([]Chain, s.cfg.NumChains)

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxParallel > 0 {
		g.SetLimit(s.cfg.MaxParallel)
	}
	for k := range chains {
		g.Go(func() error {
			c, err := s.runChain(gctx, k)
			if err != nil {
				return err
			}
			// published only once the final sweep is done
			chains[k] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chains, nil
}

// chainState is the mutable state of one chain. It never leaves runChain.
type chainState struct {
	id       int
	rng      *rand.Rand
	p        Params
	scale    float64
	buf      []float64
	accepted int
}

func (s *Sampler) newChainState(k int) *chainState {
	st := &chainState{
		id:    k,
		rng:   rand.New(rand.NewPCG(s.cfg.BaseSeed, uint64(k))),
		scale: s.cfg.InitialProposalScale,
		buf:   make([]float64, s.model.N()),
	}
	if len(s.cfg.Inits) > 0 {
		st.p = s.cfg.Inits[k]
		return st
	}
	muMean, muScale := s.model.MuPrior()
	st.p.Tau = st.rng.IntN(s.model.N())
	st.p.Mu1 = muMean + muScale*st.rng.NormFloat64()
	st.p.Mu2 = muMean + muScale*st.rng.NormFloat64()
	for st.p.Sigma == 0 {
		st.p.Sigma = math.Abs(st.rng.NormFloat64()) * s.model.SigmaPriorScale()
	}
	return st
}

func (s *Sampler) runChain(ctx context.Context, k int) (Chain, error) {
	start := time.Now()
	st := s.newChainState(k)
	warmup := s.cfg.WarmupSweeps
	total := warmup + s.cfg.SampleSweeps
	samples := make([]Sample, 0, s.cfg.SampleSweeps)

	for sweep := 0; sweep < total; sweep++ {
		if err := ctx.Err(); err != nil {
			return Chain{}, &CancelledError{Chain: k, Sweep: sweep, Err: err}
		}
		if err := s.updateTau(st, sweep); err != nil {
			return Chain{}, err
		}
		s.updateMus(st)
		accepted := s.updateSigma(st)

		phase := PhaseSampling
		if sweep < warmup {
			phase = PhaseWarmup
			if err := s.adapt(st, accepted, sweep); err != nil {
				return Chain{}, err
			}
		} else {
			if accepted {
				st.accepted++
			}
			samples = append(samples, Sample{
				Chain:     k,
				Iteration: sweep - warmup,
				Tau:       st.p.Tau,
				Mu1:       st.p.Mu1,
				Mu2:       st.p.Mu2,
				Sigma:     st.p.Sigma,
			})
		}

		if s.progress != nil && ((sweep+1)%s.every == 0 || sweep == total-1) {
			s.progress(ProgressEvent{
				Chain:      k,
				Sweep:      sweep + 1,
				Total:      total,
				Phase:      phase,
				Acceptance: acceptanceRate(st.accepted, sweep+1-warmup),
				Scale:      st.scale,
				State:      st.p,
			})
		}
	}

	c := Chain{
		ID:            k,
		Samples:       samples,
		Acceptance:    acceptanceRate(st.accepted, len(samples)),
		ProposalScale: st.scale,
	}
	if s.rec != nil {
		s.rec.ObserveChain(k, time.Since(start), c.Acceptance)
	}
	return c, nil
}

// updateTau draws tau exactly from its discrete full conditional.
func (s *Sampler) updateTau(st *chainState, sweep int) error {
	st.buf = s.model.TauLogConditional(st.p.Mu1, st.p.Mu2, st.p.Sigma, st.buf)
	if !normalizeLog(st.buf) {
		return &NumericOverflowError{Chain: st.id, Sweep: sweep, Param: ParamTau}
	}
	st.p.Tau = drawCategorical(st.rng, st.buf)
	return nil
}

// updateMus draws both regime means from their conjugate Normal conditionals.
func (s *Sampler) updateMus(st *chainState) {
	m1, sd1 := s.model.MuConditional(1, st.p.Tau, st.p.Sigma)
	st.p.Mu1 = m1 + sd1*st.rng.NormFloat64()
	m2, sd2 := s.model.MuConditional(2, st.p.Tau, st.p.Sigma)
	st.p.Mu2 = m2 + sd2*st.rng.NormFloat64()
}

// updateSigma performs one random-walk Metropolis-Hastings step.
func (s *Sampler) updateSigma(st *chainState) bool {
	ss := s.model.sumSquares(st.p.Tau, st.p.Mu1, st.p.Mu2)
	proposal := st.p.Sigma + st.scale*st.rng.NormFloat64()
	u := st.rng.Float64()

	cur := s.model.sigmaLogPosterior(ss, st.p.Sigma)
	next := s.model.sigmaLogPosterior(ss, proposal)
	if math.IsInf(next, -1) || math.IsNaN(next) {
		return false
	}
	if math.IsInf(cur, -1) || next >= cur || math.Log(u) < next-cur {
		st.p.Sigma = proposal
		return true
	}
	return false
}

// Warm-up tuning of the sigma proposal. The scale moves in log space by a
// constant gain and never drops below scaleFloorFactor posterior standard
// deviations of sigma, approximated by sigma/sqrt(2n).
const (
	adaptGain        = 0.05
	scaleFloorFactor = 2.0
)

// adapt moves the proposal scale toward the target acceptance.
func (s *Sampler) adapt(st *chainState, accepted bool, sweep int) error {
	st.scale = adaptScale(st.scale, accepted, s.cfg.TargetAcceptance, scaleFloor(st.p.Sigma, s.model.N()))
	if !(st.scale > 0) || math.IsInf(st.scale, 0) {
		return &DegenerateChainError{Chain: st.id, Sweep: sweep, Param: ParamSigma, Scale: st.scale}
	}
	return nil
}

// adaptScale is one Robbins-Monro step on log(scale), clamped to floor. A
// target the floor cannot reach leaves the scale at the floor.
func adaptScale(scale float64, accepted bool, target, floor float64) float64 {
	a := 0.0
	if accepted {
		a = 1
	}
	return math.Max(scale*math.Exp(adaptGain*(a-target)), floor)
}

func scaleFloor(sigma float64, n int) float64 {
	return scaleFloorFactor * sigma / math.Sqrt(2*float64(n))
}

func drawCategorical(rng *rand.Rand, probs []float64) int {
	u := rng.Float64()
	var cum float64
	last := 0
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		cum += p
		last = i
		if u < cum {
			return i
		}
	}
	return last
}

func acceptanceRate(accepted, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(accepted) / float64(n)
}
