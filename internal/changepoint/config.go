package changepoint

import (
	"fmt"
	"math"
)

// TauPriorUniform is the only supported switch-point prior.
const TauPriorUniform = "discrete-uniform"

// Tau point estimators understood by the projector.
const (
	EstimatorMode   = "mode"
	EstimatorMean   = "mean"
	EstimatorMedian = "median"
)

// PriorConfig selects the priors of the model. Nil mu settings fall back to
// the sample mean and the sample standard deviation of the bound series.
type PriorConfig struct {
	TauPrior   string   `json:"tau_prior" yaml:"tau_prior"`
	MuMean     *float64 `json:"mu_prior_mean,omitempty" yaml:"mu_prior_mean"`
	MuScale    *float64 `json:"mu_prior_scale,omitempty" yaml:"mu_prior_scale"`
	SigmaScale float64  `json:"sigma_prior_scale" yaml:"sigma_prior_scale"`
}

// DefaultPriors mirrors the priors the oil-price study used.
func DefaultPriors() PriorConfig {
	return PriorConfig{TauPrior: TauPriorUniform, SigmaScale: 1}
}

// Config drives one analysis: sampling, diagnostics and projection.
type Config struct {
	NumChains            int     `json:"num_chains" yaml:"num_chains"`
	WarmupSweeps         int     `json:"warmup_sweeps" yaml:"warmup_sweeps"`
	SampleSweeps         int     `json:"sample_sweeps" yaml:"sample_sweeps"`
	BaseSeed             uint64  `json:"base_seed" yaml:"base_seed"`
	TargetAcceptance     float64 `json:"target_acceptance" yaml:"target_acceptance"`
	InitialProposalScale float64 `json:"initial_proposal_scale" yaml:"initial_proposal_scale"`
	CredibleMass         float64 `json:"credible_interval" yaml:"credible_interval"`
	ConvergenceThreshold float64 `json:"convergence_threshold" yaml:"convergence_threshold"`
	Diagnostics          bool    `json:"diagnostics" yaml:"diagnostics"`
	MaxParallel          int     `json:"max_parallel" yaml:"max_parallel"`
	TauEstimator         string  `json:"tau_estimator" yaml:"tau_estimator"`

	Priors PriorConfig `json:"priors" yaml:"priors"`

	// Inits optionally fixes the starting point of each chain (by chain index).
	Inits []Params `json:"-" yaml:"-"`
}

// DefaultConfig returns the settings of the original study: 2 chains,
// 2000 tuning and 2000 kept sweeps, 0.95 target acceptance.
func DefaultConfig() Config {
	return Config{
		NumChains:            2,
		WarmupSweeps:         2000,
		SampleSweeps:         2000,
		BaseSeed:             42,
		TargetAcceptance:     0.95,
		InitialProposalScale: 0.1,
		CredibleMass:         0.95,
		ConvergenceThreshold: 1.01,
		Diagnostics:          true,
		TauEstimator:         EstimatorMode,
		Priors:               DefaultPriors(),
	}
}

// Validate checks ranges; it does not look at data.
func (c Config) Validate() error {
	switch {
	case c.NumChains < 1:
		return fmt.Errorf("%w: num_chains must be >= 1, got %d", ErrInvalidConfig, c.NumChains)
	case c.WarmupSweeps < 0:
		return fmt.Errorf("%w: warmup_sweeps must be >= 0, got %d", ErrInvalidConfig, c.WarmupSweeps)
	case c.SampleSweeps < 1:
		return fmt.Errorf("%w: sample_sweeps must be >= 1, got %d", ErrInvalidConfig, c.SampleSweeps)
	case !(c.TargetAcceptance > 0 && c.TargetAcceptance < 1):
		return fmt.Errorf("%w: target_acceptance must be in (0,1), got %v", ErrInvalidConfig, c.TargetAcceptance)
	case !(c.InitialProposalScale > 0) || math.IsInf(c.InitialProposalScale, 0):
		return fmt.Errorf("%w: initial_proposal_scale must be positive and finite, got %v", ErrInvalidConfig, c.InitialProposalScale)
	case !(c.CredibleMass > 0 && c.CredibleMass < 1):
		return fmt.Errorf("%w: credible_interval must be in (0,1), got %v", ErrInvalidConfig, c.CredibleMass)
	case !(c.ConvergenceThreshold >= 1) || math.IsInf(c.ConvergenceThreshold, 0):
		return fmt.Errorf("%w: convergence_threshold must be >= 1, got %v", ErrInvalidConfig, c.ConvergenceThreshold)
	case c.MaxParallel < 0:
		return fmt.Errorf("%w: max_parallel must be >= 0, got %d", ErrInvalidConfig, c.MaxParallel)
	case len(c.Inits) > 0 && len(c.Inits) != c.NumChains:
		return fmt.Errorf("%w: %d inits for %d chains", ErrInvalidConfig, len(c.Inits), c.NumChains)
	}
	switch c.TauEstimator {
	case "", EstimatorMode, EstimatorMean, EstimatorMedian:
	default:
		return fmt.Errorf("%w: unknown tau_estimator %q", ErrInvalidConfig, c.TauEstimator)
	}
	if c.Diagnostics && c.NumChains < 2 {
		return &InsufficientChainsError{Chains: c.NumChains, Required: 2}
	}
	return c.Priors.Validate()
}

// Validate checks prior settings.
func (p PriorConfig) Validate() error {
	if p.TauPrior != "" && p.TauPrior != TauPriorUniform {
		return fmt.Errorf("%w: unsupported tau_prior %q", ErrInvalidConfig, p.TauPrior)
	}
	if !(p.SigmaScale > 0) || math.IsInf(p.SigmaScale, 0) {
		return fmt.Errorf("%w: sigma_prior_scale must be positive and finite, got %v", ErrInvalidConfig, p.SigmaScale)
	}
	if p.MuMean != nil && (math.IsNaN(*p.MuMean) || math.IsInf(*p.MuMean, 0)) {
		return fmt.Errorf("%w: mu_prior_mean must be finite", ErrInvalidConfig)
	}
	if p.MuScale != nil && (!(*p.MuScale > 0) || math.IsInf(*p.MuScale, 0)) {
		return fmt.Errorf("%w: mu_prior_scale must be positive and finite", ErrInvalidConfig)
	}
	return nil
}

// DiagnosticsConfig returns the diagnostics view of the config.
func (c Config) DiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		CredibleMass:         c.CredibleMass,
		ConvergenceThreshold: c.ConvergenceThreshold,
		RequireConvergence:   c.Diagnostics,
	}
}

// ProjectorConfig returns the projector view of the config.
func (c Config) ProjectorConfig() ProjectorConfig {
	est := c.TauEstimator
	if est == "" {
		est = EstimatorMode
	}
	return ProjectorConfig{Estimator: est}
}
