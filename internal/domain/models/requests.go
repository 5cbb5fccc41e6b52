package models

import "BrentShift/internal/changepoint"

// SeriesPoint is one caller-supplied observation.
type SeriesPoint struct {
	Timestamp string  `json:"timestamp" validate:"required"`
	Value     float64 `json:"value"`
}

// AnalysisConfig overrides the server's default sampler settings. Nil
// fields keep the default.
type AnalysisConfig struct {
	NumChains            *int     `json:"num_chains,omitempty" validate:"omitempty,gte=1"`
	WarmupSweeps         *int     `json:"warmup_sweeps,omitempty" validate:"omitempty,gte=0"`
	SampleSweeps         *int     `json:"sample_sweeps,omitempty" validate:"omitempty,gte=1"`
	BaseSeed             *uint64  `json:"base_seed,omitempty"`
	TargetAcceptance     *float64 `json:"target_acceptance,omitempty" validate:"omitempty,gt=0,lt=1"`
	CredibleInterval     *float64 `json:"credible_interval,omitempty" validate:"omitempty,gt=0,lt=1"`
	ConvergenceThreshold *float64 `json:"convergence_threshold,omitempty" validate:"omitempty,gte=1"`
	Diagnostics          *bool    `json:"diagnostics,omitempty"`
	TauEstimator         string   `json:"tau_estimator,omitempty" validate:"omitempty,oneof=mode mean median"`
	MuPriorMean          *float64 `json:"mu_prior_mean,omitempty"`
	MuPriorScale         *float64 `json:"mu_prior_scale,omitempty" validate:"omitempty,gt=0"`
	SigmaPriorScale      *float64 `json:"sigma_prior_scale,omitempty" validate:"omitempty,gt=0"`
}

// Apply returns base with the set fields replaced.
func (a *AnalysisConfig) Apply(base changepoint.Config) changepoint.Config {
	if a == nil {
		return base
	}
	if a.NumChains != nil {
		base.NumChains = *a.NumChains
	}
	if a.WarmupSweeps != nil {
		base.WarmupSweeps = *a.WarmupSweeps
	}
	if a.SampleSweeps != nil {
		base.SampleSweeps = *a.SampleSweeps
	}
	if a.BaseSeed != nil {
		base.BaseSeed = *a.BaseSeed
	}
	if a.TargetAcceptance != nil {
		base.TargetAcceptance = *a.TargetAcceptance
	}
	if a.CredibleInterval != nil {
		base.CredibleMass = *a.CredibleInterval
	}
	if a.ConvergenceThreshold != nil {
		base.ConvergenceThreshold = *a.ConvergenceThreshold
	}
	if a.Diagnostics != nil {
		base.Diagnostics = *a.Diagnostics
	}
	if a.TauEstimator != "" {
		base.TauEstimator = a.TauEstimator
	}
	if a.MuPriorMean != nil {
		v := *a.MuPriorMean
		base.Priors.MuMean = &v
	}
	if a.MuPriorScale != nil {
		v := *a.MuPriorScale
		base.Priors.MuScale = &v
	}
	if a.SigmaPriorScale != nil {
		base.Priors.SigmaScale = *a.SigmaPriorScale
	}
	return base
}

// AnalyzeRequest asks for a change-point analysis of either an explicit
// series or a column of the stored prices.
type AnalyzeRequest struct {
	Series  []SeriesPoint   `json:"series,omitempty" validate:"omitempty,dive"`
	Column  string          `json:"column,omitempty" validate:"omitempty,oneof=daily_return log_return price volatility"`
	Start   string          `json:"start,omitempty"`
	End     string          `json:"end,omitempty"`
	Config  *AnalysisConfig `json:"config,omitempty"`
	Refresh bool            `json:"refresh,omitempty"`
}

// StreamRequest is the query form of AnalyzeRequest used by the progress
// stream. Absent sampler parameters keep the server defaults; present ones,
// zero included, override them.
type StreamRequest struct {
	Column       string  `query:"column" validate:"omitempty,oneof=daily_return log_return price volatility"`
	Start        string  `query:"start"`
	End          string  `query:"end"`
	Every        int     `query:"every" default:"100" validate:"gte=1"`
	NumChains    *int    `query:"num_chains" validate:"omitempty,gte=1"`
	WarmupSweeps *int    `query:"warmup_sweeps" validate:"omitempty,gte=0"`
	SampleSweeps *int    `query:"sample_sweeps" validate:"omitempty,gte=1"`
	BaseSeed     *uint64 `query:"base_seed"`
	Diagnostics  *bool   `query:"diagnostics"`
}

// AnalyzeRequest converts the query into the body form.
func (s *StreamRequest) AnalyzeRequest() *AnalyzeRequest {
	return &AnalyzeRequest{
		Column: s.Column,
		Start:  s.Start,
		End:    s.End,
		Config: &AnalysisConfig{
			NumChains:    s.NumChains,
			WarmupSweeps: s.WarmupSweeps,
			SampleSweeps: s.SampleSweeps,
			BaseSeed:     s.BaseSeed,
			Diagnostics:  s.Diagnostics,
		},
	}
}

// PriceQuery filters the stored prices.
type PriceQuery struct {
	Start string `query:"start"`
	End   string `query:"end"`
}

// ListQuery pages stored change points.
type ListQuery struct {
	Limit int `query:"limit" default:"20" validate:"gte=1,lte=500"`
}
