package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"BrentShift/internal/changepoint"
	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	repo "BrentShift/internal/repository"
	"BrentShift/internal/services/features"
	"BrentShift/pkg/cache"
	applogger "BrentShift/pkg/logger"
	"BrentShift/pkg/util"
)

// Analysis modes, used as the metrics label.
const (
	ModeSync   = "sync"
	ModeStream = "stream"
	ModeJob    = "job"
)

// AnalysisSettings are the server-side defaults and limits.
type AnalysisSettings struct {
	Defaults         changepoint.Config
	Timeout          time.Duration
	MaxSeriesLength  int
	MaxSampleSweeps  int
	MaxChains        int
	DefaultColumn    string
	VolatilityWindow int
	EventWindowDays  int
	ResultTTL        time.Duration
}

// AnalysisUseCase runs change-point analyses over caller series or the
// stored price history.
type AnalysisUseCase struct {
	prices    domrepo.PriceStore
	results   domrepo.ChangePointStore
	events    domrepo.EventStore
	cache     cache.Service
	publisher domrepo.ResultPublisher
	metrics   domrepo.Metrics
	l         *applogger.Logger
	cfg       AnalysisSettings

	now   func() time.Time
	newID func() string
}

// NewAnalysisUseCase wires the use case. cache and publisher may be nil.
func NewAnalysisUseCase(
	prices domrepo.PriceStore,
	results domrepo.ChangePointStore,
	events domrepo.EventStore,
	c cache.Service,
	publisher domrepo.ResultPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg AnalysisSettings,
) *AnalysisUseCase {
	if l == nil {
		l = applogger.NewNop()
	}
	if publisher == nil {
		publisher = repo.NopResultPublisher{}
	}
	if cfg.DefaultColumn == "" {
		cfg.DefaultColumn = models.ColumnDailyReturn
	}
	return &AnalysisUseCase{
		prices:    prices,
		results:   results,
		events:    events,
		cache:     c,
		publisher: publisher,
		metrics:   metrics,
		l:         l,
		cfg:       cfg,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Analyze runs an analysis and waits for the projection.
func (uc *AnalysisUseCase) Analyze(ctx context.Context, req *models.AnalyzeRequest) (*models.ChangePointRecord, error) {
	return uc.run(ctx, req, ModeSync, nil, 0)
}

// Stream runs an analysis and calls fn with sampler progress. fn is called
// from the chain goroutines and must be safe for concurrent use. Cached
// results are not used.
func (uc *AnalysisUseCase) Stream(ctx context.Context, req *models.AnalyzeRequest, every int, fn func(changepoint.ProgressEvent)) (*models.ChangePointRecord, error) {
	r := *req
	r.Refresh = true
	return uc.run(ctx, &r, ModeStream, fn, every)
}

// List returns stored analyses without their regime tables.
func (uc *AnalysisUseCase) List(ctx context.Context, limit int) ([]models.ChangePointRecord, error) {
	return uc.results.List(ctx, limit)
}

// Get returns one stored analysis.
func (uc *AnalysisUseCase) Get(ctx context.Context, id string) (*models.ChangePointRecord, error) {
	rec, err := uc.results.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return nil, fmt.Errorf("change point %s: %w", id, err)
		}
		return nil, err
	}
	return rec, nil
}

func (uc *AnalysisUseCase) run(ctx context.Context, req *models.AnalyzeRequest, mode string, progress func(changepoint.ProgressEvent), every int) (rec *models.ChangePointRecord, err error) {
	start := uc.now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			uc.metrics.RecordError(ErrorKind(err))
		}
		uc.metrics.ObserveAnalysis(mode, status, time.Since(start))
	}()

	series, source, err := uc.resolveSeries(ctx, req)
	if err != nil {
		return nil, err
	}
	cfg, err := uc.resolveConfig(req.Config)
	if err != nil {
		return nil, err
	}
	if uc.cfg.MaxSeriesLength > 0 && series.Len() > uc.cfg.MaxSeriesLength {
		return nil, &LimitError{Field: "series", Limit: uc.cfg.MaxSeriesLength, Got: series.Len()}
	}
	model, err := changepoint.NewModel(series.Values, cfg.Priors)
	if err != nil {
		return nil, err
	}

	seriesHash, err := cache.HashJSON(struct {
		Index  []time.Time `json:"index"`
		Values []float64   `json:"values"`
	}{series.Index, series.Values})
	if err != nil {
		return nil, fmt.Errorf("hash series: %w", err)
	}
	configHash, err := cache.HashJSON(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}
	key := cache.Key("result", seriesHash, configHash)

	if uc.cache != nil && !req.Refresh {
		var cached models.ChangePointRecord
		switch err := uc.cache.Get(ctx, key, &cached); {
		case err == nil:
			uc.metrics.CacheHit()
			return &cached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			uc.metrics.CacheMiss()
		default:
			uc.l.Warn("result cache read failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	if uc.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.Timeout)
		defer cancel()
	}

	proj, err := uc.sample(ctx, model, series, cfg, progress, every)
	if err != nil {
		return nil, err
	}

	rec = &models.ChangePointRecord{
		ID:         uc.newID(),
		CreatedAt:  uc.now().UTC(),
		SeriesHash: seriesHash,
		ConfigHash: configHash,
		Source:     source,
		Column:     series.Column,
		Start:      series.Index[0],
		End:        series.Index[series.Len()-1],
		N:          series.Len(),
		ElapsedMS:  time.Since(start).Milliseconds(),
		Config:     cfg,
		Result:     proj,
	}
	rec.NearbyEvents = uc.nearbyEvents(ctx, proj.TauEstimate)

	uc.l.Info("change point analysis done",
		applogger.String("id", rec.ID),
		applogger.String("mode", mode),
		applogger.String("source", source),
		applogger.Int("n", rec.N),
		applogger.Date("tau", proj.TauEstimate),
		applogger.Float64("mean_shift", proj.MeanShift),
		applogger.Bool("converged", proj.Converged),
		applogger.Int64("elapsed_ms", rec.ElapsedMS),
	)
	uc.persist(ctx, key, rec)
	return rec, nil
}

func (uc *AnalysisUseCase) resolveSeries(ctx context.Context, req *models.AnalyzeRequest) (features.Series, string, error) {
	if len(req.Series) > 0 {
		if uc.cfg.MaxSeriesLength > 0 && len(req.Series) > uc.cfg.MaxSeriesLength {
			return features.Series{}, "", &LimitError{Field: "series", Limit: uc.cfg.MaxSeriesLength, Got: len(req.Series)}
		}
		s, err := features.FromPoints(req.Series, util.ParseTime)
		return s, models.SourceRequest, err
	}

	var r models.DateRange
	if req.Start != "" {
		t, ok := util.ParseDate(req.Start)
		if !ok {
			return features.Series{}, "", &InvalidDateError{Field: "start", Value: req.Start}
		}
		r.From = &t
	}
	if req.End != "" {
		t, ok := util.ParseDate(req.End)
		if !ok {
			return features.Series{}, "", &InvalidDateError{Field: "end", Value: req.End}
		}
		r.To = &t
	}
	column := req.Column
	if column == "" {
		column = uc.cfg.DefaultColumn
	}

	// returns need the day before the range starts
	load := r
	if r.From != nil {
		from := r.From.AddDate(0, 0, -7)
		if column == models.ColumnVolatility {
			from = r.From.AddDate(0, 0, -2*uc.cfg.VolatilityWindow-7)
		}
		load.From = &from
	}
	points, err := uc.prices.Prices(ctx, load)
	if err != nil {
		return features.Series{}, "", fmt.Errorf("load prices: %w", err)
	}
	s, err := features.BuildSeries(points, column, r, uc.cfg.VolatilityWindow)
	return s, models.SourceStore, err
}

func (uc *AnalysisUseCase) resolveConfig(over *models.AnalysisConfig) (changepoint.Config, error) {
	cfg := over.Apply(uc.cfg.Defaults)
	if uc.cfg.MaxChains > 0 && cfg.NumChains > uc.cfg.MaxChains {
		return cfg, &LimitError{Field: "config.num_chains", Limit: uc.cfg.MaxChains, Got: cfg.NumChains}
	}
	if uc.cfg.MaxSampleSweeps > 0 {
		if cfg.SampleSweeps > uc.cfg.MaxSampleSweeps {
			return cfg, &LimitError{Field: "config.sample_sweeps", Limit: uc.cfg.MaxSampleSweeps, Got: cfg.SampleSweeps}
		}
		if cfg.WarmupSweeps > uc.cfg.MaxSampleSweeps {
			return cfg, &LimitError{Field: "config.warmup_sweeps", Limit: uc.cfg.MaxSampleSweeps, Got: cfg.WarmupSweeps}
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (uc *AnalysisUseCase) sample(ctx context.Context, model *changepoint.Model, s features.Series, cfg changepoint.Config, progress func(changepoint.ProgressEvent), every int) (*changepoint.Projection, error) {
	opts := []changepoint.SamplerOption{changepoint.WithRecorder(uc.metrics)}
	if progress != nil {
		opts = append(opts, changepoint.WithProgress(progress, every))
	}
	sampler, err := changepoint.NewSampler(model, cfg, opts...)
	if err != nil {
		return nil, err
	}
	chains, err := sampler.Run(ctx)
	if err != nil {
		return nil, err
	}
	sum, err := changepoint.Summarize(chains, model.N(), cfg.DiagnosticsConfig())
	if err != nil {
		return nil, err
	}
	for _, name := range changepoint.ParamNames {
		if ps, ok := sum.Param(name); ok {
			uc.metrics.SetRHat(name, ps.RHat)
		}
	}
	if !sum.Converged && sum.Diagnosed {
		uc.l.Warn("chains did not converge", applogger.Strings("params", sum.Unconverged()))
	}
	return changepoint.Project(sum, s.Index, s.Values, cfg.ProjectorConfig())
}

func (uc *AnalysisUseCase) nearbyEvents(ctx context.Context, tau time.Time) []models.NearbyEvent {
	if uc.events == nil || uc.cfg.EventWindowDays <= 0 {
		return nil
	}
	evs, err := uc.events.Events(ctx)
	if err != nil {
		uc.l.Warn("events unavailable", applogger.Error(err))
		return nil
	}
	return repo.NearbyEvents(evs, tau, uc.cfg.EventWindowDays)
}

// persist stores, caches and publishes rec. Failures are logged; the caller
// already has its result.
func (uc *AnalysisUseCase) persist(ctx context.Context, key string, rec *models.ChangePointRecord) {
	ctx = context.WithoutCancel(ctx)
	if err := uc.results.Save(ctx, rec); err != nil {
		uc.metrics.RecordError(KindStorage)
		uc.l.Error("save change point failed", applogger.String("id", rec.ID), applogger.Error(err))
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, rec, uc.cfg.ResultTTL); err != nil {
			uc.l.Warn("result cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	if err := uc.publisher.PublishResult(ctx, rec); err != nil {
		uc.l.Warn("publish result failed", applogger.String("id", rec.ID), applogger.Error(err))
	}
}
