package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrentShift/internal/changepoint"
	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	repo "BrentShift/internal/repository"
	"BrentShift/internal/services/features"
	"BrentShift/pkg/cache"
	pkghttp "BrentShift/pkg/http"
	"BrentShift/pkg/metrics"
	"BrentShift/pkg/queue"
)

type fakePublisher struct {
	mu   sync.Mutex
	recs []*models.ChangePointRecord
	err  error
}

func (p *fakePublisher) PublishResult(_ context.Context, rec *models.ChangePointRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recs)
}

type fakeQueue struct {
	msgs []queue.Message
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType, id string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.msgs = append(q.msgs, queue.Message{ID: id, Type: msgType, Payload: raw})
	return nil
}

var start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// stepSeries has a mean shift of 5 after index 39.
func stepSeries() []models.SeriesPoint {
	out := make([]models.SeriesPoint, 80)
	for i := range out {
		v := 0.4 * math.Sin(float64(i)*1.7)
		if i >= 40 {
			v += 5
		}
		out[i] = models.SeriesPoint{Timestamp: start.AddDate(0, 0, i).Format(time.RFC3339), Value: v}
	}
	return out
}

func testSettings() AnalysisSettings {
	cfg := changepoint.DefaultConfig()
	cfg.WarmupSweeps = 200
	cfg.SampleSweeps = 300
	return AnalysisSettings{
		Defaults:         cfg,
		Timeout:          time.Minute,
		MaxSeriesLength:  1000,
		MaxSampleSweeps:  5000,
		MaxChains:        4,
		VolatilityWindow: 5,
		EventWindowDays:  60,
		ResultTTL:        time.Hour,
	}
}

type fixture struct {
	uc        *AnalysisUseCase
	results   *repo.MemoryChangePointStore
	prices    *repo.MemoryPriceStore
	cache     *cache.MemoryCache
	publisher *fakePublisher
	metrics   *metrics.Recorder
}

func newFixture(t *testing.T, settings AnalysisSettings) *fixture {
	t.Helper()
	f := &fixture{
		results:   repo.NewMemoryChangePointStore(0),
		prices:    repo.NewMemoryPriceStore(nil),
		cache:     cache.NewMemoryCache(cache.WithMemoryCleanup(0)),
		publisher: &fakePublisher{},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	t.Cleanup(func() { _ = f.cache.Close() })
	f.uc = NewAnalysisUseCase(f.prices, f.results, repo.NewStaticEventStore(nil), f.cache, f.publisher, f.metrics, nil, settings)
	return f
}

func TestAnalyzeExplicitSeries(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()

	rec, err := f.uc.Analyze(ctx, &models.AnalyzeRequest{Series: stepSeries()})
	require.NoError(t, err)
	require.NotNil(t, rec.Result)

	assert.Equal(t, models.SourceRequest, rec.Source)
	assert.Equal(t, 80, rec.N)
	assert.Equal(t, 39, rec.Result.TauIndex)
	assert.Equal(t, start.AddDate(0, 0, 39), rec.Result.TauEstimate.UTC())
	assert.InDelta(t, 5, rec.Result.MeanShift, 0.5)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.SeriesHash, 64)

	stored, err := f.uc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
	assert.Equal(t, 1, f.publisher.count())

	again, err := f.uc.Analyze(ctx, &models.AnalyzeRequest{Series: stepSeries()})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID, "served from cache")
	assert.Equal(t, 1, f.publisher.count())

	fresh, err := f.uc.Analyze(ctx, &models.AnalyzeRequest{Series: stepSeries(), Refresh: true})
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, fresh.ID)
	assert.Equal(t, rec.SeriesHash, fresh.SeriesHash)

	list, err := f.uc.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAnalyzeStoredPrices(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()

	var pts []models.PricePoint
	for i := range 120 {
		p := 50 + 0.3*math.Sin(float64(i))
		if i >= 60 {
			p += 20
		}
		pts = append(pts, models.PricePoint{Date: start.AddDate(0, 0, i), Price: p})
	}
	_, err := f.prices.Append(ctx, pts)
	require.NoError(t, err)

	rec, err := f.uc.Analyze(ctx, &models.AnalyzeRequest{Column: models.ColumnPrice, Start: "2020-01-11", End: "2020-04-09"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceStore, rec.Source)
	assert.Equal(t, models.ColumnPrice, rec.Column)
	assert.Equal(t, 90, rec.N)
	assert.Equal(t, start.AddDate(0, 0, 59), rec.Result.TauEstimate.UTC())

	ret, err := f.uc.Analyze(ctx, &models.AnalyzeRequest{Start: "2020-01-11", End: "2020-04-09"})
	require.NoError(t, err)
	assert.Equal(t, models.ColumnDailyReturn, ret.Column)
	assert.Equal(t, 90, ret.N, "the day before start feeds the first return")
}

func TestAnalyzeStream(t *testing.T) {
	f := newFixture(t, testSettings())
	var (
		mu     sync.Mutex
		events []changepoint.ProgressEvent
	)
	rec, err := f.uc.Stream(context.Background(), &models.AnalyzeRequest{Series: stepSeries()}, 100, func(ev changepoint.ProgressEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	// 500 sweeps per chain, an event every 100
	assert.Len(t, events, 10)
}

func TestAnalyzeErrors(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	chains := 9
	one := 1

	cases := []struct {
		name   string
		req    *models.AnalyzeRequest
		code   string
		status int
	}{
		{"too short", &models.AnalyzeRequest{Series: stepSeries()[:1]}, "ERR_INSUFFICIENT_DATA", http.StatusUnprocessableEntity},
		{"empty range", &models.AnalyzeRequest{Start: "2030-01-01"}, "ERR_INSUFFICIENT_DATA", http.StatusUnprocessableEntity},
		{"chains above limit", &models.AnalyzeRequest{Series: stepSeries(), Config: &models.AnalysisConfig{NumChains: &chains}}, "ERR_LIMIT", http.StatusBadRequest},
		{"single chain with diagnostics", &models.AnalyzeRequest{Series: stepSeries(), Config: &models.AnalysisConfig{NumChains: &one}}, "ERR_INSUFFICIENT_CHAINS", http.StatusUnprocessableEntity},
		{"bad start", &models.AnalyzeRequest{Start: "someday"}, "ERR_BAD_REQUEST", http.StatusBadRequest},
		{"bad timestamp", &models.AnalyzeRequest{Series: []models.SeriesPoint{{Timestamp: "x"}, {Timestamp: "y"}}}, "ERR_INVALID_TIMESTAMP", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.Analyze(ctx, tc.req)
			require.Error(t, err)
			appErr := MapAnalysisError(err)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.status, appErr.Status)
			assert.True(t, Permanent(err))
		})
	}

	nan := stepSeries()
	nan[3].Value = math.NaN()
	_, err := f.uc.Analyze(ctx, &models.AnalyzeRequest{Series: nan})
	appErr := MapAnalysisError(err)
	assert.Equal(t, "ERR_INVALID_SERIES", appErr.Code)
	assert.Equal(t, "series[3].value", appErr.Field)
}

func TestAnalyzeTimeout(t *testing.T) {
	settings := testSettings()
	settings.Timeout = time.Nanosecond
	f := newFixture(t, settings)

	_, err := f.uc.Analyze(context.Background(), &models.AnalyzeRequest{Series: stepSeries()})
	require.Error(t, err)
	appErr := MapAnalysisError(err)
	assert.Equal(t, "ERR_CANCELLED", appErr.Code)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.Status)
	assert.True(t, appErr.Retryable)
	assert.False(t, Permanent(err))
}

func TestMapAnalysisError(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{&changepoint.DegenerateChainError{Chain: 1, Sweep: 7, Param: "sigma"}, "ERR_DEGENERATE_CHAIN", http.StatusInternalServerError},
		{&changepoint.NumericOverflowError{Chain: 0, Sweep: 3, Param: "tau"}, "ERR_NUMERIC_OVERFLOW", http.StatusInternalServerError},
		{&changepoint.CancelledError{Err: context.Canceled}, "ERR_CANCELLED", pkghttp.StatusClientClosedRequest},
		{&changepoint.CancelledError{Err: context.DeadlineExceeded}, "ERR_CANCELLED", http.StatusGatewayTimeout},
		{errors.Join(changepoint.ErrInvalidConfig, errors.New("x")), "ERR_INVALID_CONFIG", http.StatusBadRequest},
		{domrepo.ErrNotFound, "ERR_NOT_FOUND", http.StatusNotFound},
		{ErrJobsDisabled, "ERR_UNAVAILABLE", http.StatusServiceUnavailable},
		{errors.New("boom"), "ERR_INTERNAL", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got := MapAnalysisError(tc.err)
		assert.Equal(t, tc.code, got.Code, tc.err.Error())
		assert.Equal(t, tc.status, got.Status, tc.err.Error())
	}

	dce := MapAnalysisError(&changepoint.DegenerateChainError{Chain: 1, Sweep: 7, Param: "sigma"})
	assert.Equal(t, 1, dce.Params["chain"])
	assert.Equal(t, 7, dce.Params["sweep"])
	assert.False(t, dce.Retryable)
	assert.True(t, MapAnalysisError(ErrJobsDisabled).Retryable)
	assert.Nil(t, MapAnalysisError(nil))
	assert.Equal(t, KindNumerical, ErrorKind(&changepoint.NumericOverflowError{}))
	assert.Equal(t, KindCancelled, ErrorKind(&changepoint.CancelledError{Err: context.Canceled}))
	assert.Equal(t, KindValidation, ErrorKind(&features.TimestampError{}))
}

func TestJobLifecycle(t *testing.T) {
	f := newFixture(t, testSettings())
	q := &fakeQueue{}
	jobs := NewJobUseCase(f.uc, q, f.cache, time.Hour, f.metrics, nil)
	ctx := context.Background()

	job, err := jobs.Submit(ctx, &models.AnalyzeRequest{Series: stepSeries()})
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.Status)
	require.Len(t, q.msgs, 1)
	assert.Equal(t, JobType, q.msgs[0].Type)

	require.NoError(t, jobs.Handle(ctx, q.msgs[0]))

	got, err := jobs.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.Result)
	assert.Equal(t, 39, got.Result.Result.TauIndex)
	assert.Nil(t, got.Result.Result.Regimes)

	_, err = jobs.Job(ctx, "missing")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestJobPermanentFailure(t *testing.T) {
	f := newFixture(t, testSettings())
	q := &fakeQueue{}
	jobs := NewJobUseCase(f.uc, q, f.cache, time.Hour, f.metrics, nil)
	ctx := context.Background()

	job, err := jobs.Submit(ctx, &models.AnalyzeRequest{Series: stepSeries()[:1]})
	require.NoError(t, err)

	err = jobs.Handle(ctx, q.msgs[0])
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))

	got, err := jobs.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "ERR_INSUFFICIENT_DATA", got.Error.Code)

	// exhausted retries of a transient error
	jobs.DeadLetter(ctx, queue.Message{ID: "t1", Attempts: 3}, errors.New("redis down"))
	got, err = jobs.Job(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Equal(t, 4, got.Attempts)
	assert.Equal(t, "ERR_INTERNAL", got.Error.Code)
}

func TestJobsDisabled(t *testing.T) {
	f := newFixture(t, testSettings())
	jobs := NewJobUseCase(f.uc, nil, f.cache, time.Hour, f.metrics, nil)
	_, err := jobs.Submit(context.Background(), &models.AnalyzeRequest{})
	assert.ErrorIs(t, err, ErrJobsDisabled)

	q := &fakeQueue{err: errors.New("queue not running")}
	jobs = NewJobUseCase(f.uc, q, f.cache, time.Hour, f.metrics, nil)
	_, err = jobs.Submit(context.Background(), &models.AnalyzeRequest{})
	assert.Error(t, err)
}

func TestKafkaPricesHandler(t *testing.T) {
	store := repo.NewMemoryPriceStore(nil)
	h := NewKafkaPricesHandler("prices", store, metrics.New(prometheus.NewRegistry()))
	ctx := context.Background()

	assert.Equal(t, "prices", h.Topic())
	require.NoError(t, h.Handle(ctx, []byte(`{"date":"2024-01-02","price":75.9}`)))
	require.NoError(t, h.Handle(ctx, []byte(`[{"date":"2024-01-03","price":76.1},{"date":"2024-01-02","price":76.0}]`)))
	assert.Equal(t, 2, store.Len())

	pts, err := store.Prices(ctx, models.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 76.0, pts[0].Price)

	assert.Error(t, h.Handle(ctx, []byte(`{"date":"later","price":1}`)))
	assert.Error(t, h.Handle(ctx, []byte(`not json`)))
}

func TestPricesUseCaseMetrics(t *testing.T) {
	var pts []models.PricePoint
	for i := range 10 {
		pts = append(pts, models.PricePoint{Date: start.AddDate(0, 0, i), Price: float64(100 + i)})
	}
	uc := NewPricesUseCase(repo.NewMemoryPriceStore(pts), repo.NewStaticEventStore(nil), 3)
	ctx := context.Background()

	from := start.AddDate(0, 0, 1)
	m, err := uc.Metrics(ctx, models.DateRange{From: &from})
	require.NoError(t, err)
	require.Len(t, m, 9)
	require.NotNil(t, m[0].DailyReturn, "return uses the day before the range")
	assert.InDelta(t, 1, *m[0].DailyReturn, 1e-9)
	assert.Nil(t, m[0].Volatility)
	assert.NotNil(t, m[2].Volatility)

	evs, err := uc.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, evs, 10)
}
