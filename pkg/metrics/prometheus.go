package metrics

import (
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "brentshift"

// Recorder collects analysis metrics. It satisfies changepoint.Recorder.
type Recorder struct {
	analyses      *prometheus.CounterVec
	analysisTime  *prometheus.HistogramVec
	chainTime     prometheus.Histogram
	acceptance    *prometheus.GaugeVec
	rhat          *prometheus.GaugeVec
	cacheRequests *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	ingested      *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed change-point analyses by outcome",
		}, []string{"status"}),
		analysisTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a change-point analysis",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		chainTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_duration_seconds",
			Help:      "Wall time of one sampler chain",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		acceptance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sigma_acceptance_rate",
			Help:      "Post warm-up sigma acceptance rate of the last run, per chain",
		}, []string{"chain"}),
		rhat: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rhat",
			Help:      "Split R-hat of the last analysis, per parameter",
		}, []string{"param"}),
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Result cache lookups by outcome",
		}, []string{"result"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind",
		}, []string{"kind"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Queued analysis jobs by final state",
		}, []string{"state"}),
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prices_ingested_total",
			Help:      "Price points appended to the store by source",
		}, []string{"source"}),
	}
}

// ObserveChain records one finished chain.
func (r *Recorder) ObserveChain(chain int, elapsed time.Duration, acceptance float64) {
	r.chainTime.Observe(elapsed.Seconds())
	r.acceptance.WithLabelValues(strconv.Itoa(chain)).Set(acceptance)
}

// ObserveAnalysis records an analysis outcome; mode is sync, job or stream.
func (r *Recorder) ObserveAnalysis(mode, status string, elapsed time.Duration) {
	r.analyses.WithLabelValues(status).Inc()
	r.analysisTime.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// SetRHat publishes a parameter's R-hat. NaN values are skipped.
func (r *Recorder) SetRHat(param string, v float64) {
	if math.IsNaN(v) {
		return
	}
	r.rhat.WithLabelValues(param).Set(v)
}

// CacheHit records a result cache hit.
func (r *Recorder) CacheHit() { r.cacheRequests.WithLabelValues("hit").Inc() }

// CacheMiss records a result cache miss.
func (r *Recorder) CacheMiss() { r.cacheRequests.WithLabelValues("miss").Inc() }

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordJob records a job reaching a terminal state.
func (r *Recorder) RecordJob(state string) {
	r.jobs.WithLabelValues(state).Inc()
}

// RecordIngested counts appended price points.
func (r *Recorder) RecordIngested(source string, n int) {
	r.ingested.WithLabelValues(source).Add(float64(n))
}
