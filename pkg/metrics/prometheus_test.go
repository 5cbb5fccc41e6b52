package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveAnalysis("sync", "ok", 2*time.Second)
	r.ObserveAnalysis("job", "ok", time.Second)
	r.ObserveAnalysis("sync", "error", time.Millisecond)
	r.CacheHit()
	r.CacheMiss()
	r.CacheMiss()
	r.RecordError("ERR_NUMERIC_OVERFLOW")
	r.RecordJob("done")
	r.RecordIngested("kafka", 5)

	if v := testutil.ToFloat64(r.analyses.WithLabelValues("ok")); v != 2 {
		t.Fatalf("ok analyses = %v", v)
	}
	if v := testutil.ToFloat64(r.cacheRequests.WithLabelValues("miss")); v != 2 {
		t.Fatalf("cache misses = %v", v)
	}
	if v := testutil.ToFloat64(r.ingested.WithLabelValues("kafka")); v != 5 {
		t.Fatalf("ingested = %v", v)
	}
	if n := testutil.CollectAndCount(r.analysisTime); n != 2 {
		t.Fatalf("expected 2 analysis histograms, got %d", n)
	}
}

func TestRecorderGauges(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.ObserveChain(1, 300*time.Millisecond, 0.42)
	if v := testutil.ToFloat64(r.acceptance.WithLabelValues("1")); v != 0.42 {
		t.Fatalf("acceptance = %v", v)
	}

	r.SetRHat("tau", 1.003)
	r.SetRHat("mu1", math.NaN())
	if v := testutil.ToFloat64(r.rhat.WithLabelValues("tau")); v != 1.003 {
		t.Fatalf("rhat = %v", v)
	}
	if n := testutil.CollectAndCount(r.rhat); n != 1 {
		t.Fatalf("NaN R-hat should not create a series, got %d", n)
	}
}
