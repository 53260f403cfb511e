package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Classification("keyword")
	m.Classification("keyword")
	m.Assignment("auto_assign")
	m.Pass("sweep", "skipped", 0)

	if got := testutil.ToFloat64(m.classifications.WithLabelValues("keyword")); got != 2 {
		t.Fatalf("expected 2 keyword classifications, got %v", got)
	}
	if got := testutil.ToFloat64(m.passes.WithLabelValues("sweep", "skipped")); got != 1 {
		t.Fatalf("expected 1 skipped sweep, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Classification("keyword")
	m.Assignment("auto_assign")
	m.BatchItem("failed")
	m.RebalanceMove()
	m.Pass("sweep", "ok", time.Second)
}
