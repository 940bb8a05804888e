package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordAdmission("quote", "reject", "allowed")
	r.RecordAdmission("quote", "reject", "allowed")
	r.RecordAdmission("quote", "reject", "rejected")
	r.RecordAvailable("quote", 3)
	r.RecordWait("quote-wait", "admitted", 0.2)
	r.RecordError("upstream")

	if got := testutil.ToFloat64(r.admissions.WithLabelValues("quote", "reject", "allowed")); got != 2 {
		t.Fatalf("allowed=%v, want 2", got)
	}
	if got := testutil.ToFloat64(r.available.WithLabelValues("quote")); got != 3 {
		t.Fatalf("available=%v, want 3", got)
	}
	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("upstream")); got != 1 {
		t.Fatalf("errors=%v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.waitTime); n != 1 {
		t.Fatalf("wait series=%d, want 1", n)
	}
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
