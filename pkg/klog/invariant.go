package klog

import (
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

// IsTestMode makes invariant violations panic instead of merely logging, so broken assumptions
// fail the test that exercised them rather than surfacing later as silent corruption. It is set
// at package init when the LSMSST_TEST_MODE environment variable is "1".
var IsTestMode bool

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lsmsst_invariants_total",
	Help: "Total number of invariant violations detected at runtime.",
}, []string{"component", "kind"})

// Invariant records a violation of a condition that must always hold: it increments a counter,
// logs at error level, and panics when IsTestMode is set. Callers are still responsible for
// handling the erroneous case afterwards (e.g. returning an error) when not in test mode.
func Invariant(component, kind, msg string, args ...any) {
	invariantsMetric.WithLabelValues(component, kind).Inc()
	slog.With("component", component, "kind", kind).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + component + "/" + kind)
	}
}

// InvariantCount returns the current value of the invariant counter for (component, kind),
// primarily useful in tests that assert a violation was (or wasn't) raised.
func InvariantCount(component, kind string) int {
	metric := &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(component, kind).Write(metric); err != nil {
		slog.Error("failed to read invariant metric", "error", err)
		return 0
	}
	return int(metric.Counter.GetValue())
}

func init() {
	// Mirrors the teacher's build-flag-driven test mode switch, simplified to an env var since
	// this repo has no linker-injected build variables.
	if os.Getenv("LSMSST_TEST_MODE") == "1" {
		IsTestMode = true
	}
}
