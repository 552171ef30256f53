package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")
	SessionOpened()
	StepEnd(100*time.Millisecond, 2, true)
	StepEnd(50*time.Millisecond, 0, false)
	done := ComputeWaitStart()
	done()
	RunnerConnected()

	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
	if v := testutil.ToFloat64(sessionsActive); v != 1 {
		t.Fatalf("sessions active: %v", v)
	}
	if v := testutil.ToFloat64(stepsTotal); v != 2 {
		t.Fatalf("steps total: %v", v)
	}
	if v := testutil.ToFloat64(stepsFailedTotal); v != 1 {
		t.Fatalf("steps failed: %v", v)
	}
	if v := testutil.ToFloat64(framesGeneratedTotal); v != 2 {
		t.Fatalf("frames generated: %v", v)
	}
	if v := testutil.ToFloat64(computeQueueDepth); v != 0 {
		t.Fatalf("queue depth: %v", v)
	}
	if v := testutil.ToFloat64(runnersConnected); v != 1 {
		t.Fatalf("runners connected: %v", v)
	}
}
