package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "worldsrv_build_info",
			Help:        "Build information for the world-model inference server",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldsrv_sessions_active",
			Help: "Number of live inference sessions",
		},
	)

	stepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worldsrv_steps_total",
			Help: "Total number of completed inference steps",
		},
	)

	stepsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worldsrv_steps_failed_total",
			Help: "Total number of inference steps that ended in a generation error",
		},
	)

	framesGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worldsrv_frames_generated_total",
			Help: "Total number of frames produced across all sessions",
		},
	)

	computeQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldsrv_compute_queue_depth",
			Help: "Number of steps waiting for the shared compute gate",
		},
	)

	computeWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worldsrv_compute_wait_seconds",
			Help:    "Time spent waiting for the shared compute gate",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	stepSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worldsrv_step_seconds",
			Help:    "Wall time of one inference step inside the compute gate",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)

	runnersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldsrv_runners_connected",
			Help: "Number of connected model runners",
		},
	)
)

// Register registers all server collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		buildInfo,
		sessionsActive,
		stepsTotal,
		stepsFailedTotal,
		framesGeneratedTotal,
		computeQueueDepth,
		computeWaitSeconds,
		stepSeconds,
		runnersConnected,
	)
}

// SetBuildInfo sets the build info metric for the server.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

func SessionOpened() { sessionsActive.Inc() }
func SessionClosed() { sessionsActive.Dec() }

// StepEnd records a finished step and its produced frames.
func StepEnd(dur time.Duration, frames int, success bool) {
	stepSeconds.Observe(dur.Seconds())
	stepsTotal.Inc()
	if success {
		framesGeneratedTotal.Add(float64(frames))
	} else {
		stepsFailedTotal.Inc()
	}
}

// ComputeWaitStart marks a step entering the compute queue and returns a
// callback to invoke once the gate is acquired.
func ComputeWaitStart() func() {
	computeQueueDepth.Inc()
	start := time.Now()
	return func() {
		computeQueueDepth.Dec()
		computeWaitSeconds.Observe(time.Since(start).Seconds())
	}
}

func RunnerConnected()    { runnersConnected.Inc() }
func RunnerDisconnected() { runnersConnected.Dec() }
