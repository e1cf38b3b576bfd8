package docker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autograder",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Duration of sandboxed script runs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autograder",
		Subsystem: "sandbox",
		Name:      "run_timeouts_total",
		Help:      "Number of sandboxed runs killed after the timeout",
	}, []string{"image"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autograder",
		Subsystem: "sandbox",
		Name:      "run_failures_total",
		Help:      "Number of sandboxed runs the container engine could not complete",
	}, []string{"image", "stage"})
)

// Executor runs a command inside an isolated container.
type Executor interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest describes one container run. Workspace is bind-mounted at WorkingDir.
type ExecutionRequest struct {
	Image           string
	Cmd             []string
	Env             []string
	Timeout         time.Duration
	Workspace       string
	WorkingDir      string
	MemoryLimitMB   int64
	CPUShares       int64
	NetworkDisabled bool
	ReadOnlyFS      bool
}

// ExecutionResult summarises a finished container run.
type ExecutionResult struct {
	Stdout           string
	Stderr           string
	ExitCode         int
	Duration         time.Duration
	TimedOut         bool
	MemoryUsageBytes int64
	CPUUsageNanosec  uint64
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)

// Run calls f.
func (f ExecutorFunc) Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	return f(ctx, req)
}
