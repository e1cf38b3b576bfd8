package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrImageRequired is returned when a request names no image.
var ErrImageRequired = errors.New("image is required")

// Config groups executor defaults applied when a request leaves a field unset.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkingDir    string
	Logger        zerolog.Logger
}

// DockerExecutor runs requests as short-lived Docker containers.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-autograder/pkg/docker"),
		logger: logger.With().Str("component", "docker_executor").Logger(),
	}, nil
}

// Run executes the request and always removes the container afterwards. A run that
// exceeds its timeout is killed and reported with TimedOut set and a non-nil error.
func (e *DockerExecutor) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	if req.Image == "" {
		return ExecutionResult{}, ErrImageRequired
	}
	image := req.Image

	ctx, span := e.tracer.Start(parent, "docker.executor.run", trace.WithAttributes(
		attribute.String("docker.image", image),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fail := func(stage string, err error) (ExecutionResult, error) {
		runFailures.WithLabelValues(image, stage).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExecutionResult{}, fmt.Errorf("container %s: %w", stage, err)
	}

	resp, err := e.client.ContainerCreate(ctx, e.containerConfig(req), e.hostConfig(req), &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return fail("create", err)
	}
	containerID := resp.ID
	defer e.remove(containerID)

	start := time.Now()
	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fail("start", err)
	}

	result := ExecutionResult{}
	exitCode, waitErr := e.wait(ctx, containerID)
	result.ExitCode = exitCode
	result.Duration = time.Since(start)
	runDuration.WithLabelValues(image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		if !errors.Is(waitErr, context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if errors.Is(waitErr, context.Canceled) {
				return result, waitErr
			}
			return fail("wait", waitErr)
		}
		result.TimedOut = true
		runTimeouts.WithLabelValues(image).Inc()
		e.kill(containerID)
		span.SetStatus(codes.Error, "execution timed out")
	}

	// logs and stats are read with the parent context, the run context may have expired
	result.Stdout, result.Stderr = e.logs(parent, containerID)
	result.MemoryUsageBytes, result.CPUUsageNanosec = e.stats(parent, containerID)

	span.SetAttributes(
		attribute.Int("docker.exit_code", result.ExitCode),
		attribute.Bool("docker.timed_out", result.TimedOut),
	)

	if result.TimedOut {
		return result, fmt.Errorf("execution timed out after %s", timeout)
	}
	return result, nil
}

func (e *DockerExecutor) containerConfig(req ExecutionRequest) *container.Config {
	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = e.cfg.WorkingDir
	}
	return &container.Config{
		Image:           req.Image,
		Cmd:             req.Cmd,
		Env:             req.Env,
		WorkingDir:      workingDir,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: req.NetworkDisabled,
	}
}

func (e *DockerExecutor) hostConfig(req ExecutionRequest) *container.HostConfig {
	hostCfg := &container.HostConfig{
		NetworkMode:    "bridge",
		ReadonlyRootfs: req.ReadOnlyFS,
		Resources: container.Resources{
			Memory:    req.MemoryLimitMB * 1024 * 1024,
			CPUShares: req.CPUShares,
		},
	}
	if req.NetworkDisabled {
		hostCfg.NetworkMode = "none"
	}
	if hostCfg.Resources.Memory == 0 && e.cfg.MemoryLimitMB > 0 {
		hostCfg.Resources.Memory = e.cfg.MemoryLimitMB * 1024 * 1024
	}
	if hostCfg.Resources.CPUShares == 0 && e.cfg.CPUShares > 0 {
		hostCfg.Resources.CPUShares = e.cfg.CPUShares
	}

	if req.Workspace != "" {
		target := req.WorkingDir
		if target == "" {
			target = e.cfg.WorkingDir
		}
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: req.Workspace,
			Target: target,
		})
	}
	return hostCfg
}

func (e *DockerExecutor) wait(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)
	select {
	case err := <-errCh:
		return 0, err
	case status := <-statusCh:
		return int(status.StatusCode), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *DockerExecutor) logs(ctx context.Context, containerID string) (string, string) {
	reader, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return "", ""
	}
	defer reader.Close()

	stdout, stderr, err := splitDockerLogs(reader)
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
	}
	return stdout, stderr
}

func (e *DockerExecutor) stats(parent context.Context, containerID string) (int64, uint64) {
	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	stats, err := e.client.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0, 0
	}
	defer stats.Body.Close()

	var data types.StatsJSON
	if err := json.NewDecoder(stats.Body).Decode(&data); err != nil {
		return 0, 0
	}
	return int64(data.MemoryStats.Usage), data.CPUStats.CPUUsage.TotalUsage
}

func (e *DockerExecutor) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.client.ContainerKill(ctx, containerID, "KILL"); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
	}
}

func (e *DockerExecutor) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
	}
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return stdoutBuf.String(), stderrBuf.String(), err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the executor's underlying client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
