package launch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/bioagent/molft/internal/config"
	"github.com/bioagent/molft/internal/logger"
)

// DefaultContainerWorkDir is where the host work dir is mounted.
const DefaultContainerWorkDir = "/workspace"

// dockerAPI is the subset of the Docker client used by DockerRunner.
type dockerAPI interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerOptions configure a containerised run.
type DockerOptions struct {
	// Image holds the training stack (deepspeed, python, the scripts'
	// dependencies).
	Image string

	// Mounts are extra "host:container[:ro]" bind mounts.
	Mounts []string

	// ShmSize is the /dev/shm size, e.g. "16g".
	ShmSize string

	// Ports are container ports published on the same host port.
	Ports []string

	// WorkDir is the container path the host work dir is mounted at.
	WorkDir string

	// CacheDirs are host cache directories mounted at the same path so the
	// exported HF_* variables stay valid inside the container.
	CacheDirs []string

	// Keep leaves the container in place after it exits.
	Keep bool

	// StopTimeout is the grace period given on cancellation.
	StopTimeout time.Duration
}

// DockerRunner runs commands inside a fresh container per run.
//
// Thread Safety: a DockerRunner may be shared; each Run uses its own
// container.
type DockerRunner struct {
	client dockerAPI
	opts   DockerOptions

	// exitGrace bounds the wait for the exit status after a stop and for
	// the log stream to drain.
	exitGrace time.Duration
}

// NewDockerRunner connects to the Docker daemon.
//
// The client respects DOCKER_HOST, DOCKER_TLS_VERIFY and DOCKER_CERT_PATH
// and negotiates the API version. Connectivity is verified with a 5 second
// ping.
//
// Returns:
//   - Runner ready to use
//   - Error if the daemon is unreachable or the options are invalid
func NewDockerRunner(opts DockerOptions) (*DockerRunner, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("docker mode requires an image (set docker.image in the task)")
	}

	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon is not accessible: %w", err)
	}

	return newDockerRunnerWithClient(cli, opts), nil
}

func newDockerRunnerWithClient(api dockerAPI, opts DockerOptions) *DockerRunner {
	if opts.WorkDir == "" {
		opts.WorkDir = DefaultContainerWorkDir
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 30 * time.Second
	}
	return &DockerRunner{client: api, opts: opts, exitGrace: 5 * time.Second}
}

// Name implements Runner.
func (r *DockerRunner) Name() string {
	return string(ModeDocker)
}

// Run creates a container for cmd, streams its output and waits for it.
//
// Steps:
//  1. Pull the image if it is not present locally
//  2. Create the container (env, mounts, GPUs, ports, labels)
//  3. Register a wait for the next exit, then start
//  4. Stream logs (demultiplexed unless TTY) until the container exits
//  5. Remove the container unless Keep is set
//
// Cancelling ctx stops the container with StopTimeout grace.
func (r *DockerRunner) Run(ctx context.Context, cmd *Command, rio RunIO) (*Result, error) {
	if err := r.ensureImage(ctx); err != nil {
		return nil, err
	}

	cfg, hostCfg, err := r.buildContainerConfig(cmd, rio.TTY)
	if err != nil {
		return nil, err
	}

	name := containerName(cmd)
	created, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := created.ID
	for _, w := range created.Warnings {
		logger.Warn("Docker: %s", w)
	}
	logger.Info("Created container %s (%s) from %s", name, shortID(containerID), r.opts.Image)

	if !r.opts.Keep {
		defer func() {
			rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := r.client.ContainerRemove(rmCtx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
				logger.Warn("Failed to remove container %s: %v", shortID(containerID), err)
			}
		}()
	}

	// The wait must be registered before start or a fast exit is missed.
	waitCh, waitErrCh := r.client.ContainerWait(context.Background(), containerID, container.WaitConditionNextExit)

	result := &Result{StartedAt: time.Now()}
	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	logCtx, cancelLogs := context.WithCancel(context.Background())
	defer cancelLogs()
	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		r.streamLogs(logCtx, containerID, rio)
	}()

	var exitCode int64
	select {
	case resp := <-waitCh:
		exitCode = resp.StatusCode
		if resp.Error != nil && resp.Error.Message != "" {
			logger.Warn("Container %s wait error: %s", shortID(containerID), resp.Error.Message)
		}
	case err := <-waitErrCh:
		return nil, fmt.Errorf("failed waiting for container: %w", err)
	case <-ctx.Done():
		exitCode = r.stopContainer(containerID, waitCh)
	}

	select {
	case <-logsDone:
	case <-time.After(r.exitGrace):
		logger.Debug("Log stream of %s still open, detaching", shortID(containerID))
		cancelLogs()
		<-logsDone
	}
	result.FinishedAt = time.Now()
	result.ExitCode = int(exitCode)

	if result.ExitCode != 0 {
		return result, &ExitError{Program: cmd.Program, Code: result.ExitCode}
	}
	return result, nil
}

// stopContainer stops a container after cancellation and returns its exit
// status. A container that cannot be stopped is killed; when no status
// arrives within exitGrace, 130 (SIGINT) is reported.
func (r *DockerRunner) stopContainer(containerID string, waitCh <-chan container.WaitResponse) int64 {
	logger.Warn("Cancelled, stopping container %s", shortID(containerID))
	timeout := int(r.opts.StopTimeout.Seconds())
	stopCtx, cancel := context.WithTimeout(context.Background(), r.opts.StopTimeout+10*time.Second)
	defer cancel()
	if err := r.client.ContainerStop(stopCtx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		logger.Warn("Failed to stop container %s: %v, killing it", shortID(containerID), err)
		if err := r.client.ContainerKill(stopCtx, containerID, "SIGKILL"); err != nil {
			logger.Warn("Failed to kill container %s: %v", shortID(containerID), err)
		}
	}

	select {
	case resp := <-waitCh:
		return resp.StatusCode
	case <-time.After(r.exitGrace):
		return 130
	}
}

// streamLogs follows the container's output until it exits or ctx is
// cancelled.
func (r *DockerRunner) streamLogs(ctx context.Context, containerID string, rio RunIO) {
	reader, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		logger.Warn("Failed to attach to container logs: %v", err)
		return
	}
	defer reader.Close()

	stdout, stderr := rio.Stdout, rio.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = stdout
	}

	if rio.TTY {
		// A TTY container has a single raw stream.
		_, _ = io.Copy(stdout, reader)
		return
	}
	if _, err := stdcopy.StdCopy(stdout, stderr, reader); err != nil {
		logger.Debug("Log stream ended: %v", err)
	}
}

// ensureImage pulls the image when it is missing locally.
func (r *DockerRunner) ensureImage(ctx context.Context) error {
	images, err := r.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", r.opts.Image)),
	})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	if len(images) > 0 {
		logger.Debug("Image %s present locally", r.opts.Image)
		return nil
	}

	logger.Info("Pulling image %s", r.opts.Image)
	rc, err := r.client.ImagePull(ctx, r.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", r.opts.Image, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", r.opts.Image, err)
	}
	logger.Info("Image %s pulled", r.opts.Image)
	return nil
}

// buildContainerConfig maps a Command onto container and host settings.
//
// The host work dir is bind-mounted at opts.WorkDir and becomes the working
// directory. Only exported variables enter the container; the host
// environment is not inherited. All GPUs are requested unless the command
// selects specific ones; see containerDevices.
func (r *DockerRunner) buildContainerConfig(cmd *Command, tty bool) (*container.Config, *container.HostConfig, error) {
	labels := map[string]string{
		"molft.runner": r.Name(),
	}
	for k, v := range cmd.Labels {
		labels[k] = v
	}

	hostDevices, inner := containerDevices(cmd)

	cfg := &container.Config{
		Image:      r.opts.Image,
		Cmd:        inner.Argv(),
		Env:        inner.EnvList(),
		WorkingDir: r.opts.WorkDir,
		Labels:     labels,
		Tty:        tty,
	}

	hostCfg := &container.HostConfig{
		IpcMode: container.IPCModeHost,
	}

	workDir := cmd.WorkDir
	if workDir == "" {
		workDir = "."
	}
	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve work dir %s: %w", workDir, err)
	}
	mounts := []mount.Mount{{
		Type:   mount.TypeBind,
		Source: absWork,
		Target: r.opts.WorkDir,
	}}

	for _, dir := range r.opts.CacheDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve cache dir %s: %w", dir, err)
		}
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: abs, Target: abs})
	}

	for _, spec := range r.opts.Mounts {
		src, dst, ro, err := config.ParseMount(spec)
		if err != nil {
			return nil, nil, err
		}
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve mount source %s: %w", src, err)
		}
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: abs, Target: dst, ReadOnly: ro})
	}
	hostCfg.Mounts = mounts

	if r.opts.ShmSize != "" {
		size, err := units.RAMInBytes(r.opts.ShmSize)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid shm size %q: %w", r.opts.ShmSize, err)
		}
		hostCfg.ShmSize = size
	}

	gpus := container.DeviceRequest{
		Driver:       "nvidia",
		Capabilities: [][]string{{"gpu"}},
	}
	if hostDevices != nil {
		gpus.DeviceIDs = hostDevices
	} else {
		gpus.Count = -1
	}
	hostCfg.Resources.DeviceRequests = []container.DeviceRequest{gpus}

	if len(r.opts.Ports) > 0 {
		exposed := nat.PortSet{}
		bindings := nat.PortMap{}
		for _, p := range r.opts.Ports {
			port, err := nat.NewPort("tcp", p)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid port %q: %w", p, err)
			}
			exposed[port] = struct{}{}
			bindings[port] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: port.Port()}}
		}
		cfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	return cfg, hostCfg, nil
}

// containerDevices splits GPU selection between host and container.
//
// The host device ids (from CUDA_VISIBLE_DEVICES or a deepspeed "--include
// localhost:2,3" argument) go into the device request. Inside the container
// the runtime renumbers the granted devices from 0, so the returned command
// selects "localhost:0,1" and drops CUDA_VISIBLE_DEVICES. With no selection
// both results are unchanged and nil ids are returned.
func containerDevices(cmd *Command) ([]string, *Command) {
	inner := *cmd
	var ids []string

	if v := strings.TrimSpace(cmd.Env["CUDA_VISIBLE_DEVICES"]); v != "" {
		ids = splitDeviceList(v)
		inner.Env = make(map[string]string, len(cmd.Env))
		for k, val := range cmd.Env {
			if k != "CUDA_VISIBLE_DEVICES" {
				inner.Env[k] = val
			}
		}
	}

	for i := 0; i+1 < len(cmd.Args); i++ {
		if cmd.Args[i] != "--include" {
			continue
		}
		v := cmd.Args[i+1]
		if j := strings.IndexByte(v, ':'); j >= 0 {
			v = v[j+1:]
		}
		if ids == nil {
			ids = splitDeviceList(v)
		}
		inner.Args = append([]string(nil), cmd.Args...)
		inner.Args[i+1] = "localhost:" + renumbered(len(ids))
		break
	}
	return ids, &inner
}

func splitDeviceList(v string) []string {
	var ids []string
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// renumbered returns "0,1,...,n-1".
func renumbered(n int) string {
	idx := make([]string, n)
	for i := range idx {
		idx[i] = strconv.Itoa(i)
	}
	return strings.Join(idx, ",")
}

func containerName(cmd *Command) string {
	if id := cmd.Labels["molft.run_id"]; id != "" {
		if len(id) > 12 {
			id = id[:12]
		}
		return "molft-" + id
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// PingDocker checks that the Docker daemon is reachable and returns its API
// version.
func PingDocker(ctx context.Context) (string, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create Docker client: %w", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ping, err := cli.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("Docker daemon is not accessible: %w", err)
	}
	return ping.APIVersion, nil
}
