package container

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/monkeygold/automaton"
)

const (
	DefaultNetworkName = "automaton-network"
	LabelChild         = "automaton.sandbox"
	LabelManagedBy     = "automaton.managed-by"
	DefaultImage       = "debian:bookworm-slim"
	containerPrefix    = "automaton-"
)

// ErrUnavailable is returned by every operation when no Docker daemon could
// be reached.
var ErrUnavailable = errors.New("docker not available")

// Manager is a Docker-backed automaton.Sandbox. Each sandbox is a
// long-lived container that commands are exec'd into.
type Manager struct {
	client      *client.Client
	networkName string
	defaultImg  string
	diskQuota   bool
	mu          sync.RWMutex
	available   bool
}

var _ automaton.Sandbox = (*Manager)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNetworkName sets a custom Docker network name.
func WithNetworkName(name string) ManagerOption {
	return func(m *Manager) {
		m.networkName = name
	}
}

// WithDefaultImage sets the sandbox container image.
func WithDefaultImage(img string) ManagerOption {
	return func(m *Manager) {
		m.defaultImg = img
	}
}

// WithDiskQuota enables the per-container disk size limit. It requires a
// storage driver that honours the "size" storage option (overlay2 on xfs
// with pquota, btrfs, zfs).
func WithDiskQuota(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.diskQuota = enabled
	}
}

// NewManager creates a new sandbox manager.
// If Docker is unavailable, it returns a Manager with available=false.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		networkName: DefaultNetworkName,
		defaultImg:  DefaultImage,
		available:   false,
	}

	for _, opt := range opts {
		opt(m)
	}

	cli, err := createDockerClient()
	if err != nil {
		return m, nil
	}

	m.client = cli
	m.available = true

	if err := m.ensureNetwork(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}

	return m, nil
}

// createDockerClient creates a Docker client, trying multiple socket locations
// for compatibility with Docker Desktop on macOS.
func createDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cli.Ping(ctx); err == nil {
			return cli, nil
		}
		cli.Close()
	}

	socketPaths := []string{
		"unix://" + os.Getenv("HOME") + "/.docker/run/docker.sock", // Docker Desktop macOS
		"unix:///var/run/docker.sock",                               // Linux default
		"unix://" + os.Getenv("HOME") + "/.colima/docker.sock",     // Colima
	}

	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(
			client.WithHost(socketPath),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err = cli.Ping(ctx)
		cancel()

		if err == nil {
			return cli, nil
		}
		cli.Close()
	}

	return nil, fmt.Errorf("could not connect to Docker daemon")
}

// IsAvailable returns whether Docker is available.
func (m *Manager) IsAvailable() bool {
	return m.available
}

// ensureNetwork creates the sandbox network if it doesn't exist.
func (m *Manager) ensureNetwork(ctx context.Context) error {
	if !m.available {
		return nil
	}

	networks, err := m.client.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", m.networkName)),
	})
	if err != nil {
		return err
	}

	if len(networks) > 0 {
		return nil
	}

	_, err = m.client.NetworkCreate(ctx, m.networkName, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{
			LabelManagedBy: "automaton",
		},
	})
	return err
}

var (
	invalidNameChars     = regexp.MustCompile(`[^a-z0-9_.-]+`)
	invalidHostnameChars = regexp.MustCompile(`[^a-z0-9-]+`)
)

// maxHostnameLen is the DNS label limit.
const maxHostnameLen = 63

// ContainerName returns the Docker container name for a sandbox name. A
// random suffix keeps children with the same display name apart.
func ContainerName(sandboxName string) string {
	return containerPrefix + dockerName(sandboxName) + "-" + uuid.NewString()[:8]
}

// dockerName maps s onto the characters Docker accepts in a container name.
func dockerName(s string) string {
	s = strings.Trim(invalidNameChars.ReplaceAllString(strings.ToLower(s), "-"), "_.-")
	if s == "" {
		return "sandbox"
	}
	return s
}

// hostname maps s onto a single DNS label.
func hostname(s string) string {
	s = strings.Trim(invalidHostnameChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(s) > maxHostnameLen {
		s = strings.TrimRight(s[:maxHostnameLen], "-")
	}
	if s == "" {
		return "sandbox"
	}
	return s
}

// CreateSandbox creates and starts a sandbox container sized by spec.
func (m *Manager) CreateSandbox(ctx context.Context, spec automaton.SandboxSpec) (*automaton.SandboxInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.available {
		return nil, ErrUnavailable
	}

	if err := m.ensureImage(ctx, m.defaultImg); err != nil {
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}

	name := ContainerName(spec.Name)
	containerCfg := &container.Config{
		Image:    m.defaultImg,
		Hostname: hostname(spec.Name),
		Labels: map[string]string{
			LabelChild:     spec.Name,
			LabelManagedBy: "automaton",
		},
		Tty:       true,
		OpenStdin: true,
		Cmd:       []string{"tail", "-f", "/dev/null"}, // Keep container running
	}

	hostCfg := &container.HostConfig{
		Resources: resourcesFor(spec),
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
		NetworkMode: container.NetworkMode(m.networkName),
	}
	if m.diskQuota && spec.DiskGB > 0 {
		hostCfg.StorageOpt = map[string]string{"size": fmt.Sprintf("%dG", spec.DiskGB)}
	}

	resp, err := m.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &automaton.SandboxInfo{ID: resp.ID, Name: name}, nil
}

// resourcesFor converts a sandbox spec into Docker resource limits.
func resourcesFor(spec automaton.SandboxSpec) container.Resources {
	return container.Resources{
		NanoCPUs: int64(spec.VCPU) * 1_000_000_000,
		Memory:   int64(spec.MemoryMB) << 20,
	}
}

// Exec runs command through sh -c inside the sandbox. A non-zero exit code
// is returned as *automaton.ExecError.
func (m *Manager) Exec(ctx context.Context, sandboxID, command string, timeout time.Duration) (*automaton.ExecResult, error) {
	if !m.available {
		return nil, ErrUnavailable
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	execCfg := container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	}

	execResp, err := m.client.ContainerExecCreate(ctx, sandboxID, execCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := m.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attachResp.Close()

	// The hijacked stream ignores ctx once attached; closing the
	// connection is what unblocks the read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			attachResp.Close()
		case <-done:
		}
	}()

	var stdout, stderr strings.Builder
	_, err = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("exec in sandbox %s: %w", sandboxID, ctxErr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	inspectResp, err := m.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	res := &automaton.ExecResult{
		ExitCode: inspectResp.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if res.ExitCode != 0 {
		return res, &automaton.ExecError{
			SandboxID: sandboxID,
			Command:   command,
			ExitCode:  res.ExitCode,
			Output:    execOutput(res),
		}
	}
	return res, nil
}

// execOutput picks the most useful body for an error message.
func execOutput(res *automaton.ExecResult) string {
	if s := strings.TrimSpace(res.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(res.Stdout)
}

// UploadFile writes content to p inside the sandbox. The parent directory
// must exist.
func (m *Manager) UploadFile(ctx context.Context, sandboxID, p string, content []byte) error {
	if !m.available {
		return ErrUnavailable
	}

	archive, err := tarFile(path.Base(p), content, 0o644)
	if err != nil {
		return fmt.Errorf("failed to build archive: %w", err)
	}

	if err := m.client.CopyToContainer(ctx, sandboxID, path.Dir(p), archive, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy %s: %w", p, err)
	}
	return nil
}

// tarFile wraps a single file in a tar stream, the format CopyToContainer
// expects.
func tarFile(name string, content []byte, mode int64) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    name,
		Mode:    mode,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// RemoveSandbox stops and removes a sandbox container.
func (m *Manager) RemoveSandbox(ctx context.Context, sandboxID string) error {
	if !m.available {
		return ErrUnavailable
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	timeout := 5
	_ = m.client.ContainerStop(ctx, sandboxID, container.StopOptions{Timeout: &timeout})

	return m.client.ContainerRemove(ctx, sandboxID, container.RemoveOptions{Force: true})
}

// ListSandboxes returns the ids of all automaton-managed containers.
func (m *Manager) ListSandboxes(ctx context.Context) ([]string, error) {
	if !m.available {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManagedBy+"=automaton"),
		),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// ensureImage pulls an image if not present locally.
func (m *Manager) ensureImage(ctx context.Context, imageName string) error {
	_, _, err := m.client.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil // Image exists
	}

	reader, err := m.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	// Consume the reader to complete the pull
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close closes the Docker client.
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
