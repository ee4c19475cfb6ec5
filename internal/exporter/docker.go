// internal/exporter/docker.go
package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	custom_errors "maven-indexer/internal/errors"
)

const (
	// DefaultImage is the pinned conversion tool image.
	DefaultImage = "ghcr.io/ecosyste-ms/maven-index-exporter"
	// DefaultTimeout bounds one conversion.
	DefaultTimeout = 30 * time.Minute
	// MountPoint is where the work directory is visible inside the container.
	MountPoint = "/work"

	removeTimeout = 30 * time.Second
)

// dockerAPI is the subset of the Docker Engine client the converter needs.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// DockerConverter runs the conversion tool as a short-lived container with the work
// directory bind-mounted at MountPoint.
type DockerConverter struct {
	api     dockerAPI
	image   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDockerConverter connects to the Docker daemon configured by the environment (DOCKER_HOST etc).
func NewDockerConverter(imageRef string, timeout time.Duration, logger *slog.Logger) (*DockerConverter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return newDockerConverter(cli, imageRef, timeout, logger), nil
}

func newDockerConverter(api dockerAPI, imageRef string, timeout time.Duration, logger *slog.Logger) *DockerConverter {
	if imageRef == "" {
		imageRef = DefaultImage
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DockerConverter{api: api, image: imageRef, timeout: timeout, logger: logger}
}

// Convert runs the tool against workDir and returns the first .fld dump it produced.
func (c *DockerConverter) Convert(ctx context.Context, workDir string) (string, error) {
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", &custom_errors.ExportError{Err: err}
	}
	if err := prepare(absDir); err != nil {
		return "", err
	}

	logger := c.logger.With("image", c.image, "work_dir", absDir)
	logger.Info("Exporting index using Docker")

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.create(runCtx, absDir)
	if err != nil {
		return "", &custom_errors.ExportError{Err: fmt.Errorf("create container: %w", err)}
	}
	defer c.remove(id)

	if err := c.api.ContainerStart(runCtx, id, container.StartOptions{}); err != nil {
		return "", &custom_errors.ExportError{Err: fmt.Errorf("start container: %w", err)}
	}

	exitCode, err := c.wait(runCtx, id)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", &custom_errors.ExportError{Err: fmt.Errorf("conversion exceeded %s: %w", c.timeout, context.DeadlineExceeded)}
		}
		return "", &custom_errors.ExportError{Err: err}
	}

	stdout, stderr := c.logs(ctx, id)
	if exitCode != 0 {
		logger.Error("Docker export failed", "exit_code", exitCode, "stderr", stderr)
		return "", &custom_errors.ExportError{ExitCode: exitCode, Stderr: stderr}
	}
	logger.Info("Docker export completed", "stdout", stdout)

	return FindDumpFile(absDir)
}

func (c *DockerConverter) create(ctx context.Context, absDir string) (string, error) {
	cfg := &container.Config{
		Image:  c.image,
		Labels: map[string]string{"maven-indexer.work-dir": absDir},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{absDir + ":" + MountPoint},
	}

	resp, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err == nil {
		return resp.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", err
	}

	c.logger.Info("Pulling conversion image", "image", c.image)
	if err := c.pull(ctx); err != nil {
		return "", err
	}
	resp, err = c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *DockerConverter) pull(ctx context.Context) error {
	rc, err := c.api.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", c.image, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is consumed.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull %s: %w", c.image, err)
	}
	return nil
}

func (c *DockerConverter) wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := c.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, fmt.Errorf("wait for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *DockerConverter) logs(ctx context.Context, id string) (string, string) {
	rc, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		c.logger.Warn("Could not read container logs", "container_id", id, "error", err)
		return "", ""
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		c.logger.Warn("Could not demultiplex container logs", "container_id", id, "error", err)
	}
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String())
}

// remove force-removes the container, killing it if it is still running.
func (c *DockerConverter) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		c.logger.Warn("Failed to remove conversion container", "container_id", id, "error", err)
	}
}
