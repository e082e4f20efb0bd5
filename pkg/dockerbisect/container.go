package dockerbisect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dchest/uniuri"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"
)

// ContainerLabel is the label put on every container created by dockerbisect
const ContainerLabel = "dockerbisect"

// containerAPI is the part of the docker client used for probing layers
type containerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// A DockerProber probes layers by running a command in a new container created from the layer.
// Its output is the combined stdout and stderr of the command, or the error message if the container could not be created, started or its logs read.
type DockerProber struct {
	Command    []string      // The command to run in each container
	Entrypoint []string      // Overrides the entrypoint of the layers if not empty
	Timeout    time.Duration // How long the command may run before its container gets stopped

	Log *logrus.Entry

	api containerAPI
}

// NewDockerProber creates a prober connected to the docker daemon configured in the environment
func NewDockerProber(command, entrypoint []string, timeout time.Duration, log *logrus.Entry) (*DockerProber, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create new docker client"), err)
	}
	return &DockerProber{
		Command:    command,
		Entrypoint: entrypoint,
		Timeout:    timeout,
		Log:        log,
		api:        cli,
	}, nil
}

// Close closes the connection to the docker daemon
func (p *DockerProber) Close() error {
	if c, ok := p.api.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *DockerProber) Probe(ctx context.Context, layerID string) (string, error) {
	containerName := "dockerbisect-" + uniuri.New()
	log := p.Log.WithFields(logrus.Fields{"layer": layerID, "container": containerName})

	containerConfig := &container.Config{
		Image:  layerID,
		Cmd:    p.Command,
		Labels: map[string]string{ContainerLabel: "1"},
	}
	if len(p.Entrypoint) != 0 {
		containerConfig.Entrypoint = p.Entrypoint
	}

	resp, err := p.api.ContainerCreate(ctx, containerConfig, &container.HostConfig{}, nil, nil, containerName)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Debugf("Container creation failed - %v", err)
		return err.Error(), nil
	}
	// Cleanup has to happen even if the bisection got cancelled
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := p.api.ContainerRemove(cleanupCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Warnf("Failed to remove container %s - %v", resp.ID, err)
		}
	}()

	if err := p.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Debugf("Container start failed - %v", err)
		return err.Error(), nil
	}
	log.Debug("Started container, waiting for it to finish")

	if err := p.wait(ctx, resp.ID, log); err != nil {
		return "", err
	}

	logs, err := p.api.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warnf("Failed to get container logs - %v", err)
		return err.Error(), nil
	}
	defer logs.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, logs); err != nil {
		log.Warnf("Failed to read container logs, output may be truncated - %v", err)
	}
	return out.String(), nil
}

// wait waits until the container stopped running or the timeout passed, in which case the container gets stopped.
// Only a cancellation of ctx results in an error.
func (p *DockerProber) wait(ctx context.Context, containerID string, log *logrus.Entry) error {
	waitCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	statusChan, errChan := p.api.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusChan:
		log.Debugf("Container exited with status %d", status.StatusCode)
		return nil
	case err := <-errChan:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Debugf("Container still running after %s, stopping it", p.Timeout)
		} else {
			log.Warnf("Failed waiting for container, stopping it - %v", err)
		}
	}

	stopTimeout := 0
	if err := p.api.ContainerStop(context.WithoutCancel(ctx), containerID, container.StopOptions{Timeout: &stopTimeout}); err != nil {
		log.Warnf("Failed to stop container - %v", err)
	}
	return nil
}

// Skip is a no-op, progress of a job is tracked by the job itself
func (p *DockerProber) Skip(int) {}
