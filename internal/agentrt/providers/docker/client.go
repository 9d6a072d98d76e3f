// Package docker implements a container-attached agentrt.Provider: the
// agent runs as the container's PID 1 with stdin/stdout attached over
// the Docker API instead of local OS pipes, demultiplexed the way the
// Docker wire format requires.
package docker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	dockerclient "github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/config"
	"github.com/kandev/kaiak/internal/common/logger"
)

// Client wraps the Docker SDK client with the container lifecycle
// operations kaiak's docker provider needs: create, start, attach,
// stop, remove.
type Client struct {
	cli    *dockerclient.Client
	logger *logger.Logger
}

// NewClient negotiates a Docker API client against cfg.Host.
func NewClient(cfg config.DockerConfig, log *logger.Logger) (*Client, error) {
	opts := []dockerclient.Opt{dockerclient.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, dockerclient.WithHost(cfg.Host))
	}
	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{cli: cli, logger: log}, nil
}

func (c *Client) Close() error { return c.cli.Close() }

// ContainerSpec describes the container a session's agent runs in.
type ContainerSpec struct {
	Name       string
	Image      string
	Cmd        []string
	Env        []string
	WorkingDir string
	Mounts     []Mount
}

// Mount is a bind mount from the host into the container, typically the
// session workspace.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// CreateAndStart creates a container with stdin/stdout attached (no
// TTY, so the stream carries framed JSON-RPC cleanly) and starts it,
// returning the container id.
func (c *Client) CreateAndStart(ctx context.Context, spec ContainerSpec) (string, error) {
	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}

	containerCfg := &dockercontainer.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		Env:          spec.Env,
		WorkingDir:   spec.WorkingDir,
		OpenStdin:    true,
		StdinOnce:    false,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}
	hostCfg := &dockercontainer.HostConfig{Mounts: mounts, AutoRemove: true}

	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	if err := c.cli.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}
	c.logger.Info("agent container started", zap.String("container_id", resp.ID), zap.String("image", spec.Image))
	return resp.ID, nil
}

// Attach attaches to a running container's stdin/stdout, demultiplexing
// Docker's framed stream into a plain byte stream on the returned
// reader.
func (c *Client) Attach(ctx context.Context, containerID string) (io.WriteCloser, io.ReadCloser, error) {
	resp, err := c.cli.ContainerAttach(ctx, containerID, dockercontainer.AttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("attach container %s: %w", containerID, err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	go func() {
		defer stdoutWriter.Close()
		demultiplex(resp.Reader, stdoutWriter, c.logger)
	}()

	return hijackedStdin{conn: resp.Conn}, stdoutReader, nil
}

// Stop stops and (since AutoRemove was set at create time) implicitly
// removes the container.
func (c *Client) Stop(ctx context.Context, containerID string) error {
	return c.cli.ContainerStop(ctx, containerID, dockercontainer.StopOptions{})
}

// hijackedStdin exposes the attach response's bidirectional net.Conn as
// an io.WriteCloser for the stdin half only.
type hijackedStdin struct {
	conn io.ReadWriteCloser
}

func (h hijackedStdin) Write(p []byte) (int, error) { return h.conn.Write(p) }
func (h hijackedStdin) Close() error                { return h.conn.Close() }

// demultiplex reads Docker's 8-byte-header multiplexed stream format
// (byte 0: stream type, bytes 4-7: big-endian frame size) and copies
// stdout/stderr frames to w, dropping the stdin-echo frame type.
func demultiplex(r io.Reader, w io.Writer, log *logger.Logger) {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			return
		}
		streamType := header[0]
		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			log.Debug("docker demultiplex: short read", zap.Error(err))
			return
		}
		if streamType == 1 || streamType == 2 {
			if _, err := w.Write(data); err != nil {
				return
			}
		}
	}
}
