package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DockerDriver is the Driver implementation backed by the Docker Engine API,
// grounded in the same docker/docker client the teacher used, minus its
// exec-based write path: here the source is baked into an ephemeral image
// (batch) or written to the shared work volume before create (interactive),
// so there is never a race between "container up" and "source present".
type DockerDriver struct {
	cli    *client.Client
	logger *zerolog.Logger
}

// NewDockerDriver connects to the local Docker daemon via the environment
// (DOCKER_HOST and friends), negotiating the API version like the teacher
// does.
func NewDockerDriver(logger *zerolog.Logger) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: connecting to docker: %w", err)
	}
	return &DockerDriver{cli: cli, logger: logger}, nil
}

func (d *DockerDriver) EnsureImage(ctx context.Context, img string) error {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, img)
	if err == nil {
		return nil
	}

	d.logger.Info().Str("image", img).Msg("pulling sandbox image")
	reader, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("sandbox: pulling image %s: %w", img, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("sandbox: draining pull response for %s: %w", img, err)
	}
	return nil
}

// BuildEphemeralImage builds `FROM req.BaseImage` plus the submitted source
// (and input.txt, if any) copied into /code, owned by an unprivileged
// "coderunner" user — the contract spec.md §4.2 names.
func (d *DockerDriver) BuildEphemeralImage(ctx context.Context, req BuildRequest) (string, error) {
	imageName := fmt.Sprintf("executioner-ephemeral:%s", uuid.NewString())

	dockerfile := fmt.Sprintf(
		"FROM %s\nWORKDIR /code\nCOPY %s ./%s\n",
		req.BaseImage, req.SourceFilename, req.SourceFilename,
	)
	if req.InputFilename != "" {
		dockerfile += fmt.Sprintf("COPY %s ./%s\n", req.InputFilename, req.InputFilename)
	}
	dockerfile += "RUN chown -R coderunner:coderunner /code || true\nUSER coderunner\n"

	buildCtx, err := tarBuildContext(dockerfile, req)
	if err != nil {
		return "", fmt.Errorf("%w: building tar context: %v", ErrBuildFailed, err)
	}

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{imageName},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	defer resp.Body.Close()

	var buildLog bytes.Buffer
	if _, err := io.Copy(&buildLog, resp.Body); err != nil {
		return "", fmt.Errorf("%w: reading build response: %v", ErrBuildFailed, err)
	}
	if bytes.Contains(buildLog.Bytes(), []byte(`"error"`)) {
		return "", fmt.Errorf("%w: %s", ErrBuildFailed, buildLog.String())
	}

	return imageName, nil
}

func tarBuildContext(dockerfile string, req BuildRequest) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	type file struct {
		name string
		body string
	}
	files := []file{
		{"Dockerfile", dockerfile},
		{req.SourceFilename, req.SourceCode},
	}
	if req.InputFilename != "" {
		files = append(files, file{req.InputFilename, req.InputContent})
	}

	for _, f := range files {
		hdr := &tar.Header{
			Name: f.name,
			Mode: 0o644,
			Size: int64(len(f.body)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(f.body)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (d *DockerDriver) RemoveImage(ctx context.Context, imageName string) error {
	_, err := d.cli.ImageRemove(ctx, imageName, image.RemoveOptions{Force: true})
	return err
}

func (d *DockerDriver) CreateContainer(ctx context.Context, opts CreateOptions) (string, error) {
	binds := make([]string, len(opts.Binds))
	copy(binds, opts.Binds)

	pidsLimit := opts.Profile.PidsLimit

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Cmd,
		WorkingDir:   opts.WorkingDir,
		Tty:          false,
		OpenStdin:    opts.OpenStdin,
		StdinOnce:    opts.StdinOnce,
		AttachStdin:  opts.AttachStdin,
		AttachStdout: opts.AttachStdout,
		AttachStderr: opts.AttachStderr,
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory:     opts.Profile.MemoryBytes,
			MemorySwap: opts.Profile.MemoryBytes,
			NanoCPUs:   opts.Profile.NanoCpus,
			PidsLimit:  &pidsLimit,
		},
		NetworkMode: "none",
		Privileged:  false,
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Binds:       binds,
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("%w: creating container: %v", ErrStartFailed, err)
	}
	return resp.ID, nil
}

func (d *DockerDriver) Attach(ctx context.Context, containerID string) (Stream, error) {
	hijacked, err := d.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: attaching: %v", ErrStartFailed, err)
	}
	return &hijackedStream{HijackedResponse: hijacked}, nil
}

func (d *DockerDriver) Start(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: starting: %v", ErrStartFailed, err)
	}
	return nil
}

func (d *DockerDriver) Wait(ctx context.Context, containerID string) (ExitResult, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return ExitResult{}, err
		}
		return ExitResult{}, nil
	case status := <-statusCh:
		return ExitResult{Code: int(status.StatusCode)}, nil
	case <-ctx.Done():
		return ExitResult{}, ctx.Err()
	}
}

func (d *DockerDriver) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	seconds := int(grace.Seconds())
	return d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds})
}

func (d *DockerDriver) Remove(ctx context.Context, containerID string) error {
	return d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

func (d *DockerDriver) Logs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
}

// hijackedStream adapts the Docker SDK's HijackedResponse to the Stream
// interface the execution state machine depends on.
type hijackedStream struct {
	types.HijackedResponse
}

func (h *hijackedStream) Read(p []byte) (int, error)  { return h.Reader.Read(p) }
func (h *hijackedStream) Write(p []byte) (int, error) { return h.Conn.Write(p) }

func (h *hijackedStream) CloseWrite() error {
	type halfCloser interface {
		CloseWrite() error
	}
	if hc, ok := h.Conn.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return h.Conn.Close()
}

func (h *hijackedStream) Close() error {
	h.HijackedResponse.Close()
	return nil
}
