// Package sandbox is the thin, typed wrapper over the container engine that
// every executor drives through the execution state machine. It never knows
// about languages, requests, or queues — only containers, images, and
// streams.
package sandbox

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBuildFailed wraps ephemeral image build failures (toolchain errors in
// the Dockerfile build context, not runtime errors in the user's program).
var ErrBuildFailed = errors.New("sandbox: ephemeral image build failed")

// ErrStartFailed wraps container create/attach/start failures.
var ErrStartFailed = errors.New("sandbox: container start failed")

// SecurityProfile is the mandatory hardening applied to every container the
// driver creates. There is no call path that creates a container without
// one — CreateOptions embeds it rather than leaving it optional.
type SecurityProfile struct {
	MemoryBytes int64 // Memory and MemorySwap share this value: no swap.
	NanoCpus    int64
	PidsLimit   int64
}

// DefaultSecurityProfile returns the profile mandated by spec.md §4.2 for
// the given memory ceiling.
func DefaultSecurityProfile(memoryBytes int64) SecurityProfile {
	return SecurityProfile{
		MemoryBytes: memoryBytes,
		NanoCpus:    1_000_000_000,
		PidsLimit:   50,
	}
}

// CreateOptions describes one container to create. NetworkMode is always
// "none", Privileged is always false, and CapDrop is always [ALL] — those
// are not knobs, they are baked into the driver implementation.
type CreateOptions struct {
	Image      string
	Cmd        []string
	WorkingDir string
	Profile    SecurityProfile

	// OpenStdin/AttachStdin/AttachStdout/AttachStderr mirror the caller's
	// needs: batch-with-shell-pipe leaves OpenStdin false; interactive and
	// batch-with-direct-stdin set it true.
	OpenStdin    bool
	StdinOnce    bool
	AttachStdin  bool
	AttachStdout bool
	AttachStderr bool

	// Binds are host:container[:mode] volume bind specs, used for the
	// interactive executor's shared work volume.
	Binds []string
}

// Stream is the live, bidirectional, framed connection to a container's
// stdio, obtained via Attach before the container is started.
type Stream interface {
	io.Reader
	io.Writer
	// CloseWrite half-closes the write side so the container's stdin read
	// observes EOF without tearing down the read side.
	CloseWrite() error
	Close() error
}

// ExitResult is what Wait returns once the container has terminated.
type ExitResult struct {
	Code int
}

// Driver is the orchestrator's sole dependency on the container engine. All
// methods are safe to call concurrently for distinct containers/images; the
// driver holds no execution-scoped state of its own.
type Driver interface {
	// BuildEphemeralImage layers source (and input, if non-empty) into
	// /code on top of baseImage, running as an unprivileged user. Returns
	// the new image's name/tag. Fails with ErrBuildFailed on toolchain
	// errors, wrapped with the underlying build log.
	BuildEphemeralImage(ctx context.Context, req BuildRequest) (imageName string, err error)

	// RemoveImage is best-effort; errors are for the caller to log, never
	// to propagate as an execution failure.
	RemoveImage(ctx context.Context, imageName string) error

	// EnsureImage pulls image if it is not already present locally.
	EnsureImage(ctx context.Context, image string) error

	// CreateContainer creates (but does not start) a container with the
	// mandatory security profile from opts.
	CreateContainer(ctx context.Context, opts CreateOptions) (containerID string, err error)

	// Attach returns the raw multiplexed stream for containerID. Must be
	// called before Start — this is a hard contract, not a suggestion.
	Attach(ctx context.Context, containerID string) (Stream, error)

	// Start starts a previously created container. Calling Start before
	// Attach has completed is a programming error in the caller, not a
	// driver-detectable condition.
	Start(ctx context.Context, containerID string) error

	// Wait blocks until the container exits or ctx is cancelled.
	Wait(ctx context.Context, containerID string) (ExitResult, error)

	// Stop sends a graceful stop with the given grace period, then kills.
	Stop(ctx context.Context, containerID string, grace time.Duration) error

	// Remove removes a stopped container. Best-effort.
	Remove(ctx context.Context, containerID string) error

	// Logs returns the container's combined, still-framed log stream after
	// it has exited, for the Batch Executor's bulk-log path.
	Logs(ctx context.Context, containerID string) (io.ReadCloser, error)
}

// BuildRequest describes one ephemeral per-batch-request image build.
type BuildRequest struct {
	BaseImage      string
	SourceFilename string
	SourceCode     string
	InputFilename  string // empty when no stdin was supplied
	InputContent   string
}
