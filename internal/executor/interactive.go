package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/executioner/internal/demux"
	"github.com/itstheanurag/executioner/internal/execution"
	"github.com/itstheanurag/executioner/internal/languages"
	"github.com/itstheanurag/executioner/internal/metrics"
	"github.com/itstheanurag/executioner/internal/sandbox"
)

// Events is the sink pair an Interactive session delivers to its caller.
// An adapter implements this over its own transport (WebSocket JSON frames,
// an SSE stream, whatever); the executor never imports a transport package.
type Events interface {
	// Start is called exactly once, before any Output call.
	Start(executionID string)
	// Output is called once per stdout/stderr frame the container produces.
	Output(data []byte, stderr bool)
	// Complete is called exactly once, including on error paths.
	Complete(status string, exitCode int)
	// Error is called before Complete when a failure occurred outside the
	// sandboxed process itself.
	Error(message string)
}

// Interactive is the long-lived-session executor: streaming output
// callbacks, stdin injection bound to a specific execution id.
type Interactive struct {
	registry *languages.Registry
	driver   sandbox.Driver
	logger   *zerolog.Logger
	cfg      Config
}

// NewInteractive builds an Interactive executor.
func NewInteractive(registry *languages.Registry, driver sandbox.Driver, logger *zerolog.Logger, cfg Config) *Interactive {
	return &Interactive{registry: registry, driver: driver, logger: logger, cfg: cfg}
}

// Session is the handle a transport adapter holds for one running
// interactive execution. Its only caller-facing operation is Input, which
// enforces invariant 4: input is only accepted when tagged with this
// session's own execution id.
type Session struct {
	ID string

	mu     sync.Mutex
	stream sandbox.Stream
	closed bool
}

// Input delivers data to this session's stdin iff executionID matches. A
// mismatched id is silently dropped — not queued, not rejected — per
// spec.md §5's ordering guarantees. A trailing newline is appended unless
// data already ends in one.
func (s *Session) Input(executionID, data string) {
	if executionID != s.ID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stream == nil {
		return
	}
	if !strings.HasSuffix(data, "\n") {
		data += "\n"
	}
	_, _ = s.stream.Write([]byte(data))
}

func (s *Session) setStream(stream sandbox.Stream) {
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
}

func (s *Session) closeInput() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Start launches one interactive execution. It runs the full lifecycle in a
// goroutine of its own and returns a Session for routing stdin immediately
// (before the container necessarily exists); completion is reported only
// through events.
func (ix *Interactive) Start(ctx context.Context, languageTag, source string, events Events) (*Session, error) {
	spec, err := ix.registry.Lookup(languageTag)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown language %q", execution.ErrValidation, languageTag)
	}

	exec := execution.New(execution.Interactive)
	session := &Session{ID: exec.ID}
	log := ix.logger.With().Str("execution_id", exec.ID).Str("language", languageTag).Logger()

	go ix.run(ctx, exec, session, spec, source, events, &log)

	return session, nil
}

func (ix *Interactive) run(ctx context.Context, exec *execution.Execution, session *Session, spec languages.Spec, source string, events Events, log *zerolog.Logger) {
	defer exec.RunCleanup(log)
	defer session.closeInput()

	started := time.Now()
	events.Start(exec.ID)

	exec.SetState(execution.Preparing)
	workDir, err := os.MkdirTemp("", "executioner-"+exec.ID)
	if err != nil {
		ix.fail(events, "allocating work directory: "+err.Error(), 0)
		return
	}
	exec.WorkDir = workDir
	exec.Defer("remove-workdir", func() error { return os.RemoveAll(workDir) })

	if err := os.WriteFile(filepath.Join(workDir, spec.SourceFilename), []byte(source), 0o644); err != nil {
		ix.fail(events, "writing source file: "+err.Error(), 0)
		return
	}

	cmd := spec.RunCommand
	if spec.CompileRunCommand != "" {
		cmd = []string{"sh", "-c", spec.CompileRunCommand}
	}

	exec.SetState(execution.Starting)
	containerStart := time.Now()
	profile := sandbox.DefaultSecurityProfile(spec.MemoryClass.MemoryLimitBytes())
	containerID, err := ix.driver.CreateContainer(ctx, sandbox.CreateOptions{
		Image:        spec.Image,
		Cmd:          cmd,
		WorkingDir:   workDir,
		Profile:      profile,
		OpenStdin:    true,
		StdinOnce:    false,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Binds:        []string{workDir + ":" + workDir},
	})
	if err != nil {
		events.Error("starting sandbox: " + err.Error())
		ix.completeError(events)
		return
	}
	exec.SetContainerID(containerID)
	exec.Defer("remove-container", func() error { return ix.driver.Remove(context.Background(), containerID) })

	stream, err := ix.driver.Attach(ctx, containerID)
	if err != nil {
		events.Error("attaching to sandbox: " + err.Error())
		ix.completeError(events)
		return
	}
	exec.SetStream(stream)
	session.setStream(stream)
	exec.Defer("close-stream", func() error { return stream.Close() })

	if err := ix.driver.Start(ctx, containerID); err != nil {
		events.Error("starting sandbox: " + err.Error())
		ix.completeError(events)
		return
	}
	metrics.ContainerCreationTime.Observe(float64(time.Since(containerStart).Milliseconds()))
	exec.SetState(execution.Running)

	deadline := ix.cfg.InteractiveDeadline
	exec.SetDeadline(time.Now().Add(deadline))

	demuxDone := make(chan error, 1)
	go func() {
		err := demux.Run(stream, func(p []byte) {
			events.Output(p, false)
		}, func(p []byte) {
			events.Output(p, true)
		})
		demuxDone <- err
	}()

	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	waitDone := make(chan sandbox.ExitResult, 1)
	waitErrCh := make(chan error, 1)
	go func() {
		res, err := ix.driver.Wait(waitCtx, containerID)
		if err != nil {
			waitErrCh <- err
			return
		}
		waitDone <- res
	}()

	var result sandbox.ExitResult
	select {
	case result = <-waitDone:
	case <-waitErrCh:
		exec.SetState(execution.Stopping)
		// waitCtx derives from ctx, so a caller disconnect can also land
		// here; only a real deadline expiry gets the stderr notice.
		if ctx.Err() == nil {
			metrics.DeadlineExceeded.WithLabelValues("interactive").Inc()
			events.Output([]byte("\nexecution timed out\n"), true)
			log.Info().Msg("interactive deadline exceeded, stopping container")
		}
		_ = ix.driver.Stop(context.Background(), containerID, ix.cfg.StopGrace)
		result, _ = ix.driver.Wait(context.Background(), containerID)
	case <-ctx.Done():
		// Caller disconnect: cancellation, no stderr notice per spec.md §5.
		exec.SetState(execution.Stopping)
		_ = ix.driver.Stop(context.Background(), containerID, ix.cfg.StopGrace)
		result, _ = ix.driver.Wait(context.Background(), containerID)
	}

	exec.SetState(execution.Draining)
	session.closeInput()
	_ = stream.CloseWrite()
	<-demuxDone

	exec.SetExitCode(result.Code)
	exec.SetState(execution.Cleanup)

	status := StatusSuccess
	if result.Code != 0 {
		status = StatusError
	}
	metrics.ExecutionsTotal.WithLabelValues(spec.Tag, status).Inc()
	metrics.ExecutionDuration.WithLabelValues(spec.Tag, "total").Observe(float64(time.Since(started).Milliseconds()))
	events.Complete(status, result.Code)
}

func (ix *Interactive) fail(events Events, message string, exitCode int) {
	events.Error(message)
	events.Complete(StatusError, exitCode)
}

func (ix *Interactive) completeError(events Events) {
	events.Complete(StatusError, 0)
}
