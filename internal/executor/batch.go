package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/executioner/internal/demux"
	"github.com/itstheanurag/executioner/internal/execution"
	"github.com/itstheanurag/executioner/internal/languages"
	"github.com/itstheanurag/executioner/internal/metrics"
	"github.com/itstheanurag/executioner/internal/sandbox"
)

// Batch is the one-shot executor: materialize sources into a dedicated
// ephemeral image, run, collect combined output, return a result. Every
// call drives exactly one Execution through admitted -> ... -> done.
type Batch struct {
	registry *languages.Registry
	driver   sandbox.Driver
	logger   *zerolog.Logger
	cfg      Config
}

// NewBatch builds a Batch executor.
func NewBatch(registry *languages.Registry, driver sandbox.Driver, logger *zerolog.Logger, cfg Config) *Batch {
	return &Batch{registry: registry, driver: driver, logger: logger, cfg: cfg}
}

// Execute runs req to completion. It never returns an error for failures
// inside the sandboxed program itself (spec.md §7 policy) — those surface
// as a non-success Result. It returns an error only for orchestrator-side
// failures: ErrValidation for an unknown language (the HTTP adapter answers
// 400), anything else for a failure the caller should turn into a 500.
func (b *Batch) Execute(ctx context.Context, req Request) (*Result, error) {
	spec, err := b.registry.Lookup(req.LanguageTag)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown language %q", execution.ErrValidation, req.LanguageTag)
	}

	exec := execution.New(execution.Batch)
	log := b.logger.With().Str("execution_id", exec.ID).Str("language", req.LanguageTag).Logger()
	started := time.Now()

	exec.SetState(execution.Preparing)
	workDir, err := os.MkdirTemp("", "executioner-"+exec.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: allocating work dir: %v", execution.ErrSandboxStart, err)
	}
	exec.WorkDir = workDir
	exec.Defer("remove-workdir", func() error { return os.RemoveAll(workDir) })
	defer exec.RunCleanup(&log)

	if err := os.WriteFile(filepath.Join(workDir, spec.SourceFilename), []byte(req.Source), 0o644); err != nil {
		return nil, fmt.Errorf("%w: writing source file: %v", execution.ErrSandboxStart, err)
	}

	includeInput := req.Stdin != "" && spec.DetectsStdin(req.Source)
	directStdin := req.Stdin != "" && !includeInput

	inputFilename := ""
	inputContent := ""
	if includeInput {
		inputFilename = "input.txt"
		inputContent = req.Stdin
		if !strings.HasSuffix(inputContent, "\n") {
			inputContent += "\n"
		}
		if err := os.WriteFile(filepath.Join(workDir, inputFilename), []byte(inputContent), 0o644); err != nil {
			return nil, fmt.Errorf("%w: writing stdin file: %v", execution.ErrSandboxStart, err)
		}
	}

	exec.SetState(execution.Building)
	imageName, err := b.driver.BuildEphemeralImage(ctx, sandbox.BuildRequest{
		BaseImage:      spec.Image,
		SourceFilename: spec.SourceFilename,
		SourceCode:     req.Source,
		InputFilename:  inputFilename,
		InputContent:   inputContent,
	})
	if err != nil {
		log.Warn().Err(err).Msg("ephemeral image build failed")
		return nil, fmt.Errorf("%w: %v", execution.ErrBuildFailed, err)
	}
	exec.SetImage(imageName)
	exec.Defer("remove-image", func() error { return b.driver.RemoveImage(context.Background(), imageName) })

	cmd := b.resolveCommand(spec, includeInput)
	openStdin := directStdin

	exec.SetState(execution.Starting)
	containerStart := time.Now()
	profile := sandbox.DefaultSecurityProfile(spec.MemoryClass.MemoryLimitBytes())
	containerID, err := b.driver.CreateContainer(ctx, sandbox.CreateOptions{
		Image:        imageName,
		Cmd:          cmd,
		WorkingDir:   "/code",
		Profile:      profile,
		OpenStdin:    openStdin,
		AttachStdin:  openStdin,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("container create failed")
		return nil, fmt.Errorf("%w: %v", execution.ErrSandboxStart, err)
	}
	exec.SetContainerID(containerID)
	exec.Defer("remove-container", func() error { return b.driver.Remove(context.Background(), containerID) })

	// Attach before start is a hard contract, not an optimization.
	stream, err := b.driver.Attach(ctx, containerID)
	if err != nil {
		log.Warn().Err(err).Msg("attach failed")
		return nil, fmt.Errorf("%w: %v", execution.ErrSandboxStart, err)
	}
	exec.SetStream(stream)
	exec.Defer("close-stream", func() error { return stream.Close() })

	if err := b.driver.Start(ctx, containerID); err != nil {
		log.Warn().Err(err).Msg("start failed")
		return nil, fmt.Errorf("%w: %v", execution.ErrSandboxStart, err)
	}
	metrics.ContainerCreationTime.Observe(float64(time.Since(containerStart).Milliseconds()))
	exec.SetState(execution.Running)

	if directStdin {
		payload := req.Stdin
		if !strings.HasSuffix(payload, "\n") {
			payload += "\n"
		}
		if _, err := stream.Write([]byte(payload)); err != nil {
			log.Warn().Err(err).Msg("writing direct stdin failed")
		}
		_ = stream.CloseWrite()
	}

	deadline := b.cfg.BatchDeadline
	if includeInput {
		deadline = b.cfg.BatchStdinDeadline
	}
	exec.SetDeadline(time.Now().Add(deadline))

	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result, waitErr := b.driver.Wait(waitCtx, containerID)
	if waitErr != nil {
		exec.SetState(execution.Stopping)
		metrics.DeadlineExceeded.WithLabelValues("batch").Inc()
		log.Info().Msg("deadline exceeded, stopping container")
		_ = b.driver.Stop(context.Background(), containerID, b.cfg.StopGrace)
		result, _ = b.driver.Wait(context.Background(), containerID)
	}
	exec.SetState(execution.Draining)
	exec.SetExitCode(result.Code)

	logs, err := b.driver.Logs(context.Background(), containerID)
	var output string
	if err != nil {
		log.Warn().Err(err).Msg("reading logs failed")
	} else {
		defer logs.Close()
		combined, _, _, demuxErr := demux.Collect(logs)
		if demuxErr != nil {
			metrics.DemuxTruncatedFrames.Inc()
			log.Warn().Err(demuxErr).Msg("demultiplexer saw a truncated frame; returning partial output")
		}
		output = string(combined)
	}

	exec.SetState(execution.Cleanup)

	status := StatusError
	if result.Code == 0 {
		status = StatusSuccess
	}

	metrics.ExecutionsTotal.WithLabelValues(req.LanguageTag, status).Inc()
	metrics.ExecutionDuration.WithLabelValues(req.LanguageTag, "total").Observe(float64(time.Since(started).Milliseconds()))

	return &Result{
		ExecutionID: exec.ID,
		Status:      status,
		Output:      output,
		ExitCode:    result.Code,
	}, nil
}

// resolveCommand picks the shell-pipe command (stdin baked into input.txt
// and piped in as a file-like stream) or the plain run/compile-run command.
func (b *Batch) resolveCommand(spec languages.Spec, includeInput bool) []string {
	inner := spec.CompileRunCommand
	if inner == "" {
		inner = strings.Join(spec.RunCommand, " ")
	}

	if includeInput {
		return []string{"sh", "-c", "cat input.txt | " + inner}
	}
	if spec.CompileRunCommand != "" {
		return []string{"sh", "-c", spec.CompileRunCommand}
	}
	return append([]string{}, spec.RunCommand...)
}
