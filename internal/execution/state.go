// Package execution implements the per-execution lifecycle state machine:
// the states, the cleanup stack, and the bookkeeping both executors share.
// Neither the Admission Queue nor the Sandbox Driver know this package
// exists by name — they are driven through it.
package execution

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/executioner/internal/metrics"
	"github.com/itstheanurag/executioner/internal/sandbox"
)

// State is one node of the lifecycle diagram in spec.md §4.4.
type State int

const (
	Admitted State = iota
	Preparing
	Building // batch only
	Starting
	Running
	Stopping // deadline or cancellation forced a stop
	Draining
	Cleanup
	Done
)

func (s State) String() string {
	switch s {
	case Admitted:
		return "admitted"
	case Preparing:
		return "preparing"
	case Building:
		return "building"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Draining:
		return "draining"
	case Cleanup:
		return "cleanup"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Mode selects which executor drives the execution.
type Mode int

const (
	Batch Mode = iota
	Interactive
)

// Execution is the per-request runtime record. It is created on admission
// and carries every resource handle until cleanup releases it.
type Execution struct {
	ID      string
	Mode    Mode
	WorkDir string

	mu          sync.Mutex
	state       State
	image       string // ephemeral image name; empty if none was built
	containerID string
	stream      sandbox.Stream
	deadline    time.Time
	exitCode    int

	cleanupStack []cleanupStep
}

type cleanupStep struct {
	name string
	fn   func() error
}

// New creates an Execution in state Admitted with a fresh 128-bit random id.
func New(mode Mode) *Execution {
	return &Execution{
		ID:    uuid.NewString(),
		Mode:  mode,
		state: Admitted,
	}
}

// State returns the current lifecycle state.
func (e *Execution) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetState advances the lifecycle state. Callers are expected to follow the
// diagram in spec.md §4.4; this method does not validate transitions — the
// executors are the single writer for a given Execution and are themselves
// structured to only call this in diagram order.
func (e *Execution) SetState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// SetDeadline records the absolute time at which the sandbox must be
// forcibly terminated.
func (e *Execution) SetDeadline(d time.Time) {
	e.mu.Lock()
	e.deadline = d
	e.mu.Unlock()
}

// Deadline returns the execution's absolute deadline.
func (e *Execution) Deadline() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deadline
}

// SetImage records the ephemeral (batch) or prebuilt (interactive) image
// name in use for this execution.
func (e *Execution) SetImage(name string) {
	e.mu.Lock()
	e.image = name
	e.mu.Unlock()
}

// SetContainerID records the container handle once created.
func (e *Execution) SetContainerID(id string) {
	e.mu.Lock()
	e.containerID = id
	e.mu.Unlock()
}

// ContainerID returns the container handle, or "" before creation / after
// cleanup.
func (e *Execution) ContainerID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.containerID
}

// SetStream records the attached multiplexed stream handle.
func (e *Execution) SetStream(s sandbox.Stream) {
	e.mu.Lock()
	e.stream = s
	e.mu.Unlock()
}

// Stream returns the attached stream, or nil outside the running window.
func (e *Execution) Stream() sandbox.Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream
}

// SetExitCode records the exit code on normal termination.
func (e *Execution) SetExitCode(code int) {
	e.mu.Lock()
	e.exitCode = code
	e.mu.Unlock()
}

// ExitCode returns the recorded exit code.
func (e *Execution) ExitCode() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exitCode
}

// Defer pushes a best-effort release action onto the cleanup stack. Actions
// run in LIFO order from RunCleanup regardless of outcome — a panic inside
// one action is recovered and logged, never allowed to skip the rest of the
// stack.
func (e *Execution) Defer(name string, fn func() error) {
	e.mu.Lock()
	e.cleanupStack = append(e.cleanupStack, cleanupStep{name: name, fn: fn})
	e.mu.Unlock()
}

// RunCleanup unwinds every deferred release action in LIFO order. Each
// step's error is logged at warn and never returned — cleanup failure must
// never mask or delay reporting the execution's result (spec.md §4.2).
func (e *Execution) RunCleanup(logger *zerolog.Logger) {
	e.mu.Lock()
	steps := e.cleanupStack
	e.cleanupStack = nil
	e.mu.Unlock()

	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn().
						Str("execution_id", e.ID).
						Str("step", step.name).
						Interface("panic", r).
						Msg("cleanup step panicked")
				}
			}()
			if err := step.fn(); err != nil {
				metrics.CleanupErrors.WithLabelValues(step.name).Inc()
				logger.Warn().
					Err(err).
					Str("execution_id", e.ID).
					Str("step", step.name).
					Msg("cleanup step failed")
			}
		}()
	}

	e.SetState(Done)
}
