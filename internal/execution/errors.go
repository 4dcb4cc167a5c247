package execution

import "errors"

// Error kinds the orchestrator recognizes and surfaces distinctly, per
// spec.md §7. They are checked with errors.Is/errors.As, never by matching
// message strings.
var (
	ErrValidation       = errors.New("execution: validation failed")
	ErrBuildFailed      = errors.New("execution: image build failed")
	ErrSandboxStart     = errors.New("execution: sandbox start failed")
	ErrTruncatedFrame   = errors.New("execution: truncated stream frame")
	ErrDeadlineExceeded = errors.New("execution: deadline exceeded")
	ErrCancelled        = errors.New("execution: cancelled")
)
