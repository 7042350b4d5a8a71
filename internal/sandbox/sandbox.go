// Package sandbox defines the execution boundary used by the audit pipeline's
// production-testing stage. The pipeline never runs task output in-process;
// it hands code to a Sandbox and inspects the result.
package sandbox

import (
	"context"
	"time"
)

// ExecOptions bounds one sandboxed execution.
type ExecOptions struct {
	// Language selects the interpreter (python, javascript, go, shell).
	Language string
	// Timeout is the hard deadline for the execution.
	Timeout time.Duration
	// MemoryBytes caps the memory available to the process. Zero means no cap.
	MemoryBytes int64
}

// ExecResult is the outcome of one sandboxed execution.
type ExecResult struct {
	// Success is true when the process exited zero.
	Success bool
	// Stdout is the captured standard output.
	Stdout string
	// Stderr is the captured standard error.
	Stderr string
	// ExitCode is the process exit code.
	ExitCode int
}

// Sandbox runs task output in isolation.
// An error return means the sandbox itself failed (could not start, timed
// out, infrastructure fault); a clean non-zero exit is reported through
// ExecResult with Success false and a nil error.
type Sandbox interface {
	Execute(ctx context.Context, code string, opts ExecOptions) (*ExecResult, error)
}
