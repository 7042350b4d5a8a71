package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// interpreters maps a language tag to its launcher and source extension.
var interpreters = map[string]struct {
	command string
	ext     string
}{
	"python":     {"python3", ".py"},
	"javascript": {"node", ".js"},
	"go":         {"go run", ".go"},
	"shell":      {"sh", ".sh"},
	"bash":       {"bash", ".sh"},
}

// LocalSandbox runs code through local interpreters under a context deadline
// and an optional address-space limit. It is the default Sandbox wiring;
// stricter isolation can be swapped in behind the same interface.
type LocalSandbox struct {
	// workDir is where source files are written. Empty means a fresh
	// temporary directory per execution.
	workDir string
}

// NewLocal creates a LocalSandbox rooted at workDir.
func NewLocal(workDir string) *LocalSandbox {
	return &LocalSandbox{workDir: workDir}
}

// Execute writes the code to a file and runs it with the interpreter for
// opts.Language. The memory cap is applied with ulimit -v in the launching
// shell, so it covers the interpreter and anything it spawns.
func (s *LocalSandbox) Execute(ctx context.Context, code string, opts ExecOptions) (*ExecResult, error) {
	interp, ok := interpreters[opts.Language]
	if !ok {
		return nil, fmt.Errorf("unsupported sandbox language %q", opts.Language)
	}

	dir := s.workDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "waggle-sandbox-")
		if err != nil {
			return nil, fmt.Errorf("creating sandbox dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	srcPath := filepath.Join(dir, "main"+interp.ext)
	if err := os.WriteFile(srcPath, []byte(code), 0600); err != nil {
		return nil, fmt.Errorf("writing sandbox source: %w", err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	shellCmd := fmt.Sprintf("%s %s", interp.command, srcPath)
	if opts.MemoryBytes > 0 {
		// ulimit -v takes kilobytes.
		shellCmd = fmt.Sprintf("ulimit -v %d; %s", opts.MemoryBytes/1024, shellCmd)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		result.Success = true
		return result, nil
	}

	// A deadline kill is a sandbox failure, not a test verdict.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("sandbox execution timed out after %s: %w", opts.Timeout, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return nil, fmt.Errorf("sandbox execution: %w", err)
}

// Verify LocalSandbox implements Sandbox at compile time.
var _ Sandbox = (*LocalSandbox)(nil)
