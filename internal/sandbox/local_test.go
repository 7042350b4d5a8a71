package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalSandbox_Success(t *testing.T) {
	s := NewLocal(t.TempDir())

	result, err := s.Execute(context.Background(), "echo tests passed", ExecOptions{
		Language: "shell",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("expected success, got exit code %d stderr %q", result.ExitCode, result.Stderr)
	}
	if !strings.Contains(result.Stdout, "tests passed") {
		t.Errorf("stdout should be captured, got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestLocalSandbox_NonZeroExit(t *testing.T) {
	s := NewLocal(t.TempDir())

	result, err := s.Execute(context.Background(), "echo boom >&2; exit 3", ExecOptions{
		Language: "shell",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("clean non-zero exits should not error: %v", err)
	}

	if result.Success {
		t.Error("expected failure result")
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "boom") {
		t.Errorf("stderr should be captured, got %q", result.Stderr)
	}
}

func TestLocalSandbox_Timeout(t *testing.T) {
	s := NewLocal(t.TempDir())

	start := time.Now()
	_, err := s.Execute(context.Background(), "sleep 5", ExecOptions{
		Language: "shell",
		Timeout:  50 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error on timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout should be enforced, took %s", elapsed)
	}
}

func TestLocalSandbox_UnsupportedLanguage(t *testing.T) {
	s := NewLocal(t.TempDir())

	_, err := s.Execute(context.Background(), "print('hi')", ExecOptions{Language: "cobol"})
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
	if !strings.Contains(err.Error(), "cobol") {
		t.Errorf("error should name the language, got %v", err)
	}
}
