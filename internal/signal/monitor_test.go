package signal

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	m, err := NewMonitor(t.TempDir())
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestNewMonitor_CreatesSignalsDir(t *testing.T) {
	root := t.TempDir()
	m, err := NewMonitor(root)
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	defer m.Close()

	want := filepath.Join(root, ".waggle", "signals")
	if m.SignalsDir() != want {
		t.Errorf("SignalsDir = %s, want %s", m.SignalsDir(), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("signals directory not created: %v", err)
	}
}

func TestShouldStop(t *testing.T) {
	m := newTestMonitor(t)

	if m.ShouldStop() {
		t.Fatal("fresh monitor should not report stop")
	}

	if err := m.SendKill(); err != nil {
		t.Fatalf("SendKill failed: %v", err)
	}
	if !m.ShouldStop() {
		t.Error("kill file should be detected")
	}
}

func TestShouldPause_AndResume(t *testing.T) {
	m := newTestMonitor(t)

	if m.ShouldPause() {
		t.Fatal("fresh monitor should not report pause")
	}

	if err := m.SendPause(); err != nil {
		t.Fatalf("SendPause failed: %v", err)
	}
	if !m.ShouldPause() {
		t.Fatal("pause file should be detected")
	}

	if err := m.SendResume(); err != nil {
		t.Fatalf("SendResume failed: %v", err)
	}
	if m.ShouldPause() {
		t.Error("resume file should cancel the pause")
	}

	// Resume consumes both signal files.
	if _, err := os.Stat(filepath.Join(m.SignalsDir(), "pause")); !os.IsNotExist(err) {
		t.Error("pause file should be consumed on resume")
	}
	if _, err := os.Stat(filepath.Join(m.SignalsDir(), "resume")); !os.IsNotExist(err) {
		t.Error("resume file should be consumed")
	}
}

func TestClearSignals(t *testing.T) {
	m := newTestMonitor(t)

	if err := m.SendKill(); err != nil {
		t.Fatalf("SendKill failed: %v", err)
	}
	if err := m.SendPause(); err != nil {
		t.Fatalf("SendPause failed: %v", err)
	}
	if !m.ShouldStop() || !m.ShouldPause() {
		t.Fatal("signals should be in effect before clear")
	}

	m.ClearSignals()

	if m.ShouldStop() {
		t.Error("clear should reset the kill signal")
	}
	if m.ShouldPause() {
		t.Error("clear should reset the pause signal")
	}
}

func TestStatFallback_DetectsFilesWrittenExternally(t *testing.T) {
	m := newTestMonitor(t)

	// Write the file directly, bypassing the monitor's own senders.
	path := filepath.Join(m.SignalsDir(), "kill")
	if err := os.WriteFile(path, []byte("now"), 0644); err != nil {
		t.Fatalf("write kill file: %v", err)
	}

	if !m.ShouldStop() {
		t.Error("stat fallback should detect an externally written kill file")
	}
}
