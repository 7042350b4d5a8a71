// Package signal implements file-based control signals for running loops.
// Dropping a file into .waggle/signals pauses, resumes, or kills a run;
// the monitor watches the directory with fsnotify and falls back to
// stat polling when a watcher cannot be created.
package signal

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	killFile   = "kill"
	pauseFile  = "pause"
	resumeFile = "resume"
)

// Monitor watches the project's signal directory for control files.
type Monitor struct {
	signalsDir string

	mu          sync.RWMutex
	killSignal  bool
	pauseSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewMonitor creates a monitor for the given project root. It ensures the
// signal directory exists and starts a file watcher; when a watcher cannot
// be created the monitor still works through stat polling in ShouldStop and
// ShouldPause.
func NewMonitor(projectRoot string) (*Monitor, error) {
	signalsDir := filepath.Join(projectRoot, ".waggle", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	m := &Monitor{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher - will use polling fallback
		return m, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return m, nil
	}
	m.watcher = watcher

	go m.watchSignals()

	return m, nil
}

// watchSignals monitors the signal directory for control files.
func (m *Monitor) watchSignals() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			m.mu.Lock()
			switch filepath.Base(event.Name) {
			case killFile:
				m.killSignal = true
			case pauseFile:
				m.pauseSignal = true
			case resumeFile:
				m.pauseSignal = false
			}
			m.mu.Unlock()
		case <-m.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// ShouldStop returns true if a kill signal has been received.
func (m *Monitor) ShouldStop() bool {
	// Also check the file directly in case the watcher missed it
	if _, err := os.Stat(filepath.Join(m.signalsDir, killFile)); err == nil {
		m.mu.Lock()
		m.killSignal = true
		m.mu.Unlock()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.killSignal
}

// ShouldPause returns true if a pause signal is in effect. A resume file
// cancels a pending pause; both files are consumed when that happens.
func (m *Monitor) ShouldPause() bool {
	if _, err := os.Stat(filepath.Join(m.signalsDir, resumeFile)); err == nil {
		m.mu.Lock()
		m.pauseSignal = false
		m.mu.Unlock()
		os.Remove(filepath.Join(m.signalsDir, pauseFile))
		os.Remove(filepath.Join(m.signalsDir, resumeFile))
	} else if _, err := os.Stat(filepath.Join(m.signalsDir, pauseFile)); err == nil {
		m.mu.Lock()
		m.pauseSignal = true
		m.mu.Unlock()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pauseSignal
}

// SendKill creates a kill signal file.
func (m *Monitor) SendKill() error {
	return m.writeSignal(killFile)
}

// SendPause creates a pause signal file.
func (m *Monitor) SendPause() error {
	return m.writeSignal(pauseFile)
}

// SendResume creates a resume signal file, canceling a pause.
func (m *Monitor) SendResume() error {
	return m.writeSignal(resumeFile)
}

func (m *Monitor) writeSignal(name string) error {
	path := filepath.Join(m.signalsDir, name)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files and resets signal state.
func (m *Monitor) ClearSignals() {
	m.mu.Lock()
	m.killSignal = false
	m.pauseSignal = false
	m.mu.Unlock()

	os.Remove(filepath.Join(m.signalsDir, killFile))
	os.Remove(filepath.Join(m.signalsDir, pauseFile))
	os.Remove(filepath.Join(m.signalsDir, resumeFile))
}

// SignalsDir returns the path to the watched signal directory.
func (m *Monitor) SignalsDir() string {
	return m.signalsDir
}

// Close shuts down the monitor.
func (m *Monitor) Close() {
	close(m.done)
	if m.watcher != nil {
		m.watcher.Close()
	}
}
