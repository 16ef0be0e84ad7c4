package logger

import (
	"os"
	"strings"
	"sync"
)

// RunLog is the append-only last_run.txt: truncated when a run starts,
// appended by every thread for the duration of the run. All access goes
// through one mutex.
type RunLog struct {
	mu     sync.Mutex
	path   string
	active bool
}

// NewRunLog creates a run log writing to path. An empty path disables it
// until SetPath is called.
func NewRunLog(path string) *RunLog {
	return &RunLog{path: path}
}

// SetPath changes the backing file.
func (r *RunLog) SetPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
}

// Start truncates the file and begins capturing lines.
func (r *RunLog) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == "" {
		return nil
	}
	if err := os.WriteFile(r.path, nil, 0o644); err != nil {
		return err
	}
	r.active = true
	return nil
}

// Stop ends capture; the file keeps its content until the next Start.
func (r *RunLog) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
}

// Append writes one line when a run is active.
func (r *RunLog) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || r.path == "" {
		return
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line + "\n")
}

// Lines returns the current content of the file, one entry per line.
func (r *RunLog) Lines() []string {
	r.mu.Lock()
	path := r.path
	r.mu.Unlock()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}
