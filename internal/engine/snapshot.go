package engine

import (
	"sync"
	"time"
)

// Status is the engine's coarse lifecycle state. The German "kein-speicher"
// value is part of the wire contract with the UI.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusNoSpace  Status = "kein-speicher"
)

// Snapshot is the full run-state record returned by /status. Readers always
// get a copy taken under the mutex, never a reference.
type Snapshot struct {
	Status           Status     `json:"status"`
	Mode             string     `json:"mode"`
	RunID            string     `json:"run_id"`
	StartedAt        *time.Time `json:"started_at"`
	CurrentSeries    string     `json:"current_series"`
	CurrentSeriesURL string     `json:"current_series_url"`
	CurrentSeason    int        `json:"current_season"`
	CurrentEpisode   int        `json:"current_episode"`
	CurrentIsFilm    bool       `json:"current_is_film"`
	EpisodeStartedAt *time.Time `json:"episode_started_at"`
	StopRequested    bool       `json:"stop_requested"`
}

// State serializes every read and write of the snapshot through one mutex.
type State struct {
	mu       sync.Mutex
	snap     Snapshot
	onChange func(Snapshot)
}

func NewState() *State {
	return &State{snap: Snapshot{Status: StatusIdle}}
}

// SetOnChange installs a publish hook, invoked after each mutation outside
// the lock. Used to push status updates over the websocket.
func (s *State) SetOnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Get returns an atomic copy of the whole record.
func (s *State) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// TryStart flips idle to running; false when a run already holds the state.
func (s *State) TryStart(mode, runID string) bool {
	s.mu.Lock()
	if s.snap.Status == StatusRunning {
		s.mu.Unlock()
		return false
	}
	now := time.Now()
	s.snap = Snapshot{
		Status:    StatusRunning,
		Mode:      mode,
		RunID:     runID,
		StartedAt: &now,
	}
	snap, fn := s.snap, s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
	return true
}

// Update applies fn to the snapshot under the lock and publishes the result.
func (s *State) Update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	snap, hook := s.snap, s.onChange
	s.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
}

// RequestStop sets the cooperative stop flag; false when nothing runs.
func (s *State) RequestStop() bool {
	stopped := false
	s.Update(func(snap *Snapshot) {
		if snap.Status == StatusRunning {
			snap.StopRequested = true
			stopped = true
		}
	})
	return stopped
}

// StopRequested reads the cooperative stop flag.
func (s *State) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.StopRequested
}

// Finish clears the run fields. Disk pressure wins over a plain finish so
// the UI keeps showing kein-speicher until the next run.
func (s *State) Finish(noSpace bool) {
	s.Update(func(snap *Snapshot) {
		mode, runID := snap.Mode, snap.RunID
		*snap = Snapshot{Status: StatusFinished, Mode: mode, RunID: runID}
		if noSpace {
			snap.Status = StatusNoSpace
		}
	})
}
