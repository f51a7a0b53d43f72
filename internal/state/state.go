// Package state persists the supervisor's run state (last sync, last child
// exit, counters) so that `watchdog status` and the status endpoint can
// report on a supervisor running in another process.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SyncRecord is the outcome of the most recent repository sync.
type SyncRecord struct {
	Mode     string    `json:"mode"`
	Source   string    `json:"source"`
	Revision string    `json:"revision,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// ExitRecord is the outcome of the most recent child run.
type ExitRecord struct {
	RunID      string        `json:"run_id,omitempty"`
	Code       int           `json:"code"`
	Signal     string        `json:"signal,omitempty"`
	StartError string        `json:"start_error,omitempty"`
	Decision   string        `json:"decision"`
	Duration   time.Duration `json:"duration_ns"`
	At         time.Time     `json:"at"`
}

// ChildRecord describes the running child.
type ChildRecord struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// Counters accumulate over the supervisor's lifetime.
type Counters struct {
	Starts       int `json:"starts"`
	SelfUpdates  int `json:"self_updates"`
	Crashes      int `json:"crashes"`
	SyncFailures int `json:"sync_failures"`
}

// State is the persisted run state.
type State struct {
	Version   string       `json:"version"`
	PID       int          `json:"pid"`
	StartedAt time.Time    `json:"started_at"`
	Phase     string       `json:"phase"`
	LiveDir   string       `json:"live_dir"`
	Branch    string       `json:"branch"`
	Remote    string       `json:"remote"`
	LastSync  *SyncRecord  `json:"last_sync,omitempty"`
	LastExit  *ExitRecord  `json:"last_exit,omitempty"`
	Child     *ChildRecord `json:"child,omitempty"`
	Counters  Counters     `json:"counters"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Load reads the state file at path.
// Returns nil, nil if the file does not exist (supervisor never ran).
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing run state: %w", err)
	}
	return &s, nil
}

// Save writes s to path, replacing the previous file atomically.
func Save(path string, s *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	s.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing run state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing run state: %w", err)
	}
	return nil
}
