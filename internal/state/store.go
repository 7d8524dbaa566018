// Package state implements atomic on-disk persistence of daemon state
// (spec.md §4.7): the running session, accumulated energy counters,
// and anything else that must survive a restart. No third-party
// atomic-file library appears anywhere in the retrieved pack, so this
// is built on the standard library (os, encoding/json) — see
// DESIGN.md.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session is the on-disk shape of an open or closed charging session
// (spec.md §4.4).
type Session struct {
	StartTS       time.Time `json:"start_ts"`
	EndTS         *time.Time `json:"end_ts,omitempty"`
	StartEnergyWh float64   `json:"start_energy_wh"`
	CarriedWh     float64   `json:"carried_wh"`
	SessionCost   float64   `json:"session_cost,omitempty"`
}

// DaemonState is the engine-level half of the persisted document
// (spec.md §4.7): selected mode, start/stop flag, intended current,
// last applied current and phase count, and the last canonical
// status, so a restart resumes without a spurious setpoint write.
type DaemonState struct {
	Mode             string  `json:"mode"`
	StartStop        bool    `json:"start_stop"`
	IntendedCurrent  float64 `json:"intended_current"`
	LastAppliedAmps  float64 `json:"last_applied_amps"`
	LastAppliedPhase int     `json:"last_applied_phase"`
	LastStatus       int     `json:"last_status"`
}

// Snapshot is the full persisted state document.
type Snapshot struct {
	Daemon  *DaemonState `json:"daemon,omitempty"`
	Session *Session     `json:"session,omitempty"`
	SavedAt time.Time    `json:"saved_at"`
}

// Store persists Snapshot to a single JSON file using the
// write-temp-then-rename pattern, so a crash mid-write never corrupts
// the previous good state.
type Store struct {
	path string
}

// NewStore returns a Store backed by the file at path. The containing
// directory must already exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save atomically writes snap to disk: marshal to a temp file in the
// same directory (so the final rename is on the same filesystem),
// fsync it, then rename over the destination.
func (s *Store) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("state: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("state: rename temp file into place: %w", err)
	}
	return nil
}

// Load reads the persisted Snapshot. A missing file is not an error:
// it returns a zero Snapshot and ok = false, for first-run startup. A
// corrupt file returns an error; the caller decides whether to fall
// back to defaults (spec.md §9 Open Question).
func (s *Store) Load() (snap Snapshot, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("state: read file: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("state: corrupt state file %s: %w", s.path, err)
	}
	return snap, true, nil
}
