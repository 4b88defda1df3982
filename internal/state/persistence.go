package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantfx/decision-engine/internal/capital"
	"github.com/quantfx/decision-engine/internal/errors"
	"github.com/quantfx/decision-engine/internal/logger"
	"github.com/quantfx/decision-engine/internal/performance"
)

const stateVersion = "1.0"

// Checkpoint is the complete recoverable state of the decision layer.
// Open positions and reservations are deliberately not persisted: on
// restart they are re-learned from the broker, and reservations are
// transient by design.
type Checkpoint struct {
	Version      string                 `json:"version"`
	LastUpdated  time.Time              `json:"last_updated"`
	SessionStart time.Time              `json:"session_start"`
	Capital      capital.Checkpoint     `json:"capital"`
	Performance  performance.Checkpoint `json:"performance"`
}

// Store checkpoints capital and performance state to a JSON file. Every
// failure is logged and swallowed: the system runs correctly on in-memory
// state with persistence entirely unavailable.
type Store struct {
	mu           sync.Mutex
	log          *logger.Logger
	stateDir     string
	fileName     string
	sessionStart time.Time
	lastSave     time.Time

	capital *capital.Manager
	tracker *performance.Tracker
}

// NewStore creates a checkpoint store rooted at stateDir
func NewStore(stateDir string, cap *capital.Manager, tracker *performance.Tracker, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.NewPersistenceFailure("init", err)
	}
	return &Store{
		log:          log,
		stateDir:     stateDir,
		fileName:     "decision_state.json",
		sessionStart: time.Now(),
		capital:      cap,
		tracker:      tracker,
	}, nil
}

func (s *Store) path() string {
	return filepath.Join(s.stateDir, s.fileName)
}

// Save writes the current checkpoint atomically (temp file then rename)
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := Checkpoint{
		Version:      stateVersion,
		LastUpdated:  time.Now(),
		SessionStart: s.sessionStart,
		Capital:      s.capital.Export(),
		Performance:  s.tracker.Export(),
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.NewPersistenceFailure("marshal", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.NewPersistenceFailure("write", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return errors.NewPersistenceFailure("rename", err)
	}

	s.lastSave = cp.LastUpdated
	return nil
}

// Restore loads the last checkpoint into the capital manager and the
// performance tracker. A missing file is a clean first start, not an error.
func (s *Store) Restore() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewPersistenceFailure("read", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return errors.NewPersistenceFailure("unmarshal", err)
	}
	if cp.Version != stateVersion {
		return errors.NewPersistenceFailure("version",
			fmt.Errorf("checkpoint version %q, expected %q", cp.Version, stateVersion))
	}

	s.capital.Restore(cp.Capital)
	s.tracker.Restore(cp.Performance)

	if s.log != nil {
		s.log.Info("State restored from %s (saved %s)", s.path(), cp.LastUpdated.Format(time.RFC3339))
	}
	return nil
}

// Run checkpoints on the given interval until the context is cancelled.
// A failed save is retried on the next tick.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// best-effort final save on shutdown
			if err := s.Save(); err != nil && s.log != nil {
				s.log.LogError("checkpoint", err)
			}
			return
		case <-ticker.C:
			if err := s.Save(); err != nil && s.log != nil {
				s.log.LogError("checkpoint", err)
			}
		}
	}
}

// LastSave returns when the last successful checkpoint was written
func (s *Store) LastSave() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave
}
