// Package session owns durable per-session audit state: one JSON file per
// session in the state directory, atomic writes, and recovery from corrupted
// files.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/diag"
	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// DefaultStateDir is where session files live unless configured otherwise.
const DefaultStateDir = ".mcp-gan-state"

// Store manages session files. A per-session lock serializes updates to one
// session; the store-level lock guards cross-session operations such as
// listing and eviction.
type Store struct {
	mu       sync.RWMutex
	stateDir string
	persist  bool
	sessions map[string]*gantypes.SessionState
	locks    map[string]*sync.Mutex
	logger   *zap.Logger

	now func() time.Time
}

// Progress summarizes a session's score trajectory.
type Progress struct {
	CurrentLoop        int       `json:"currentLoop"`
	ScoreProgression   []int     `json:"scoreProgression"`
	AverageImprovement float64   `json:"averageImprovement"`
	IsStagnant         bool      `json:"isStagnant"`
}

// NewStore creates a store rooted at stateDir. With persist=false the store
// is memory-only; files are neither read nor written.
func NewStore(stateDir string, persist bool, logger *zap.Logger) *Store {
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		stateDir: stateDir,
		persist:  persist,
		sessions: make(map[string]*gantypes.SessionState),
		locks:    make(map[string]*sync.Mutex),
		logger:   logger,
		now:      time.Now,
	}
}

// lockFor returns the mutex serializing updates to one session.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

// GetOrCreate returns the session with the given id, loading it from disk or
// creating it with defaults. A corrupted session file is archived under a
// .corrupt-<timestamp> suffix and replaced with a fresh session; the returned
// warning describes the incident.
func (s *Store) GetOrCreate(id string) (*gantypes.SessionState, string, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	cached := s.sessions[id]
	s.mu.RUnlock()
	if cached != nil {
		return snapshotOf(cached), "", nil
	}

	warning := ""
	state, err := s.loadFromDisk(id)
	if err != nil {
		var de *diag.Error
		if isCorruption(err, &de) {
			archived := s.archiveCorrupt(id)
			warning = fmt.Sprintf("session %s was corrupted and archived as %s; starting fresh", id, archived)
			s.logger.Warn("recovered corrupted session file",
				zap.String("session", id), zap.String("archived", archived))
			state = nil
		} else {
			return nil, "", err
		}
	}

	if state == nil {
		now := s.now().UTC()
		state = &gantypes.SessionState{
			ID:               id,
			CreatedAt:        now,
			UpdatedAt:        now,
			Config:           gantypes.DefaultSessionConfig(),
			CompletionReason: gantypes.ReasonInProgress,
		}
		if err := s.writeLocked(state); err != nil {
			return nil, warning, err
		}
	}

	s.mu.Lock()
	s.sessions[id] = state
	s.mu.Unlock()
	return snapshotOf(state), warning, nil
}

// Snapshot returns a read-only copy of the session, or an error if it does
// not exist in memory or on disk.
func (s *Store) Snapshot(id string) (*gantypes.SessionState, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.stateLocked(id)
	if err != nil {
		return nil, err
	}
	return snapshotOf(state), nil
}

// UpdateConfig replaces the session's effective config and persists it.
func (s *Store) UpdateConfig(id string, cfg gantypes.SessionConfig) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.stateLocked(id)
	if err != nil {
		return err
	}
	state.Config = cfg
	state.UpdatedAt = s.now().UTC()
	return s.writeLocked(state)
}

// AppendIteration appends one iteration to the session. It fails when the
// session has already completed or terminated; a completed session accepts no
// further history.
func (s *Store) AppendIteration(id string, it gantypes.Iteration) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.stateLocked(id)
	if err != nil {
		return err
	}
	if state.IsComplete || state.TerminationCause != "" {
		return diag.New(diag.CategoryInternal, fmt.Sprintf("session %s is complete, cannot append iteration", id))
	}

	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now().UTC()
	}
	state.Iterations = append(state.Iterations, it)
	state.CurrentLoop = len(state.Iterations)
	state.UpdatedAt = s.now().UTC()
	v := it.Verdict
	state.LastVerdict = &v
	return s.writeLocked(state)
}

// RecordStagnation attaches a stagnation record. The first detection pins
// detectedAtLoop; later detections only refresh the similarity score.
func (s *Store) RecordStagnation(id string, record gantypes.StagnationRecord) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.stateLocked(id)
	if err != nil {
		return err
	}
	if state.Stagnation != nil {
		state.Stagnation.SimilarityScore = record.SimilarityScore
		state.Stagnation.IsStagnant = record.IsStagnant
	} else {
		state.Stagnation = &record
	}
	state.UpdatedAt = s.now().UTC()
	return s.writeLocked(state)
}

// RecordCompletion marks the session complete with the given reason.
func (s *Store) RecordCompletion(id string, reason gantypes.CompletionReason) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.stateLocked(id)
	if err != nil {
		return err
	}
	state.IsComplete = true
	state.CompletionReason = reason
	state.UpdatedAt = s.now().UTC()
	return s.writeLocked(state)
}

// RecordTermination marks the session terminated by a kill switch.
func (s *Store) RecordTermination(id string, cause string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.stateLocked(id)
	if err != nil {
		return err
	}
	state.IsComplete = true
	state.TerminationCause = cause
	state.UpdatedAt = s.now().UTC()
	return s.writeLocked(state)
}

// AnalyzeProgress reports the score trajectory for a session. With fewer
// than two iterations the average improvement is 0.
func (s *Store) AnalyzeProgress(id string) (Progress, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.stateLocked(id)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{CurrentLoop: state.CurrentLoop}
	for _, it := range state.Iterations {
		p.ScoreProgression = append(p.ScoreProgression, it.Verdict.Overall)
	}
	if len(p.ScoreProgression) >= 2 {
		total := 0
		for i := 1; i < len(p.ScoreProgression); i++ {
			total += p.ScoreProgression[i] - p.ScoreProgression[i-1]
		}
		p.AverageImprovement = float64(total) / float64(len(p.ScoreProgression)-1)
	}
	if state.Stagnation != nil {
		p.IsStagnant = state.Stagnation.IsStagnant
	}
	return p, nil
}

// ListSessions returns the ids of every known session, sorted.
func (s *Store) ListSessions() ([]string, error) {
	s.mu.RLock()
	ids := make(map[string]bool, len(s.sessions))
	for id := range s.sessions {
		ids[id] = true
	}
	s.mu.RUnlock()

	if s.persist {
		entries, err := os.ReadDir(s.stateDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, diag.Wrap(diag.CategoryFilesystem, "failed to list state directory", err)
		}
		for _, e := range entries {
			name := e.Name()
			if strings.HasSuffix(name, ".json") && !strings.Contains(name, ".corrupt-") {
				ids[strings.TrimSuffix(name, ".json")] = true
			}
		}
	}

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// EvictIdle deletes sessions whose last update predates the cutoff and
// returns the ids removed.
func (s *Store) EvictIdle(maxAge time.Duration) ([]string, error) {
	ids, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-maxAge)

	var evicted []string
	for _, id := range ids {
		lock := s.lockFor(id)
		lock.Lock()
		state, err := s.stateLocked(id)
		if err != nil {
			lock.Unlock()
			continue
		}
		if state.UpdatedAt.Before(cutoff) {
			s.mu.Lock()
			delete(s.sessions, id)
			s.mu.Unlock()
			if s.persist {
				if err := os.Remove(s.filePath(id)); err != nil && !os.IsNotExist(err) {
					s.logger.Warn("failed to remove evicted session file",
						zap.String("session", id), zap.Error(err))
				}
			}
			evicted = append(evicted, id)
		}
		lock.Unlock()
	}
	if len(evicted) > 0 {
		s.logger.Info("evicted idle sessions", zap.Int("count", len(evicted)))
	}
	return evicted, nil
}

// stateLocked returns the live state, loading from disk when not cached.
// Callers must hold the session lock.
func (s *Store) stateLocked(id string) (*gantypes.SessionState, error) {
	s.mu.RLock()
	state := s.sessions[id]
	s.mu.RUnlock()
	if state != nil {
		return state, nil
	}

	state, err := s.loadFromDisk(id)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, diag.New(diag.CategoryInternal, fmt.Sprintf("session %s not found", id))
	}
	s.mu.Lock()
	s.sessions[id] = state
	s.mu.Unlock()
	return state, nil
}

func (s *Store) filePath(id string) string {
	return filepath.Join(s.stateDir, id+".json")
}

// loadFromDisk reads and parses the session file. It returns (nil, nil) when
// the file does not exist, and a session_corruption diagnostic when the file
// cannot be parsed.
func (s *Store) loadFromDisk(id string) (*gantypes.SessionState, error) {
	if !s.persist {
		return nil, nil
	}
	raw, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, diag.Wrap(diag.CategoryFilesystem, fmt.Sprintf("failed to read session %s", id), err)
	}
	var state gantypes.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, diag.Wrap(diag.CategorySessionCorruption,
			fmt.Sprintf("session file for %s is not valid JSON", id), err).
			WithSuggestions("reset", "recover-last-valid", "archive-and-recreate")
	}
	return &state, nil
}

// writeLocked persists the session atomically: write to an adjacent temp
// file, then rename over the canonical name. A crash mid-write never leaves
// a half-written file visible under the canonical name.
func (s *Store) writeLocked(state *gantypes.SessionState) error {
	if !s.persist {
		return nil
	}
	if err := os.MkdirAll(s.stateDir, 0o755); err != nil {
		return diag.Wrap(diag.CategoryFilesystem, "failed to create state directory", err)
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return diag.Wrap(diag.CategoryInternal, "failed to encode session state", err)
	}

	final := s.filePath(state.ID)
	tmp, err := os.CreateTemp(s.stateDir, state.ID+".tmp-*")
	if err != nil {
		return diag.Wrap(diag.CategoryFilesystem, "failed to create temp session file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return diag.Wrap(diag.CategoryFilesystem, "failed to write temp session file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return diag.Wrap(diag.CategoryFilesystem, "failed to close temp session file", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return diag.Wrap(diag.CategoryFilesystem, "failed to replace session file", err)
	}
	return nil
}

// archiveCorrupt renames an unreadable session file out of the way and
// returns the archive name.
func (s *Store) archiveCorrupt(id string) string {
	archived := fmt.Sprintf("%s.corrupt-%d", s.filePath(id), s.now().Unix())
	if err := os.Rename(s.filePath(id), archived); err != nil {
		s.logger.Warn("failed to archive corrupt session file",
			zap.String("session", id), zap.Error(err))
	}
	return filepath.Base(archived)
}

func isCorruption(err error, out **diag.Error) bool {
	de := diag.AsError(err)
	if de.Category == diag.CategorySessionCorruption {
		*out = de
		return true
	}
	return false
}

// snapshotOf deep-copies a session state so callers cannot mutate the
// store's copy.
func snapshotOf(state *gantypes.SessionState) *gantypes.SessionState {
	cp := *state
	cp.Iterations = append([]gantypes.Iteration(nil), state.Iterations...)
	cp.Config.Paths = append([]string(nil), state.Config.Paths...)
	cp.Config.Judges = append([]string(nil), state.Config.Judges...)
	if state.Stagnation != nil {
		st := *state.Stagnation
		cp.Stagnation = &st
	}
	if state.LastVerdict != nil {
		v := *state.LastVerdict
		cp.LastVerdict = &v
	}
	return &cp
}
