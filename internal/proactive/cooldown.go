package proactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CooldownStore persists the last firing time of each rule so cooldowns
// survive restarts.
type CooldownStore interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Record(ctx context.Context, ruleID string, firedAt time.Time) error
}

// CooldownRecorder is the storage surface the database-backed cooldown store
// needs. storage.Store satisfies it.
type CooldownRecorder interface {
	LoadCooldowns(ctx context.Context) (map[string]time.Time, error)
	SaveCooldown(ctx context.Context, ruleID string, firedAt time.Time) error
}

// StoreCooldowns adapts a database store to CooldownStore.
type StoreCooldowns struct {
	Store CooldownRecorder
}

func (s StoreCooldowns) Load(ctx context.Context) (map[string]time.Time, error) {
	return s.Store.LoadCooldowns(ctx)
}

func (s StoreCooldowns) Record(ctx context.Context, ruleID string, firedAt time.Time) error {
	return s.Store.SaveCooldown(ctx, ruleID, firedAt)
}

// Tracker is the in-memory view of rule cooldowns, written through to a
// CooldownStore on every firing.
type Tracker struct {
	mu     sync.Mutex
	fired  map[string]time.Time
	store  CooldownStore
	logger *slog.Logger
}

// NewTracker loads persisted firing times. A missing or unreadable history
// starts the tracker empty rather than failing.
func NewTracker(ctx context.Context, store CooldownStore, logger *slog.Logger) *Tracker {
	t := &Tracker{fired: make(map[string]time.Time), store: store, logger: logger}
	if store == nil {
		return t
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		logger.Warn("proactive: cooldown history unreadable, starting empty", "error", err)
		return t
	}
	for id, at := range loaded {
		t.fired[id] = at
	}
	return t
}

// CoolingDown reports whether the rule fired less than cooldown ago.
func (t *Tracker) CoolingDown(ruleID string, cooldown time.Duration, now time.Time) bool {
	t.mu.Lock()
	last, ok := t.fired[ruleID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return now.Before(last.Add(cooldown))
}

// RecordFiring stores now as the rule's last firing time. A persistence
// failure is logged; the in-memory record still holds for this process.
func (t *Tracker) RecordFiring(ctx context.Context, ruleID string, now time.Time) {
	t.mu.Lock()
	t.fired[ruleID] = now
	t.mu.Unlock()
	if t.store == nil {
		return
	}
	if err := t.store.Record(ctx, ruleID, now); err != nil {
		t.logger.Error("proactive: persist cooldown", "rule_id", ruleID, "error", err)
	}
}

// LastFired returns the rule's last firing time, if any.
func (t *Tracker) LastFired(ruleID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.fired[ruleID]
	return at, ok
}

// FileCooldownStore keeps firing times in a small JSON document mapping rule
// id to an RFC 3339 timestamp. Writes replace the file atomically.
type FileCooldownStore struct {
	path string

	mu    sync.Mutex
	cache map[string]time.Time
}

// NewFileCooldownStore returns a store backed by path. The file and its
// directory are created on first write.
func NewFileCooldownStore(path string) *FileCooldownStore {
	return &FileCooldownStore{path: path}
}

// Path returns the backing file path.
func (s *FileCooldownStore) Path() string { return s.path }

// Load reads the history file. A missing file is an empty history.
func (s *FileCooldownStore) Load(_ context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cache = make(map[string]time.Time)
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("proactive: read cooldown file: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("proactive: parse cooldown file %s: %w", s.path, err)
	}
	out := make(map[string]time.Time, len(raw))
	for id, v := range raw {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("proactive: parse cooldown for %q: %w", id, err)
		}
		out[id] = at
	}
	s.cache = make(map[string]time.Time, len(out))
	for id, at := range out {
		s.cache[id] = at
	}
	return out, nil
}

// Record sets the rule's firing time and rewrites the whole file.
func (s *FileCooldownStore) Record(_ context.Context, ruleID string, firedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		s.cache = make(map[string]time.Time)
	}
	s.cache[ruleID] = firedAt

	raw := make(map[string]string, len(s.cache))
	for id, at := range s.cache {
		raw[id] = at.Format(time.RFC3339Nano)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("proactive: encode cooldowns: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("proactive: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("proactive: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("proactive: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("proactive: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("proactive: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("proactive: replace %s: %w", path, err)
	}
	return nil
}
