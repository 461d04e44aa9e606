package oauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/1mcp/pkg/logging"
)

// sweepInterval matches the 5-minute cleanup cadence the authorization core
// commits to.
const sweepInterval = 5 * time.Minute

// newID generates a record identifier (client id, authorization code,
// access/refresh token, AuthRequest id), matching the random-UUID scheme
// internal/session already uses for session ids.
func newID(prefix string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + id.String(), nil
}

// expirable is implemented by every record type a fileStore holds, letting
// the sweep loop evict expired records without a type switch per store.
type expirable interface {
	expired(now time.Time) bool
}

// fileStore persists records of type T as JSON under dir, one file per
// record named "<prefix><id>.json". Every identifier that resolves to a
// file path is re-cleaned and checked against directory escape before use,
// per the storage discipline the authorization core commits to. Writes are
// atomic: write-to-temp in the same directory, then rename, so a crash
// mid-write never leaves a partially-written record in place.
type fileStore[T expirable] struct {
	dir    string
	prefix string

	mu    sync.RWMutex
	cache map[string]T
}

func newFileStore[T expirable](dir, prefix string) (*fileStore[T], error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &fileStore[T]{dir: dir, prefix: prefix, cache: make(map[string]T)}, nil
}

// resolvePath maps an id to its file path, rejecting any id that would
// resolve outside dir after cleaning (path traversal).
func (s *fileStore[T]) resolvePath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid record id")
	}
	name := s.prefix + id + ".json"
	full := filepath.Join(s.dir, name)
	cleaned := filepath.Clean(full)
	if !strings.HasPrefix(cleaned, filepath.Clean(s.dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("record id escapes storage directory")
	}
	return cleaned, nil
}

func (s *fileStore[T]) Put(id string, record T) error {
	path, err := s.resolvePath(id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}

	s.mu.Lock()
	s.cache[id] = record
	s.mu.Unlock()
	return nil
}

// Get returns the record for id. A corrupted or missing file is treated as
// "missing" rather than an error, per the storage discipline's tolerance
// for partial writes.
func (s *fileStore[T]) Get(id string) (T, bool) {
	var zero T

	s.mu.RLock()
	if rec, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		if rec.expired(time.Now()) {
			s.Delete(id)
			return zero, false
		}
		return rec, true
	}
	s.mu.RUnlock()

	path, err := s.resolvePath(id)
	if err != nil {
		return zero, false
	}
	// #nosec G304 -- path is derived from an id that resolvePath has
	// already confirmed cannot escape s.dir.
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, false
	}
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		logging.Warn("OAuth", "discarding corrupted record %s%s: %v", s.prefix, id, err)
		_ = os.Remove(path)
		return zero, false
	}
	if rec.expired(time.Now()) {
		_ = os.Remove(path)
		return zero, false
	}

	s.mu.Lock()
	s.cache[id] = rec
	s.mu.Unlock()
	return rec, true
}

func (s *fileStore[T]) Delete(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	path, err := s.resolvePath(id)
	if err != nil {
		return
	}
	_ = os.Remove(path)
}

// All scans the store's directory and returns every non-expired record,
// keyed by id. Used for linear-scan lookups (e.g. resolving a refresh
// token) where a secondary index isn't worth the bookkeeping at this scale.
func (s *fileStore[T]) All() map[string]T {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	out := make(map[string]T)
	now := time.Now()
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), s.prefix) || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(e.Name(), s.prefix), ".json")
		rec, ok := s.Get(id)
		if !ok || rec.expired(now) {
			continue
		}
		out[id] = rec
	}
	return out
}

// sweep deletes every expired record on disk, independent of the in-memory
// cache (a long-idle record may never have been loaded into cache at all).
func (s *fileStore[T]) sweep() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), s.prefix) || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(e.Name(), s.prefix), ".json")
		if _, ok := s.Get(id); !ok {
			removed++
		}
	}
	if removed > 0 {
		logging.Debug("OAuth", "storage sweep removed %d expired %q record(s)", removed, strings.TrimSuffix(s.prefix, "_"))
	}
}
