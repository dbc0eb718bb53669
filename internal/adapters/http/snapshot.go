package http

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// SnapshotStore keeps the last uploaded client metrics snapshot and
// mirrors it to a json file.
type SnapshotStore struct {
	fs   afero.Fs
	path string
	now  func() time.Time

	mu   sync.RWMutex
	last map[string]any
}

func NewSnapshotStore(fs afero.Fs, path string) *SnapshotStore {
	return &SnapshotStore{fs: fs, path: path, now: time.Now}
}

// Save stamps body with the server time and persists it. The in-memory
// copy is updated even when the write fails.
func (s *SnapshotStore) Save(body map[string]any) (map[string]any, error) {
	snap := make(map[string]any, len(body)+1)
	maps.Copy(snap, body)
	snap["_server_ts"] = s.now().UnixMilli()

	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return snap, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, b, 0o644); err != nil {
		return snap, fmt.Errorf("write snapshot %s: %w", s.path, err)
	}
	return snap, nil
}

func (s *SnapshotStore) Last() (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}
