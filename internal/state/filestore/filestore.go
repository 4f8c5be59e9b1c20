// Package filestore is a JSON-file-per-agent state.Store adapter. Each
// Save writes to a temp file in the same directory and renames it over the
// target, so a crash mid-write leaves either the old or the new file intact
// — never a half-written one (spec.md §4.2).
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"

	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/state"
)

// Store persists AgentState as one JSON file per agent_id under Dir.
type Store struct {
	Dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create dir %q: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

// pathFor maps an agent_id to a filename, escaping it so arbitrary agent
// IDs (which may contain path separators) cannot write outside Dir.
func (s *Store) pathFor(agentID string) string {
	return filepath.Join(s.Dir, url.PathEscape(agentID)+".json")
}

func (s *Store) Load(_ context.Context, agentID string) (*state.AgentState, error) {
	data, err := os.ReadFile(s.pathFor(agentID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ids.Newf(ids.ErrStatePersistError, "filestore: read %q: %v", agentID, err)
	}
	var st state.AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, ids.Newf(ids.ErrStatePersistError, "filestore: decode %q: %v", agentID, err)
	}
	return &st, nil
}

func (s *Store) Save(_ context.Context, st *state.AgentState) error {
	if st == nil {
		return ids.New(ids.ErrStatePersistError, "filestore: nil state")
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return ids.Newf(ids.ErrStatePersistError, "filestore: encode %q: %v", st.AgentID, err)
	}

	target := s.pathFor(st.AgentID)
	tmp, err := os.CreateTemp(s.Dir, ".tmp-*")
	if err != nil {
		return ids.Newf(ids.ErrStatePersistError, "filestore: create temp: %v", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ids.Newf(ids.ErrStatePersistError, "filestore: write temp: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ids.Newf(ids.ErrStatePersistError, "filestore: fsync temp: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return ids.Newf(ids.ErrStatePersistError, "filestore: close temp: %v", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return ids.Newf(ids.ErrStatePersistError, "filestore: rename into place: %v", err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, agentID string) error {
	err := os.Remove(s.pathFor(agentID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ids.Newf(ids.ErrStatePersistError, "filestore: delete %q: %v", agentID, err)
	}
	if err != nil {
		log.Printf("[State] filestore: delete %q: no such state", agentID)
	}
	return nil
}
