// Package backup pushes the whole record store to a single remote
// snapshot file and restores it back. Sync is whole-snapshot and
// last-write-wins: the remote holds exactly one backup.
package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/bitacora/internal/checksum"
)

// AppName marks snapshots written by this application.
const AppName = "bitacora"

// Snapshot is the full serialized store.
type Snapshot struct {
	App      string                       `json:"app"`
	Version  int                          `json:"version"`
	LastSync time.Time                    `json:"last_sync"`
	Checksum string                       `json:"checksum"`
	Data     map[string][]json.RawMessage `json:"data"`
}

// NewSnapshot stamps data with the schema version, sync time and checksum.
func NewSnapshot(version int, data map[string][]json.RawMessage, at time.Time) (*Snapshot, error) {
	sum, err := checksum.JSON(data)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		App:      AppName,
		Version:  version,
		LastSync: at.UTC(),
		Checksum: sum,
		Data:     data,
	}, nil
}

// Records counts the documents across every collection.
func (s *Snapshot) Records() int {
	n := 0
	for _, docs := range s.Data {
		n += len(docs)
	}
	return n
}

// Verify checks the app marker and, when present, the checksum.
func (s *Snapshot) Verify() error {
	if s.App != AppName {
		return fmt.Errorf("backup: not a %s snapshot (app %q)", AppName, s.App)
	}
	if s.Checksum == "" {
		return nil
	}
	ok, err := checksum.Verify(s.Data, s.Checksum)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("backup: snapshot checksum mismatch")
	}
	return nil
}

func decodeSnapshot(raw []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("backup: decode snapshot: %w", err)
	}
	if s.Data == nil {
		s.Data = map[string][]json.RawMessage{}
	}
	return &s, nil
}
