package lineage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// DebugStore persists ExportSnapshot() dumps to a sqlite file for
// post-mortem inspection. Spec §6 is explicit that run state itself is
// in-memory only; this is an optional side-channel for operators debugging
// a completed or crashed run, not a source of truth the orchestrator reads
// from (spec §4.4: exportSnapshot is "NOT used on the hot path").
type DebugStore struct {
	db *sql.DB
}

// OpenDebugStore opens (creating if necessary) a sqlite file at path and
// ensures its schema exists. modernc.org/sqlite is a pure-Go driver, so no
// cgo toolchain is required to use it.
func OpenDebugStore(path string) (*DebugStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite debug store: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lineage_snapshots (
			run_id     TEXT NOT NULL,
			exported_at TEXT NOT NULL,
			payload    TEXT NOT NULL,
			PRIMARY KEY (run_id, exported_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create lineage schema: %w", err)
	}

	return &DebugStore{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (s *DebugStore) Close() error { return s.db.Close() }

// Save writes one ExportSnapshot() dump for runID, timestamped by the
// caller-supplied RFC3339 string so repeated dumps of the same run are
// distinguishable.
func (s *DebugStore) Save(runID, exportedAt string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO lineage_snapshots (run_id, exported_at, payload) VALUES (?, ?, ?)`,
		runID, exportedAt, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Load retrieves the most recently saved snapshot for runID.
func (s *DebugStore) Load(runID string) (Snapshot, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM lineage_snapshots WHERE run_id = ? ORDER BY exported_at DESC LIMIT 1`,
		runID,
	).Scan(&payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
