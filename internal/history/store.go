// Package history persists build cycle records in a local SQLite database,
// backing the history command and the daemon's build listing endpoint.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sitewright/sitewright/internal/build"
	"github.com/sitewright/sitewright/internal/foundation/errors"
)

// Store records completed build cycles. It implements build.HistoryStore.
type Store struct {
	db   *sql.DB
	keep int
	mu   sync.Mutex
}

const defaultKeep = 200

// Open opens (creating if needed) the history database at path and keeps at
// most keep records, pruning oldest first. Use ":memory:" for an ephemeral
// store.
func Open(path string, keep int) (*Store, error) {
	if keep <= 0 {
		keep = defaultKeep
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.StorageError("failed to create history directory").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.StorageError("failed to open history database").
			WithCause(err).
			WithContext("path", path).
			Build()
	}

	s := &Store{db: db, keep: keep}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.StorageError("failed to initialize history schema").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		outcome TEXT NOT NULL,
		pages INTEGER NOT NULL,
		assets INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		commit_hash TEXT,
		error TEXT,
		started_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	CREATE INDEX IF NOT EXISTS idx_builds_outcome ON builds(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores one cycle record and prunes history beyond the retention
// limit.
func (s *Store) Append(ctx context.Context, rec build.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (build_id, reason, outcome, pages, assets, warnings, duration_ms, commit_hash, error, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BuildID, rec.Reason, rec.Outcome, rec.Pages, rec.Assets, rec.Warnings,
		rec.DurationMS, rec.Commit, rec.Error, rec.StartedAt.Unix(),
	)
	if err != nil {
		return errors.StorageError("failed to insert build record").
			WithCause(err).
			WithContext("build_id", rec.BuildID).
			Build()
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM builds WHERE id NOT IN (SELECT id FROM builds ORDER BY id DESC LIMIT ?)`,
		s.keep,
	)
	if err != nil {
		return errors.StorageError("failed to prune build history").
			WithCause(err).
			Build()
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]build.CycleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > s.keep {
		limit = s.keep
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT build_id, reason, outcome, pages, assets, warnings, duration_ms, commit_hash, error, started_at
		 FROM builds ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.StorageError("failed to query build history").
			WithCause(err).
			Build()
	}
	defer rows.Close()

	var recs []build.CycleRecord
	for rows.Next() {
		var rec build.CycleRecord
		var startedUnix int64
		if err := rows.Scan(&rec.BuildID, &rec.Reason, &rec.Outcome, &rec.Pages, &rec.Assets,
			&rec.Warnings, &rec.DurationMS, &rec.Commit, &rec.Error, &startedUnix); err != nil {
			return nil, errors.StorageError("failed to scan build record").
				WithCause(err).
				Build()
		}
		rec.StartedAt = time.Unix(startedUnix, 0).UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to iterate build records").
			WithCause(err).
			Build()
	}
	return recs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
