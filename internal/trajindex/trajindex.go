// Package trajindex is an optional, purely-derived SQLite index over
// the trajectory store's JSON-file tree: one row per query/answer
// stem, fast to query and safe to delete. It never becomes the system
// of record. The package has no rebuild-from-JSON step, and the route
// name and status set by Annotate are not stored in the JSON files.
package trajindex

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS stems (
	token      TEXT NOT NULL,
	stem       TEXT NOT NULL,
	route_name TEXT,
	status     INTEGER,
	queried_at DATETIME,
	answered_at DATETIME,
	PRIMARY KEY (token, stem)
);
CREATE INDEX IF NOT EXISTS idx_stems_token ON stems(token);
`

// Index is a thin wrapper around a single SQLite file,
// <logDir>/index.sqlite.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database rooted at logDir.
func Open(logDir string) (*Index, error) {
	path := filepath.Join(logDir, "index.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trajindex: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer at a time; the trajectory store already serializes callers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trajindex: create schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// RecordQuery upserts a stem's query-side row. Called from within the
// trajectory store's write lock, right after the JSON file it shadows
// is written; a failed insert is dropped.
func (idx *Index) RecordQuery(token, stem string, queriedAt time.Time) {
	_, err := idx.db.Exec(
		`INSERT INTO stems (token, stem, queried_at) VALUES (?, ?, ?)
		 ON CONFLICT(token, stem) DO UPDATE SET queried_at = excluded.queried_at`,
		token, stem, queriedAt,
	)
	if err != nil {
		// Index is derived/cache data; a write failure here must never
		// fail the caller's JSON write.
		return
	}
}

// RecordAnswer upserts a stem's answer-side row.
func (idx *Index) RecordAnswer(token, stem string, answeredAt time.Time) {
	_, err := idx.db.Exec(
		`INSERT INTO stems (token, stem, answered_at) VALUES (?, ?, ?)
		 ON CONFLICT(token, stem) DO UPDATE SET answered_at = excluded.answered_at`,
		token, stem, answeredAt,
	)
	if err != nil {
		return
	}
}

// Annotate fills in the route name and upstream status once the
// runtime knows them, separately from the query/answer timestamps
// recorded at write time.
func (idx *Index) Annotate(token, stem, routeName string, status int) {
	_, _ = idx.db.Exec(
		`UPDATE stems SET route_name = ?, status = ? WHERE token = ? AND stem = ?`,
		routeName, status, token, stem,
	)
}

// StemSummary is one row of the index, returned by ListStems.
type StemSummary struct {
	Token      string
	Stem       string
	RouteName  string
	Status     int
	QueriedAt  time.Time
	AnsweredAt time.Time
}

// ListStems returns every indexed stem for token, most recent first.
func (idx *Index) ListStems(token string) ([]StemSummary, error) {
	rows, err := idx.db.Query(
		`SELECT token, stem, COALESCE(route_name, ''), COALESCE(status, 0), queried_at, answered_at
		 FROM stems WHERE token = ? ORDER BY queried_at DESC`,
		token,
	)
	if err != nil {
		return nil, fmt.Errorf("trajindex: query stems: %w", err)
	}
	defer rows.Close()

	var out []StemSummary
	for rows.Next() {
		var s StemSummary
		var queriedAt, answeredAt sql.NullTime
		if err := rows.Scan(&s.Token, &s.Stem, &s.RouteName, &s.Status, &queriedAt, &answeredAt); err != nil {
			return nil, fmt.Errorf("trajindex: scan stem: %w", err)
		}
		s.QueriedAt = queriedAt.Time
		s.AnsweredAt = answeredAt.Time
		out = append(out, s)
	}
	return out, rows.Err()
}
