package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("artifact record not found")

// Record describes one artifact file fetched from a remote source.
type Record struct {
	Label     string
	Version   string
	URL       string
	Path      string
	Bytes     int64
	SHA256    string
	FetchedAt time.Time
}

// ArtifactIndex is a SQLite table of downloaded artifacts, keyed by label
// and version. It is informational: nothing is verified against it.
type ArtifactIndex struct {
	database *sql.DB
}

// Open initializes the SQLite database at path, creating its directory.
func Open(path string) (*ArtifactIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS artifacts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        label TEXT NOT NULL,
        version TEXT NOT NULL,
        url TEXT NOT NULL,
        path TEXT NOT NULL,
        bytes INTEGER NOT NULL,
        sha256 TEXT NOT NULL,
        fetched_at DATETIME NOT NULL,
        UNIQUE(label, version)
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &ArtifactIndex{database: database}, nil
}

// Record inserts or replaces the entry for rec.Label and rec.Version.
func (idx *ArtifactIndex) Record(ctx context.Context, rec Record) error {
	_, err := idx.database.ExecContext(ctx, `
        INSERT INTO artifacts (label, version, url, path, bytes, sha256, fetched_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(label, version) DO UPDATE SET
            url = excluded.url,
            path = excluded.path,
            bytes = excluded.bytes,
            sha256 = excluded.sha256,
            fetched_at = excluded.fetched_at
    `, rec.Label, rec.Version, rec.URL, rec.Path, rec.Bytes, rec.SHA256, rec.FetchedAt.UTC())
	return err
}

func (idx *ArtifactIndex) Lookup(ctx context.Context, label, version string) (*Record, error) {
	row := idx.database.QueryRowContext(ctx, `
        SELECT label, version, url, path, bytes, sha256, fetched_at
        FROM artifacts WHERE label = ? AND version = ?
    `, label, version)

	var rec Record
	err := row.Scan(&rec.Label, &rec.Version, &rec.URL, &rec.Path, &rec.Bytes, &rec.SHA256, &rec.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns every record, newest first.
func (idx *ArtifactIndex) List(ctx context.Context) ([]Record, error) {
	rows, err := idx.database.QueryContext(ctx, `
        SELECT label, version, url, path, bytes, sha256, fetched_at
        FROM artifacts ORDER BY fetched_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Label, &rec.Version, &rec.URL, &rec.Path, &rec.Bytes, &rec.SHA256, &rec.FetchedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (idx *ArtifactIndex) Close() error {
	return idx.database.Close()
}
