package syncdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"verge-hq/verge/pkg/store"
)

const (
	// Epoch is the marker value assumed when no previous sync is recorded,
	// so a first run copies every row.
	Epoch = "1970-01-01 00:00:00"

	// MarkerFilename is the name of the last-sync marker file.
	MarkerFilename = ".lastsync"

	markerLayout = "2006-01-02 15:04:05"
)

// Result reports what a sync run changed in the target database.
type Result struct {
	Inserted int
	Updated  int
}

// schema matches the mapping store's table exactly; the sync tool must be
// able to create it because either side may be a fresh database.
const schema = `
CREATE TABLE IF NOT EXISTS mappings (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	front_uri TEXT NOT NULL,
	back_port INTEGER NOT NULL,
	back_uri TEXT NOT NULL,
	backend TEXT DEFAULT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_mappings_domain ON mappings(domain);
CREATE INDEX IF NOT EXISTS idx_mappings_front_uri ON mappings(front_uri);
CREATE INDEX IF NOT EXISTS idx_mappings_domain_front_uri ON mappings(domain, front_uri);
`

const mappingColumns = "id, domain, front_uri, back_port, back_uri, backend, created_at, updated_at"

// Sync copies mapping rows changed since the last recorded run from the
// source database into the target database.
//
// Rows are matched by (domain, front_uri). A row absent from the target is
// inserted with a freshly generated id; a present row whose routing fields
// differ is updated in place, keeping the target's id and created_at. Rows
// that exist only in the target are never touched, so both sides can carry
// local-only mappings.
//
// The watermark is a timestamp file in markerDir, compared lexically against
// the rows' updated_at column. A fresh marker is written after every run,
// including an empty one.
func Sync(ctx context.Context, targetPath, sourcePath, markerDir string) (Result, error) {
	var res Result

	source, err := openDB(sourcePath)
	if err != nil {
		return res, fmt.Errorf("opening source database: %w", err)
	}
	defer source.Close()

	target, err := openDB(targetPath)
	if err != nil {
		return res, fmt.Errorf("opening target database: %w", err)
	}
	defer target.Close()

	since, err := readMarker(markerDir)
	if err != nil {
		return res, err
	}

	changed, err := changedSince(ctx, source, since)
	if err != nil {
		return res, fmt.Errorf("reading changed rows: %w", err)
	}

	for _, record := range changed {
		existing, err := findByDomainAndURI(ctx, target, record.Domain, record.FrontURI)
		if err != nil {
			return res, fmt.Errorf("looking up %s %q in target: %w", record.Domain, record.FrontURI, err)
		}

		switch {
		case existing == nil:
			if err := insertRecord(ctx, target, record); err != nil {
				return res, fmt.Errorf("inserting %s %q: %w", record.Domain, record.FrontURI, err)
			}
			res.Inserted++
		case needsUpdate(record, existing):
			if err := updateRecord(ctx, target, existing.ID, record); err != nil {
				return res, fmt.Errorf("updating %s %q: %w", record.Domain, record.FrontURI, err)
			}
			res.Updated++
		}
	}

	if err := writeMarker(markerDir, time.Now().UTC().Format(markerLayout)); err != nil {
		return res, err
	}

	slog.Info("sync complete",
		"since", since,
		"changed", len(changed),
		"inserted", res.Inserted,
		"updated", res.Updated,
	)
	return res, nil
}

// openDB opens a database file and makes sure the mappings table exists.
func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return db, nil
}

// readMarker returns the stored watermark, or Epoch when none exists.
func readMarker(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFilename))
	if os.IsNotExist(err) {
		return Epoch, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading sync marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeMarker(dir, timestamp string) error {
	if err := os.WriteFile(filepath.Join(dir, MarkerFilename), []byte(timestamp), 0644); err != nil {
		return fmt.Errorf("writing sync marker: %w", err)
	}
	return nil
}

// changedSince returns source rows with updated_at past the watermark, oldest
// first.
func changedSince(ctx context.Context, db *sql.DB, since string) ([]*store.Mapping, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+mappingColumns+" FROM mappings WHERE updated_at > ? ORDER BY updated_at ASC",
		since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*store.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func findByDomainAndURI(ctx context.Context, db *sql.DB, domain, frontURI string) (*store.Mapping, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+mappingColumns+" FROM mappings WHERE domain = ? AND front_uri = ?",
		domain, frontURI)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// needsUpdate reports whether the routing fields differ. Ids and timestamps
// are deliberately ignored; the two sides assign ids independently.
func needsUpdate(source, target *store.Mapping) bool {
	return source.Domain != target.Domain ||
		source.FrontURI != target.FrontURI ||
		source.BackPort != target.BackPort ||
		source.BackURI != target.BackURI ||
		source.Backend != target.Backend
}

// insertRecord copies a source row into the target under a fresh id, keeping
// the source timestamps.
func insertRecord(ctx context.Context, db *sql.DB, m *store.Mapping) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO mappings ("+mappingColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		uuid.New().String(), m.Domain, m.FrontURI, m.BackPort, m.BackURI,
		nullableBackend(m.Backend), m.CreatedAt, m.UpdatedAt)
	return err
}

// updateRecord overwrites the routing fields of the target row, keeping the
// target's id and created_at and taking the source's updated_at.
func updateRecord(ctx context.Context, db *sql.DB, targetID string, m *store.Mapping) error {
	_, err := db.ExecContext(ctx,
		`UPDATE mappings SET domain = ?, front_uri = ?, back_port = ?, back_uri = ?, backend = ?, updated_at = ?
		 WHERE id = ?`,
		m.Domain, m.FrontURI, m.BackPort, m.BackURI, nullableBackend(m.Backend), m.UpdatedAt, targetID)
	return err
}

func nullableBackend(backend string) any {
	if backend == "" {
		return nil
	}
	return backend
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (*store.Mapping, error) {
	var m store.Mapping
	var backend sql.NullString
	if err := row.Scan(&m.ID, &m.Domain, &m.FrontURI, &m.BackPort, &m.BackURI,
		&backend, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Backend = backend.String
	return &m, nil
}
