package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// Store is the persisted mapping table with longest-prefix lookup and CRUD.
//
// Store owns the single SQLite connection and serializes all access to it:
// every operation acquires the store mutex before touching the database and
// releases it on return. Operations are short (single row or small range), so
// the serialization is not a bottleneck relative to proxied payload transfer.
//
// The database uses a write-ahead log (WAL) with periodic passive
// checkpoints to balance write performance with durability.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	findStmt   *sql.Stmt
	exactStmt  *sql.Stmt
	byIDStmt   *sql.Stmt
	insertStmt *sql.Stmt
	existsStmt *sql.Stmt
}

const mappingColumns = "id, domain, front_uri, back_port, back_uri, backend, created_at, updated_at"

const checkpointInterval = 5 * time.Minute

// Open opens (creating if necessary) the mapping database at dbPath.
// Parent directories are created if missing.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: the mutex above is the only writer gate needed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:     db,
		dbPath: dbPath,
		done:   make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go s.checkpointLoop()

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// initSchema creates the mappings table and its lookup indexes.
// The indexes speed up routing lookups but do not enforce uniqueness:
// duplicate (domain, front_uri) rows may legally coexist.
func (s *Store) initSchema() error {
	schema := `
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

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares the hot-path SQL statements for reuse.
func (s *Store) prepareStatements() error {
	var err error

	// Longest front_uri prefix wins. When duplicate (domain, front_uri)
	// rows exist the secondary order is undefined; whichever row SQLite
	// yields first is returned.
	s.findStmt, err = s.db.Prepare(`
		SELECT ` + mappingColumns + `
		FROM mappings
		WHERE domain = ?
		AND (? LIKE '/' || front_uri || '%' OR front_uri = '')
		ORDER BY LENGTH(front_uri) DESC
		LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare find statement: %w", err)
	}

	s.exactStmt, err = s.db.Prepare(`
		SELECT ` + mappingColumns + `
		FROM mappings WHERE domain = ? AND front_uri = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare exact lookup statement: %w", err)
	}

	s.byIDStmt, err = s.db.Prepare(`
		SELECT ` + mappingColumns + `
		FROM mappings WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare id lookup statement: %w", err)
	}

	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO mappings (id, domain, front_uri, back_port, back_uri, backend)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	s.existsStmt, err = s.db.Prepare(`SELECT COUNT(*) FROM mappings WHERE domain = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare exists statement: %w", err)
	}

	return nil
}

// AddMapping normalizes the URIs, generates a fresh id, and persists a new
// mapping row. The returned Mapping carries the server-set timestamps.
func (s *Store) AddMapping(ctx context.Context, domain, frontURI string, backPort int, backURI, backend string) (*Mapping, error) {
	id := uuid.New().String()
	frontURI = NormalizeURI(frontURI)
	backURI = NormalizeURI(backURI)

	s.mu.Lock()
	defer s.mu.Unlock()

	var backendVal any
	if backend != "" {
		backendVal = backend
	}

	if _, err := s.insertStmt.ExecContext(ctx, id, domain, frontURI, backPort, backURI, backendVal); err != nil {
		return nil, storageErr("add_mapping", err)
	}

	m, err := s.scanOne(s.byIDStmt.QueryRowContext(ctx, id))
	if err != nil {
		return nil, storageErr("add_mapping", err)
	}
	return m, nil
}

// FindMapping resolves the routing rule for a request. It selects rows whose
// domain equals the host and whose front_uri is either empty or a prefix of
// the absolute request path, preferring the longest front_uri. It returns
// (nil, nil) when no rule matches; absence is not an error.
func (s *Store) FindMapping(ctx context.Context, domain, path string) (*Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.scanOne(s.findStmt.QueryRowContext(ctx, domain, path))
	if err != nil {
		return nil, storageErr("find_mapping", err)
	}
	return m, nil
}

// FindByDomainAndURI returns the mapping with the exact (domain, front_uri)
// pair, or (nil, nil) when absent. The front URI is normalized first.
func (s *Store) FindByDomainAndURI(ctx context.Context, domain, frontURI string) (*Mapping, error) {
	frontURI = NormalizeURI(frontURI)

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.scanOne(s.exactStmt.QueryRowContext(ctx, domain, frontURI))
	if err != nil {
		return nil, storageErr("find_by_domain_and_uri", err)
	}
	return m, nil
}

// GetMappingByID returns the mapping with the given id, or (nil, nil).
func (s *Store) GetMappingByID(ctx context.Context, id string) (*Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.scanOne(s.byIDStmt.QueryRowContext(ctx, id))
	if err != nil {
		return nil, storageErr("get_mapping_by_id", err)
	}
	return m, nil
}

// UpdateMapping applies a partial update to the mapping with the given id.
// Nil fields are left unchanged; updated_at is always refreshed when any
// field is supplied. It reports whether an update was attempted: an empty
// update returns (false, nil) without touching the database.
func (s *Store) UpdateMapping(ctx context.Context, id string, upd MappingUpdate) (bool, error) {
	if upd.IsEmpty() {
		return false, nil
	}

	var sets []string
	var args []any

	if upd.FrontURI != nil {
		sets = append(sets, "front_uri = ?")
		args = append(args, NormalizeURI(*upd.FrontURI))
	}
	if upd.BackURI != nil {
		sets = append(sets, "back_uri = ?")
		args = append(args, NormalizeURI(*upd.BackURI))
	}
	if upd.BackPort != nil {
		sets = append(sets, "back_port = ?")
		args = append(args, *upd.BackPort)
	}
	if upd.Backend != nil {
		sets = append(sets, "backend = ?")
		if *upd.Backend == "" {
			args = append(args, nil)
		} else {
			args = append(args, *upd.Backend)
		}
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE mappings SET %s WHERE id = ?", strings.Join(sets, ", "))

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storageErr("update_mapping", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("update_mapping", err)
	}
	return affected > 0, nil
}

// DeleteMappings deletes rows for a domain. When frontURI is non-nil only the
// row with that exact (normalized) front URI is removed; otherwise every row
// for the domain is. It returns the number of rows deleted.
func (s *Store) DeleteMappings(ctx context.Context, domain string, frontURI *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if frontURI != nil {
		res, err = s.db.ExecContext(ctx,
			"DELETE FROM mappings WHERE domain = ? AND front_uri = ?",
			domain, NormalizeURI(*frontURI))
	} else {
		res, err = s.db.ExecContext(ctx, "DELETE FROM mappings WHERE domain = ?", domain)
	}
	if err != nil {
		return 0, storageErr("delete_mappings", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete_mappings", err)
	}
	return affected, nil
}

// ListMappings returns mappings ordered by (domain, front_uri). An empty
// domain returns every mapping; a non-empty domain filters to that domain.
func (s *Store) ListMappings(ctx context.Context, domain string) ([]*Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "SELECT " + mappingColumns + " FROM mappings ORDER BY domain, front_uri"
	args := []any{}
	if domain != "" {
		query = "SELECT " + mappingColumns + " FROM mappings WHERE domain = ? ORDER BY domain, front_uri"
		args = append(args, domain)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list_mappings", err)
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, storageErr("list_mappings", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list_mappings", err)
	}

	return mappings, nil
}

// DomainExists reports whether any mapping exists for the domain.
func (s *Store) DomainExists(ctx context.Context, domain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	if err := s.existsStmt.QueryRowContext(ctx, domain).Scan(&count); err != nil {
		return false, storageErr("domain_exists", err)
	}
	return count > 0, nil
}

// Close releases the database and associated resources.
// Close is idempotent and safe to call multiple times.
func (s *Store) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{s.findStmt, s.exactStmt, s.byIDStmt, s.insertStmt, s.existsStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints until Close.
func (s *Store) checkpointLoop() {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanOne scans a single mapping row, mapping sql.ErrNoRows to (nil, nil).
func (s *Store) scanOne(row *sql.Row) (*Mapping, error) {
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMapping(row rowScanner) (*Mapping, error) {
	var m Mapping
	var backend sql.NullString
	if err := row.Scan(&m.ID, &m.Domain, &m.FrontURI, &m.BackPort, &m.BackURI,
		&backend, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Backend = backend.String
	return &m, nil
}
