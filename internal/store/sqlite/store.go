package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/feiju-bot/feiju/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// connection pragmas, applied to every pooled connection through the DSN.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// Store provides SQLite-backed persistence for the meme library.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.RWMutex
	indexer store.NameIndexer

	// writeMu serializes write transactions. SQLite allows one writer at a
	// time and a deferred transaction that upgrades from read to write fails
	// with SQLITE_BUSY instead of waiting.
	writeMu sync.Mutex

	// migration is set when Open converted a legacy schema.
	migration *MigrationReport
}

var _ store.LibraryStore = (*Store)(nil)

// Open creates or opens the SQLite store at path. It configures WAL mode,
// migrates a legacy category schema if one is present, creates the current
// schema and repairs names that are not in folded form.
//
// Migration errors are returned wrapped in store.ErrMigration; the caller must
// not serve requests in that case.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:      db,
		logger:  logger,
		indexer: store.NewNoopNameIndexer(),
	}

	ctx := context.Background()
	if err := s.migrateLegacy(ctx); err != nil {
		db.Close()
		return nil, store.ErrMigration.WithCause(err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	if err := s.foldNames(ctx); err != nil {
		db.Close()
		return nil, store.ErrMigration.WithCause(err)
	}

	return s, nil
}

// dsn turns a file path into a modernc DSN carrying the connection pragmas.
// Paths that already are URIs are used as given.
func dsn(path string) string {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "?") {
		return path
	}
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetNameIndexer sets the indexer notified about name changes.
func (s *Store) SetNameIndexer(indexer store.NameIndexer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexer == nil {
		indexer = store.NewNoopNameIndexer()
	}
	s.indexer = indexer
}

func (s *Store) nameIndexer() store.NameIndexer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexer
}

// withWriteTx runs fn inside a write transaction, committing on success.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE/PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// tableExists reports whether a table exists. q is a *sql.DB or *sql.Tx.
func tableExists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
