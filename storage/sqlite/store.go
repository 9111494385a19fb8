package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// Querier is the subset of database/sql handles the row-level helpers work
// against. *sql.DB, *sql.Conn and *sql.Tx all satisfy it, which lets the
// transaction engine run the same statements on its own dedicated connection.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps a SQLite database holding the relational metadata:
// collections, documents, chunks, sync tasks and transition history.
type Store struct {
	db         *sql.DB
	memConn    *sql.Conn // pins an in-memory database alive until Close
	savepoints bool
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (creating if necessary) a SQLite database at the given path,
// applies the schema and probes for savepoint support.
func Open(path string, opts ...Option) (*Store, error) {
	return open("file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", false, opts...)
}

var memorySeq atomic.Uint64

// OpenMemory opens a fresh in-memory database, for tests and ephemeral
// runs. Each call gets its own database; shared cache keeps every
// connection of one store on the same database.
func OpenMemory(opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:docsync_mem_%d?mode=memory&cache=shared", memorySeq.Add(1))
	return open(dsn, true, opts...)
}

func open(dsn string, inMemory bool, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "sqlite-store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if inMemory {
		// An in-memory shared-cache database is dropped once its last
		// connection closes, so hold one open for the store's lifetime.
		conn, err := db.Conn(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.memConn = conn
	}

	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.savepoints = s.probeSavepoints(ctx)
	if !s.savepoints {
		s.logger.Warn("store has no native savepoint support, falling back to in-memory bookkeeping")
	}

	return s, nil
}

// migrate applies the schema. Statements are idempotent.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL,
			title         TEXT NOT NULL DEFAULT '',
			content       TEXT NOT NULL DEFAULT '',
			synced        INTEGER NOT NULL DEFAULT 0,
			synced_at     TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			FOREIGN KEY(collection_id) REFERENCES collections(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			point_id   TEXT PRIMARY KEY,
			doc_id     TEXT NOT NULL,
			ord        INTEGER NOT NULL,
			text       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(doc_id) REFERENCES documents(id)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_doc_ord ON chunks(doc_id, ord);`,
		`CREATE TABLE IF NOT EXISTS sync_tasks (
			id            TEXT PRIMARY KEY,
			type          TEXT NOT NULL,
			doc_id        TEXT NOT NULL,
			collection_id TEXT NOT NULL,
			status        TEXT NOT NULL,
			retries       INTEGER NOT NULL DEFAULT 0,
			context       TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_tasks_doc ON sync_tasks(doc_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_tasks_status ON sync_tasks(status);`,
		`CREATE TABLE IF NOT EXISTS task_transitions (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id   TEXT NOT NULL,
			event     TEXT NOT NULL,
			payload   TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_transitions_task ON task_transitions(task_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// probeSavepoints checks whether the store supports SAVEPOINT/RELEASE.
func (s *Store) probeSavepoints(ctx context.Context) bool {
	if _, err := s.db.ExecContext(ctx, "SAVEPOINT docsync_probe"); err != nil {
		return false
	}
	if _, err := s.db.ExecContext(ctx, "RELEASE SAVEPOINT docsync_probe"); err != nil {
		return false
	}
	return true
}

// SupportsSavepoints reports whether native SAVEPOINT/ROLLBACK TO/RELEASE
// statements are available.
func (s *Store) SupportsSavepoints() bool {
	return s.savepoints
}

// DB exposes the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Conn hands out a dedicated connection. The transaction engine maps each
// transaction 1:1 to one such connection for its whole lifetime.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	return s.db.Conn(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	if s.memConn != nil {
		s.memConn.Close()
		s.memConn = nil
	}
	return s.db.Close()
}
