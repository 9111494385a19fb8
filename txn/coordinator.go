package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage/sqlite"
)

// Coordinator owns transaction lifecycles. It keeps an explicit registry of
// live transactions (no ambient globals), hands each root transaction its
// own store connection, sequences executor calls, and supports nested
// transactions that share the parent's connection.
type Coordinator struct {
	store      *sqlite.Store
	executor   *Executor
	rollback   *RollbackEngine
	savepoints *SavepointManager

	mu       sync.Mutex
	registry map[string]*Context
	seq      atomic.Uint64

	logger *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator creates a new Coordinator over the given store.
func NewCoordinator(store *sqlite.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		registry: make(map[string]*Context),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "txn-coordinator")
	c.executor = NewExecutor(c.logger)
	c.rollback = NewRollbackEngine(c.logger)
	c.savepoints = NewSavepointManager(c.rollback, store.SupportsSavepoints(), c.logger)
	return c
}

// Begin starts a root transaction in PENDING state on a dedicated
// connection. The store-level transaction is opened lazily on the first
// operation.
func (c *Coordinator) Begin(ctx context.Context) (*Context, error) {
	conn, err := c.store.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection: %w", core.ErrInfrastructure, err)
	}

	txc := &Context{
		id:         c.nextID(),
		status:     StatusPending,
		conn:       conn,
		ownsConn:   true,
		savepoints: make(map[string]*Savepoint),
		createdAt:  time.Now().UTC(),
	}

	c.mu.Lock()
	c.registry[txc.id] = txc
	c.mu.Unlock()

	c.logger.Debug("transaction begun", "transaction", txc.id)
	return txc, nil
}

// BeginNested starts a child transaction sharing the parent's connection.
// The child's operations merge into the parent on commit and are undone
// alone on rollback; the child never commits to the store independently.
func (c *Coordinator) BeginNested(ctx context.Context, parentID string) (*Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, ok := c.registry[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, parentID)
	}
	if !parent.writable() {
		return nil, fmt.Errorf("%w: parent %s is %s", ErrTxNotWritable, parentID, parent.status)
	}
	if err := c.ensureBegan(ctx, parent); err != nil {
		return nil, err
	}
	parent.status = StatusActive

	child := &Context{
		id:         c.nextID(),
		status:     StatusPending,
		conn:       parent.conn,
		began:      true,
		parentID:   parent.id,
		savepoints: make(map[string]*Savepoint),
		createdAt:  time.Now().UTC(),
	}

	// A hidden store-level savepoint bounds the child's writes when the
	// store supports it; inverse replay covers it either way.
	if c.store.SupportsSavepoints() {
		spName := "nested_" + child.id
		if _, err := child.conn.ExecContext(ctx, "SAVEPOINT "+spName); err != nil {
			c.logger.Warn("store-level savepoint for nested transaction failed",
				"transaction", child.id, "err", err)
		} else {
			child.nestedSP = spName
		}
	}

	c.registry[child.id] = child
	c.logger.Debug("nested transaction begun", "transaction", child.id, "parent", parent.id)
	return child, nil
}

// Get returns a live transaction context.
func (c *Coordinator) Get(txID string) (*Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	txc, ok := c.registry[txID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	return txc, nil
}

// ExecuteOperation runs one mutation inside the transaction. The context is
// promoted PENDING to ACTIVE on the first call; completed operations are
// appended to the context in order, rollback data included.
func (c *Coordinator) ExecuteOperation(ctx context.Context, txID string, op Operation) error {
	txc, err := c.Get(txID)
	if err != nil {
		return err
	}
	if !txc.writable() {
		return fmt.Errorf("%w: %s is %s", ErrTxNotWritable, txID, txc.status)
	}
	if err := c.ensureBegan(ctx, txc); err != nil {
		return err
	}
	txc.status = StatusActive

	executed, err := c.executor.Execute(ctx, txc.conn, op)
	if err != nil {
		return err
	}
	txc.operations = append(txc.operations, executed)
	return nil
}

// Commit makes the transaction durable. For a root transaction this flushes
// the store-level transaction; for a nested one it merges the child's
// operations into the parent and defers durability to it. Terminal either
// way, and the context leaves the live registry.
func (c *Coordinator) Commit(ctx context.Context, txID string) error {
	txc, err := c.Get(txID)
	if err != nil {
		return err
	}
	if txc.status.terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTxTerminal, txID, txc.status)
	}

	if txc.parentID != "" {
		return c.commitNested(ctx, txc)
	}

	if txc.began {
		if _, err := txc.conn.ExecContext(ctx, "COMMIT"); err != nil {
			c.logger.Error("commit failed", "transaction", txc.id, "err", err)
			txc.status = StatusFailed
			c.evict(txc)
			return fmt.Errorf("%w: commit of %s: %w", core.ErrInfrastructure, txc.id, err)
		}
	}

	txc.status = StatusCommitted
	c.evict(txc)
	c.logger.Debug("transaction committed", "transaction", txc.id, "operations", len(txc.operations))
	return nil
}

// Rollback undoes every operation in reverse chronological order via the
// RollbackEngine, then discards the store-level transaction. Terminal; the
// context leaves the live registry. Individual undo failures are logged and
// never abort the sequence.
func (c *Coordinator) Rollback(ctx context.Context, txID string) error {
	txc, err := c.Get(txID)
	if err != nil {
		return err
	}
	if txc.status.terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTxTerminal, txID, txc.status)
	}

	if txc.parentID != "" {
		return c.rollbackNested(ctx, txc)
	}

	if failed := c.rollback.RollbackAll(ctx, txc.conn, txc.operations); failed > 0 {
		c.logger.Error("rollback left operations undone",
			"transaction", txc.id, "failed", failed, "total", len(txc.operations))
	}

	if txc.began {
		if _, err := txc.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
			// The inverse replay above already compensated; the store-level
			// rollback is belt and suspenders.
			c.logger.Warn("store-level rollback failed", "transaction", txc.id, "err", err)
		}
	}

	txc.status = StatusRolledBack
	c.evict(txc)
	c.logger.Debug("transaction rolled back", "transaction", txc.id, "operations", len(txc.operations))
	return nil
}

// ExecuteInTransaction begins a root transaction, runs fn, and commits on
// success. On any error from fn the transaction is rolled back; a rollback
// failure is logged but never masks fn's error, which always propagates.
func (c *Coordinator) ExecuteInTransaction(ctx context.Context, fn func(txc *Context) error) error {
	txc, err := c.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(txc); err != nil {
		if rbErr := c.Rollback(ctx, txc.id); rbErr != nil {
			c.logger.Error("rollback after failure also failed",
				"transaction", txc.id, "err", rbErr)
		}
		return err
	}
	return c.Commit(ctx, txc.id)
}

// ExecuteInNestedTransaction begins a child of the given parent, runs fn,
// and merges the child's operations into the parent on success. On failure
// only the child's operations are undone; the parent's prior operations are
// untouched. The child context is discarded afterward regardless of outcome.
func (c *Coordinator) ExecuteInNestedTransaction(ctx context.Context, parentID string, fn func(txc *Context) error) error {
	child, err := c.BeginNested(ctx, parentID)
	if err != nil {
		return err
	}

	if err := fn(child); err != nil {
		if rbErr := c.Rollback(ctx, child.id); rbErr != nil {
			c.logger.Error("nested rollback after failure also failed",
				"transaction", child.id, "err", rbErr)
		}
		return err
	}
	return c.Commit(ctx, child.id)
}

// CreateSavepoint records a savepoint in the transaction.
func (c *Coordinator) CreateSavepoint(ctx context.Context, txID, name string) (string, error) {
	txc, err := c.Get(txID)
	if err != nil {
		return "", err
	}
	if err := c.ensureBegan(ctx, txc); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.savepoints.Create(ctx, txc, name)
}

// RollbackToSavepoint undoes every operation recorded after the savepoint.
func (c *Coordinator) RollbackToSavepoint(ctx context.Context, txID, savepointID string) error {
	txc, err := c.Get(txID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.savepoints.RollbackTo(ctx, txc, savepointID)
}

// ReleaseSavepoint drops a savepoint without undoing anything.
func (c *Coordinator) ReleaseSavepoint(ctx context.Context, txID, savepointID string) error {
	txc, err := c.Get(txID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.savepoints.Release(ctx, txc, savepointID)
}

// Live returns the number of transactions in the registry.
func (c *Coordinator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registry)
}

func (c *Coordinator) commitNested(ctx context.Context, child *Context) error {
	c.mu.Lock()
	parent, ok := c.registry[child.parentID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrTxNotFound, child.parentID)
	}

	if child.nestedSP != "" {
		if _, err := child.conn.ExecContext(ctx, "RELEASE SAVEPOINT "+child.nestedSP); err != nil {
			c.logger.Debug("release of nested savepoint failed",
				"transaction", child.id, "err", err)
		}
	}

	parent.operations = append(parent.operations, child.operations...)
	child.status = StatusCommitted
	c.evict(child)
	c.logger.Debug("nested transaction merged into parent",
		"transaction", child.id, "parent", parent.id, "operations", len(child.operations))
	return nil
}

func (c *Coordinator) rollbackNested(ctx context.Context, child *Context) error {
	if child.nestedSP != "" {
		if _, err := child.conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+child.nestedSP); err != nil {
			c.logger.Warn("store-level rollback of nested transaction failed",
				"transaction", child.id, "err", err)
		}
	}

	if failed := c.rollback.RollbackAll(ctx, child.conn, child.operations); failed > 0 {
		c.logger.Error("nested rollback left operations undone",
			"transaction", child.id, "failed", failed, "total", len(child.operations))
	}

	child.status = StatusRolledBack
	c.evict(child)
	c.logger.Debug("nested transaction rolled back",
		"transaction", child.id, "operations", len(child.operations))
	return nil
}

// ensureBegan opens the store-level transaction on the context's connection
// once. Nested contexts are born inside the parent's transaction.
func (c *Coordinator) ensureBegan(ctx context.Context, txc *Context) error {
	if txc.began {
		return nil
	}
	if _, err := txc.conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("%w: begin of %s: %w", core.ErrInfrastructure, txc.id, err)
	}
	txc.began = true
	return nil
}

// evict removes a terminal context from the registry and returns its
// connection to the pool if it owns one.
func (c *Coordinator) evict(txc *Context) {
	c.mu.Lock()
	delete(c.registry, txc.id)
	c.mu.Unlock()

	if txc.ownsConn && txc.conn != nil {
		if err := txc.conn.Close(); err != nil {
			c.logger.Debug("closing transaction connection failed",
				"transaction", txc.id, "err", err)
		}
	}
}

func (c *Coordinator) nextID() string {
	return fmt.Sprintf("tx_%d_%d", time.Now().UnixMilli(), c.seq.Add(1))
}
