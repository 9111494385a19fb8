package txn

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Savepoint is a named, ordered marker inside a transaction. The marker is
// the index into the transaction's operation list at creation time; a
// rollback to the savepoint affects only operations appended after it.
type Savepoint struct {
	Id            string
	Name          string
	TransactionID string
	CreatedAt     time.Time

	marker int  // operation count at creation
	native bool // a store-level SAVEPOINT of the same id exists
}

// SavepointManager creates, rolls back to, and releases savepoints,
// delegating the undo of individual operations to the RollbackEngine.
//
// Store-level SAVEPOINT/ROLLBACK TO/RELEASE statements are attempted when
// the store supports them, but the manager never depends on them: the
// in-memory marker plus inverse-operation replay is the source of truth, so
// savepoints keep working when the store-level call silently no-ops.
type SavepointManager struct {
	rollback *RollbackEngine
	native   bool
	seq      int
	logger   *slog.Logger
}

// NewSavepointManager creates a new SavepointManager.
// If native is false every savepoint is memory-only bookkeeping.
func NewSavepointManager(rollback *RollbackEngine, native bool, logger *slog.Logger) *SavepointManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SavepointManager{
		rollback: rollback,
		native:   native,
		logger:   logger.With("component", "savepoint-manager"),
	}
}

// Create records a savepoint at the transaction's current operation count.
// A failing store-level SAVEPOINT degrades to memory-only bookkeeping with a
// warning; it never fails the transaction.
func (sm *SavepointManager) Create(ctx context.Context, txc *Context, name string) (string, error) {
	if !txc.writable() {
		return "", fmt.Errorf("%w: %s is %s", ErrTxNotWritable, txc.id, txc.status)
	}

	sm.seq++
	sp := &Savepoint{
		Id:            fmt.Sprintf("sp_%d", sm.seq),
		Name:          name,
		TransactionID: txc.id,
		CreatedAt:     time.Now().UTC(),
		marker:        len(txc.operations),
	}

	if sm.native {
		if _, err := txc.conn.ExecContext(ctx, "SAVEPOINT "+sp.Id); err != nil {
			sm.logger.Warn("store-level savepoint failed, using memory-only bookkeeping",
				"savepoint", sp.Id, "name", name, "err", err)
		} else {
			sp.native = true
		}
	} else {
		sm.logger.Warn("store has no savepoint support, using memory-only bookkeeping",
			"savepoint", sp.Id, "name", name)
	}

	txc.savepoints[sp.Id] = sp
	sm.logger.Debug("savepoint created", "savepoint", sp.Id, "name", name,
		"transaction", txc.id, "marker", sp.marker)
	return sp.Id, nil
}

// RollbackTo undoes every operation appended after the savepoint's marker,
// in reverse order, and truncates the transaction's operation list back to
// the marker. The store-level ROLLBACK TO is attempted first when available;
// the inverse replay runs regardless, since each inverse tolerates finding
// its work already done.
func (sm *SavepointManager) RollbackTo(ctx context.Context, txc *Context, savepointID string) error {
	if txc.status.terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTxTerminal, txc.id, txc.status)
	}
	sp, ok := txc.savepoints[savepointID]
	if !ok {
		return fmt.Errorf("%w: %s in transaction %s", ErrSavepointNotFound, savepointID, txc.id)
	}

	if sp.native {
		if _, err := txc.conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp.Id); err != nil {
			sm.logger.Warn("store-level rollback-to-savepoint failed, relying on operation replay",
				"savepoint", sp.Id, "err", err)
		}
	}

	undone := txc.operations[sp.marker:]
	if failed := sm.rollback.RollbackAll(ctx, txc.conn, undone); failed > 0 {
		sm.logger.Error("savepoint rollback left operations undone",
			"savepoint", sp.Id, "failed", failed, "total", len(undone))
	}
	txc.operations = txc.operations[:sp.marker]

	// Rolling back invalidates savepoints created after this one.
	for id, other := range txc.savepoints {
		if other.marker > sp.marker {
			delete(txc.savepoints, id)
		}
	}

	sm.logger.Debug("rolled back to savepoint", "savepoint", sp.Id,
		"transaction", txc.id, "undone", len(undone))
	return nil
}

// Release removes a savepoint without undoing anything. Releasing an
// already-released or unknown savepoint is not an error.
func (sm *SavepointManager) Release(ctx context.Context, txc *Context, savepointID string) error {
	sp, ok := txc.savepoints[savepointID]
	if !ok {
		sm.logger.Debug("release of unknown savepoint ignored",
			"savepoint", savepointID, "transaction", txc.id)
		return nil
	}

	if sp.native {
		if _, err := txc.conn.ExecContext(ctx, "RELEASE SAVEPOINT "+sp.Id); err != nil {
			sm.logger.Debug("store-level savepoint release failed",
				"savepoint", sp.Id, "err", err)
		}
	}

	delete(txc.savepoints, savepointID)
	return nil
}
