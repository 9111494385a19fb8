package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage/sqlite"
)

// RollbackEngine applies the inverse of executed operations. It is invoked
// during failure handling, when the forward operation may have partially
// applied or may already have been undone at the store level, so every
// inverse tolerates finding the store in either state:
//
//   - CREATE inverse deletes the created row; an already-absent row is a no-op.
//   - UPDATE inverse restores the captured pre-image verbatim; restoring an
//     already-restored row is idempotent.
//   - DELETE inverse re-inserts the captured pre-image; an already-present
//     row is left alone.
type RollbackEngine struct {
	logger *slog.Logger
}

// NewRollbackEngine creates a new RollbackEngine.
func NewRollbackEngine(logger *slog.Logger) *RollbackEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RollbackEngine{logger: logger.With("component", "rollback-engine")}
}

// RollbackOperation applies the inverse of a single operation.
func (re *RollbackEngine) RollbackOperation(ctx context.Context, q sqlite.Querier, op Operation) error {
	switch op.Type {
	case OpCreate:
		return re.undoCreate(ctx, q, op)
	case OpUpdate:
		return re.undoUpdate(ctx, q, op)
	case OpDelete:
		return re.undoDelete(ctx, q, op)
	}
	return fmt.Errorf("%w: unknown operation type %s", core.ErrValidation, op.Type)
}

// RollbackAll undoes operations strictly in reverse chronological order.
// Individual failures are logged and processing continues to the next
// operation; the whole undo sequence never aborts early. Returns the number
// of operations that could not be undone.
func (re *RollbackEngine) RollbackAll(ctx context.Context, q sqlite.Querier, ops []Operation) int {
	failed := 0
	for i := len(ops) - 1; i >= 0; i-- {
		if err := re.RollbackOperation(ctx, q, ops[i]); err != nil {
			re.logger.Error("failed to roll back operation",
				"type", ops[i].Type.String(), "target", ops[i].Target.String(),
				"targetId", ops[i].TargetID, "err", err)
			failed++
		}
	}
	return failed
}

func (re *RollbackEngine) undoCreate(ctx context.Context, q sqlite.Querier, op Operation) error {
	var err error
	switch op.Target {
	case TargetCollection:
		err = sqlite.DeleteCollection(ctx, q, op.TargetID)
	case TargetDocument:
		err = sqlite.DeleteDocument(ctx, q, op.TargetID)
	case TargetChunk:
		err = sqlite.DeleteChunk(ctx, q, core.PointID(op.TargetID))
	default:
		return fmt.Errorf("%w: unknown operation target %s", core.ErrValidation, op.Target)
	}
	if errors.Is(err, core.ErrNotFound) {
		// Already gone, nothing to undo.
		return nil
	}
	return err
}

func (re *RollbackEngine) undoUpdate(ctx context.Context, q sqlite.Querier, op Operation) error {
	if op.RollbackData.IsZero() {
		return fmt.Errorf("%w: update of %s %s has no rollback data",
			core.ErrValidation, op.Target, op.TargetID)
	}
	switch op.Target {
	case TargetCollection:
		return sqlite.UpdateCollection(ctx, q, op.RollbackData.Collection)
	case TargetDocument:
		return sqlite.UpdateDocument(ctx, q, op.RollbackData.Document)
	case TargetChunk:
		return sqlite.UpdateChunk(ctx, q, op.RollbackData.Chunk)
	}
	return fmt.Errorf("%w: unknown operation target %s", core.ErrValidation, op.Target)
}

func (re *RollbackEngine) undoDelete(ctx context.Context, q sqlite.Querier, op Operation) error {
	if op.RollbackData.IsZero() {
		return fmt.Errorf("%w: delete of %s %s has no rollback data",
			core.ErrValidation, op.Target, op.TargetID)
	}
	var err error
	switch op.Target {
	case TargetCollection:
		err = sqlite.InsertCollection(ctx, q, op.RollbackData.Collection)
	case TargetDocument:
		err = sqlite.InsertDocument(ctx, q, op.RollbackData.Document)
	case TargetChunk:
		err = sqlite.InsertChunk(ctx, q, op.RollbackData.Chunk)
	default:
		return fmt.Errorf("%w: unknown operation target %s", core.ErrValidation, op.Target)
	}
	if errors.Is(err, core.ErrConflict) {
		// Row is already back, for instance after a store-level rollback
		// beat the manual replay to it.
		return nil
	}
	return err
}
