package txn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage/sqlite"
)

// Executor performs one typed mutation against the relational store and
// captures the rollback data needed to invert it. The pre-image is read
// before the mutation is applied, so rollback stays possible even if a later
// operation in the same transaction fails.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger.With("component", "txn-executor")}
}

// Execute applies the operation on the given handle and returns it with
// RollbackData and Timestamp populated.
//
// Create fails with core.ErrConflict if the natural key is taken; its
// rollback data stays empty (null prior). Update and Delete fail with
// core.ErrNotFound if the target is missing, and capture the full prior row
// first.
func (e *Executor) Execute(ctx context.Context, q sqlite.Querier, op Operation) (Operation, error) {
	op.Timestamp = time.Now().UTC()

	var err error
	switch op.Target {
	case TargetCollection:
		err = e.executeCollection(ctx, q, &op)
	case TargetDocument:
		err = e.executeDocument(ctx, q, &op)
	case TargetChunk:
		err = e.executeChunk(ctx, q, &op)
	default:
		err = fmt.Errorf("%w: unknown operation target %s", core.ErrValidation, op.Target)
	}
	if err != nil {
		return op, err
	}

	e.logger.Debug("operation executed",
		"type", op.Type.String(), "target", op.Target.String(), "targetId", op.TargetID)
	return op, nil
}

func (e *Executor) executeCollection(ctx context.Context, q sqlite.Querier, op *Operation) error {
	switch op.Type {
	case OpCreate:
		if op.Data.Collection == nil {
			return fmt.Errorf("%w: create collection without payload", core.ErrValidation)
		}
		return sqlite.InsertCollection(ctx, q, op.Data.Collection)
	case OpUpdate:
		if op.Data.Collection == nil {
			return fmt.Errorf("%w: update collection without payload", core.ErrValidation)
		}
		prior, err := sqlite.GetCollectionByID(ctx, q, op.TargetID)
		if err != nil {
			return err
		}
		op.RollbackData = EntityData{Collection: prior}
		return sqlite.UpdateCollection(ctx, q, op.Data.Collection)
	case OpDelete:
		prior, err := sqlite.GetCollectionByID(ctx, q, op.TargetID)
		if err != nil {
			return err
		}
		op.RollbackData = EntityData{Collection: prior}
		return sqlite.DeleteCollection(ctx, q, op.TargetID)
	}
	return fmt.Errorf("%w: unknown operation type %s", core.ErrValidation, op.Type)
}

func (e *Executor) executeDocument(ctx context.Context, q sqlite.Querier, op *Operation) error {
	switch op.Type {
	case OpCreate:
		if op.Data.Document == nil {
			return fmt.Errorf("%w: create document without payload", core.ErrValidation)
		}
		return sqlite.InsertDocument(ctx, q, op.Data.Document)
	case OpUpdate:
		if op.Data.Document == nil {
			return fmt.Errorf("%w: update document without payload", core.ErrValidation)
		}
		prior, err := sqlite.GetDocumentByID(ctx, q, op.TargetID)
		if err != nil {
			return err
		}
		op.RollbackData = EntityData{Document: prior}
		return sqlite.UpdateDocument(ctx, q, op.Data.Document)
	case OpDelete:
		prior, err := sqlite.GetDocumentByID(ctx, q, op.TargetID)
		if err != nil {
			return err
		}
		op.RollbackData = EntityData{Document: prior}
		return sqlite.DeleteDocument(ctx, q, op.TargetID)
	}
	return fmt.Errorf("%w: unknown operation type %s", core.ErrValidation, op.Type)
}

func (e *Executor) executeChunk(ctx context.Context, q sqlite.Querier, op *Operation) error {
	switch op.Type {
	case OpCreate:
		if op.Data.Chunk == nil {
			return fmt.Errorf("%w: create chunk without payload", core.ErrValidation)
		}
		return sqlite.InsertChunk(ctx, q, op.Data.Chunk)
	case OpUpdate:
		if op.Data.Chunk == nil {
			return fmt.Errorf("%w: update chunk without payload", core.ErrValidation)
		}
		prior, err := sqlite.GetChunkByPointID(ctx, q, core.PointID(op.TargetID))
		if err != nil {
			return err
		}
		op.RollbackData = EntityData{Chunk: prior}
		return sqlite.UpdateChunk(ctx, q, op.Data.Chunk)
	case OpDelete:
		prior, err := sqlite.GetChunkByPointID(ctx, q, core.PointID(op.TargetID))
		if err != nil {
			return err
		}
		op.RollbackData = EntityData{Chunk: prior}
		return sqlite.DeleteChunk(ctx, q, core.PointID(op.TargetID))
	}
	return fmt.Errorf("%w: unknown operation type %s", core.ErrValidation, op.Type)
}
