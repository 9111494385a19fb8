package storage

import (
	"context"
	"time"

	"github.com/poiesic/docsync/core"
)

// DocumentStore provides read and convenience operations over the relational
// metadata store (collections, documents, chunks). Mutations performed by the
// ingestion pipeline go through the transaction engine instead, so that
// rollback data is captured for every write.
// Implementations must be thread-safe and support concurrent access.
type DocumentStore interface {
	// GetCollection retrieves a collection by id.
	// Returns core.ErrNotFound if the collection doesn't exist.
	GetCollection(ctx context.Context, id string) (*core.Collection, error)

	// GetDoc retrieves a document by id.
	// Returns core.ErrNotFound if the document doesn't exist.
	GetDoc(ctx context.Context, docID string) (*core.Document, error)

	// MarkDocAsSynced sets the document's synced flag and SyncedAt timestamp.
	// Returns core.ErrNotFound if the document doesn't exist.
	MarkDocAsSynced(ctx context.Context, docID string) error

	// AddChunks persists chunks for a document in a single transaction.
	// Chunk ordinals are expected to be contiguous from zero.
	AddChunks(ctx context.Context, docID string, chunks []*core.Chunk) error

	// GetChunkMetasByDocId retrieves a document's chunks ordered by ordinal.
	GetChunkMetasByDocId(ctx context.Context, docID string) ([]*core.Chunk, error)

	// GetChunkTexts retrieves chunk texts for the given point ids,
	// in the same order as the input ids.
	// Returns core.ErrNotFound if any point id is missing.
	GetChunkTexts(ctx context.Context, pointIDs []core.PointID) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}

// TaskStore persists sync tasks and their append-only transition history.
// Implementations must be thread-safe.
type TaskStore interface {
	// SaveTask inserts a new task.
	// Returns ErrDuplicateKey if a task with the same id already exists.
	SaveTask(ctx context.Context, task *core.SyncTask) error

	// GetTask retrieves a task by id.
	// Returns core.ErrNotFound if the task doesn't exist.
	GetTask(ctx context.Context, id string) (*core.SyncTask, error)

	// GetLatestTaskByDoc retrieves the most recently created task for a
	// document. Returns core.ErrNotFound if the document has no tasks.
	GetLatestTaskByDoc(ctx context.Context, docID string) (*core.SyncTask, error)

	// GetTasksByStatus retrieves all tasks with the given status,
	// ordered by creation time.
	GetTasksByStatus(ctx context.Context, status core.TaskStatus) ([]*core.SyncTask, error)

	// GetTasksByType retrieves all tasks with the given type,
	// ordered by creation time.
	GetTasksByType(ctx context.Context, taskType string) ([]*core.SyncTask, error)

	// GetAllTasks retrieves every task, ordered by creation time.
	GetAllTasks(ctx context.Context) ([]*core.SyncTask, error)

	// UpdateTask overwrites an existing task.
	// Returns core.ErrNotFound if the task doesn't exist.
	UpdateTask(ctx context.Context, task *core.SyncTask) error

	// DeleteTask removes a task and its transition history.
	// Returns core.ErrNotFound if the task doesn't exist.
	DeleteTask(ctx context.Context, id string) error

	// CleanupExpiredTasks deletes terminal tasks last updated before the
	// cutoff. Returns the number of tasks removed.
	CleanupExpiredTasks(ctx context.Context, olderThan time.Time) (int, error)

	// AppendTransition appends one record to a task's transition history.
	AppendTransition(ctx context.Context, record *core.TransitionRecord) error

	// GetTransitions retrieves a task's transition history in append order.
	GetTransitions(ctx context.Context, taskID string) ([]*core.TransitionRecord, error)

	// CountTasksByStatus returns the number of tasks per status.
	CountTasksByStatus(ctx context.Context) (map[core.TaskStatus]int, error)
}

// VectorStore is the best-effort side of the system: an embedded vector
// index holding one namespace per collection. Writes and deletes are not
// covered by relational transactions; callers must tolerate a window of
// inconsistency between relational markers and actual index contents.
type VectorStore interface {
	// UpsertCollection inserts or replaces points in a collection's index.
	// Point ids are deterministic, so re-upserting is idempotent.
	UpsertCollection(ctx context.Context, collectionID string, points []*core.VectorPoint) error

	// DeletePointsByDoc removes every point belonging to a document.
	DeletePointsByDoc(ctx context.Context, collectionID, docID string) error

	// DeletePointsByCollection removes every point in a collection.
	DeletePointsByCollection(ctx context.Context, collectionID string) error

	// DeletePoints removes specific points from a collection.
	// Missing points are ignored.
	DeletePoints(ctx context.Context, collectionID string, ids []core.PointID) error

	// SearchCollection finds points similar to the query vector.
	// Returns matches with score >= minScore, up to limit results,
	// ordered by score (highest first).
	SearchCollection(ctx context.Context, collectionID string, vector []float32, minScore float32, limit int) ([]*core.SimilarityMatch, error)

	// Close closes the vector index and releases resources.
	Close() error
}
