// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package docsync

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/ai/openai"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/ingestion"
	"github.com/poiesic/docsync/splitter"
	"github.com/poiesic/docsync/storage"
	"github.com/poiesic/docsync/storage/badger"
	"github.com/poiesic/docsync/storage/sqlite"
	"github.com/poiesic/docsync/txn"
)

// Engine ties the relational store, the vector index, the transaction
// coordinator and the sync state machine into one handle. It is the public
// surface of the module: one Engine per data directory.
type Engine struct {
	store       *sqlite.Store
	backend     *badger.Backend
	docs        storage.DocumentStore
	tasks       storage.TaskStore
	vectors     storage.VectorStore
	embedder    ai.Embedder
	coordinator *txn.Coordinator
	machine     *ingestion.StateMachine
	outbox      *ingestion.Outbox
	logger      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	aiConfig   *ai.Config
	embedder   ai.Embedder
	splitter   splitter.Splitter
	inMemory   bool
	outboxSize int
	logger     *slog.Logger
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(cfg *ai.Config) EngineOption {
	return func(o *engineOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// WithEmbedder injects a fully built embedder, bypassing the AI config.
// Intended for tests and embedded deployments.
func WithEmbedder(embedder ai.Embedder) EngineOption {
	return func(o *engineOptions) {
		o.embedder = embedder
	}
}

// WithSplitter replaces the default recursive splitter.
func WithSplitter(s splitter.Splitter) EngineOption {
	return func(o *engineOptions) {
		if s != nil {
			o.splitter = s
		}
	}
}

// WithInMemory keeps both stores in memory. Data is lost on Close.
func WithInMemory() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithOutboxSize sets the worker count for best-effort side effects.
func WithOutboxSize(size int) EngineOption {
	return func(o *engineOptions) {
		o.outboxSize = size
	}
}

// WithEngineLogger sets a custom logger. Default is slog.Default().
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewEngine opens (creating if necessary) the stores under dataDir and
// wires the full pipeline. With WithInMemory the dataDir is ignored.
func NewEngine(dataDir string, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	var store *sqlite.Store
	var err error
	if options.inMemory {
		store, err = sqlite.OpenMemory(sqlite.WithLogger(options.logger))
	} else {
		store, err = sqlite.Open(filepath.Join(dataDir, "docsync.db"), sqlite.WithLogger(options.logger))
	}
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filepath.Join(dataDir, "vectors"), options.inMemory)
	if err != nil {
		store.Close()
		return nil, err
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			backend.Close()
			store.Close()
			return nil, err
		}
	}

	split := options.splitter
	if split == nil {
		split = splitter.NewRecursiveSplitter()
	}

	outbox, err := ingestion.NewOutbox(options.outboxSize,
		ingestion.WithOutboxLogger(options.logger))
	if err != nil {
		backend.Close()
		store.Close()
		return nil, err
	}

	docs := sqlite.NewDocumentRepository(store)
	tasks := sqlite.NewTaskRepository(store)
	vectors := badger.NewPointRepository(backend)
	coordinator := txn.NewCoordinator(store, txn.WithLogger(options.logger))

	machine, err := ingestion.NewStateMachine(docs, tasks, vectors, split, embedder, coordinator,
		ingestion.WithLogger(options.logger))
	if err != nil {
		outbox.Close()
		backend.Close()
		store.Close()
		return nil, err
	}

	return &Engine{
		store:       store,
		backend:     backend,
		docs:        docs,
		tasks:       tasks,
		vectors:     vectors,
		embedder:    embedder,
		coordinator: coordinator,
		machine:     machine,
		outbox:      outbox,
		logger:      options.logger,
	}, nil
}

// Close drains pending side effects and closes both stores.
func (e *Engine) Close() error {
	e.outbox.Close()

	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing vector backend", "err", err)
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing relational store", "err", err)
		return err
	}
	return nil
}

// DocumentStore exposes the relational read surface.
func (e *Engine) DocumentStore() storage.DocumentStore {
	return e.docs
}

// TaskStore exposes task persistence.
func (e *Engine) TaskStore() storage.TaskStore {
	return e.tasks
}

// VectorStore exposes the vector index.
func (e *Engine) VectorStore() storage.VectorStore {
	return e.vectors
}

// Coordinator exposes the transaction coordinator.
func (e *Engine) Coordinator() *txn.Coordinator {
	return e.coordinator
}

// --- sync task surface ---

// CreateSyncTask mints a NEW sync task for the document.
func (e *Engine) CreateSyncTask(ctx context.Context, docID string) (*core.SyncTask, error) {
	return e.machine.CreateSyncTask(ctx, docID)
}

// GetSyncTaskStatus returns the most recent task for the document, or nil.
func (e *Engine) GetSyncTaskStatus(ctx context.Context, docID string) (*core.SyncTask, error) {
	return e.machine.GetSyncTaskStatus(ctx, docID)
}

// ValidateTransition checks an event against the transition table.
func (e *Engine) ValidateTransition(ctx context.Context, taskID string, event core.SyncEvent) error {
	return e.machine.ValidateTransition(ctx, taskID, event)
}

// HandleTransition applies one event to a task.
func (e *Engine) HandleTransition(ctx context.Context, taskID string, event core.SyncEvent, payload string) (bool, error) {
	return e.machine.HandleTransition(ctx, taskID, event, payload)
}

// ExecuteTask runs the pipeline from the task's current status.
func (e *Engine) ExecuteTask(ctx context.Context, taskID string) error {
	return e.machine.ExecuteTask(ctx, taskID)
}

// SyncDocument creates a sync task for the document and runs it to
// completion in one call.
func (e *Engine) SyncDocument(ctx context.Context, docID string) (*core.SyncTask, error) {
	task, err := e.machine.CreateSyncTask(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := e.machine.ExecuteTask(ctx, task.Id); err != nil {
		return task, err
	}
	return e.tasks.GetTask(ctx, task.Id)
}

// GetAllSyncTasks returns every task ordered by creation time.
func (e *Engine) GetAllSyncTasks(ctx context.Context) ([]*core.SyncTask, error) {
	return e.machine.GetAllSyncTasks(ctx)
}

// GetSyncJobCountByStatus returns the number of tasks in a status.
func (e *Engine) GetSyncJobCountByStatus(ctx context.Context, status core.TaskStatus) (int, error) {
	return e.machine.GetSyncJobCountByStatus(ctx, status)
}

// GetTaskMetrics summarizes task outcomes.
func (e *Engine) GetTaskMetrics(ctx context.Context) (*core.TaskMetrics, error) {
	return e.machine.GetTaskMetrics(ctx)
}

// GetTransitionHistory returns a task's transition records in append order.
func (e *Engine) GetTransitionHistory(ctx context.Context, taskID string) ([]*core.TransitionRecord, error) {
	return e.machine.GetTransitionHistory(ctx, taskID)
}

// CleanupTasks deletes terminal tasks last updated before the cutoff.
func (e *Engine) CleanupTasks(ctx context.Context, olderThan time.Time) (int, error) {
	return e.machine.CleanupTasks(ctx, olderThan)
}

// --- transaction surface ---

// BeginTransaction starts a root transaction.
func (e *Engine) BeginTransaction(ctx context.Context) (*txn.Context, error) {
	return e.coordinator.Begin(ctx)
}

// ExecuteOperation runs one mutation inside a transaction.
func (e *Engine) ExecuteOperation(ctx context.Context, txID string, op txn.Operation) error {
	return e.coordinator.ExecuteOperation(ctx, txID, op)
}

// CommitTransaction makes a transaction durable.
func (e *Engine) CommitTransaction(ctx context.Context, txID string) error {
	return e.coordinator.Commit(ctx, txID)
}

// RollbackTransaction undoes a transaction's operations.
func (e *Engine) RollbackTransaction(ctx context.Context, txID string) error {
	return e.coordinator.Rollback(ctx, txID)
}

// CreateSavepoint records a savepoint in a transaction.
func (e *Engine) CreateSavepoint(ctx context.Context, txID, name string) (string, error) {
	return e.coordinator.CreateSavepoint(ctx, txID, name)
}

// RollbackToSavepoint undoes operations recorded after the savepoint.
func (e *Engine) RollbackToSavepoint(ctx context.Context, txID, savepointID string) error {
	return e.coordinator.RollbackToSavepoint(ctx, txID, savepointID)
}

// ReleaseSavepoint drops a savepoint without undoing anything.
func (e *Engine) ReleaseSavepoint(ctx context.Context, txID, savepointID string) error {
	return e.coordinator.ReleaseSavepoint(ctx, txID, savepointID)
}

// ExecuteInTransaction runs fn inside a transaction, committing on success
// and rolling back on error.
func (e *Engine) ExecuteInTransaction(ctx context.Context, fn func(txc *txn.Context) error) error {
	return e.coordinator.ExecuteInTransaction(ctx, fn)
}

// ExecuteInNestedTransaction runs fn inside a child of the given parent.
func (e *Engine) ExecuteInNestedTransaction(ctx context.Context, parentID string, fn func(txc *txn.Context) error) error {
	return e.coordinator.ExecuteInNestedTransaction(ctx, parentID, fn)
}

// --- document and collection management ---

// CreateCollection creates a collection.
func (e *Engine) CreateCollection(ctx context.Context, id, name string) (*core.Collection, error) {
	now := time.Now().UTC()
	collection := &core.Collection{Id: id, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}

	err := e.coordinator.ExecuteInTransaction(ctx, func(txc *txn.Context) error {
		return e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.CreateCollection(collection))
	})
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// CreateDocument creates a document under a collection. The document is
// not synced until SyncDocument or ExecuteTask runs for it.
func (e *Engine) CreateDocument(ctx context.Context, docID, collectionID, title, content string) (*core.Document, error) {
	if _, err := e.docs.GetCollection(ctx, collectionID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &core.Document{
		Id:           docID,
		CollectionId: collectionID,
		Title:        title,
		Content:      content,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	err := e.coordinator.ExecuteInTransaction(ctx, func(txc *txn.Context) error {
		return e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.CreateDocument(doc))
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocumentContent replaces a document's content, clears its synced
// flag and removes its now-stale chunks, so the next sync re-ingests it
// from scratch. Stale vectors are deleted best-effort via the outbox.
func (e *Engine) UpdateDocumentContent(ctx context.Context, docID, title, content string) (*core.Document, error) {
	doc, err := e.docs.GetDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	chunks, err := e.docs.GetChunkMetasByDocId(ctx, docID)
	if err != nil {
		return nil, err
	}

	updated := *doc
	updated.Title = title
	updated.Content = content
	updated.Synced = false
	updated.SyncedAt = time.Time{}
	updated.UpdatedAt = time.Now().UTC()

	err = e.coordinator.ExecuteInTransaction(ctx, func(txc *txn.Context) error {
		for _, chunk := range chunks {
			if err := e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.DeleteChunk(chunk.PointId)); err != nil {
				return err
			}
		}
		return e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.UpdateDocument(&updated))
	})
	if err != nil {
		return nil, err
	}

	e.enqueueVectorDelete("doc-update", doc.CollectionId, docID)
	return &updated, nil
}

// DeleteDocument removes a document and its chunks transactionally, then
// deletes its vectors best-effort via the outbox.
func (e *Engine) DeleteDocument(ctx context.Context, docID string) error {
	doc, err := e.docs.GetDoc(ctx, docID)
	if err != nil {
		return err
	}
	chunks, err := e.docs.GetChunkMetasByDocId(ctx, docID)
	if err != nil {
		return err
	}

	err = e.coordinator.ExecuteInTransaction(ctx, func(txc *txn.Context) error {
		for _, chunk := range chunks {
			if err := e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.DeleteChunk(chunk.PointId)); err != nil {
				return err
			}
		}
		return e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.DeleteDocument(docID))
	})
	if err != nil {
		return err
	}

	e.enqueueVectorDelete("doc-delete", doc.CollectionId, docID)
	return nil
}

// DeleteCollection removes a collection with every document and chunk
// under it in one transaction, then clears the collection's vector
// namespace best-effort via the outbox.
func (e *Engine) DeleteCollection(ctx context.Context, collectionID string) error {
	if _, err := e.docs.GetCollection(ctx, collectionID); err != nil {
		return err
	}
	docIDs, err := sqlite.GetDocumentIDsByCollection(ctx, e.store.DB(), collectionID)
	if err != nil {
		return err
	}

	err = e.coordinator.ExecuteInTransaction(ctx, func(txc *txn.Context) error {
		for _, docID := range docIDs {
			chunks, err := e.docs.GetChunkMetasByDocId(ctx, docID)
			if err != nil {
				return err
			}
			for _, chunk := range chunks {
				if err := e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.DeleteChunk(chunk.PointId)); err != nil {
					return err
				}
			}
			if err := e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.DeleteDocument(docID)); err != nil {
				return err
			}
		}
		return e.coordinator.ExecuteOperation(ctx, txc.ID(), txn.DeleteCollection(collectionID))
	})
	if err != nil {
		return err
	}

	if err := e.outbox.Submit("collection-delete", func(ctx context.Context) error {
		return e.vectors.DeletePointsByCollection(ctx, collectionID)
	}); err != nil {
		e.logger.Error("failed to enqueue vector cleanup", "collection", collectionID, "err", err)
	}
	return nil
}

// SearchDocuments embeds the query and finds the most similar chunks in
// the collection.
func (e *Engine) SearchDocuments(ctx context.Context, collectionID, query string, minScore float32, limit int) ([]*core.SimilarityMatch, error) {
	vector, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.vectors.SearchCollection(ctx, collectionID, vector, minScore, limit)
}

// DrainOutbox blocks until pending side effects have finished. Useful in
// tests and before shutdown.
func (e *Engine) DrainOutbox() {
	e.outbox.Drain()
}

func (e *Engine) enqueueVectorDelete(reason, collectionID, docID string) {
	if err := e.outbox.Submit(reason, func(ctx context.Context) error {
		return e.vectors.DeletePointsByDoc(ctx, collectionID, docID)
	}); err != nil {
		e.logger.Error("failed to enqueue vector cleanup",
			"reason", reason, "doc", docID, "err", err)
	}
}
