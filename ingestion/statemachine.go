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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/splitter"
	"github.com/poiesic/docsync/storage"
	"github.com/poiesic/docsync/txn"
)

// StateMachine drives documents through the ingestion pipeline:
// split into chunks, embed, upsert vectors, mark synced. Each document's
// progress is tracked by a persisted SyncTask whose status only moves
// along the transition table in transitions.go.
//
// ExecuteTask is safe to re-invoke: stages already completed are skipped,
// so an external scheduler may re-dispatch a task after a crash or timeout
// without coordination.
type StateMachine struct {
	docs        storage.DocumentStore
	tasks       storage.TaskStore
	vectors     storage.VectorStore
	splitter    splitter.Splitter
	embedder    ai.Embedder
	coordinator *txn.Coordinator

	embedAttempts  int
	embedBaseDelay time.Duration

	logger *slog.Logger
}

// Defaults for the embedding retry budget. Embedding calls go out to an
// external provider, so transient failures are retried in place before the
// task is marked FAILED.
const (
	DefaultEmbedAttempts  = 3
	DefaultEmbedBaseDelay = 500 * time.Millisecond
)

// Option configures a StateMachine.
type Option func(*StateMachine)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(sm *StateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithEmbedRetry overrides the in-stage retry budget for embedding calls.
func WithEmbedRetry(attempts int, baseDelay time.Duration) Option {
	return func(sm *StateMachine) {
		if attempts > 0 {
			sm.embedAttempts = attempts
		}
		if baseDelay > 0 {
			sm.embedBaseDelay = baseDelay
		}
	}
}

// NewStateMachine creates a new sync state machine over the given
// collaborators.
func NewStateMachine(
	docs storage.DocumentStore,
	tasks storage.TaskStore,
	vectors storage.VectorStore,
	split splitter.Splitter,
	embedder ai.Embedder,
	coordinator *txn.Coordinator,
	opts ...Option,
) (*StateMachine, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if tasks == nil {
		return nil, ErrTaskStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if split == nil {
		return nil, ErrSplitterRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if coordinator == nil {
		return nil, ErrCoordinatorRequired
	}

	sm := &StateMachine{
		docs:           docs,
		tasks:          tasks,
		vectors:        vectors,
		splitter:       split,
		embedder:       embedder,
		coordinator:    coordinator,
		embedAttempts:  DefaultEmbedAttempts,
		embedBaseDelay: DefaultEmbedBaseDelay,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(sm)
	}
	sm.logger = sm.logger.With("component", "sync-statemachine")
	return sm, nil
}

// CreateSyncTask mints and persists a NEW sync task for the document.
// The task id embeds the creation timestamp at millisecond resolution, so
// a colliding id means an identical request is already in flight; that
// collision surfaces as core.ErrConflict.
func (sm *StateMachine) CreateSyncTask(ctx context.Context, docID string) (*core.SyncTask, error) {
	doc, err := sm.docs.GetDoc(ctx, docID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &core.SyncTask{
		Id:           core.NewTaskID(docID, now),
		Type:         core.TaskTypeDocSync,
		DocId:        doc.Id,
		CollectionId: doc.CollectionId,
		Status:       core.TaskStatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := sm.tasks.SaveTask(ctx, task); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: sync of %s already in flight", core.ErrConflict, docID)
		}
		return nil, err
	}

	sm.logger.Info("sync task created", "task", task.Id, "doc", docID)
	return task, nil
}

// GetSyncTaskStatus returns the most recent task for the document, or nil
// if the document has never been submitted.
func (sm *StateMachine) GetSyncTaskStatus(ctx context.Context, docID string) (*core.SyncTask, error) {
	task, err := sm.tasks.GetLatestTaskByDoc(ctx, docID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ValidateTransition checks the event against the transition table for the
// task's current status without mutating anything. A permitted transition
// returns nil; anything else returns ErrInvalidTransition.
func (sm *StateMachine) ValidateTransition(ctx context.Context, taskID string, event core.SyncEvent) error {
	task, err := sm.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if _, ok := NextStatus(task.Status, event); !ok {
		return fmt.Errorf("%w: event %s not permitted from status %s",
			ErrInvalidTransition, event, task.Status)
	}
	return nil
}

// HandleTransition validates and applies one event: persists the new
// status and appends a TransitionRecord. RETRY increments the retry
// counter; once the budget of core.MaxTaskRetries is spent, further RETRY
// calls return false without error and the task stays FAILED.
func (sm *StateMachine) HandleTransition(ctx context.Context, taskID string, event core.SyncEvent, payload string) (bool, error) {
	task, err := sm.tasks.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	return sm.applyTransition(ctx, task, event, payload)
}

// applyTransition mutates the passed task in place, so callers that staged
// context changes (chunk counts, point ids) get them persisted atomically
// with the status change.
func (sm *StateMachine) applyTransition(ctx context.Context, task *core.SyncTask, event core.SyncEvent, payload string) (bool, error) {
	next, ok := NextStatus(task.Status, event)
	if !ok {
		return false, fmt.Errorf("%w: event %s not permitted from status %s",
			ErrInvalidTransition, event, task.Status)
	}

	if event == core.EventRetry {
		if task.Retries >= core.MaxTaskRetries {
			sm.logger.Warn("retry budget exhausted, task stays FAILED",
				"task", task.Id, "retries", task.Retries)
			return false, nil
		}
		task.Retries++
	}

	prev := task.Status
	task.Status = next
	task.UpdatedAt = time.Now().UTC()
	switch event {
	case core.EventChunksSaved, core.EventVectorsInserted, core.EventMetaUpdated:
		task.Context.Stage = next
	case core.EventError:
		task.Context.LastError = payload
	}

	if err := sm.tasks.UpdateTask(ctx, task); err != nil {
		return false, err
	}
	if err := sm.tasks.AppendTransition(ctx, &core.TransitionRecord{
		TaskId:    task.Id,
		Event:     event,
		Payload:   payload,
		Timestamp: task.UpdatedAt,
	}); err != nil {
		return false, err
	}

	sm.logger.Info("task transitioned", "task", task.Id,
		"from", prev, "event", event, "to", next)
	return true, nil
}

// ExecuteTask runs the pipeline from the task's current status to
// completion, skipping stages already completed. A RETRYING task resumes
// at the stage recorded in its context. Any stage failure records FAILED
// via the ERROR event before the original error is returned unchanged.
func (sm *StateMachine) ExecuteTask(ctx context.Context, taskID string) error {
	task, err := sm.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	switch task.Status {
	case core.TaskStatusSynced:
		// Nothing left to do; re-invocation is a no-op.
		return nil
	case core.TaskStatusFailed:
		return fmt.Errorf("%w: task %s is FAILED, request RETRY first",
			ErrTaskNotRunnable, taskID)
	}

	stage := task.Status
	if task.Status == core.TaskStatusRetrying {
		stage = task.Context.Stage
		if stage == "" {
			stage = core.TaskStatusNew
		}
	}

	if stage == core.TaskStatusNew {
		if err := sm.runSplitStage(ctx, task); err != nil {
			return sm.fail(ctx, task, err)
		}
		stage = core.TaskStatusSplitOK
	}
	if stage == core.TaskStatusSplitOK {
		if err := sm.runVectorStage(ctx, task); err != nil {
			return sm.fail(ctx, task, err)
		}
		stage = core.TaskStatusVectorized
	}
	if stage == core.TaskStatusVectorized {
		if err := sm.runMetaStage(ctx, task); err != nil {
			return sm.fail(ctx, task, err)
		}
	}

	return nil
}

// fail records the FAILED status so the persisted task reflects reality,
// then rethrows the original stage error untouched.
func (sm *StateMachine) fail(ctx context.Context, task *core.SyncTask, cause error) error {
	if _, err := sm.applyTransition(ctx, task, core.EventError, cause.Error()); err != nil {
		sm.logger.Error("failed to record task failure", "task", task.Id, "err", err)
	}
	return cause
}

// runSplitStage loads the document, splits it into chunks and persists
// them transactionally, then fires CHUNKS_SAVED. Chunks already present
// from a previous attempt are left in place, so a resumed task never
// duplicates rows.
func (sm *StateMachine) runSplitStage(ctx context.Context, task *core.SyncTask) error {
	doc, err := sm.docs.GetDoc(ctx, task.DocId)
	if err != nil {
		return err
	}

	texts, err := sm.splitter.Split(doc.Content)
	if err != nil {
		return fmt.Errorf("splitting document %s: %w", doc.Id, err)
	}

	now := time.Now().UTC()
	chunks := make([]*core.Chunk, len(texts))
	pointIDs := make([]core.PointID, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			PointId:   core.NewPointID(doc.Id, i, text),
			DocId:     doc.Id,
			Ord:       i,
			Text:      text,
			CreatedAt: now,
		}
		pointIDs[i] = chunks[i].PointId
	}

	err = sm.coordinator.ExecuteInTransaction(ctx, func(txc *txn.Context) error {
		for _, chunk := range chunks {
			err := sm.coordinator.ExecuteOperation(ctx, txc.ID(), txn.CreateChunk(chunk))
			if errors.Is(err, core.ErrConflict) {
				// Persisted by a previous attempt; deterministic point ids
				// make the re-run a no-op.
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persisting chunks of %s: %w", doc.Id, err)
	}

	task.Context.ChunkCount = len(chunks)
	task.Context.PointIds = pointIDs
	_, err = sm.applyTransition(ctx, task, core.EventChunksSaved,
		fmt.Sprintf(`{"chunks":%d}`, len(chunks)))
	return err
}

// runVectorStage embeds the persisted chunk texts and upserts the vectors,
// then fires VECTORS_INSERTED. The embedding call and the vector upsert
// run outside any relational transaction. Zero chunks short-circuits both.
func (sm *StateMachine) runVectorStage(ctx context.Context, task *core.SyncTask) error {
	chunks, err := sm.docs.GetChunkMetasByDocId(ctx, task.DocId)
	if err != nil {
		return err
	}

	if len(chunks) > 0 {
		pointIDs := make([]core.PointID, len(chunks))
		for i, chunk := range chunks {
			pointIDs[i] = chunk.PointId
		}
		texts, err := sm.docs.GetChunkTexts(ctx, pointIDs)
		if err != nil {
			return err
		}

		// Transient provider hiccups are retried here, independent of the
		// task-level RETRY budget.
		var vectors [][]float32
		err = RetryWithBackoff(ctx, func() error {
			var embedErr error
			vectors, embedErr = sm.embedder.EmbedTexts(ctx, texts)
			return embedErr
		}, sm.embedAttempts, sm.embedBaseDelay)
		if err != nil {
			return fmt.Errorf("%w: embedding %d chunks of %s: %w",
				core.ErrInfrastructure, len(texts), task.DocId, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: embedder returned %d vectors for %d texts",
				core.ErrInfrastructure, len(vectors), len(texts))
		}

		points := make([]*core.VectorPoint, len(chunks))
		for i, chunk := range chunks {
			points[i] = &core.VectorPoint{
				Id:     chunk.PointId,
				DocId:  chunk.DocId,
				Ord:    chunk.Ord,
				Vector: vectors[i],
			}
		}
		if err := sm.vectors.UpsertCollection(ctx, task.CollectionId, points); err != nil {
			return fmt.Errorf("%w: upserting %d points for %s: %w",
				core.ErrInfrastructure, len(points), task.DocId, err)
		}
	}

	_, err = sm.applyTransition(ctx, task, core.EventVectorsInserted,
		fmt.Sprintf(`{"points":%d}`, len(chunks)))
	return err
}

// runMetaStage marks the document synced inside a short relational
// transaction and fires META_UPDATED, resolving the task to SYNCED.
func (sm *StateMachine) runMetaStage(ctx context.Context, task *core.SyncTask) error {
	doc, err := sm.docs.GetDoc(ctx, task.DocId)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updated := *doc
	updated.Synced = true
	updated.SyncedAt = now
	updated.UpdatedAt = now

	err = sm.coordinator.ExecuteInTransaction(ctx, func(txc *txn.Context) error {
		return sm.coordinator.ExecuteOperation(ctx, txc.ID(), txn.UpdateDocument(&updated))
	})
	if err != nil {
		return fmt.Errorf("marking %s synced: %w", task.DocId, err)
	}

	_, err = sm.applyTransition(ctx, task, core.EventMetaUpdated, "")
	return err
}

// GetTransitionHistory returns a task's transition records in append order.
func (sm *StateMachine) GetTransitionHistory(ctx context.Context, taskID string) ([]*core.TransitionRecord, error) {
	return sm.tasks.GetTransitions(ctx, taskID)
}

// GetAllSyncTasks returns every task ordered by creation time.
func (sm *StateMachine) GetAllSyncTasks(ctx context.Context) ([]*core.SyncTask, error) {
	return sm.tasks.GetAllTasks(ctx)
}

// CleanupTasks deletes terminal tasks last updated before the cutoff and
// returns the number removed.
func (sm *StateMachine) CleanupTasks(ctx context.Context, olderThan time.Time) (int, error) {
	removed, err := sm.tasks.CleanupExpiredTasks(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		sm.logger.Info("expired tasks removed", "count", removed)
	}
	return removed, nil
}
