package docsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docsync/ai/mock"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/txn"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine("",
		WithInMemory(),
		WithEmbedder(mock.NewMockEmbedder()),
		WithOutboxSize(1),
	)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestEngineEndToEndSync(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateCollection(ctx, "col1", "notes")
	require.NoError(t, err)
	_, err = e.CreateDocument(ctx, "doc1", "col1", "first", "the content of the very first document")
	require.NoError(t, err)

	task, err := e.SyncDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusSynced, task.Status)

	doc, err := e.DocumentStore().GetDoc(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, doc.Synced)

	matches, err := e.SearchDocuments(ctx, "col1", "the content of the very first document", 0.5, 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "doc1", matches[0].DocId)
}

func TestEngineCreateDocumentRequiresCollection(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateDocument(context.Background(), "doc1", "missing", "t", "c")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEngineUpdateDocumentContentResetsSync(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateCollection(ctx, "col1", "notes")
	require.NoError(t, err)
	_, err = e.CreateDocument(ctx, "doc1", "col1", "first", "original content for the document")
	require.NoError(t, err)
	_, err = e.SyncDocument(ctx, "doc1")
	require.NoError(t, err)

	updated, err := e.UpdateDocumentContent(ctx, "doc1", "first", "completely rewritten content")
	require.NoError(t, err)
	assert.False(t, updated.Synced)
	assert.True(t, updated.SyncedAt.IsZero())

	// Stale chunks are gone; the next sync starts from scratch.
	chunks, err := e.DocumentStore().GetChunkMetasByDocId(ctx, "doc1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	e.DrainOutbox()
	matches, err := e.VectorStore().SearchCollection(ctx, "col1", make([]float32, 384), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEngineDeleteDocumentRemovesVectors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateCollection(ctx, "col1", "notes")
	require.NoError(t, err)
	_, err = e.CreateDocument(ctx, "doc1", "col1", "first", "content to be deleted later")
	require.NoError(t, err)
	_, err = e.SyncDocument(ctx, "doc1")
	require.NoError(t, err)

	require.NoError(t, e.DeleteDocument(ctx, "doc1"))
	e.DrainOutbox()

	_, err = e.DocumentStore().GetDoc(ctx, "doc1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	query, err := mock.NewMockEmbedder().EmbedText(ctx, "content to be deleted later")
	require.NoError(t, err)
	matches, err := e.VectorStore().SearchCollection(ctx, "col1", query, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEngineDeleteCollectionCascades(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateCollection(ctx, "col1", "notes")
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		_, err = e.CreateDocument(ctx, id, "col1", id, "content of document "+id)
		require.NoError(t, err)
		_, err = e.SyncDocument(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, e.DeleteCollection(ctx, "col1"))
	e.DrainOutbox()

	_, err = e.DocumentStore().GetCollection(ctx, "col1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	for _, id := range []string{"a", "b"} {
		_, err = e.DocumentStore().GetDoc(ctx, id)
		assert.ErrorIs(t, err, core.ErrNotFound)
	}
}

func TestEngineTransactionSurface(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	txc, err := e.BeginTransaction(ctx)
	require.NoError(t, err)

	now := time.Now().UTC()
	col := &core.Collection{Id: "col1", Name: "notes", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.ExecuteOperation(ctx, txc.ID(), txn.CreateCollection(col)))

	spID, err := e.CreateSavepoint(ctx, txc.ID(), "after-collection")
	require.NoError(t, err)

	doc := &core.Document{Id: "doc1", CollectionId: "col1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.ExecuteOperation(ctx, txc.ID(), txn.CreateDocument(doc)))

	require.NoError(t, e.RollbackToSavepoint(ctx, txc.ID(), spID))
	require.NoError(t, e.CommitTransaction(ctx, txc.ID()))

	_, err = e.DocumentStore().GetCollection(ctx, "col1")
	require.NoError(t, err)
	_, err = e.DocumentStore().GetDoc(ctx, "doc1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEngineTaskBookkeeping(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateCollection(ctx, "col1", "notes")
	require.NoError(t, err)
	_, err = e.CreateDocument(ctx, "doc1", "col1", "t", "some document content here")
	require.NoError(t, err)
	task, err := e.SyncDocument(ctx, "doc1")
	require.NoError(t, err)

	all, err := e.GetAllSyncTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	history, err := e.GetTransitionHistory(ctx, task.Id)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	metrics, err := e.GetTaskMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalTasks)
	assert.InDelta(t, 1.0, metrics.SuccessRate, 1e-9)

	// The task is recent, so a day-old cutoff removes nothing.
	removed, err := e.CleanupTasks(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = e.CleanupTasks(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
