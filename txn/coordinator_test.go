package txn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage/sqlite"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *sqlite.Store) {
	t.Helper()
	store, _, _, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewCoordinator(store), store
}

func testCollection(id string) *core.Collection {
	now := time.Now().UTC()
	return &core.Collection{Id: id, Name: "notes", CreatedAt: now, UpdatedAt: now}
}

func testDocument(id, collectionID, content string) *core.Document {
	now := time.Now().UTC()
	return &core.Document{
		Id:           id,
		CollectionId: collectionID,
		Title:        "doc " + id,
		Content:      content,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testChunk(docID string, ord int, text string) *core.Chunk {
	return &core.Chunk{
		PointId:   core.NewPointID(docID, ord, text),
		DocId:     docID,
		Ord:       ord,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCommitPersists(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, txc.Status())

	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))))
	assert.Equal(t, StatusActive, txc.Status())
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("doc1", "col1", "hello world"))))

	require.NoError(t, c.Commit(ctx, txc.ID()))
	assert.Equal(t, StatusCommitted, txc.Status())
	assert.Equal(t, 0, c.Live())

	doc, err := sqlite.GetDocumentByID(ctx, store.DB(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "col1", doc.CollectionId)
}

func TestRollbackRoundTrip(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	// Committed baseline the rollback must not disturb.
	require.NoError(t, c.ExecuteInTransaction(ctx, func(txc *Context) error {
		if err := c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))); err != nil {
			return err
		}
		return c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("base", "col1", "kept")))
	}))

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("doc2", "col1", "discarded"))))
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateChunk(testChunk("doc2", 0, "discarded"))))
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), DeleteDocument("base")))

	require.NoError(t, c.Rollback(ctx, txc.ID()))
	assert.Equal(t, StatusRolledBack, txc.Status())

	// Created rows are gone, the deleted row is back.
	_, err = sqlite.GetDocumentByID(ctx, store.DB(), "doc2")
	assert.ErrorIs(t, err, core.ErrNotFound)
	base, err := sqlite.GetDocumentByID(ctx, store.DB(), "base")
	require.NoError(t, err)
	assert.Equal(t, "kept", base.Content)
}

func TestRollbackRestoresUpdatePreImage(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.ExecuteInTransaction(ctx, func(txc *Context) error {
		if err := c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))); err != nil {
			return err
		}
		return c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("doc1", "col1", "original")))
	}))

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	changed := testDocument("doc1", "col1", "changed")
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), UpdateDocument(changed)))

	mid, err := sqlite.GetDocumentByID(ctx, txc.conn, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "changed", mid.Content)

	require.NoError(t, c.Rollback(ctx, txc.ID()))

	after, err := sqlite.GetDocumentByID(ctx, store.DB(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "original", after.Content)
}

func TestTerminalTransactionRefusesWork(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, txc.ID()))

	// Terminal contexts leave the registry, so every follow-up misses.
	err = c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1")))
	assert.ErrorIs(t, err, ErrTxNotFound)
	assert.ErrorIs(t, c.Commit(ctx, txc.ID()), ErrTxNotFound)
	assert.ErrorIs(t, c.Rollback(ctx, txc.ID()), ErrTxNotFound)
	assert.Equal(t, StatusCommitted, txc.Status())
}

func TestExecuteInTransactionRethrowsOriginalError(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	boom := core.ErrValidation
	err := c.ExecuteInTransaction(ctx, func(txc *Context) error {
		if err := c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Live())

	_, err = sqlite.GetCollectionByID(ctx, store.DB(), "col1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateConflictSurfaces(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.ExecuteInTransaction(ctx, func(txc *Context) error {
		return c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1")))
	}))

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	err = c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1")))
	assert.ErrorIs(t, err, core.ErrConflict)
	require.NoError(t, c.Rollback(ctx, txc.ID()))
}

func TestSavepointScoping(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))))
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("before", "col1", "kept"))))

	spID, err := c.CreateSavepoint(ctx, txc.ID(), "mid")
	require.NoError(t, err)

	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("after", "col1", "undone"))))
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateChunk(testChunk("after", 0, "undone"))))
	require.Len(t, txc.Operations(), 4)

	require.NoError(t, c.RollbackToSavepoint(ctx, txc.ID(), spID))
	require.Len(t, txc.Operations(), 2)

	require.NoError(t, c.Commit(ctx, txc.ID()))

	before, err := sqlite.GetDocumentByID(ctx, store.DB(), "before")
	require.NoError(t, err)
	assert.Equal(t, "kept", before.Content)
	_, err = sqlite.GetDocumentByID(ctx, store.DB(), "after")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSavepointRollbackRevertsUpdateAfterMarker(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))))
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("a", "col1", "original"))))

	spID, err := c.CreateSavepoint(ctx, txc.ID(), "mid")
	require.NoError(t, err)

	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("b", "col1", "discarded"))))
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), UpdateDocument(testDocument("a", "col1", "rewritten"))))

	require.NoError(t, c.RollbackToSavepoint(ctx, txc.ID(), spID))
	require.NoError(t, c.Commit(ctx, txc.ID()))

	// The pre-savepoint creation of a survives, its post-savepoint update
	// does not, and b was never committed.
	a, err := sqlite.GetDocumentByID(ctx, store.DB(), "a")
	require.NoError(t, err)
	assert.Equal(t, "original", a.Content)
	_, err = sqlite.GetDocumentByID(ctx, store.DB(), "b")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSavepointMemoryOnlyBookkeeping(t *testing.T) {
	c, store := newTestCoordinator(t)
	// Pretend the store has no SAVEPOINT support: rollback must undo
	// post-marker operations through inverse replay alone.
	c.savepoints = NewSavepointManager(c.rollback, false, c.logger)
	ctx := context.Background()

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))))
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("a", "col1", "original"))))

	spID, err := c.CreateSavepoint(ctx, txc.ID(), "mid")
	require.NoError(t, err)
	require.False(t, txc.savepoints[spID].native)

	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("b", "col1", "discarded"))))
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), UpdateDocument(testDocument("a", "col1", "rewritten"))))

	require.NoError(t, c.RollbackToSavepoint(ctx, txc.ID(), spID))
	require.NoError(t, c.Commit(ctx, txc.ID()))

	a, err := sqlite.GetDocumentByID(ctx, store.DB(), "a")
	require.NoError(t, err)
	assert.Equal(t, "original", a.Content)
	_, err = sqlite.GetDocumentByID(ctx, store.DB(), "b")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = sqlite.GetCollectionByID(ctx, store.DB(), "col1")
	require.NoError(t, err)
}

func TestSavepointRollbackInvalidatesLaterSavepoints(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))))

	sp1, err := c.CreateSavepoint(ctx, txc.ID(), "first")
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("d1", "col1", "x"))))
	sp2, err := c.CreateSavepoint(ctx, txc.ID(), "second")
	require.NoError(t, err)

	require.NoError(t, c.RollbackToSavepoint(ctx, txc.ID(), sp1))
	assert.ErrorIs(t, c.RollbackToSavepoint(ctx, txc.ID(), sp2), ErrSavepointNotFound)

	require.NoError(t, c.Rollback(ctx, txc.ID()))
}

func TestReleaseSavepointKeepsOperations(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	txc, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1"))))
	spID, err := c.CreateSavepoint(ctx, txc.ID(), "mid")
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("d1", "col1", "x"))))

	require.NoError(t, c.ReleaseSavepoint(ctx, txc.ID(), spID))
	// Releasing twice is tolerated.
	require.NoError(t, c.ReleaseSavepoint(ctx, txc.ID(), spID))
	assert.ErrorIs(t, c.RollbackToSavepoint(ctx, txc.ID(), spID), ErrSavepointNotFound)

	require.NoError(t, c.Commit(ctx, txc.ID()))
	_, err = sqlite.GetDocumentByID(ctx, store.DB(), "d1")
	require.NoError(t, err)
}

func TestNestedCommitMergesIntoParent(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	parent, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, parent.ID(), CreateCollection(testCollection("col1"))))

	require.NoError(t, c.ExecuteInNestedTransaction(ctx, parent.ID(), func(child *Context) error {
		return c.ExecuteOperation(ctx, child.ID(), CreateDocument(testDocument("nested", "col1", "merged")))
	}))

	// The child's operation now belongs to the parent.
	require.Len(t, parent.Operations(), 2)
	require.NoError(t, c.Commit(ctx, parent.ID()))

	doc, err := sqlite.GetDocumentByID(ctx, store.DB(), "nested")
	require.NoError(t, err)
	assert.Equal(t, "merged", doc.Content)
}

func TestNestedRollbackLeavesParentIntact(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	parent, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ExecuteOperation(ctx, parent.ID(), CreateCollection(testCollection("col1"))))
	require.NoError(t, c.ExecuteOperation(ctx, parent.ID(), CreateDocument(testDocument("outer", "col1", "kept"))))

	boom := core.ErrInfrastructure
	err = c.ExecuteInNestedTransaction(ctx, parent.ID(), func(child *Context) error {
		if err := c.ExecuteOperation(ctx, child.ID(), CreateDocument(testDocument("inner", "col1", "undone"))); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Only the parent's own operations remain recorded.
	require.Len(t, parent.Operations(), 2)
	require.NoError(t, c.Commit(ctx, parent.ID()))

	_, err = sqlite.GetDocumentByID(ctx, store.DB(), "outer")
	require.NoError(t, err)
	_, err = sqlite.GetDocumentByID(ctx, store.DB(), "inner")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestNestedBeginRequiresLiveParent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.BeginNested(ctx, "no-such-tx")
	assert.ErrorIs(t, err, ErrTxNotFound)

	parent, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, parent.ID()))

	_, err = c.BeginNested(ctx, parent.ID())
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestConcurrentRootTransactions(t *testing.T) {
	c, store := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.ExecuteInTransaction(ctx, func(txc *Context) error {
		return c.ExecuteOperation(ctx, txc.ID(), CreateCollection(testCollection("col1")))
	}))

	// Two sequential roots over the same store; each maps to its own
	// connection and commits independently.
	require.NoError(t, c.ExecuteInTransaction(ctx, func(txc *Context) error {
		return c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("a", "col1", "one")))
	}))
	require.NoError(t, c.ExecuteInTransaction(ctx, func(txc *Context) error {
		return c.ExecuteOperation(ctx, txc.ID(), CreateDocument(testDocument("b", "col1", "two")))
	}))

	for _, id := range []string{"a", "b"} {
		_, err := sqlite.GetDocumentByID(ctx, store.DB(), id)
		require.NoError(t, err)
	}
}
