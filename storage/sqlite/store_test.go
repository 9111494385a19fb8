package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

func seedCollectionAndDoc(t *testing.T, store *Store, content string) (*core.Collection, *core.Document) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	col := &core.Collection{Id: "col-1", Name: "docs", CreatedAt: now, UpdatedAt: now}
	if err := InsertCollection(ctx, store.DB(), col); err != nil {
		t.Fatalf("Failed to insert collection: %v", err)
	}

	doc := &core.Document{
		Id: "doc-1", CollectionId: "col-1", Title: "Doc One",
		Content: content, CreatedAt: now, UpdatedAt: now,
	}
	if err := InsertDocument(ctx, store.DB(), doc); err != nil {
		t.Fatalf("Failed to insert document: %v", err)
	}
	return col, doc
}

func TestDocumentBasics(t *testing.T) {
	store, docs, _, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	seedCollectionAndDoc(t, store, "hello world")

	doc, err := docs.GetDoc(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if doc.Content != "hello world" {
		t.Fatalf("Expected 'hello world', got %q", doc.Content)
	}
	if doc.Synced {
		t.Fatal("Expected new document to be unsynced")
	}

	if _, err := docs.GetDoc(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestMarkDocAsSynced(t *testing.T) {
	store, docs, _, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	seedCollectionAndDoc(t, store, "content")

	if err := docs.MarkDocAsSynced(ctx, "doc-1"); err != nil {
		t.Fatalf("Failed to mark synced: %v", err)
	}

	doc, err := docs.GetDoc(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if !doc.Synced {
		t.Fatal("Expected document to be synced")
	}
	if doc.SyncedAt.IsZero() {
		t.Fatal("Expected SyncedAt to be set")
	}

	if err := docs.MarkDocAsSynced(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	store, docs, _, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	seedCollectionAndDoc(t, store, "one two three")

	chunks := []*core.Chunk{
		{PointId: core.NewPointID("doc-1", 0, "one"), DocId: "doc-1", Ord: 0, Text: "one"},
		{PointId: core.NewPointID("doc-1", 1, "two"), DocId: "doc-1", Ord: 1, Text: "two"},
		{PointId: core.NewPointID("doc-1", 2, "three"), DocId: "doc-1", Ord: 2, Text: "three"},
	}
	if err := docs.AddChunks(ctx, "doc-1", chunks); err != nil {
		t.Fatalf("Failed to add chunks: %v", err)
	}

	metas, err := docs.GetChunkMetasByDocId(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Failed to get chunk metas: %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(metas))
	}
	for i, meta := range metas {
		if meta.Ord != i {
			t.Fatalf("Expected chunks ordered by ordinal, got ord %d at %d", meta.Ord, i)
		}
	}

	texts, err := docs.GetChunkTexts(ctx, []core.PointID{chunks[2].PointId, chunks[0].PointId})
	if err != nil {
		t.Fatalf("Failed to get chunk texts: %v", err)
	}
	if texts[0] != "three" || texts[1] != "one" {
		t.Fatalf("Expected input order preserved, got %v", texts)
	}

	if _, err := docs.GetChunkTexts(ctx, []core.PointID{"missing"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestInsertConflicts(t *testing.T) {
	store, _, _, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	col, doc := seedCollectionAndDoc(t, store, "content")

	if err := InsertCollection(ctx, store.DB(), col); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("Expected ErrConflict for duplicate collection, got %v", err)
	}
	if err := InsertDocument(ctx, store.DB(), doc); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("Expected ErrConflict for duplicate document, got %v", err)
	}
}

func TestSupportsSavepoints(t *testing.T) {
	store, _, _, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if !store.SupportsSavepoints() {
		t.Fatal("Expected SQLite to support savepoints")
	}
}

func TestTaskPersistence(t *testing.T) {
	store, _, tasks, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	task := &core.SyncTask{
		Id:           core.NewTaskID("doc-1", now),
		Type:         core.TaskTypeDocSync,
		DocId:        "doc-1",
		CollectionId: "col-1",
		Status:       core.TaskStatusNew,
		Context:      core.TaskContext{Stage: core.TaskStatusNew},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := tasks.SaveTask(ctx, task); err != nil {
		t.Fatalf("Failed to save task: %v", err)
	}
	if err := tasks.SaveTask(ctx, task); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	got, err := tasks.GetTask(ctx, task.Id)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got.Status != core.TaskStatusNew {
		t.Fatalf("Expected NEW, got %s", got.Status)
	}

	task.Status = core.TaskStatusFailed
	task.Retries = 2
	task.Context.LastError = "embedding host unreachable"
	if err := tasks.UpdateTask(ctx, task); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}

	got, err = tasks.GetTask(ctx, task.Id)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got.Retries != 2 || got.Context.LastError == "" {
		t.Fatalf("Expected updated retries and context, got %+v", got)
	}

	byStatus, err := tasks.GetTasksByStatus(ctx, core.TaskStatusFailed)
	if err != nil {
		t.Fatalf("Failed to get tasks by status: %v", err)
	}
	if len(byStatus) != 1 {
		t.Fatalf("Expected 1 failed task, got %d", len(byStatus))
	}

	byType, err := tasks.GetTasksByType(ctx, core.TaskTypeDocSync)
	if err != nil {
		t.Fatalf("Failed to get tasks by type: %v", err)
	}
	if len(byType) != 1 {
		t.Fatalf("Expected 1 doc-sync task, got %d", len(byType))
	}
}

func TestLatestTaskByDoc(t *testing.T) {
	store, _, tasks, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		task := &core.SyncTask{
			Id: core.NewTaskID("doc-1", at), Type: core.TaskTypeDocSync,
			DocId: "doc-1", CollectionId: "col-1", Status: core.TaskStatusSynced,
			CreatedAt: at, UpdatedAt: at,
		}
		if err := tasks.SaveTask(ctx, task); err != nil {
			t.Fatalf("Failed to save task: %v", err)
		}
	}

	latest, err := tasks.GetLatestTaskByDoc(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Failed to get latest task: %v", err)
	}
	want := core.NewTaskID("doc-1", base.Add(2*time.Minute))
	if latest.Id != want {
		t.Fatalf("Expected %s, got %s", want, latest.Id)
	}

	if _, err := tasks.GetLatestTaskByDoc(ctx, "other"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransitionHistory(t *testing.T) {
	store, _, tasks, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	events := []core.SyncEvent{core.EventChunksSaved, core.EventVectorsInserted, core.EventMetaUpdated}
	for _, event := range events {
		rec := &core.TransitionRecord{TaskId: "task-1", Event: event, Timestamp: now}
		if err := tasks.AppendTransition(ctx, rec); err != nil {
			t.Fatalf("Failed to append transition: %v", err)
		}
	}

	history, err := tasks.GetTransitions(ctx, "task-1")
	if err != nil {
		t.Fatalf("Failed to get transitions: %v", err)
	}
	if len(history) != len(events) {
		t.Fatalf("Expected %d records, got %d", len(events), len(history))
	}
	for i, rec := range history {
		if rec.Event != events[i] {
			t.Fatalf("Expected append order preserved, got %s at %d", rec.Event, i)
		}
	}
}

func TestCleanupExpiredTasks(t *testing.T) {
	store, _, tasks, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()

	stale := &core.SyncTask{
		Id: core.NewTaskID("doc-old", old), Type: core.TaskTypeDocSync,
		DocId: "doc-old", CollectionId: "col-1", Status: core.TaskStatusSynced,
		CreatedAt: old, UpdatedAt: old,
	}
	running := &core.SyncTask{
		Id: core.NewTaskID("doc-run", old), Type: core.TaskTypeDocSync,
		DocId: "doc-run", CollectionId: "col-1", Status: core.TaskStatusSplitOK,
		CreatedAt: old, UpdatedAt: old,
	}
	recent := &core.SyncTask{
		Id: core.NewTaskID("doc-new", fresh), Type: core.TaskTypeDocSync,
		DocId: "doc-new", CollectionId: "col-1", Status: core.TaskStatusSynced,
		CreatedAt: fresh, UpdatedAt: fresh,
	}
	for _, task := range []*core.SyncTask{stale, running, recent} {
		if err := tasks.SaveTask(ctx, task); err != nil {
			t.Fatalf("Failed to save task: %v", err)
		}
	}

	removed, err := tasks.CleanupExpiredTasks(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Expected 1 removed task, got %d", removed)
	}

	// Non-terminal tasks are never garbage collected, however old.
	if _, err := tasks.GetTask(ctx, running.Id); err != nil {
		t.Fatalf("Expected running task to survive cleanup: %v", err)
	}
	if _, err := tasks.GetTask(ctx, stale.Id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected stale task to be removed, got %v", err)
	}
}
