package core

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// PointID is the address of a chunk in the vector index.
// It is derived deterministically from the chunk's origin so that
// re-splitting identical content yields identical ids.
type PointID string

// NewPointID generates a deterministic PointID from a document id, the
// chunk's ordinal within the document, and the chunk text, using BLAKE2b
// hashing. Identical inputs always produce the same id.
func NewPointID(docID string, ord int, text string) PointID {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	h.Write([]byte(docID))
	h.Write([]byte(strconv.Itoa(ord)))
	h.Write([]byte(text))
	return PointID(hex.EncodeToString(h.Sum(nil)))
}

// Collection groups documents that share a vector index.
type Collection struct {
	Id        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a unit of ingestable text belonging to a collection.
type Document struct {
	Id           string
	CollectionId string
	Title        string
	Content      string
	Synced       bool      // true once chunks and vectors are fully written
	SyncedAt     time.Time // zero until the first successful sync
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is a contiguous slice of a document's text, addressed by a PointID
// and eventually embedded as a vector.
type Chunk struct {
	PointId   PointID
	DocId     string
	Ord       int // position of the chunk within the document
	Text      string
	CreatedAt time.Time
}

// VectorPoint is an embedded chunk as stored in the vector index.
type VectorPoint struct {
	Id     PointID
	DocId  string
	Ord    int
	Vector []float32
}

// SimilarityMatch is a vector index hit from a similarity search.
type SimilarityMatch struct {
	PointId PointID
	DocId   string
	Score   float32
}

// TaskStatus identifies a sync task's position in the ingestion pipeline.
type TaskStatus string

const (
	// TaskStatusNew means the task was created and no stage has run.
	TaskStatusNew TaskStatus = "NEW"
	// TaskStatusSplitOK means chunks are persisted in the relational store.
	TaskStatusSplitOK TaskStatus = "SPLIT_OK"
	// TaskStatusVectorized means embeddings are upserted into the vector index.
	TaskStatusVectorized TaskStatus = "VECTORIZED"
	// TaskStatusSynced is the successful terminal status.
	TaskStatusSynced TaskStatus = "SYNCED"
	// TaskStatusFailed means the last stage raised an error.
	TaskStatusFailed TaskStatus = "FAILED"
	// TaskStatusRetrying means the task is eligible to re-run after a failure.
	TaskStatusRetrying TaskStatus = "RETRYING"
)

// SyncEvent drives a sync task from one status to the next.
type SyncEvent string

const (
	// EventChunksSaved fires after chunks are persisted.
	EventChunksSaved SyncEvent = "CHUNKS_SAVED"
	// EventVectorsInserted fires after vectors are upserted.
	EventVectorsInserted SyncEvent = "VECTORS_INSERTED"
	// EventMetaUpdated fires after the document is marked synced.
	EventMetaUpdated SyncEvent = "META_UPDATED"
	// EventError fires when any stage fails.
	EventError SyncEvent = "ERROR"
	// EventRetry requests another pipeline attempt after a failure.
	EventRetry SyncEvent = "RETRY"
)

// MaxTaskRetries bounds the number of RETRY attempts per task.
// A task that exhausts the budget stays FAILED until manual intervention.
const MaxTaskRetries = 3

// TaskTypeDocSync is the task type for document ingestion runs.
const TaskTypeDocSync = "DOC_SYNC"

// SyncTask tracks one document's progress through the ingestion pipeline.
// One logical task exists per document per ingestion attempt; a new task id
// is minted if re-ingestion is requested after SYNCED.
type SyncTask struct {
	Id           string
	Type         string // currently always TaskTypeDocSync
	DocId        string
	CollectionId string
	Status       TaskStatus
	Retries      int
	Context      TaskContext
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskContext is the stage-scoped payload carried by a task between stages.
// It is what lets a RETRYING task resume at the right place.
type TaskContext struct {
	Stage      TaskStatus // last successfully completed stage
	ChunkCount int
	PointIds   []PointID
	LastError  string
}

// NewTaskID mints a sync task id for a document.
// Format: sync_{docId}_{creationEpochMillis}.
func NewTaskID(docID string, at time.Time) string {
	return fmt.Sprintf("sync_%s_%d", docID, at.UnixMilli())
}

// TransitionRecord is one append-only entry in a task's transition history.
// Records are never mutated after creation.
type TransitionRecord struct {
	TaskId    string
	Event     SyncEvent
	Payload   string // serialized stage payload, may be empty
	Timestamp time.Time
}

// TaskMetrics summarizes task outcomes across the whole store.
type TaskMetrics struct {
	TotalTasks   int
	TasksByState map[TaskStatus]int
	SuccessRate  float64 // SYNCED / total
	FailureRate  float64 // FAILED / total
}
