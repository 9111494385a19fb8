package ingestion

import "errors"

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrTaskStoreRequired is returned when a task store is not provided.
	ErrTaskStoreRequired = errors.New("task store required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrSplitterRequired is returned when a splitter is not provided.
	ErrSplitterRequired = errors.New("splitter required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCoordinatorRequired is returned when a transaction coordinator is
	// not provided.
	ErrCoordinatorRequired = errors.New("transaction coordinator required")

	// ErrInvalidTransition is returned when an event is not permitted from
	// the task's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrTaskNotRunnable is returned when ExecuteTask is invoked on a task
	// whose status does not admit pipeline execution.
	ErrTaskNotRunnable = errors.New("task not runnable")

	// ErrInvalidMaxAttempts is returned when RetryWithBackoff is called with
	// a non-positive attempt budget.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
