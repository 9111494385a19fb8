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


package core

import "fmt"

// ValidateCollection validates a Collection according to domain rules.
//
// Validation rules:
//   - Id must not be empty
//   - Name must not be empty
func ValidateCollection(collection *Collection) error {
	if collection == nil {
		return fmt.Errorf("%w: collection is nil", ErrValidation)
	}
	if collection.Id == "" {
		return fmt.Errorf("%w: collection id cannot be empty", ErrValidation)
	}
	if collection.Name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrValidation)
	}
	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Id must not be empty
//   - CollectionId must not be empty
//
// NOT validated:
//   - Content (empty documents are legal and flow through the full pipeline)
//   - Synced/SyncedAt (populated by the state machine)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrValidation)
	}
	if doc.Id == "" {
		return fmt.Errorf("%w: document id cannot be empty", ErrValidation)
	}
	if doc.CollectionId == "" {
		return fmt.Errorf("%w: document collection id cannot be empty", ErrValidation)
	}
	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrValidation)
	}
	if chunk.PointId == "" {
		return fmt.Errorf("%w: chunk point id cannot be empty", ErrValidation)
	}
	if chunk.DocId == "" {
		return fmt.Errorf("%w: chunk doc id cannot be empty", ErrValidation)
	}
	if chunk.Ord < 0 {
		return fmt.Errorf("%w: chunk ordinal cannot be negative", ErrValidation)
	}
	return nil
}

// ValidateTaskStatus validates that a TaskStatus has a known value.
func ValidateTaskStatus(status TaskStatus) error {
	switch status {
	case TaskStatusNew, TaskStatusSplitOK, TaskStatusVectorized,
		TaskStatusSynced, TaskStatusFailed, TaskStatusRetrying:
		return nil
	}
	return fmt.Errorf("%w: unknown task status %q", ErrValidation, status)
}

// ValidateSyncEvent validates that a SyncEvent has a known value.
func ValidateSyncEvent(event SyncEvent) error {
	switch event {
	case EventChunksSaved, EventVectorsInserted, EventMetaUpdated,
		EventError, EventRetry:
		return nil
	}
	return fmt.Errorf("%w: unknown sync event %q", ErrValidation, event)
}
