package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidateCollection(t *testing.T) {
	tests := []struct {
		name       string
		collection *Collection
		wantErr    error
	}{
		{
			name:       "valid collection",
			collection: &Collection{Id: "col-1", Name: "docs"},
			wantErr:    nil,
		},
		{
			name:       "nil collection",
			collection: nil,
			wantErr:    ErrValidation,
		},
		{
			name:       "missing id",
			collection: &Collection{Name: "docs"},
			wantErr:    ErrValidation,
		},
		{
			name:       "missing name",
			collection: &Collection{Id: "col-1"},
			wantErr:    ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollection(tt.collection)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateCollection() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCollection() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name:    "valid document",
			doc:     &Document{Id: "doc-1", CollectionId: "col-1", Content: "text"},
			wantErr: nil,
		},
		{
			name:    "empty content is valid",
			doc:     &Document{Id: "doc-1", CollectionId: "col-1", Content: ""},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrValidation,
		},
		{
			name:    "missing id",
			doc:     &Document{CollectionId: "col-1"},
			wantErr: ErrValidation,
		},
		{
			name:    "missing collection id",
			doc:     &Document{Id: "doc-1"},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{
			name:    "valid chunk",
			chunk:   &Chunk{PointId: NewPointID("doc-1", 0, "text"), DocId: "doc-1", Ord: 0, Text: "text"},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrValidation,
		},
		{
			name:    "missing point id",
			chunk:   &Chunk{DocId: "doc-1"},
			wantErr: ErrValidation,
		},
		{
			name:    "negative ordinal",
			chunk:   &Chunk{PointId: "abc", DocId: "doc-1", Ord: -1},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTaskStatus(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusNew, TaskStatusSplitOK, TaskStatusVectorized,
		TaskStatusSynced, TaskStatusFailed, TaskStatusRetrying,
	}
	for _, status := range valid {
		if err := ValidateTaskStatus(status); err != nil {
			t.Errorf("ValidateTaskStatus(%s) error = %v, want nil", status, err)
		}
	}

	if err := ValidateTaskStatus("BOGUS"); !errors.Is(err, ErrValidation) {
		t.Errorf("ValidateTaskStatus(BOGUS) error = %v, want ErrValidation", err)
	}
}

func TestValidateSyncEvent(t *testing.T) {
	valid := []SyncEvent{
		EventChunksSaved, EventVectorsInserted, EventMetaUpdated,
		EventError, EventRetry,
	}
	for _, event := range valid {
		if err := ValidateSyncEvent(event); err != nil {
			t.Errorf("ValidateSyncEvent(%s) error = %v, want nil", event, err)
		}
	}

	if err := ValidateSyncEvent(""); !errors.Is(err, ErrValidation) {
		t.Errorf("ValidateSyncEvent(\"\") error = %v, want ErrValidation", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("%w: vector index unreachable", ErrInfrastructure)) {
		t.Error("IsRetryable() = false for wrapped infrastructure error")
	}
	for _, err := range []error{ErrValidation, ErrNotFound, ErrConflict} {
		if IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = true, want false", err)
		}
	}
}
