package core

import (
	"strings"
	"testing"
	"time"
)

func TestNewPointID(t *testing.T) {
	tests := []struct {
		name  string
		docID string
		ord   int
		text  string
	}{
		{name: "basic chunk", docID: "doc-1", ord: 0, text: "hello world"},
		{name: "empty text", docID: "doc-1", ord: 0, text: ""},
		{name: "high ordinal", docID: "doc-1", ord: 412, text: "tail chunk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := NewPointID(tt.docID, tt.ord, tt.text)
			id2 := NewPointID(tt.docID, tt.ord, tt.text)

			if id1 != id2 {
				t.Errorf("NewPointID() produced different IDs for same input: %s vs %s", id1, id2)
			}
			if len(id1) != 32 {
				t.Errorf("NewPointID() = %q, want 32 hex chars", id1)
			}
		})
	}
}

func TestNewPointID_Different(t *testing.T) {
	base := NewPointID("doc-1", 0, "content")

	if NewPointID("doc-2", 0, "content") == base {
		t.Error("NewPointID() produced same ID for different documents")
	}
	if NewPointID("doc-1", 1, "content") == base {
		t.Error("NewPointID() produced same ID for different ordinals")
	}
	if NewPointID("doc-1", 0, "other") == base {
		t.Error("NewPointID() produced same ID for different text")
	}
}

func TestNewTaskID(t *testing.T) {
	at := time.UnixMilli(1712345678901)
	id := NewTaskID("doc-1", at)

	if id != "sync_doc-1_1712345678901" {
		t.Errorf("NewTaskID() = %q, want sync_doc-1_1712345678901", id)
	}
	if !strings.HasPrefix(id, "sync_doc-1_") {
		t.Errorf("NewTaskID() = %q, missing sync_{docId}_ prefix", id)
	}
}
