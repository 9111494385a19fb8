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


package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// DocumentRepository implements storage.DocumentStore over a Store.
type DocumentRepository struct {
	store *Store
}

var _ storage.DocumentStore = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(store *Store) *DocumentRepository {
	return &DocumentRepository{store: store}
}

// GetCollection retrieves a collection by id.
func (r *DocumentRepository) GetCollection(ctx context.Context, id string) (*core.Collection, error) {
	c, err := GetCollectionByID(ctx, r.store.db, id)
	return c, infra(err)
}

// GetDoc retrieves a document by id.
func (r *DocumentRepository) GetDoc(ctx context.Context, docID string) (*core.Document, error) {
	d, err := GetDocumentByID(ctx, r.store.db, docID)
	return d, infra(err)
}

// MarkDocAsSynced sets the document's synced flag and SyncedAt timestamp.
func (r *DocumentRepository) MarkDocAsSynced(ctx context.Context, docID string) error {
	now := time.Now().UTC()
	res, err := r.store.db.ExecContext(ctx,
		`UPDATE documents SET synced = 1, synced_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(now), formatTime(now), docID)
	if err != nil {
		return infra(err)
	}
	return requireAffected(res, "document", docID)
}

// AddChunks persists chunks for a document in a single transaction.
func (r *DocumentRepository) AddChunks(ctx context.Context, docID string, chunks []*core.Chunk) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return infra(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		if chunk.DocId == "" {
			chunk.DocId = docID
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		if err := InsertChunk(ctx, tx, chunk); err != nil {
			return infra(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return infra(err)
	}
	return nil
}

// GetChunkMetasByDocId retrieves a document's chunks ordered by ordinal.
func (r *DocumentRepository) GetChunkMetasByDocId(ctx context.Context, docID string) ([]*core.Chunk, error) {
	chunks, err := GetChunksByDocID(ctx, r.store.db, docID)
	return chunks, infra(err)
}

// GetChunkTexts retrieves chunk texts in the same order as the input ids.
func (r *DocumentRepository) GetChunkTexts(ctx context.Context, pointIDs []core.PointID) ([]string, error) {
	texts := make([]string, len(pointIDs))
	for i, id := range pointIDs {
		chunk, err := GetChunkByPointID(ctx, r.store.db, id)
		if err != nil {
			return nil, infra(err)
		}
		texts[i] = chunk.Text
	}
	return texts, nil
}

// Close is a no-op; the underlying Store owns the database handle.
func (r *DocumentRepository) Close() error {
	return nil
}

// infra tags unexpected store failures as infrastructure errors so the task
// retry budget applies to them. Taxonomy errors pass through untouched.
func infra(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrConflict) ||
		errors.Is(err, core.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrInfrastructure, err)
}
