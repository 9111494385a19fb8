package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docsync/core"
)

// Row-level entity helpers. Every function takes a Querier so the same
// statement runs either on the pooled handle or on a transaction's
// dedicated connection. Not-found and duplicate-key conditions map onto
// the core error taxonomy here; everything else surfaces untouched.

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetCollectionByID retrieves a collection row.
func GetCollectionByID(ctx context.Context, q Querier, id string) (*core.Collection, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM collections WHERE id = ?`, id)

	var c core.Collection
	var createdAt, updatedAt string
	if err := row.Scan(&c.Id, &c.Name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: collection %s", core.ErrNotFound, id)
		}
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// InsertCollection inserts a collection row.
// Returns core.ErrConflict if the id is already taken.
func InsertCollection(ctx context.Context, q Querier, c *core.Collection) error {
	if _, err := GetCollectionByID(ctx, q, c.Id); err == nil {
		return fmt.Errorf("%w: collection %s already exists", core.ErrConflict, c.Id)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO collections (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.Id, c.Name, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	return err
}

// UpdateCollection overwrites a collection row.
// Returns core.ErrNotFound if the row doesn't exist.
func UpdateCollection(ctx context.Context, q Querier, c *core.Collection) error {
	res, err := q.ExecContext(ctx,
		`UPDATE collections SET name = ?, created_at = ?, updated_at = ? WHERE id = ?`,
		c.Name, formatTime(c.CreatedAt), formatTime(c.UpdatedAt), c.Id)
	if err != nil {
		return err
	}
	return requireAffected(res, "collection", c.Id)
}

// DeleteCollection removes a collection row.
// Returns core.ErrNotFound if the row doesn't exist.
func DeleteCollection(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "collection", id)
}

// GetDocumentByID retrieves a document row.
func GetDocumentByID(ctx context.Context, q Querier, id string) (*core.Document, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, collection_id, title, content, synced, synced_at, created_at, updated_at
		 FROM documents WHERE id = ?`, id)

	var d core.Document
	var synced int
	var syncedAt, createdAt, updatedAt string
	err := row.Scan(&d.Id, &d.CollectionId, &d.Title, &d.Content, &synced,
		&syncedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, id)
		}
		return nil, err
	}
	d.Synced = synced != 0
	d.SyncedAt = parseTime(syncedAt)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// InsertDocument inserts a document row.
// Returns core.ErrConflict if the id is already taken.
func InsertDocument(ctx context.Context, q Querier, d *core.Document) error {
	if _, err := GetDocumentByID(ctx, q, d.Id); err == nil {
		return fmt.Errorf("%w: document %s already exists", core.ErrConflict, d.Id)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO documents (id, collection_id, title, content, synced, synced_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Id, d.CollectionId, d.Title, d.Content, boolToInt(d.Synced),
		formatTime(d.SyncedAt), formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	return err
}

// UpdateDocument overwrites a document row.
// Returns core.ErrNotFound if the row doesn't exist.
func UpdateDocument(ctx context.Context, q Querier, d *core.Document) error {
	res, err := q.ExecContext(ctx,
		`UPDATE documents SET collection_id = ?, title = ?, content = ?, synced = ?,
		 synced_at = ?, created_at = ?, updated_at = ? WHERE id = ?`,
		d.CollectionId, d.Title, d.Content, boolToInt(d.Synced),
		formatTime(d.SyncedAt), formatTime(d.CreatedAt), formatTime(d.UpdatedAt), d.Id)
	if err != nil {
		return err
	}
	return requireAffected(res, "document", d.Id)
}

// DeleteDocument removes a document row.
// Returns core.ErrNotFound if the row doesn't exist.
func DeleteDocument(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "document", id)
}

// GetDocumentIDsByCollection lists the ids of a collection's documents,
// ordered by creation time.
func GetDocumentIDsByCollection(ctx context.Context, q Querier, collectionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM documents WHERE collection_id = ? ORDER BY created_at, id`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunkByPointID retrieves a chunk row.
func GetChunkByPointID(ctx context.Context, q Querier, pointID core.PointID) (*core.Chunk, error) {
	row := q.QueryRowContext(ctx,
		`SELECT point_id, doc_id, ord, text, created_at FROM chunks WHERE point_id = ?`,
		string(pointID))

	var c core.Chunk
	var pid, createdAt string
	if err := row.Scan(&pid, &c.DocId, &c.Ord, &c.Text, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: chunk %s", core.ErrNotFound, pointID)
		}
		return nil, err
	}
	c.PointId = core.PointID(pid)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// InsertChunk inserts a chunk row.
// Returns core.ErrConflict if the point id is already taken.
func InsertChunk(ctx context.Context, q Querier, c *core.Chunk) error {
	if _, err := GetChunkByPointID(ctx, q, c.PointId); err == nil {
		return fmt.Errorf("%w: chunk %s already exists", core.ErrConflict, c.PointId)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO chunks (point_id, doc_id, ord, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(c.PointId), c.DocId, c.Ord, c.Text, formatTime(c.CreatedAt))
	return err
}

// UpdateChunk overwrites a chunk row.
// Returns core.ErrNotFound if the row doesn't exist.
func UpdateChunk(ctx context.Context, q Querier, c *core.Chunk) error {
	res, err := q.ExecContext(ctx,
		`UPDATE chunks SET doc_id = ?, ord = ?, text = ?, created_at = ? WHERE point_id = ?`,
		c.DocId, c.Ord, c.Text, formatTime(c.CreatedAt), string(c.PointId))
	if err != nil {
		return err
	}
	return requireAffected(res, "chunk", string(c.PointId))
}

// DeleteChunk removes a chunk row.
// Returns core.ErrNotFound if the row doesn't exist.
func DeleteChunk(ctx context.Context, q Querier, pointID core.PointID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE point_id = ?`, string(pointID))
	if err != nil {
		return err
	}
	return requireAffected(res, "chunk", string(pointID))
}

// GetChunksByDocID retrieves a document's chunks ordered by ordinal.
func GetChunksByDocID(ctx context.Context, q Querier, docID string) ([]*core.Chunk, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT point_id, doc_id, ord, text, created_at FROM chunks WHERE doc_id = ? ORDER BY ord`,
		docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*core.Chunk
	for rows.Next() {
		var c core.Chunk
		var pid, createdAt string
		if err := rows.Scan(&pid, &c.DocId, &c.Ord, &c.Text, &createdAt); err != nil {
			return nil, err
		}
		c.PointId = core.PointID(pid)
		c.CreatedAt = parseTime(createdAt)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", core.ErrNotFound, kind, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
