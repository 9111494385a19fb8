package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// TaskRepository implements storage.TaskStore over a Store.
type TaskRepository struct {
	store *Store
}

var _ storage.TaskStore = (*TaskRepository)(nil)

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(store *Store) *TaskRepository {
	return &TaskRepository{store: store}
}

const taskColumns = `id, type, doc_id, collection_id, status, retries, context, created_at, updated_at`

// SaveTask inserts a new task.
func (r *TaskRepository) SaveTask(ctx context.Context, task *core.SyncTask) error {
	var exists int
	err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sync_tasks WHERE id = ?`, task.Id).Scan(&exists)
	if err != nil {
		return infra(err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: task %s", storage.ErrDuplicateKey, task.Id)
	}

	taskCtx, err := json.Marshal(task.Context)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	_, err = r.store.db.ExecContext(ctx,
		`INSERT INTO sync_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.Id, task.Type, task.DocId, task.CollectionId, string(task.Status),
		task.Retries, string(taskCtx), formatTime(task.CreatedAt), formatTime(task.UpdatedAt))
	return infra(err)
}

// GetTask retrieves a task by id.
func (r *TaskRepository) GetTask(ctx context.Context, id string) (*core.SyncTask, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM sync_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", core.ErrNotFound, id)
	}
	return task, infra(err)
}

// GetLatestTaskByDoc retrieves the most recently created task for a document.
func (r *TaskRepository) GetLatestTaskByDoc(ctx context.Context, docID string) (*core.SyncTask, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM sync_tasks WHERE doc_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, docID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no tasks for document %s", core.ErrNotFound, docID)
	}
	return task, infra(err)
}

// GetTasksByStatus retrieves all tasks with the given status.
func (r *TaskRepository) GetTasksByStatus(ctx context.Context, status core.TaskStatus) ([]*core.SyncTask, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM sync_tasks WHERE status = ? ORDER BY created_at`,
		string(status))
}

// GetTasksByType retrieves all tasks with the given type.
func (r *TaskRepository) GetTasksByType(ctx context.Context, taskType string) ([]*core.SyncTask, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM sync_tasks WHERE type = ? ORDER BY created_at`,
		taskType)
}

// GetAllTasks retrieves every task ordered by creation time.
func (r *TaskRepository) GetAllTasks(ctx context.Context) ([]*core.SyncTask, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM sync_tasks ORDER BY created_at`)
}

// UpdateTask overwrites an existing task.
func (r *TaskRepository) UpdateTask(ctx context.Context, task *core.SyncTask) error {
	taskCtx, err := json.Marshal(task.Context)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	res, err := r.store.db.ExecContext(ctx,
		`UPDATE sync_tasks SET type = ?, doc_id = ?, collection_id = ?, status = ?,
		 retries = ?, context = ?, created_at = ?, updated_at = ? WHERE id = ?`,
		task.Type, task.DocId, task.CollectionId, string(task.Status), task.Retries,
		string(taskCtx), formatTime(task.CreatedAt), formatTime(task.UpdatedAt), task.Id)
	if err != nil {
		return infra(err)
	}
	return requireAffected(res, "task", task.Id)
}

// DeleteTask removes a task and its transition history.
func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = ?`, id)
	if err != nil {
		return infra(err)
	}
	if err := requireAffected(res, "task", id); err != nil {
		return err
	}
	_, err = r.store.db.ExecContext(ctx, `DELETE FROM task_transitions WHERE task_id = ?`, id)
	return infra(err)
}

// CleanupExpiredTasks deletes terminal tasks last updated before the cutoff.
func (r *TaskRepository) CleanupExpiredTasks(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.store.db.ExecContext(ctx,
		`DELETE FROM sync_tasks WHERE status IN (?, ?) AND updated_at < ?`,
		string(core.TaskStatusSynced), string(core.TaskStatusFailed), formatTime(olderThan))
	if err != nil {
		return 0, infra(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, infra(err)
	}
	_, err = r.store.db.ExecContext(ctx,
		`DELETE FROM task_transitions WHERE task_id NOT IN (SELECT id FROM sync_tasks)`)
	return int(n), infra(err)
}

// AppendTransition appends one record to a task's transition history.
func (r *TaskRepository) AppendTransition(ctx context.Context, record *core.TransitionRecord) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO task_transitions (task_id, event, payload, timestamp) VALUES (?, ?, ?, ?)`,
		record.TaskId, string(record.Event), record.Payload, formatTime(record.Timestamp))
	return infra(err)
}

// GetTransitions retrieves a task's transition history in append order.
func (r *TaskRepository) GetTransitions(ctx context.Context, taskID string) ([]*core.TransitionRecord, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT task_id, event, payload, timestamp FROM task_transitions
		 WHERE task_id = ? ORDER BY seq`, taskID)
	if err != nil {
		return nil, infra(err)
	}
	defer rows.Close()

	var records []*core.TransitionRecord
	for rows.Next() {
		var rec core.TransitionRecord
		var event, timestamp string
		if err := rows.Scan(&rec.TaskId, &event, &rec.Payload, &timestamp); err != nil {
			return nil, infra(err)
		}
		rec.Event = core.SyncEvent(event)
		rec.Timestamp = parseTime(timestamp)
		records = append(records, &rec)
	}
	return records, infra(rows.Err())
}

// CountTasksByStatus returns the number of tasks per status.
func (r *TaskRepository) CountTasksByStatus(ctx context.Context) (map[core.TaskStatus]int, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM sync_tasks GROUP BY status`)
	if err != nil {
		return nil, infra(err)
	}
	defer rows.Close()

	counts := make(map[core.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, infra(err)
		}
		counts[core.TaskStatus(status)] = n
	}
	return counts, infra(rows.Err())
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*core.SyncTask, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, infra(err)
	}
	defer rows.Close()

	var tasks []*core.SyncTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, infra(err)
		}
		tasks = append(tasks, task)
	}
	return tasks, infra(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*core.SyncTask, error) {
	var task core.SyncTask
	var status, taskCtx, createdAt, updatedAt string
	err := row.Scan(&task.Id, &task.Type, &task.DocId, &task.CollectionId,
		&status, &task.Retries, &taskCtx, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	task.Status = core.TaskStatus(status)
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	if taskCtx != "" {
		if err := json.Unmarshal([]byte(taskCtx), &task.Context); err != nil {
			return nil, fmt.Errorf("%w: task context: %w", storage.ErrSerializationFailed, err)
		}
	}
	return &task, nil
}
