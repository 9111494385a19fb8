package ingestion

import (
	"context"

	"github.com/poiesic/docsync/core"
)

// GetSyncJobCountByStatus returns the number of tasks in the given status.
func (sm *StateMachine) GetSyncJobCountByStatus(ctx context.Context, status core.TaskStatus) (int, error) {
	if err := core.ValidateTaskStatus(status); err != nil {
		return 0, err
	}
	counts, err := sm.tasks.CountTasksByStatus(ctx)
	if err != nil {
		return 0, err
	}
	return counts[status], nil
}

// GetTaskMetrics summarizes task outcomes across the store. Rates are
// counts over the total, so they only reach 1.0 once every task has
// settled in the corresponding terminal state.
func (sm *StateMachine) GetTaskMetrics(ctx context.Context) (*core.TaskMetrics, error) {
	counts, err := sm.tasks.CountTasksByStatus(ctx)
	if err != nil {
		return nil, err
	}

	metrics := &core.TaskMetrics{TasksByState: counts}
	for _, n := range counts {
		metrics.TotalTasks += n
	}
	if metrics.TotalTasks > 0 {
		metrics.SuccessRate = float64(counts[core.TaskStatusSynced]) / float64(metrics.TotalTasks)
		metrics.FailureRate = float64(counts[core.TaskStatusFailed]) / float64(metrics.TotalTasks)
	}
	return metrics, nil
}
