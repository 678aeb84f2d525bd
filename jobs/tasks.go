package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/floorflow/internal/production"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit appends so a backlog elsewhere never delays them.
	QueueAudit = "audit"

	// TaskAuditAppend stores one article audit record.
	TaskAuditAppend = "audit:append"
	// TaskOrderFloorSync mirrors an article floor advance onto its order.
	TaskOrderFloorSync = "order:floor-sync"
	// TaskProgressReconcile rewrites cached progress that drifted from the ledgers.
	TaskProgressReconcile = "production:progress-reconcile"
	// TaskIdempotencyCleanup purges expired creation keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// NewAuditAppendTask constructs an Asynq task for one audit record. The record
// id doubles as task id so a replayed enqueue is rejected by the broker.
func NewAuditAppendTask(record production.AuditRecord) (*asynq.Task, error) {
	if record.ID == "" {
		return nil, fmt.Errorf("jobs: audit record without id")
	}
	body, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditAppend, body,
		asynq.Queue(QueueAudit),
		asynq.TaskID("audit:"+record.ID),
		asynq.MaxRetry(10),
	), nil
}

// NewOrderFloorSyncTask constructs an Asynq task mirroring a floor advance.
func NewOrderFloorSyncTask(evt production.FloorAdvancedEvent) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderFloorSync, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// ProgressReconcilePayload tunes one reconcile run.
type ProgressReconcilePayload struct {
	BatchSize int `json:"batch_size"`
}

// NewProgressReconcileTask constructs the periodic reconcile task.
func NewProgressReconcileTask(batchSize int) (*asynq.Task, error) {
	body, err := json.Marshal(ProgressReconcilePayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProgressReconcile, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the key cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
