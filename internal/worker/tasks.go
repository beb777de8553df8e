// Package worker runs the sweeps as asynq tasks, scheduled periodically and
// enqueueable on demand.
package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskLiquidations    = "sweep:liquidations"
	TaskStalePending    = "sweep:stale_pending"
	TaskLedgerVerify    = "ledger:verify"
	TaskSettingsRefresh = "settings:refresh"

	QueueSweeps = "sweeps"
)

// SweepPayload identifies who asked for a run.
type SweepPayload struct {
	RequestedBy string `json:"requestedBy"`
}

// KnownTask reports whether name is one of the sweep task types.
func KnownTask(name string) bool {
	switch name {
	case TaskLiquidations, TaskStalePending, TaskLedgerVerify, TaskSettingsRefresh:
		return true
	}
	return false
}

// NewSweepTask builds a task of one of the sweep types. Runs of the same type
// are deduplicated for the given window.
func NewSweepTask(taskType, requestedBy string, unique time.Duration) (*asynq.Task, error) {
	if !KnownTask(taskType) {
		return nil, fmt.Errorf("unknown sweep task %q", taskType)
	}
	payload, err := json.Marshal(SweepPayload{RequestedBy: requestedBy})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueSweeps), asynq.MaxRetry(0)}
	if unique > 0 {
		opts = append(opts, asynq.Unique(unique))
	}
	return asynq.NewTask(taskType, payload, opts...), nil
}
