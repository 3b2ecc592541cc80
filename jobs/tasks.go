package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRevenueWarmup pre-populates the revenue aggregate caches.
	TaskRevenueWarmup = "revenue:warmup"
)

// RevenueWarmupPayload selects which timeframes to warm. An empty list warms
// every supported timeframe.
type RevenueWarmupPayload struct {
	Timeframes []string `json:"timeframes,omitempty"`
}

// NewRevenueWarmupTask constructs an Asynq task.
func NewRevenueWarmupTask(timeframes ...string) (*asynq.Task, error) {
	data, err := json.Marshal(RevenueWarmupPayload{Timeframes: timeframes})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRevenueWarmup, data), nil
}
