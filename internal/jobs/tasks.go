package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypePollCycle runs one reconciliation cycle.
const TaskTypePollCycle = "poll:cycle"

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// PollCyclePayload is echoed back in the cycle response.
type PollCyclePayload struct {
	Source    string    `json:"source"`
	Scheduled time.Time `json:"scheduled,omitempty"`
}

// NewPollCycleTask builds a poll-cycle task. Cycles are never retried by the
// queue: the next scheduled tick is the retry.
func NewPollCycleTask(source, queue string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(PollCyclePayload{Source: source, Scheduled: time.Now().UTC()})
	if err != nil {
		return nil, err
	}

	if queue == "" {
		queue = QueueDefault
	}

	opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}

	return asynq.NewTask(TaskTypePollCycle, payload, opts...), nil
}
