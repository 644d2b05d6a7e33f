package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/slotwatch/pkg/config"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	client := asynq.NewClient(redisOpt)

	return &manager{
		client: client,
		log:    log,
	}
}

// EnqueuePollCycle queues an immediate cycle outside the cron schedule.
func EnqueuePollCycle(ctx context.Context, m Manager, source string, poll config.PollConfig) (*asynq.TaskInfo, error) {
	task, err := NewPollCycleTask(source, poll.Queue, poll.Timeout)
	if err != nil {
		return nil, err
	}

	info, err := m.Enqueue(ctx, task)
	if err != nil {
		return nil, err
	}

	return info, nil
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if m.log != nil {
			m.log.ErrorContext(ctx, "jobs: enqueue failed", slog.String("type", task.Type()), slog.Any("error", err))
		}
		return nil, err
	}

	return info, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
