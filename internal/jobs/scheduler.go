package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/slotwatch/pkg/config"
)

// Scheduler enqueues periodic tasks.
type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	poll           config.PollConfig
	log            *slog.Logger
}

// NewScheduler builds a cron scheduler that enqueues poll cycles per cfg.Schedule.
func NewScheduler(redisOpt asynq.RedisConnOpt, poll config.PollConfig, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				if err != nil {
					log.Error("scheduler: enqueue failed", slog.Any("error", err))
					return
				}
				log.Debug("scheduler: enqueued task", slog.String("task_id", info.ID), slog.String("type", info.Type))
			},
		}),
		poll: poll,
		log:  log,
	}
}

func (s *scheduler) RegisterTasks() error {
	task, err := NewPollCycleTask("scheduler", s.poll.Queue, s.poll.Timeout)
	if err != nil {
		return err
	}

	entryID, err := s.asynqScheduler.Register(s.poll.Schedule, task)
	if err != nil {
		return fmt.Errorf("register poll cycle %q: %w", s.poll.Schedule, err)
	}

	s.log.InfoContext(context.Background(), "scheduler: registered poll cycle",
		slog.String("schedule", s.poll.Schedule),
		slog.String("entry_id", entryID),
	)

	return nil
}

func (s *scheduler) Run() {
	s.log.InfoContext(context.Background(), "scheduler: starting")

	go func() {
		if err := s.asynqScheduler.Run(); err != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", slog.Any("error", err))
		}
	}()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}
