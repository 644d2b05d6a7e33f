package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/slotwatch/internal/jobs"
	"github.com/Proton-105/slotwatch/internal/trigger"
	"github.com/Proton-105/slotwatch/pkg/logger"
)

type invokerFunc func(ctx context.Context, event json.RawMessage) trigger.Response

func (f invokerFunc) Handle(ctx context.Context, event json.RawMessage) trigger.Response {
	return f(ctx, event)
}

func TestPollCycleHandler_PassesPayloadAsEvent(t *testing.T) {
	task, err := jobs.NewPollCycleTask("scheduler", jobs.QueueDefault, time.Minute)
	require.NoError(t, err)

	var (
		got    json.RawMessage
		corrID string
	)
	h := NewPollCycleHandler(invokerFunc(func(ctx context.Context, event json.RawMessage) trigger.Response {
		got = event
		corrID = logger.CorrelationIDFromContext(ctx)
		return trigger.Response{StatusCode: http.StatusOK, Body: trigger.Body{Message: "ok", Input: event}}
	}), nil)

	require.NoError(t, h.ProcessTask(context.Background(), task))

	var payload jobs.PollCyclePayload
	require.NoError(t, json.Unmarshal(got, &payload))
	assert.Equal(t, "scheduler", payload.Source)
	assert.NotEmpty(t, corrID)
}

func TestPollCycleHandler_FailureSkipsRetry(t *testing.T) {
	task := asynq.NewTask(jobs.TaskTypePollCycle, []byte(`{}`))
	h := NewPollCycleHandler(invokerFunc(func(context.Context, json.RawMessage) trigger.Response {
		return trigger.Response{StatusCode: http.StatusInternalServerError, Body: trigger.Body{Message: "failed"}}
	}), nil)

	err := h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestPollCycleHandler_InvalidPayload(t *testing.T) {
	task := asynq.NewTask(jobs.TaskTypePollCycle, []byte(`{not json`))
	h := NewPollCycleHandler(invokerFunc(func(context.Context, json.RawMessage) trigger.Response {
		t.Fatal("invoker must not run")
		return trigger.Response{}
	}), nil)

	assert.ErrorIs(t, h.ProcessTask(context.Background(), task), asynq.SkipRetry)
}
