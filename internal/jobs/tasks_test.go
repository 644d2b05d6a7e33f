package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPollCycleTask(t *testing.T) {
	task, err := NewPollCycleTask("scheduler", "", 4*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TaskTypePollCycle, task.Type())

	var payload PollCyclePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "scheduler", payload.Source)
	assert.WithinDuration(t, time.Now(), payload.Scheduled, time.Minute)
}
