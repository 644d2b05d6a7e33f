package state

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleaner_ClearsStaleDialogs(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	storage := NewRedisStorage(client, testLogger(), 24*time.Hour)

	require.NoError(t, storage.SetState(ctx, 1, &UserState{UserID: 1, CurrentState: StateAwaitingDate}))

	stale, err := json.Marshal(&UserState{
		UserID:       2,
		CurrentState: StateAwaitingLocation,
		UpdatedAt:    time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, client.Set(ctx, redisUserStateKey(2), stale, 0).Err())

	cleaner := NewCleaner(storage, testLogger(), time.Hour, time.Minute)
	assert.Equal(t, 1, cleaner.cleanup(ctx))

	_, err = storage.GetState(ctx, 2)
	assert.ErrorIs(t, err, ErrStateNotFound)

	fresh, err := storage.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingDate, fresh.CurrentState)
}
