package slots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/slotwatch/internal/domain"
	errors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.SlotAPIConfig{BaseURL: srv.URL, PageSize: 3, Timeout: 2 * time.Second}
	return NewClient(cfg, nil, append([]Option{WithoutRetry()}, opts...)...)
}

func TestFetchActiveSlots_BuildsQueryAndFiltersInactive(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slots", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "soonest", q.Get("orderBy"))
		assert.Equal(t, "3", q.Get("limit"))
		assert.Equal(t, "5020", q.Get("locationId"))
		assert.Equal(t, "1", q.Get("minimum"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"locationId": 5020, "startTimestamp": "2023-08-15T09:00", "active": true, "duration": 10},
			{"locationId": 5020, "startTimestamp": "2023-08-20T10:30", "active": false, "duration": 10},
			{"locationId": 5020, "startTimestamp": "2023-10-01T11:45:00", "active": true, "duration": 10}
		]`))
	})

	slots, err := client.FetchActiveSlots(context.Background(), "5020")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, domain.Slot{LocationID: "5020", Start: time.Date(2023, time.August, 15, 9, 0, 0, 0, time.UTC), Active: true}, slots[0])
	assert.Equal(t, time.Date(2023, time.October, 1, 11, 45, 0, 0, time.UTC), slots[1].Start)
}

func TestFetchActiveSlots_EmptyBodies(t *testing.T) {
	for _, body := range []string{"", "null", "[]", "  \n"} {
		body := body
		t.Run(body, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			slots, err := client.FetchActiveSlots(context.Background(), "5020")
			require.NoError(t, err)
			assert.Empty(t, slots)
		})
	}
}

func TestFetchActiveSlots_UpstreamFailures(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"startTimestamp":`))
			},
		},
		{
			name: "malformed timestamp",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"startTimestamp":"soon","active":true}]`))
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)

			slots, err := client.FetchActiveSlots(context.Background(), "5020")
			require.Error(t, err)
			assert.Nil(t, slots)
			assert.True(t, errors.HasCode(err, errors.CodeUpstream))
		})
	}
}

func TestFetchActiveSlots_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchActiveSlots(ctx, "5020")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUpstream))
}

func TestFetchActiveSlots_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"startTimestamp":"2023-08-15T09:00","active":true}]`))
	}))
	defer srv.Close()

	client := NewClient(config.SlotAPIConfig{BaseURL: srv.URL, PageSize: 3}, nil)

	slots, err := client.FetchActiveSlots(context.Background(), "5020")
	require.NoError(t, err)
	assert.Len(t, slots, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchActiveSlots_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(config.SlotAPIConfig{BaseURL: srv.URL, PageSize: 3}, nil)

	_, err := client.FetchActiveSlots(context.Background(), "5020")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseTimestamp(t *testing.T) {
	got, err := parseTimestamp("2023-08-15T09:00:00-07:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.August, 15, 9, 0, 0, 0, time.UTC), got)

	_, err = parseTimestamp("2023-08-15")
	assert.Error(t, err)
}

func TestFetchActiveSlots_BreakerIsPerLocation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("locationId") == "1111" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"startTimestamp": "2023-08-20T09:00", "active": true}]`))
	})

	for i := 0; i < errors.MinRequests; i++ {
		_, err := client.FetchActiveSlots(context.Background(), "1111")
		require.Error(t, err)
	}
	assert.Equal(t, errors.StateOpen, client.BreakerState("1111"))

	_, err := client.FetchActiveSlots(context.Background(), "1111")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)

	slots, err := client.FetchActiveSlots(context.Background(), "5020")
	require.NoError(t, err)
	assert.Len(t, slots, 1)
	assert.Equal(t, errors.StateClosed, client.BreakerState("5020"))
}
