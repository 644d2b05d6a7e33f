package reconcile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/slotwatch/internal/domain"
	errors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/internal/slots"
	"github.com/Proton-105/slotwatch/pkg/config"
)

type memoryStore struct {
	mu      sync.Mutex
	subs    []domain.Subscription
	listErr error
	userErr map[string]error
	queried []string
}

func (s *memoryStore) ListDistinctLocations(context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}

	seen := map[string]struct{}{}
	var out []string
	for _, sub := range s.subs {
		if _, ok := seen[sub.LocationID]; ok {
			continue
		}
		seen[sub.LocationID] = struct{}{}
		out = append(out, sub.LocationID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) ListUsersInterested(_ context.Context, locationID string, threshold time.Time) ([]domain.Interest, error) {
	s.mu.Lock()
	s.queried = append(s.queried, locationID)
	s.mu.Unlock()

	if err := s.userErr[locationID]; err != nil {
		return nil, err
	}

	var out []domain.Interest
	for _, sub := range s.subs {
		if sub.LocationID == locationID && sub.CurrentAppointmentDate.After(threshold) {
			out = append(out, domain.Interest{UserID: sub.UserID, CurrentAppointmentDate: sub.CurrentAppointmentDate})
		}
	}
	return out, nil
}

type providerMock struct {
	mock.Mock
}

func (m *providerMock) FetchActiveSlots(ctx context.Context, locationID string) ([]domain.Slot, error) {
	args := m.Called(ctx, locationID)
	slots, _ := args.Get(0).([]domain.Slot)
	return slots, args.Error(1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
	failFor  map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{messages: map[string][]string{}, failFor: map[string]bool{}}
}

func (n *recordingNotifier) Send(_ context.Context, userID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failFor[userID] {
		return errors.NewDeliveryError(userID, assert.AnError)
	}
	n.messages[userID] = append(n.messages[userID], message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	for _, msgs := range n.messages {
		total += len(msgs)
	}
	return total
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, h, minute int) time.Time {
	return time.Date(y, m, d, h, minute, 0, 0, time.UTC)
}

func slot(loc string, start time.Time, active bool) domain.Slot {
	return domain.Slot{LocationID: loc, Start: start, Active: active}
}

func TestRunCycle_ScenarioA_OnlyEarlierSlotIsSent(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}
	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return([]domain.Slot{
		slot("5020", at(2023, time.August, 20, 9, 0), true),
		slot("5020", at(2023, time.September, 1, 9, 0), true),
	}, nil)
	notifier := newRecordingNotifier()

	report, err := NewEngine(store, provider, notifier, 2, nil).RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, notifier.messages["U1"], 1)
	msg := notifier.messages["U1"][0]
	assert.Contains(t, msg, "Sunday, August 20 @ 09:00 am")
	assert.NotContains(t, msg, "September 01 @")
	assert.Contains(t, msg, "August 31, 2023")
	assert.Equal(t, 1, report.Notified)
	assert.False(t, report.Partial())
}

func TestRunCycle_ScenarioB_InactiveSlotsSendNothing(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}
	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return([]domain.Slot{
		slot("5020", at(2023, time.August, 20, 9, 0), false),
	}, nil)
	notifier := newRecordingNotifier()

	report, err := NewEngine(store, provider, notifier, 1, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, notifier.count())
	assert.Equal(t, 1, report.Empty)
	assert.Empty(t, store.queried)
}

func TestRunCycle_ScenarioC_OnlyQualifyingSubscriberNotified(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "early", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 18)},
		{UserID: "late", LocationID: "5020", CurrentAppointmentDate: day(2023, time.September, 30)},
	}}
	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return([]domain.Slot{
		slot("5020", at(2023, time.August, 18, 8, 0), true),
		slot("5020", at(2023, time.August, 25, 14, 15), true),
	}, nil)
	notifier := newRecordingNotifier()

	report, err := NewEngine(store, provider, notifier, 1, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count())
	require.Len(t, notifier.messages["late"], 1)
	assert.Contains(t, notifier.messages["late"][0], "Friday, August 25 @ 02:15 pm")
	assert.Empty(t, notifier.messages["early"])
	assert.Equal(t, 1, report.Notified)
}

func TestRunCycle_ScenarioD_EmptyLocationSkipsStoreQuery(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
		{UserID: "U2", LocationID: "5140", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}
	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return([]domain.Slot{}, nil)
	provider.On("FetchActiveSlots", mock.Anything, "5140").Return([]domain.Slot{
		slot("5140", at(2023, time.August, 1, 10, 0), true),
	}, nil)
	notifier := newRecordingNotifier()

	_, err := NewEngine(store, provider, notifier, 2, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"5140"}, store.queried)
	assert.Len(t, notifier.messages["U2"], 1)
	provider.AssertExpectations(t)
}

func TestRunCycle_NoLocations(t *testing.T) {
	provider := &providerMock{}
	notifier := newRecordingNotifier()

	report, err := NewEngine(&memoryStore{}, provider, notifier, 1, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Locations)
	provider.AssertNotCalled(t, "FetchActiveSlots", mock.Anything, mock.Anything)
}

func TestRunCycle_UpstreamFailureIsIsolated(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
		{UserID: "U2", LocationID: "5140", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}
	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return(nil, errors.NewUpstreamError("slot_api", assert.AnError))
	provider.On("FetchActiveSlots", mock.Anything, "5140").Return([]domain.Slot{
		slot("5140", at(2023, time.August, 1, 10, 0), true),
	}, nil)
	notifier := newRecordingNotifier()

	report, err := NewEngine(store, provider, notifier, 2, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, notifier.messages["U2"], 1)
}

func TestRunCycle_AllUpstreamFailuresFailTheCycle(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}
	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return(nil, errors.NewUpstreamError("slot_api", assert.AnError))

	_, err := NewEngine(store, provider, newRecordingNotifier(), 1, nil).RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrAllLocationsFailed)
}

func TestRunCycle_StoreErrorAbortsCycle(t *testing.T) {
	store := &memoryStore{listErr: errors.NewStoreError("list locations", assert.AnError)}

	_, err := NewEngine(store, &providerMock{}, newRecordingNotifier(), 1, nil).RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeStore))
}

func TestRunCycle_SubscriberQueryStoreErrorAbortsCycle(t *testing.T) {
	store := &memoryStore{
		subs: []domain.Subscription{
			{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
		},
		userErr: map[string]error{"5020": errors.NewStoreError("list users", assert.AnError)},
	}
	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return([]domain.Slot{
		slot("5020", at(2023, time.August, 1, 10, 0), true),
	}, nil)
	notifier := newRecordingNotifier()

	_, err := NewEngine(store, provider, notifier, 1, nil).RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeStore))
	assert.Zero(t, notifier.count())
}

func TestRunCycle_DeliveryFailureDoesNotStopOthers(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "blocked", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
		{UserID: "U2", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}
	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return([]domain.Slot{
		slot("5020", at(2023, time.August, 1, 10, 0), true),
	}, nil)
	notifier := newRecordingNotifier()
	notifier.failFor["blocked"] = true

	report, err := NewEngine(store, provider, notifier, 1, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeliveryFailures)
	assert.Equal(t, 1, report.Notified)
	assert.Len(t, notifier.messages["U2"], 1)
}

func TestRunCycle_ExpiredDeadlineAbandonsLocations(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
		{UserID: "U2", LocationID: "5140", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}
	provider := &providerMock{}
	notifier := newRecordingNotifier()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewEngine(store, provider, notifier, 1, nil).RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Partial())
	assert.Equal(t, 2, report.Abandoned)
	assert.Zero(t, notifier.count())
}

func TestRunCycle_DeadlineDuringFetchAbandonsOnlyPendingLocation(t *testing.T) {
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
		{UserID: "U2", LocationID: "5140", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &providerMock{}
	provider.On("FetchActiveSlots", mock.Anything, "5020").Return([]domain.Slot{
		slot("5020", at(2023, time.August, 1, 10, 0), true),
	}, nil)
	provider.On("FetchActiveSlots", mock.Anything, "5140").
		Run(func(args mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)
	notifier := newRecordingNotifier()

	report, err := NewEngine(store, provider, notifier, 1, nil).RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Partial())
	assert.Equal(t, 1, report.Abandoned)
	assert.Len(t, notifier.messages["U1"], 1)
	assert.Empty(t, notifier.messages["U2"])
}

func TestRunCycle_FailingLocationDoesNotSilenceOthersAcrossCycles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("locationId") == "1111" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"startTimestamp": "2023-08-20T09:00", "active": true}]`))
	}))
	defer srv.Close()

	client := slots.NewClient(config.SlotAPIConfig{BaseURL: srv.URL, PageSize: 3, Timeout: 2 * time.Second}, nil, slots.WithoutRetry())
	store := &memoryStore{subs: []domain.Subscription{
		{UserID: "U1", LocationID: "5020", CurrentAppointmentDate: day(2023, time.August, 31)},
		{UserID: "U2", LocationID: "1111", CurrentAppointmentDate: day(2023, time.August, 31)},
	}}
	engine := NewEngine(store, client, newRecordingNotifier(), 2, nil)

	for cycle := 1; cycle <= 3*errors.MinRequests; cycle++ {
		report, err := engine.RunCycle(context.Background())
		require.NoError(t, err, "cycle %d", cycle)
		assert.Equal(t, 1, report.Failed, "cycle %d", cycle)
		assert.Equal(t, 1, report.Notified, "cycle %d", cycle)
	}
	assert.Equal(t, errors.StateOpen, client.BreakerState("1111"))
}
