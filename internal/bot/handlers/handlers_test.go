package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/bot/handlers"
	"github.com/Proton-105/slotwatch/internal/bot/keyboard"
	"github.com/Proton-105/slotwatch/internal/domain"
	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/repository"
	"github.com/Proton-105/slotwatch/internal/state"
	"github.com/Proton-105/slotwatch/internal/subscription"
)

// fakeContext implements the parts of telebot.Context the handlers use.
type fakeContext struct {
	telebot.Context

	sender   *telebot.User
	text     string
	callback *telebot.Callback

	sent      []string
	markups   []*telebot.ReplyMarkup
	responded bool
	store     map[string]interface{}
}

func newContext(userID int64, text string) *fakeContext {
	return &fakeContext{
		sender: &telebot.User{ID: userID, FirstName: "Ada", LanguageCode: "en"},
		text:   text,
		store:  map[string]interface{}{},
	}
}

func (f *fakeContext) Sender() *telebot.User { return f.sender }
func (f *fakeContext) Text() string { return f.text }
func (f *fakeContext) Callback() *telebot.Callback { return f.callback }
func (f *fakeContext) Get(key string) interface{} { return f.store[key] }

func (f *fakeContext) Set(key string, val interface{}) { f.store[key] = val }

func (f *fakeContext) Respond(...*telebot.CallbackResponse) error {
	f.responded = true
	return nil
}

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	text, _ := what.(string)
	f.sent = append(f.sent, text)
	for _, opt := range opts {
		if markup, ok := opt.(*telebot.ReplyMarkup); ok {
			f.markups = append(f.markups, markup)
		}
	}
	return nil
}

func (f *fakeContext) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type memoryStore struct {
	mu   sync.Mutex
	subs map[string]domain.Subscription
}

func (s *memoryStore) UpsertSubscription(_ context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.UserID] = sub
	return nil
}

func (s *memoryStore) GetSubscription(_ context.Context, userID string) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, repository.ErrSubscriptionNotFound
	}
	return &sub, nil
}

type fixture struct {
	fsm     state.StateMachine
	store   *memoryStore
	service *subscription.Service
	catalog *i18n.Manager
	kb      *keyboard.Builder
	log     *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog, err := i18n.Default()
	require.NoError(t, err)

	store := &memoryStore{subs: map[string]domain.Subscription{}}

	return &fixture{
		fsm:     state.NewStateMachine(state.NewRedisStorage(client, log, time.Hour), log, client),
		store:   store,
		service: subscription.NewService(store, nil, log),
		catalog: catalog,
		kb:      keyboard.NewBuilder(log),
		log:     log,
	}
}

func TestSubscribeDialog_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dialog := handlers.NewSubscribe(f.fsm, f.service, f.catalog, f.kb, f.log)

	c := newContext(42, "/subscribe")
	require.NoError(t, dialog.Command(c))
	assert.Contains(t, c.last(), "location ID")

	st, err := f.fsm.GetState(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, state.StateAwaitingLocation, st.CurrentState)

	c = newContext(42, " 5020 ")
	require.NoError(t, dialog.Location(c))
	assert.Contains(t, c.last(), "appointment date")

	st, err = f.fsm.GetState(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, state.StateAwaitingDate, st.CurrentState)
	location, ok := st.StringValue(state.ContextLocationID)
	require.True(t, ok)
	assert.Equal(t, "5020", location)

	c = newContext(42, "August 31, 2023")
	require.NoError(t, dialog.Date(c))
	assert.Equal(t, "Saved. I will tell you about slots at location 5020 earlier than 2023-08-31.", c.last())

	_, err = f.fsm.GetState(ctx, 42)
	assert.ErrorIs(t, err, state.ErrStateNotFound)

	stored, err := f.store.GetSubscription(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "5020", stored.LocationID)
	assert.Equal(t, time.Date(2023, time.August, 31, 0, 0, 0, 0, time.UTC), stored.CurrentAppointmentDate)
}

func TestSubscribeDialog_InvalidInputKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dialog := handlers.NewSubscribe(f.fsm, f.service, f.catalog, f.kb, f.log)

	require.NoError(t, dialog.Command(newContext(7, "/subscribe")))

	c := newContext(7, "downtown")
	require.NoError(t, dialog.Location(c))
	assert.Contains(t, c.last(), "Location IDs are numbers")

	st, err := f.fsm.GetState(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, state.StateAwaitingLocation, st.CurrentState)

	require.NoError(t, dialog.Location(newContext(7, "5020")))

	c = newContext(7, "2023-02-30")
	require.NoError(t, dialog.Date(c))
	assert.Contains(t, c.last(), "ISO-8601")

	st, err = f.fsm.GetState(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, state.StateAwaitingDate, st.CurrentState)

	_, err = f.store.GetSubscription(ctx, "7")
	assert.ErrorIs(t, err, repository.ErrSubscriptionNotFound)
}

func TestSubscribeDialog_ResubscribeOverwrites(t *testing.T) {
	f := newFixture(t)
	dialog := handlers.NewSubscribe(f.fsm, f.service, f.catalog, f.kb, f.log)

	for _, input := range [][2]string{{"5020", "2023-08-31"}, {"5140", "09/15/2023"}} {
		require.NoError(t, dialog.Command(newContext(3, "/subscribe")))
		require.NoError(t, dialog.Location(newContext(3, input[0])))
		require.NoError(t, dialog.Date(newContext(3, input[1])))
	}

	stored, err := f.store.GetSubscription(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "5140", stored.LocationID)
	assert.Equal(t, time.Date(2023, time.September, 15, 0, 0, 0, 0, time.UTC), stored.CurrentAppointmentDate)
}

func TestStatusHandler(t *testing.T) {
	f := newFixture(t)
	status := handlers.NewStatusHandler(f.service, f.catalog, f.log)

	c := newContext(5, "/status")
	require.NoError(t, status(c))
	assert.Contains(t, c.last(), "not watching")

	require.NoError(t, f.store.UpsertSubscription(context.Background(), domain.Subscription{
		UserID:                 "5",
		LocationID:             "5020",
		CurrentAppointmentDate: time.Date(2023, time.August, 31, 0, 0, 0, 0, time.UTC),
	}))

	c = newContext(5, "/status")
	require.NoError(t, status(c))
	assert.Equal(t, "Watching location 5020 for slots earlier than 2023-08-31.", c.last())
}

func TestCancelHandler_ClearsDialog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dialog := handlers.NewSubscribe(f.fsm, f.service, f.catalog, f.kb, f.log)
	cancel := handlers.NewCancelHandler(f.fsm, f.catalog, f.kb, f.log)

	require.NoError(t, dialog.Command(newContext(9, "/subscribe")))

	c := newContext(9, "")
	c.callback = &telebot.Callback{Data: keyboard.CallbackCancel}
	require.NoError(t, cancel(c))

	assert.True(t, c.responded)
	assert.Equal(t, "Cancelled.", c.last())
	require.Len(t, c.markups, 1)
	assert.NotEmpty(t, c.markups[0].ReplyKeyboard)

	_, err := f.fsm.GetState(ctx, 9)
	assert.ErrorIs(t, err, state.ErrStateNotFound)

	// Cancelling with nothing in progress is harmless.
	require.NoError(t, cancel(newContext(9, "/cancel")))
}

func TestStartHandler_GreetsAndInitialisesState(t *testing.T) {
	f := newFixture(t)
	start := handlers.NewStartHandler(f.fsm, f.catalog, f.kb, f.log)

	c := newContext(11, "/start")
	require.NoError(t, start(c))
	assert.Contains(t, c.last(), "Hello, Ada!")

	st, err := f.fsm.GetState(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, state.StateIdle, st.CurrentState)
}

func TestRequestContext(t *testing.T) {
	c := newContext(1, "")
	assert.Equal(t, context.Background(), handlers.RequestContext(c))

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	handlers.WithRequestContext(c, ctx)
	assert.Equal(t, "v", handlers.RequestContext(c).Value(key{}))

	assert.Equal(t, "42", handlers.SubscriberID(&telebot.User{ID: 42}))
	assert.Empty(t, handlers.SubscriberID(nil))
}
