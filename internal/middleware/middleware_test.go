package middleware

import (
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/idempotency"
	"github.com/Proton-105/slotwatch/internal/ratelimit"
	"github.com/Proton-105/slotwatch/pkg/config"
)

type fakeContext struct {
	telebot.Context

	sender   *telebot.User
	text     string
	message  *telebot.Message
	callback *telebot.Callback
	sent     []string
}

func (f *fakeContext) Sender() *telebot.User { return f.sender }
func (f *fakeContext) Text() string { return f.text }
func (f *fakeContext) Message() *telebot.Message { return f.message }
func (f *fakeContext) Callback() *telebot.Callback { return f.callback }
func (f *fakeContext) Get(string) interface{} { return nil }

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	text, _ := what.(string)
	f.sent = append(f.sent, text)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotency_SkipsRedeliveredUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := idempotency.NewManager(idempotency.NewRedisStore(client, discardLogger()), time.Second, discardLogger())

	calls := 0
	h := Idempotency(manager, discardLogger())(func(telebot.Context) error {
		calls++
		return nil
	})

	update := &fakeContext{
		sender:  &telebot.User{ID: 1},
		text:    "5020",
		message: &telebot.Message{ID: 77, Chat: &telebot.Chat{ID: 1}},
	}

	require.NoError(t, h(update))
	require.NoError(t, h(update))
	assert.Equal(t, 1, calls)

	next := &fakeContext{
		sender:  &telebot.User{ID: 1},
		message: &telebot.Message{ID: 78, Chat: &telebot.Chat{ID: 1}},
	}
	require.NoError(t, h(next))
	assert.Equal(t, 2, calls)
}

func TestExtractIdempotencyKey(t *testing.T) {
	assert.Equal(t, "update:cb:abc", extractIdempotencyKey(&fakeContext{callback: &telebot.Callback{ID: "abc"}}))
	assert.Equal(t, "update:msg:5:9", extractIdempotencyKey(&fakeContext{message: &telebot.Message{ID: 9, Chat: &telebot.Chat{ID: 5}}}))
	assert.Empty(t, extractIdempotencyKey(&fakeContext{}))
}

func TestRateLimit_RejectsCommandOverLimit(t *testing.T) {
	catalog, err := i18n.Default()
	require.NoError(t, err)

	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:  true,
		PerUser:  config.RateLimitRule{Limit: 100, Window: "1m"},
		Commands: config.RateLimitCommands{Subscribe: config.RateLimitRule{Limit: 2, Window: "1m"}},
	})
	mw := NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(discardLogger()), rules, catalog, discardLogger())

	calls := 0
	h := mw.Handle(func(telebot.Context) error {
		calls++
		return nil
	})

	var last *fakeContext
	for i := 0; i < 3; i++ {
		last = &fakeContext{sender: &telebot.User{ID: 5}, text: "/subscribe"}
		require.NoError(t, h(last))
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"Too many requests. Try again later."}, last.sent)

	require.NoError(t, h(&fakeContext{sender: &telebot.User{ID: 5}, text: "/status"}))
	assert.Equal(t, 3, calls)
}

func TestRateLimit_WhitelistAndDisabled(t *testing.T) {
	strict := config.RateLimitConfig{
		Enabled:   true,
		PerUser:   config.RateLimitRule{Limit: 1, Window: "1m"},
		Whitelist: []int64{9},
	}

	calls := 0
	next := func(telebot.Context) error {
		calls++
		return nil
	}

	h := NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(nil), ratelimit.NewRules(strict), nil, discardLogger()).Handle(next)
	for i := 0; i < 3; i++ {
		require.NoError(t, h(&fakeContext{sender: &telebot.User{ID: 9}, text: "hi"}))
	}
	assert.Equal(t, 3, calls)

	strict.Enabled = false
	h = NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(nil), ratelimit.NewRules(strict), nil, discardLogger()).Handle(next)
	for i := 0; i < 3; i++ {
		require.NoError(t, h(&fakeContext{sender: &telebot.User{ID: 1}, text: "hi"}))
	}
	assert.Equal(t, 6, calls)
}

func TestUpdateLabel(t *testing.T) {
	assert.Equal(t, "/subscribe", updateLabel(&fakeContext{text: "/subscribe@bot"}))
	assert.Equal(t, "text", updateLabel(&fakeContext{text: "2023-08-31"}))
	assert.Equal(t, "callback:cancel", updateLabel(&fakeContext{callback: &telebot.Callback{Data: "cancel"}}))
}
