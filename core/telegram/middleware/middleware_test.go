package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/maximcoj/teleblog/core/logger"
	tghelpers "github.com/maximcoj/teleblog/core/telegram/helpers"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b
}

func messageCtx(b *tele.Bot, updateID int, userID int64, text string) tele.Context {
	user := &tele.User{ID: userID}
	return b.NewContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			Sender: user,
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func callbackCtx(b *tele.Bot, updateID int, userID int64) tele.Context {
	return b.NewContext(tele.Update{
		ID: updateID,
		Callback: &tele.Callback{
			Sender: &tele.User{ID: userID},
			Data:   "\fdeleteblog|cancel",
		},
	})
}

func TestRateLimitPerUser(t *testing.T) {
	b := offlineBot(t)
	now := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Burst:     2,
		OnLimited: func(tele.Context) error { limited++; return nil },
		now:       func() time.Time { return now },
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })

	for i := 0; i < 3; i++ {
		require.NoError(t, h(messageCtx(b, i, 1, "/posts")))
	}
	assert.Equal(t, 2, handled, "burst of two")
	assert.Equal(t, 1, limited)

	require.NoError(t, h(messageCtx(b, 10, 2, "/posts")))
	assert.Equal(t, 3, handled, "other users unaffected")

	now = now.Add(time.Second)
	require.NoError(t, h(messageCtx(b, 11, 1, "/posts")))
	assert.Equal(t, 4, handled, "token refilled")
}

func TestRateLimitDelaysContent(t *testing.T) {
	b := offlineBot(t)
	now := time.Unix(1_700_000_000, 0)
	var waits []time.Duration
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Burst:     3,
		OnLimited: func(tele.Context) error { limited++; return nil },
		now:       func() time.Time { return now },
		sleep:     func(d time.Duration) { waits = append(waits, d) },
	})
	var texts []string
	h := mw(func(c tele.Context) error { texts = append(texts, c.Text()); return nil })

	for i, text := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, h(messageCtx(b, i, 1, text)))
	}
	photo := b.NewContext(tele.Update{ID: 9, Message: &tele.Message{
		Sender: &tele.User{ID: 1},
		Chat:   &tele.Chat{ID: 1, Type: tele.ChatPrivate},
		Photo:  &tele.Photo{File: tele.File{FileID: "p1"}},
	}})
	require.NoError(t, h(photo))

	assert.Equal(t, []string{"one", "two", "three", "four", "five", ""}, texts)
	assert.Zero(t, limited)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, waits)

	require.NoError(t, h(messageCtx(b, 20, 1, "/posts")))
	assert.Equal(t, 1, limited, "commands are still dropped while content waits")
}

func TestRateLimitExclude(t *testing.T) {
	b := offlineBot(t)
	now := time.Unix(1_700_000_000, 0)
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Minute,
		Exclude:  map[string]struct{}{"callback": {}},
		now:      func() time.Time { return now },
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })
	for i := 0; i < 5; i++ {
		require.NoError(t, h(callbackCtx(b, i, 1)))
	}
	assert.Equal(t, 5, handled)
}

func TestRateLimitDisabled(t *testing.T) {
	b := offlineBot(t)
	handled := 0
	h := RateLimitMiddleware(RateLimitOptions{})(func(tele.Context) error { handled++; return nil })
	for i := 0; i < 5; i++ {
		require.NoError(t, h(messageCtx(b, i, 1, "hi")))
	}
	assert.Equal(t, 5, handled)
}

func TestRateLimitSweepsIdleUsers(t *testing.T) {
	l := &userLimiters{byUser: map[int64]*userLimiter{}, every: 1, burst: 1, idleTTL: time.Minute}
	start := time.Unix(1_700_000_000, 0)
	l.allow(1, start)
	l.allow(2, start.Add(90*time.Second))
	l.allow(3, start.Add(2*time.Minute))
	_, kept := l.byUser[2]
	_, dropped := l.byUser[1]
	assert.True(t, kept)
	assert.False(t, dropped)
}

func TestRecoverMiddleware(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(messageCtx(b, 1, 1, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoggerMiddlewareStoresContext(t *testing.T) {
	b := offlineBot(t)
	c := messageCtx(b, 77, 5, "/start")
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		ctx, ok := tghelpers.ContextFrom(c)
		require.True(t, ok)
		rid = logger.RIDFrom(ctx)
		assert.Equal(t, 77, logger.UpdateIDFrom(ctx))
		assert.EqualValues(t, 5, logger.UserIDFrom(ctx))
		return nil
	})
	require.NoError(t, h(c))
	assert.Equal(t, logger.BuildRID(77, 5, 5), rid)
	assert.Equal(t, rid, c.Get("rid"))
}

func TestMessageMetrics(t *testing.T) {
	b := offlineBot(t)
	c := messageCtx(b, 1, 1, "x")
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		c.Set(tghelpers.KeyReplies, 2)
		c.Set(tghelpers.KeyKeyboard, true)
		return nil
	})
	require.NoError(t, h(c))
	n, kb := GetCounters(c)
	assert.Equal(t, 2, n)
	assert.True(t, kb)
}
