package helpers

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/maximcoj/teleblog/core/logger"
	"github.com/maximcoj/teleblog/core/telegram/sender"
)

func newContext(t *testing.T) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b.NewContext(tele.Update{ID: 9, Message: &tele.Message{
		Sender: &tele.User{ID: 3},
		Chat:   &tele.Chat{ID: 4},
	}})
}

func TestBuildContextCaches(t *testing.T) {
	c := newContext(t)
	ctx := BuildContext(c)
	assert.Equal(t, logger.BuildRID(9, 4, 3), logger.RIDFrom(ctx))
	assert.EqualValues(t, 4, logger.ChatIDFrom(ctx))

	stored, ok := ContextFrom(c)
	require.True(t, ok)
	assert.Equal(t, ctx, stored)

	hctx := WithHandler(c, "command.start")
	assert.Equal(t, "command.start", logger.HandlerFrom(hctx))
	assert.Equal(t, "command.start", logger.HandlerFrom(BuildContext(c)))
}

func TestSubmitUsesQueue(t *testing.T) {
	c := newContext(t)
	q := sender.NewQueue(sender.Options{Workers: 1})
	SetQueue(q)
	t.Cleanup(func() { SetQueue(nil) })

	var ran atomic.Bool
	require.NoError(t, submit(c, "send.text", func() error { ran.Store(true); return nil }))
	q.Close()
	assert.True(t, ran.Load())

	// A closed queue degrades to a synchronous send.
	ran.Store(false)
	require.NoError(t, submit(c, "send.text", func() error { ran.Store(true); return nil }))
	assert.True(t, ran.Load())
}

func TestNoteReplyAndAnswered(t *testing.T) {
	c := newContext(t)
	noteReply(c, false)
	noteReply(c, true)
	n, _ := c.Get(KeyReplies).(int)
	assert.Equal(t, 2, n)
	assert.Equal(t, true, c.Get(KeyKeyboard))

	assert.False(t, Answered(c))
	assert.NoError(t, Respond(c, "ignored without callback"))
	assert.False(t, Answered(c))
}

func TestChatKeyPinsSendsToChat(t *testing.T) {
	c := newContext(t)
	assert.EqualValues(t, 4, chatKey(c))
}
