package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/maximcoj/teleblog/core/logger"
	"github.com/maximcoj/teleblog/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Context keys holding the reply counters of the current update.
const (
	KeyReplies  = "replies"
	KeyKeyboard = "kb"
	keyAnswered = "cb_answered"
)

var outbound atomic.Pointer[sender.Queue]

// SetQueue routes helper sends through q. A nil q makes sends synchronous.
func SetQueue(q *sender.Queue) {
	outbound.Store(q)
}

func noteReply(c tele.Context, keyboard bool) {
	n, _ := c.Get(KeyReplies).(int)
	c.Set(KeyReplies, n+1)
	if keyboard {
		c.Set(KeyKeyboard, true)
	}
}

// chatKey pins all sends of one chat to the same sender worker.
func chatKey(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// submit hands run to the outbound queue. When the queue is full or closed
// the send runs inline on the handler goroutine.
func submit(c tele.Context, action string, run func() error) error {
	q := outbound.Load()
	if q == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := q.Submit(ctx, chatKey(c), action, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			logger.Err(err),
		)
		return run()
	}
	return err
}

// SendText sends plain text with an optional markup to the current chat.
func SendText(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ReplyMarkup: markup}
	noteReply(c, markup != nil)
	return submit(c, "send.text", func() error {
		return c.Send(text, opts)
	})
}

// EditText replaces the text of the message carrying the pressed button.
// Editing without a markup drops the inline keyboard.
func EditText(c tele.Context, text string) error {
	noteReply(c, false)
	return submit(c, "edit.text", func() error {
		return c.Edit(text)
	})
}

// Respond answers the current callback query. It runs synchronously because
// Telegram expects the answer shortly after the press.
func Respond(c tele.Context, text string) error {
	if c.Callback() == nil {
		return nil
	}
	c.Set(keyAnswered, true)
	if text == "" {
		return c.Respond()
	}
	return c.Respond(&tele.CallbackResponse{Text: text})
}

// Answered reports whether Respond already ran for the current update.
func Answered(c tele.Context) bool {
	ok, _ := c.Get(keyAnswered).(bool)
	return ok
}
