package middleware

import (
	tghelpers "github.com/maximcoj/teleblog/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// MessageMetricsMiddleware resets the per-update reply counters.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set(tghelpers.KeyReplies, 0)
		c.Set(tghelpers.KeyKeyboard, false)
		return next(c)
	}
}

// GetCounters returns the number of replies issued for the update and whether
// any of them carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	n, _ := c.Get(tghelpers.KeyReplies).(int)
	kb, _ := c.Get(tghelpers.KeyKeyboard).(bool)
	return n, kb
}
