// Package callbacks decodes inline button payloads.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse splits callback data produced by tele.ReplyMarkup.Data, which is
// encoded as "\f<unique>|<payload>". A non-empty cb.Unique wins over the
// encoded key.
func Parse(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	// Telebot strips the encoding when a handler is bound to the unique
	// directly and leaves only the payload in Data.
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	k, p, _ := strings.Cut(strings.TrimPrefix(cb.Data, "\f"), "|")
	return strings.TrimSpace(k), p
}

// Key returns the callback key of the current update.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}

// Payload returns the callback payload of the current update.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}
