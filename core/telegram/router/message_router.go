package router

import (
	"strings"

	tg "github.com/maximcoj/teleblog/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// ContentOptions wires free-form messages.
type ContentOptions struct {
	// Content receives plain text and photos.
	Content tele.HandlerFunc
	// UnknownCommand receives slash-prefixed text no command matched.
	UnknownCommand tele.HandlerFunc
	// Unsupported receives other message kinds such as documents or stickers.
	Unsupported tele.HandlerFunc
}

// ContentRoutes builds the text, photo and fallback message handlers.
func ContentRoutes(reg *tg.Registry, opts ContentOptions) []tg.Route {
	text := func(c tele.Context) error {
		t := strings.TrimSpace(c.Text())
		if strings.HasPrefix(t, "/") {
			if reg != nil {
				if key, cmd, ok := reg.LookupCommand(commandWord(t)); ok {
					return handleWithSummary(c, "command."+normalizeHandlerName(key), cmd.Handler)
				}
			}
			if opts.UnknownCommand != nil {
				return handleWithSummary(c, "unknown_command", opts.UnknownCommand)
			}
		}
		if opts.Content == nil {
			return nil
		}
		return handleWithSummary(c, "content.text", opts.Content)
	}
	photo := func(c tele.Context) error {
		if opts.Content == nil {
			return nil
		}
		return handleWithSummary(c, "content.photo", opts.Content)
	}

	routes := []tg.Route{
		{Endpoint: tele.OnText, Handler: text},
		{Endpoint: tele.OnPhoto, Handler: photo},
	}
	if opts.Unsupported != nil {
		unsupported := func(c tele.Context) error {
			return handleWithSummary(c, "unsupported", opts.Unsupported)
		}
		for _, ep := range []string{tele.OnDocument, tele.OnSticker, tele.OnVideo, tele.OnVoice, tele.OnAnimation} {
			routes = append(routes, tg.Route{Endpoint: ep, Handler: unsupported})
		}
	}
	return routes
}

// commandWord extracts "/name" from "/name@bot args".
func commandWord(text string) string {
	word, _, _ := strings.Cut(text, " ")
	word, _, _ = strings.Cut(word, "@")
	return word
}
