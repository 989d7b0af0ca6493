// Package bot binds the conversation dispatcher to Telegram.
package bot

import (
	"context"
	"strings"

	tg "github.com/maximcoj/teleblog/core/telegram"
	"github.com/maximcoj/teleblog/core/telegram/callbacks"
	"github.com/maximcoj/teleblog/core/telegram/commands"
	tghelpers "github.com/maximcoj/teleblog/core/telegram/helpers"
	"github.com/maximcoj/teleblog/core/telegram/keyboard"
	"github.com/maximcoj/teleblog/core/telegram/router"
	"github.com/maximcoj/teleblog/internal/dispatcher"

	tele "gopkg.in/telebot.v4"
)

const (
	msgSlowDown    = "You are sending messages too fast. Please wait a moment."
	msgUnsupported = "I can only publish text messages and photos."
)

// Dispatcher handles classified events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatcher.Event, r dispatcher.Responder) error
}

// Bot translates telebot updates into dispatcher events.
type Bot struct {
	d Dispatcher
}

func New(d Dispatcher) *Bot {
	return &Bot{d: d}
}

type commandSpec struct {
	name        string
	description string
	adminOnly   bool
	aliases     []string
}

var commandSpecs = []commandSpec{
	{name: dispatcher.CmdStart, description: "Introduction"},
	{name: dispatcher.CmdHelp, description: "List commands"},
	{name: dispatcher.CmdCreate, description: "Create your blog"},
	{name: dispatcher.CmdPosts, description: "List your posts"},
	{name: dispatcher.CmdNewPost, description: "Write a new post", aliases: []string{"/post"}},
	{name: dispatcher.CmdEdit, description: "Edit post N from the list"},
	{name: dispatcher.CmdDelete, description: "Delete post N from the list"},
	{name: dispatcher.CmdDeleteBlog, description: "Delete your blog and all posts"},
	{name: dispatcher.CmdStats, description: "Storage statistics", adminOnly: true},
}

// Register adds the bot commands and the deletion callback to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	for _, spec := range commandSpecs {
		reg.RegisterCommand("/"+spec.name, commands.Command{
			Handler:     b.onCommand(spec.name),
			Description: spec.description,
			AdminOnly:   spec.adminOnly,
			Aliases:     spec.aliases,
		})
	}
	return reg.RegisterCallback(dispatcher.ActionDeleteBlog, b.onCallback)
}

// Routes returns the telebot handlers for reg.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg)
	routes = append(routes, router.CallbackRoute(reg))
	return append(routes, router.ContentRoutes(reg, router.ContentOptions{
		Content:        b.onContent,
		UnknownCommand: b.onUnknownCommand,
		Unsupported:    b.onUnsupported,
	})...)
}

// OnLimited replies to rate-limited users.
func (b *Bot) OnLimited(c tele.Context) error {
	if c.Callback() != nil {
		return tghelpers.Respond(c, msgSlowDown)
	}
	return tghelpers.SendText(c, msgSlowDown, nil)
}

func (b *Bot) dispatch(c tele.Context, ev dispatcher.Event) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ev.UserID = sender.ID
	return b.d.Dispatch(tghelpers.BuildContext(c), ev, responder{c: c})
}

func (b *Bot) onCommand(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.dispatch(c, dispatcher.Event{
			Kind:    dispatcher.KindCommand,
			Command: name,
			Args:    commandArgs(c),
		})
	}
}

func (b *Bot) onUnknownCommand(c tele.Context) error {
	word, args, _ := strings.Cut(strings.TrimSpace(c.Text()), " ")
	word, _, _ = strings.Cut(strings.TrimPrefix(word, "/"), "@")
	return b.dispatch(c, dispatcher.Event{
		Kind:    dispatcher.KindCommand,
		Command: strings.ToLower(word),
		Args:    strings.TrimSpace(args),
	})
}

func (b *Bot) onContent(c tele.Context) error {
	ev := dispatcher.Event{Kind: dispatcher.KindContent, Text: c.Text()}
	if m := c.Message(); m != nil && m.Photo != nil {
		ev.ImageRef = m.Photo.FileID
	}
	return b.dispatch(c, ev)
}

func (b *Bot) onCallback(c tele.Context) error {
	return b.dispatch(c, dispatcher.Event{
		Kind:    dispatcher.KindCallback,
		Action:  callbacks.Key(c),
		Payload: callbacks.Payload(c),
	})
}

func (b *Bot) onUnsupported(c tele.Context) error {
	return tghelpers.SendText(c, msgUnsupported, nil)
}

// commandArgs returns the text after the command word.
func commandArgs(c tele.Context) string {
	m := c.Message()
	if m == nil {
		return ""
	}
	if m.Payload != "" {
		return strings.TrimSpace(m.Payload)
	}
	_, args, _ := strings.Cut(strings.TrimSpace(m.Text), " ")
	return strings.TrimSpace(args)
}

// responder replies through the update's chat.
type responder struct {
	c tele.Context
}

func (r responder) Send(_ context.Context, text string, rows ...[]keyboard.InlineBtn) error {
	return tghelpers.SendText(r.c, text, keyboard.InlineButtonsRows(rows...))
}

func (r responder) Edit(_ context.Context, text string) error {
	return tghelpers.EditText(r.c, text)
}

func (r responder) Answer(_ context.Context, text string) error {
	return tghelpers.Respond(r.c, text)
}
