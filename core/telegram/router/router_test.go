package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/maximcoj/teleblog/core/telegram"
	"github.com/maximcoj/teleblog/core/telegram/commands"
	tghelpers "github.com/maximcoj/teleblog/core/telegram/helpers"
)

// fakeAPI records Bot API method names.
type fakeAPI struct {
	mu      sync.Mutex
	methods []string
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func newBot(t *testing.T) (*tele.Bot, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.methods = append(api.methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		api.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(srv.Close)
	b, err := tele.NewBot(tele.Settings{Offline: true, URL: srv.URL, Token: "1:test"})
	require.NoError(t, err)
	return b, api
}

func textCtx(b *tele.Bot, text string) tele.Context {
	return b.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: 7},
		Chat:   &tele.Chat{ID: 7},
		Text:   text,
	}})
}

func routeFor(routes []tg.Route, endpoint string) tele.HandlerFunc {
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	return nil
}

func TestContentRoutes(t *testing.T) {
	b, _ := newBot(t)
	var got []string
	record := func(name string) tele.HandlerFunc {
		return func(c tele.Context) error { got = append(got, name+":"+c.Text()); return nil }
	}

	reg := tg.NewRegistry()
	reg.RegisterCommand("/newpost", commands.Command{Handler: record("newpost"), Description: "d", Aliases: []string{"/post"}})
	routes := ContentRoutes(reg, ContentOptions{
		Content:        record("content"),
		UnknownCommand: record("unknown"),
		Unsupported:    record("unsupported"),
	})

	text := routeFor(routes, tele.OnText)
	require.NotNil(t, text)
	require.NoError(t, text(textCtx(b, "hello")))
	require.NoError(t, text(textCtx(b, "/post@teleblog_bot")))
	require.NoError(t, text(textCtx(b, "/nope")))
	require.NoError(t, routeFor(routes, tele.OnPhoto)(textCtx(b, "")))
	require.NoError(t, routeFor(routes, tele.OnDocument)(textCtx(b, "")))

	assert.Equal(t, []string{
		"content:hello",
		"newpost:/post@teleblog_bot",
		"unknown:/nope",
		"content:",
		"unsupported:",
	}, got)
}

func TestCommandRoutesIncludeAliases(t *testing.T) {
	reg := tg.NewRegistry()
	reg.RegisterCommand("/newpost", commands.Command{Handler: func(tele.Context) error { return nil }, Description: "d", Aliases: []string{"/post"}})
	routes := CommandRoutes(reg)
	var endpoints []string
	for _, r := range routes {
		endpoints = append(endpoints, r.Endpoint.(string))
	}
	assert.ElementsMatch(t, []string{"/newpost", "/post"}, endpoints)
}

func callbackCtx(b *tele.Bot, data string) tele.Context {
	return b.NewContext(tele.Update{ID: 2, Callback: &tele.Callback{
		ID:     "cb1",
		Sender: &tele.User{ID: 7},
		Data:   data,
	}})
}

func TestCallbackRouteAnswersOnce(t *testing.T) {
	b, api := newBot(t)
	reg := tg.NewRegistry()
	var payload string
	require.NoError(t, reg.RegisterCallback("deleteblog", func(c tele.Context) error {
		payload = c.Callback().Data
		return tghelpers.Respond(c, "done")
	}))
	require.NoError(t, reg.RegisterCallback("silent", func(tele.Context) error { return nil }))
	route := CallbackRoute(reg)

	require.NoError(t, route.Handler(callbackCtx(b, "\fdeleteblog|confirm")))
	assert.Equal(t, "\fdeleteblog|confirm", payload)
	assert.Equal(t, []string{"answerCallbackQuery"}, api.calls())

	require.NoError(t, route.Handler(callbackCtx(b, "\fsilent")))
	assert.Len(t, api.calls(), 2, "unanswered press acknowledged by the router")

	require.NoError(t, route.Handler(callbackCtx(b, "\funknown|x")))
	assert.Len(t, api.calls(), 3, "not-found handler answers exactly once")
}

func TestCommandWord(t *testing.T) {
	assert.Equal(t, "/edit", commandWord("/edit 2"))
	assert.Equal(t, "/edit", commandWord("/edit@bot 2"))
}
