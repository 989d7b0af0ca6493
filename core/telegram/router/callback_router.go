package router

import (
	"log/slog"

	tg "github.com/maximcoj/teleblog/core/telegram"
	"github.com/maximcoj/teleblog/core/telegram/callbacks"
	tghelpers "github.com/maximcoj/teleblog/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute routes every inline button press through the registry. The
// press is acknowledged after the handler unless the handler answered it.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.Key(c)
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		h, ok := reg.GetCallback(key)
		if !ok {
			h = reg.CallbackNotFound()
			extras = append(extras, slog.String("reason", "not_found"))
		}
		err := handleWithSummary(c, name, h, extras...)
		if !tghelpers.Answered(c) {
			_ = c.Respond()
		}
		return err
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
