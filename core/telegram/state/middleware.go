package state

import (
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/maximcoj/teleblog/core/telegram/helpers"
)

// StepKey is the tele.Context key holding the sender's step before the handler runs.
const StepKey = "fsm_step"

// WithStep records the sender's current step in the handler context so that
// request logging can report it.
func WithStep(mgr Manager) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if sender := c.Sender(); sender != nil {
				if s, err := mgr.Get(tghelpers.BuildContext(c), sender.ID); err == nil {
					c.Set(StepKey, string(s.Step))
				}
			}
			return next(c)
		}
	}
}
