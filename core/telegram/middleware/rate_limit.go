package middleware

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/maximcoj/teleblog/core/logger"
	tghelpers "github.com/maximcoj/teleblog/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures the per-user limiter.
type RateLimitOptions struct {
	// Interval is the sustained spacing between updates of one user.
	Interval time.Duration
	// Burst is the number of updates allowed back to back. Values below 1 mean 1.
	Burst int
	// Exclude lists update kinds ("message", "callback") that bypass limiting.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// IdleTTL drops limiters of users that have been quiet this long.
	IdleTTL time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type userLimiters struct {
	mu        sync.Mutex
	byUser    map[int64]*userLimiter
	every     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
}

func (l *userLimiters) allow(userID int64, now time.Time) bool {
	return l.get(userID, now).AllowN(now, 1)
}

// reserve books the next token for userID and reports how long the caller
// must wait for it.
func (l *userLimiters) reserve(userID int64, now time.Time) time.Duration {
	r := l.get(userID, now).ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	return r.DelayFrom(now)
}

func (l *userLimiters) get(userID int64, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		for id, ul := range l.byUser {
			if now.Sub(ul.lastSeen) > l.idleTTL {
				delete(l.byUser, id)
			}
		}
		l.lastSweep = now
	}

	ul, ok := l.byUser[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.every, l.burst)}
		l.byUser[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// isContent reports whether m would become a post: a photo or text that is
// not a command.
func isContent(m *tele.Message) bool {
	if m == nil {
		return false
	}
	if m.Photo != nil {
		return true
	}
	return m.Text != "" && !strings.HasPrefix(m.Text, "/")
}

// RateLimitMiddleware limits updates per user. Commands and callbacks over
// the rate are dropped; content messages wait for their turn instead, so a
// photo album or a quick run of texts still produces every post.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.sleep == nil {
		opts.sleep = time.Sleep
	}
	limiters := &userLimiters{
		byUser:  make(map[int64]*userLimiter),
		every:   rate.Every(opts.Interval),
		burst:   opts.Burst,
		idleTTL: opts.IdleTTL,
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if isContent(c.Message()) {
				if wait := limiters.reserve(user.ID, opts.now()); wait > 0 {
					logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelDebug, "tg.rate_limit",
						slog.String("kind", kind),
						slog.String("status", "delayed"),
						slog.Int64("user_id", user.ID),
						slog.Duration("wait", logger.RoundMS(wait)),
					)
					opts.sleep(wait)
				}
				return next(c)
			}
			if limiters.allow(user.ID, opts.now()) {
				return next(c)
			}

			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("kind", kind),
				slog.String("status", "dropped"),
				slog.Int64("user_id", user.ID),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
