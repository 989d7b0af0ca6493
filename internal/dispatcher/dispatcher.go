// Package dispatcher turns classified chat events into conversation
// transitions and repository calls.
//
// It knows nothing about the chat transport: events come in as Event values
// and replies go out through a Responder.
package dispatcher

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/maximcoj/teleblog/core/logger"
	"github.com/maximcoj/teleblog/core/telegram/keyboard"
	"github.com/maximcoj/teleblog/core/telegram/state"
	"github.com/maximcoj/teleblog/internal/blog"
)

// Kind classifies an inbound event.
type Kind int

const (
	KindCommand Kind = iota + 1
	KindContent
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindContent:
		return "content"
	case KindCallback:
		return "callback"
	}
	return "unknown"
}

// Command names without the leading slash.
const (
	CmdStart      = "start"
	CmdHelp       = "help"
	CmdCreate     = "create"
	CmdPosts      = "posts"
	CmdNewPost    = "newpost"
	CmdEdit       = "edit"
	CmdDelete     = "delete"
	CmdDeleteBlog = "deleteblog"
	CmdStats      = "stats"
)

// Blog deletion confirmation callback.
const (
	ActionDeleteBlog = "deleteblog"
	PayloadConfirm   = "confirm"
	PayloadCancel    = "cancel"
)

// Event is one inbound user interaction.
type Event struct {
	UserID int64
	Kind   Kind

	// Command and Args are set for KindCommand.
	Command string
	Args    string

	// Text and ImageRef are set for KindContent. Either may be empty.
	Text     string
	ImageRef string

	// Action and Payload are set for KindCallback.
	Action  string
	Payload string
}

// Responder delivers replies back over the chat transport.
type Responder interface {
	Send(ctx context.Context, text string, rows ...[]keyboard.InlineBtn) error
	// Edit replaces the message that carried the pressed button.
	Edit(ctx context.Context, text string) error
	// Answer acknowledges a button press with an optional toast.
	Answer(ctx context.Context, text string) error
}

// Repository is the subset of blog.Repository the dispatcher needs.
type Repository interface {
	FindBlogByUser(ctx context.Context, userID int64) (*blog.Blog, error)
	SubdomainAvailable(ctx context.Context, subdomain string) (bool, error)
	CreateBlog(ctx context.Context, in blog.NewBlog) (*blog.Blog, error)
	DeleteBlog(ctx context.Context, blogID string) (int64, error)
	ListPostsForBlog(ctx context.Context, blogID string, opts blog.ListOptions) ([]blog.Post, error)
	FindPost(ctx context.Context, id string) (*blog.Post, error)
	CreatePost(ctx context.Context, in blog.NewPost) (*blog.Post, error)
	UpdatePostContent(ctx context.Context, postID, content, imageFileID string) (*blog.Post, error)
	DeletePost(ctx context.Context, postID string) error
	Stats(ctx context.Context) (blog.Stats, error)
	Backend() string
}

// Dispatcher routes events for all users.
type Dispatcher struct {
	repo     Repository
	sessions state.Manager
	locks    *keyedLock
	adminID  int64
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithAdmin enables admin-only commands for userID.
func WithAdmin(userID int64) Option {
	return func(d *Dispatcher) { d.adminID = userID }
}

func New(repo Repository, sessions state.Manager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:     repo,
		sessions: sessions,
		locks:    newKeyedLock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one event. Events of the same user are processed one at a
// time; the returned error only reports reply delivery failures.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, r Responder) error {
	unlock := d.locks.Lock(ev.UserID)
	defer unlock()

	sess, err := d.sessions.Get(ctx, ev.UserID)
	if err != nil {
		d.fail(ctx, ev, "session.load", err)
		if ev.Kind == KindCallback {
			return r.Answer(ctx, msgTryAgain)
		}
		return r.Send(ctx, msgTryAgain)
	}

	h := &turn{d: d, ctx: ctx, ev: ev, sess: sess, r: r}
	switch ev.Kind {
	case KindCommand:
		return h.command()
	case KindContent:
		return h.content()
	case KindCallback:
		return h.callback()
	default:
		return nil
	}
}

func (d *Dispatcher) fail(ctx context.Context, ev Event, op string, err error) {
	logger.LogEvent(ctx, logger.FSM, slog.LevelError, "fsm.error",
		slog.String("op", op),
		slog.String("kind", ev.Kind.String()),
		slog.Int64("user_id", ev.UserID),
		logger.Err(err),
	)
}

// turn carries one event through its handler.
type turn struct {
	d    *Dispatcher
	ctx  context.Context
	ev   Event
	sess state.Session
	r    Responder
}

// moveTo stores next as the user's session. On failure the caller must not
// report success, since the prior session is still in place.
func (t *turn) moveTo(next state.Session) error {
	if err := t.d.sessions.Set(t.ctx, t.ev.UserID, next); err != nil {
		t.d.fail(t.ctx, t.ev, "session.store", err)
		return err
	}
	to := next.Step
	if next.IsIdle() {
		to = state.StepIdle
	}
	logger.LogEvent(t.ctx, logger.FSM, slog.LevelDebug, "fsm.transition",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("from", string(t.sess.Step)),
		slog.String("to", string(to)),
	)
	t.sess = next
	return nil
}

func (t *turn) reset() error { return t.moveTo(state.Idle()) }

func (t *turn) send(text string, rows ...[]keyboard.InlineBtn) error {
	return t.r.Send(t.ctx, text, rows...)
}

func (t *turn) tryAgain(op string, err error) error {
	t.d.fail(t.ctx, t.ev, op, err)
	return t.send(msgTryAgain)
}

// ownerListing selects the posts shown by /posts and addressed by /edit n
// and /delete n. Hidden posts stay out of the numbering, as on the public page.
var ownerListing = blog.ListOptions{PublishedOnly: true}

// refs snapshots posts for numeric references.
func refs(posts []blog.Post) []state.PostRef {
	out := make([]state.PostRef, 0, len(posts))
	for _, p := range posts {
		out = append(out, state.PostRef{ID: p.ID, Title: p.Title, CreatedAt: p.CreatedAt})
	}
	return out
}

// managing returns the managing_posts session for blogID with a fresh
// snapshot, falling back to the current snapshot if the listing fails.
func (t *turn) managing(blogID string) state.Session {
	next := state.Session{Step: state.StepManagingPosts, BlogID: blogID, Posts: t.sess.Posts}
	posts, err := t.d.repo.ListPostsForBlog(t.ctx, blogID, ownerListing)
	if err != nil {
		t.d.fail(t.ctx, t.ev, "posts.refresh", err)
		return next
	}
	next.Posts = refs(posts)
	return next
}

// parsePosition reads a 1-based list position. ok is false for anything
// that is not a plain integer.
func parsePosition(args string) (int, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}
