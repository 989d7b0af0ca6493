package state

import (
	"context"
	"time"
)

// Step identifies where a user is in a multi-step dialogue.
type Step string

const (
	// StepIdle indicates there is no active conversation with the user.
	StepIdle                   Step = "idle"
	StepAwaitingBlogName       Step = "awaiting_blog_name"
	StepAwaitingDescription    Step = "awaiting_blog_description"
	StepAuthoringPost          Step = "authoring_post"
	StepManagingPosts          Step = "managing_posts"
	StepEditingPost            Step = "editing_post"
	StepConfirmingBlogDeletion Step = "confirming_blog_deletion"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepIdle, StepAwaitingBlogName, StepAwaitingDescription, StepAuthoringPost,
		StepManagingPosts, StepEditingPost, StepConfirmingBlogDeletion:
		return true
	}
	return false
}

// PostRef is one entry of the cached post list used to resolve "/edit 3".
type PostRef struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the conversation record of one user.
type Session struct {
	Step      Step      `json:"step"`
	BlogID    string    `json:"blogId,omitempty"`
	BlogName  string    `json:"blogName,omitempty"`
	Subdomain string    `json:"subdomain,omitempty"`
	PostID    string    `json:"postId,omitempty"`
	Posts     []PostRef `json:"posts,omitempty"`
}

// Idle returns the session of a user with no stored state.
func Idle() Session { return Session{Step: StepIdle} }

// IsIdle reports whether the session carries no active step.
func (s Session) IsIdle() bool { return s.Step == "" || s.Step == StepIdle }

// PostAt resolves a 1-based position against the cached list.
func (s Session) PostAt(n int) (PostRef, bool) {
	if n < 1 || n > len(s.Posts) {
		return PostRef{}, false
	}
	return s.Posts[n-1], true
}

// Manager stores sessions keyed by user id.
type Manager interface {
	// Get returns the stored session or Idle() when none exists.
	Get(ctx context.Context, userID int64) (Session, error)
	// Set replaces the session. Setting an idle session clears it.
	Set(ctx context.Context, userID int64, s Session) error
	Clear(ctx context.Context, userID int64) error
	// Backend names the implementation for logs.
	Backend() string
	Close() error
}
