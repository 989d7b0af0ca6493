package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximcoj/teleblog/core/telegram/keyboard"
	"github.com/maximcoj/teleblog/core/telegram/state"
	"github.com/maximcoj/teleblog/internal/blog"
	"github.com/maximcoj/teleblog/internal/storage"
)

type reply struct {
	kind string
	text string
	rows [][]keyboard.InlineBtn
}

type fakeResponder struct {
	mu      sync.Mutex
	replies []reply
}

func (f *fakeResponder) Send(_ context.Context, text string, rows ...[]keyboard.InlineBtn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{kind: "send", text: text, rows: rows})
	return nil
}

func (f *fakeResponder) Edit(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{kind: "edit", text: text})
	return nil
}

func (f *fakeResponder) Answer(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{kind: "answer", text: text})
	return nil
}

func (f *fakeResponder) last() reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return reply{}
	}
	return f.replies[len(f.replies)-1]
}

type harness struct {
	t        *testing.T
	d        *Dispatcher
	repo     *blog.Repository
	store    storage.Backend
	sessions state.Manager
	r        *fakeResponder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	store, err := storage.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	seq := 0
	repo := blog.NewRepository(store,
		blog.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		blog.WithIDGenerator(func() (string, error) {
			seq++
			return fmt.Sprintf("id%04d", seq), nil
		}),
		blog.WithBlogURL(func(sub string) string { return "https://" + sub + ".example.com" }),
	)
	sessions := state.NewMemoryManager()
	return &harness{
		t:        t,
		d:        New(repo, sessions, opts...),
		repo:     repo,
		store:    store,
		sessions: sessions,
		r:        &fakeResponder{},
	}
}

func (h *harness) dispatch(ev Event) reply {
	h.t.Helper()
	require.NoError(h.t, h.d.Dispatch(context.Background(), ev, h.r))
	return h.r.last()
}

func (h *harness) cmd(user int64, name, args string) reply {
	return h.dispatch(Event{UserID: user, Kind: KindCommand, Command: name, Args: args})
}

func (h *harness) text(user int64, text string) reply {
	return h.dispatch(Event{UserID: user, Kind: KindContent, Text: text})
}

func (h *harness) press(user int64, payload string) reply {
	return h.dispatch(Event{UserID: user, Kind: KindCallback, Action: ActionDeleteBlog, Payload: payload})
}

func (h *harness) session(user int64) state.Session {
	h.t.Helper()
	s, err := h.sessions.Get(context.Background(), user)
	require.NoError(h.t, err)
	return s
}

func (h *harness) postCount() int64 {
	h.t.Helper()
	n, err := h.store.Count(context.Background(), storage.Posts, nil)
	require.NoError(h.t, err)
	return n
}

// createBlog walks user through the creation dialogue.
func (h *harness) createBlog(user int64, name string) *blog.Blog {
	h.t.Helper()
	h.cmd(user, CmdCreate, "")
	h.text(user, name)
	h.text(user, "-")
	b, err := h.repo.FindBlogByUser(context.Background(), user)
	require.NoError(h.t, err)
	return b
}

func TestScenarioCreatePublishListDelete(t *testing.T) {
	h := newHarness(t)
	const user = 100

	assert.Equal(t, msgAskBlogName, h.cmd(user, CmdCreate, "").text)
	assert.Equal(t, state.StepAwaitingBlogName, h.session(user).Step)

	assert.Equal(t, msgAskDescription, h.text(user, "My Blog!").text)
	s := h.session(user)
	assert.Equal(t, state.StepAwaitingDescription, s.Step)
	assert.Equal(t, "myblog", s.Subdomain)

	created := h.text(user, "-")
	assert.Contains(t, created.text, "https://myblog.example.com")
	assert.Equal(t, state.StepAuthoringPost, h.session(user).Step)

	b, err := h.repo.FindBlogByUser(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "myblog", b.Subdomain)
	assert.Equal(t, "", b.Description)

	assert.Equal(t, msgPostCreated, h.text(user, "Hello world").text)
	s = h.session(user)
	assert.Equal(t, state.StepManagingPosts, s.Step)
	require.Len(t, s.Posts, 1)
	assert.Equal(t, "Hello world", s.Posts[0].Title)

	list := h.cmd(user, CmdPosts, "")
	assert.Contains(t, list.text, "1. Hello world (01.03.2024)")
	assert.NotContains(t, list.text, "2.")

	assert.Equal(t, msgPostDeleted, h.cmd(user, CmdDelete, "1").text)
	assert.EqualValues(t, 0, h.postCount())
	assert.Equal(t, state.StepManagingPosts, h.session(user).Step)
	assert.Empty(t, h.session(user).Posts)

	assert.Equal(t, msgNoPostsYet, h.cmd(user, CmdPosts, "").text)
	assert.Equal(t, state.StepAuthoringPost, h.session(user).Step)
}

func TestPostsListHidesUnpublished(t *testing.T) {
	h := newHarness(t)
	const user = 21
	b := h.createBlog(user, "Drafts")
	h.text(user, "visible one")

	off := false
	hidden := blog.Post{ID: "hidden", BlogID: b.ID, Title: "secret", Content: "secret", IsPublished: &off,
		CreatedAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	raw, err := json.Marshal(hidden)
	require.NoError(t, err)
	require.NoError(t, h.store.Create(context.Background(), storage.Posts, hidden.ID, raw))

	list := h.cmd(user, CmdPosts, "")
	assert.Contains(t, list.text, "1. visible one")
	assert.NotContains(t, list.text, "secret")
	require.Len(t, h.session(user).Posts, 1)

	h.cmd(user, CmdEdit, "1")
	assert.NotEqual(t, "hidden", h.session(user).PostID)
}

func TestIdleGuidance(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, msgGuidance, h.text(1, "hello").text)
	assert.True(t, h.session(1).IsIdle())
	assert.EqualValues(t, 0, h.postCount())
}

func TestCreateWhenBlogExists(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "cats")
	assert.Equal(t, msgAlreadyHaveBlog, h.cmd(1, CmdCreate, "").text)
	assert.Equal(t, state.StepAuthoringPost, h.session(1).Step)
}

func TestBlogNameValidation(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "Cats")

	h.cmd(2, CmdCreate, "")
	assert.Equal(t, msgInvalidBlogName, h.text(2, "!!!").text)
	assert.Equal(t, state.StepAwaitingBlogName, h.session(2).Step)

	assert.Equal(t, msgBlogNameTaken, h.text(2, "c.a.t.s").text)
	assert.Equal(t, state.StepAwaitingBlogName, h.session(2).Step)

	assert.Equal(t, msgAskDescription, h.text(2, "Dogs").text)
}

func TestSubdomainTakenBetweenSteps(t *testing.T) {
	h := newHarness(t)
	h.cmd(1, CmdCreate, "")
	h.text(1, "Shared")

	h.createBlog(2, "shared")

	assert.Equal(t, msgBlogNameTaken, h.text(1, "about").text)
	assert.Equal(t, state.StepAwaitingBlogName, h.session(1).Step)
}

func TestDescriptionUsesSubdomainFromNameStep(t *testing.T) {
	h := newHarness(t)
	const user = 12
	require.NoError(t, h.sessions.Set(context.Background(), user, state.Session{
		Step:      state.StepAwaitingDescription,
		BlogName:  "Cats",
		Subdomain: "catsblog",
	}))

	h.text(user, "-")
	b, err := h.repo.FindBlogByUser(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "catsblog", b.Subdomain)
	assert.Equal(t, "Cats", b.Name)
}

func TestDescriptionKept(t *testing.T) {
	h := newHarness(t)
	h.cmd(1, CmdCreate, "")
	h.text(1, "Cats")
	h.text(1, "  All about cats  ")
	b, err := h.repo.FindBlogByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "All about cats", b.Description)
}

func TestPhotoPost(t *testing.T) {
	h := newHarness(t)
	b := h.createBlog(1, "cats")

	r := h.dispatch(Event{UserID: 1, Kind: KindContent, Text: "", ImageRef: "file-1"})
	assert.Equal(t, msgPostWithImage, r.text)

	posts, err := h.repo.ListPostsForBlog(context.Background(), b.ID, blog.ListOptions{})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "file-1", posts[0].ImageFileID)
	assert.Equal(t, blog.DefaultTitle, posts[0].Title)
}

func TestEditFlow(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "cats")
	h.text(1, "first")
	h.text(1, "second")
	h.cmd(1, CmdPosts, "")

	// Newest first, so 2 is "first".
	assert.Equal(t, msgEditing("first"), h.cmd(1, CmdEdit, "2").text)
	s := h.session(1)
	assert.Equal(t, state.StepEditingPost, s.Step)
	target := s.PostID

	assert.Equal(t, msgPostUpdated, h.text(1, "rewritten\nbody").text)
	p, err := h.repo.FindPost(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, "rewritten", p.Title)
	assert.Equal(t, "rewritten\nbody", p.Content)
	assert.EqualValues(t, 2, h.postCount())
	assert.Equal(t, state.StepManagingPosts, h.session(1).Step)
}

func TestNumericReferenceErrors(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "cats")
	h.text(1, "only")
	h.cmd(1, CmdPosts, "")
	before := h.session(1)

	tests := []struct {
		name string
		cmd  string
		args string
		want string
	}{
		{"edit without arg", CmdEdit, "", msgEditUsage},
		{"delete without arg", CmdDelete, "  ", msgDeleteUsage},
		{"edit zero", CmdEdit, "0", msgPostNotFound},
		{"edit too large", CmdEdit, "2", msgPostNotFound},
		{"delete negative", CmdDelete, "-1", msgPostNotFound},
		{"delete non numeric", CmdDelete, "abc", msgPostNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.cmd(1, tt.cmd, tt.args).text)
			assert.EqualValues(t, 1, h.postCount())
			assert.Equal(t, before, h.session(1))
		})
	}
}

func TestEditWithoutSnapshot(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, msgPostNotFound, h.cmd(1, CmdEdit, "1").text)
	assert.True(t, h.session(1).IsIdle())
}

func TestStaleSnapshotReference(t *testing.T) {
	h := newHarness(t)
	b := h.createBlog(1, "cats")
	h.text(1, "a")
	h.text(1, "b")
	h.cmd(1, CmdPosts, "")
	snap := h.session(1).Posts
	require.Len(t, snap, 2)

	// Remove the post behind entry 1 without refreshing the snapshot.
	require.NoError(t, h.repo.DeletePost(context.Background(), snap[0].ID))

	assert.Equal(t, msgPostNotFound, h.cmd(1, CmdEdit, "1").text)
	s := h.session(1)
	assert.Equal(t, state.StepManagingPosts, s.Step)
	assert.Equal(t, b.ID, s.BlogID)
	require.Len(t, s.Posts, 1, "snapshot refreshed")
	assert.Equal(t, snap[1].ID, s.Posts[0].ID)

	require.NoError(t, h.repo.DeletePost(context.Background(), snap[1].ID))
	assert.Equal(t, msgPostNotFound, h.cmd(1, CmdDelete, "1").text)
	assert.Empty(t, h.session(1).Posts)
}

func TestEditTargetDeletedWhileEditing(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "cats")
	h.text(1, "a")
	h.cmd(1, CmdPosts, "")
	h.cmd(1, CmdEdit, "1")
	require.NoError(t, h.repo.DeletePost(context.Background(), h.session(1).PostID))

	assert.Equal(t, msgPostNotFound, h.text(1, "new").text)
	assert.Equal(t, state.StepManagingPosts, h.session(1).Step)
	assert.EqualValues(t, 0, h.postCount())
}

func TestPublishToDeletedBlogResets(t *testing.T) {
	h := newHarness(t)
	b := h.createBlog(1, "cats")
	_, err := h.repo.DeleteBlog(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Equal(t, msgBlogNotFound, h.text(1, "orphan").text)
	assert.True(t, h.session(1).IsIdle())
	assert.EqualValues(t, 0, h.postCount())
}

func TestDeleteBlogConfirm(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "cats")
	h.text(1, "a")
	h.text(1, "b")
	other := h.createBlog(2, "dogs")
	h.text(2, "keep")

	r := h.cmd(1, CmdDeleteBlog, "")
	assert.Equal(t, msgConfirmDeletion("cats"), r.text)
	require.Len(t, r.rows, 1)
	require.Len(t, r.rows[0], 2)
	assert.Equal(t, PayloadCancel, r.rows[0][0].Data)
	assert.Equal(t, PayloadConfirm, r.rows[0][1].Data)
	assert.Equal(t, state.StepConfirmingBlogDeletion, h.session(1).Step)

	assert.Equal(t, msgUseButtons, h.text(1, "text while confirming").text)
	assert.EqualValues(t, 3, h.postCount())

	h.press(1, PayloadConfirm)
	edits := h.r.replies[len(h.r.replies)-2]
	assert.Equal(t, "edit", edits.kind)
	assert.Equal(t, msgBlogDeleted("cats"), edits.text)
	assert.True(t, h.session(1).IsIdle())

	_, err := h.repo.FindBlogByUser(context.Background(), 1)
	assert.ErrorIs(t, err, blog.ErrBlogNotFound)
	assert.EqualValues(t, 1, h.postCount())
	kept, err := h.repo.ListPostsForBlog(context.Background(), other.ID, blog.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	assert.Equal(t, msgAskBlogName, h.cmd(1, CmdCreate, "").text)
}

func TestDeleteBlogCancel(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "cats")
	h.cmd(1, CmdDeleteBlog, "")

	h.press(1, PayloadCancel)
	assert.Equal(t, msgDeletionCancelled, h.r.replies[len(h.r.replies)-2].text)
	assert.True(t, h.session(1).IsIdle())
	_, err := h.repo.FindBlogByUser(context.Background(), 1)
	assert.NoError(t, err)
}

func TestCallbackOutsideConfirmation(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "cats")

	r := h.press(1, PayloadConfirm)
	assert.Equal(t, "answer", r.kind)
	assert.Equal(t, msgActionUnavailable, r.text)
	_, err := h.repo.FindBlogByUser(context.Background(), 1)
	assert.NoError(t, err)
}

func TestDeleteBlogWithoutBlog(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, msgNoBlogToDelete, h.cmd(1, CmdDeleteBlog, "").text)
	assert.True(t, h.session(1).IsIdle())
}

func TestStatsAdminOnly(t *testing.T) {
	h := newHarness(t, WithAdmin(42))
	h.createBlog(1, "cats")
	h.text(1, "a")

	assert.Equal(t, msgAdminOnly, h.cmd(1, CmdStats, "").text)
	assert.Equal(t, msgStats(blog.Stats{Blogs: 1, Posts: 1}, "file"), h.cmd(42, CmdStats, "").text)
}

func TestUnknownCommandAndHelp(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, msgUnknownCommand, h.cmd(1, "bogus", "").text)
	assert.Equal(t, msgHelp, h.cmd(1, CmdHelp, "").text)
	assert.True(t, strings.HasPrefix(h.cmd(1, CmdStart, "").text, "Welcome"))
}

func TestNewPostCommand(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, msgNoBlog, h.cmd(1, CmdNewPost, "").text)
	h.createBlog(1, "cats")
	h.cmd(1, CmdPosts, "")
	assert.Equal(t, msgNewPostPrompt, h.cmd(1, CmdNewPost, "").text)
	assert.Equal(t, state.StepAuthoringPost, h.session(1).Step)
}

type failingSessions struct {
	state.Manager
	failSet bool
}

func (f *failingSessions) Set(ctx context.Context, userID int64, s state.Session) error {
	if f.failSet {
		return errors.New("session store down")
	}
	return f.Manager.Set(ctx, userID, s)
}

func TestSessionStoreFailureLeavesPriorState(t *testing.T) {
	h := newHarness(t)
	fs := &failingSessions{Manager: h.sessions}
	h.d = New(h.repo, fs)

	fs.failSet = true
	assert.Equal(t, msgTryAgain, h.cmd(1, CmdCreate, "").text)
	assert.True(t, h.session(1).IsIdle())
}

func TestConcurrentEventsSameUser(t *testing.T) {
	h := newHarness(t)
	h.createBlog(1, "cats")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := Event{UserID: 1, Kind: KindContent, Text: fmt.Sprintf("post %d", i)}
			assert.NoError(t, h.d.Dispatch(context.Background(), ev, h.r))
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 10, h.postCount())
	assert.Len(t, h.session(1).Posts, 10)
	assert.Equal(t, 0, h.d.locks.size())
}
