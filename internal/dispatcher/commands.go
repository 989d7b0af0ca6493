package dispatcher

import (
	"errors"
	"strings"

	"github.com/maximcoj/teleblog/core/telegram/keyboard"
	"github.com/maximcoj/teleblog/core/telegram/state"
	"github.com/maximcoj/teleblog/internal/blog"
)

func (t *turn) command() error {
	switch strings.ToLower(t.ev.Command) {
	case CmdStart:
		return t.send(msgWelcome)
	case CmdHelp:
		return t.send(msgHelp)
	case CmdCreate:
		return t.create()
	case CmdPosts:
		return t.posts()
	case CmdNewPost:
		return t.newPost()
	case CmdEdit:
		return t.edit()
	case CmdDelete:
		return t.deletePost()
	case CmdDeleteBlog:
		return t.deleteBlog()
	case CmdStats:
		return t.stats()
	default:
		return t.send(msgUnknownCommand)
	}
}

func (t *turn) create() error {
	_, err := t.d.repo.FindBlogByUser(t.ctx, t.ev.UserID)
	switch {
	case err == nil:
		return t.send(msgAlreadyHaveBlog)
	case !errors.Is(err, blog.ErrBlogNotFound):
		return t.tryAgain("blog.lookup", err)
	}
	if err := t.moveTo(state.Session{Step: state.StepAwaitingBlogName}); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(msgAskBlogName)
}

// ownBlog loads the sender's blog, replying noBlog when there is none.
// A nil blog with nil error means a reply was already sent.
func (t *turn) ownBlog(noBlog string) (*blog.Blog, error) {
	b, err := t.d.repo.FindBlogByUser(t.ctx, t.ev.UserID)
	if errors.Is(err, blog.ErrBlogNotFound) {
		return nil, t.send(noBlog)
	}
	if err != nil {
		return nil, t.tryAgain("blog.lookup", err)
	}
	return b, nil
}

func (t *turn) posts() error {
	b, err := t.ownBlog(msgNoBlog)
	if b == nil {
		return err
	}
	posts, err := t.d.repo.ListPostsForBlog(t.ctx, b.ID, ownerListing)
	if err != nil {
		return t.tryAgain("posts.list", err)
	}
	if len(posts) == 0 {
		if err := t.moveTo(state.Session{Step: state.StepAuthoringPost, BlogID: b.ID}); err != nil {
			return t.send(msgTryAgain)
		}
		return t.send(msgNoPostsYet)
	}
	next := state.Session{Step: state.StepManagingPosts, BlogID: b.ID, Posts: refs(posts)}
	if err := t.moveTo(next); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(formatPostList(posts))
}

func (t *turn) newPost() error {
	b, err := t.ownBlog(msgNoBlog)
	if b == nil {
		return err
	}
	if err := t.moveTo(state.Session{Step: state.StepAuthoringPost, BlogID: b.ID, Posts: t.sess.Posts}); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(msgNewPostPrompt)
}

// resolve maps "/edit n" or "/delete n" onto a live post. It replies and
// returns nil when the reference cannot be used.
func (t *turn) resolve(usage string) (*blog.Post, error) {
	if strings.TrimSpace(t.ev.Args) == "" {
		return nil, t.send(usage)
	}
	n, ok := parsePosition(t.ev.Args)
	if !ok {
		return nil, t.send(msgPostNotFound)
	}
	ref, ok := t.sess.PostAt(n)
	if !ok {
		return nil, t.send(msgPostNotFound)
	}
	p, err := t.d.repo.FindPost(t.ctx, ref.ID)
	if err == nil && p.BlogID != t.sess.BlogID {
		err = blog.ErrPostNotFound
	}
	if errors.Is(err, blog.ErrPostNotFound) {
		return nil, t.stale()
	}
	if err != nil {
		return nil, t.tryAgain("post.lookup", err)
	}
	return p, nil
}

// stale handles a snapshot entry whose post is gone: refresh and report.
func (t *turn) stale() error {
	if err := t.moveTo(t.managing(t.sess.BlogID)); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(msgPostNotFound)
}

func (t *turn) edit() error {
	p, err := t.resolve(msgEditUsage)
	if p == nil {
		return err
	}
	next := state.Session{
		Step:   state.StepEditingPost,
		BlogID: t.sess.BlogID,
		PostID: p.ID,
		Posts:  t.sess.Posts,
	}
	if err := t.moveTo(next); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(msgEditing(p.Title))
}

func (t *turn) deletePost() error {
	p, err := t.resolve(msgDeleteUsage)
	if p == nil {
		return err
	}
	if err := t.d.repo.DeletePost(t.ctx, p.ID); err != nil {
		if errors.Is(err, blog.ErrPostNotFound) {
			return t.stale()
		}
		return t.tryAgain("post.delete", err)
	}
	if err := t.moveTo(t.managing(t.sess.BlogID)); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(msgPostDeleted)
}

func (t *turn) deleteBlog() error {
	b, err := t.ownBlog(msgNoBlogToDelete)
	if b == nil {
		return err
	}
	next := state.Session{
		Step:     state.StepConfirmingBlogDeletion,
		BlogID:   b.ID,
		BlogName: b.Name,
	}
	if err := t.moveTo(next); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(msgConfirmDeletion(b.Name), keyboard.Row(
		keyboard.InlineBtn{Text: btnCancelDeletion, Unique: ActionDeleteBlog, Data: PayloadCancel},
		keyboard.InlineBtn{Text: btnConfirmDeletion, Unique: ActionDeleteBlog, Data: PayloadConfirm},
	))
}

func (t *turn) stats() error {
	if t.d.adminID == 0 || t.ev.UserID != t.d.adminID {
		return t.send(msgAdminOnly)
	}
	s, err := t.d.repo.Stats(t.ctx)
	if err != nil {
		return t.tryAgain("stats", err)
	}
	return t.send(msgStats(s, t.d.repo.Backend()))
}
