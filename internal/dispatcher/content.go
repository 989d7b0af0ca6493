package dispatcher

import (
	"errors"
	"strings"

	"github.com/maximcoj/teleblog/core/telegram/state"
	"github.com/maximcoj/teleblog/internal/blog"
)

func (t *turn) content() error {
	switch t.sess.Step {
	case state.StepAwaitingBlogName:
		return t.blogName()
	case state.StepAwaitingDescription:
		return t.blogDescription()
	case state.StepAuthoringPost, state.StepManagingPosts:
		return t.publish()
	case state.StepEditingPost:
		return t.rewrite()
	case state.StepConfirmingBlogDeletion:
		return t.send(msgUseButtons)
	default:
		return t.send(msgGuidance)
	}
}

func (t *turn) blogName() error {
	name := strings.TrimSpace(t.ev.Text)
	sub := blog.DeriveSubdomain(name)
	if sub == "" {
		return t.send(msgInvalidBlogName)
	}
	free, err := t.d.repo.SubdomainAvailable(t.ctx, sub)
	if err != nil {
		return t.tryAgain("subdomain.check", err)
	}
	if !free {
		return t.send(msgBlogNameTaken)
	}
	next := state.Session{Step: state.StepAwaitingDescription, BlogName: name, Subdomain: sub}
	if err := t.moveTo(next); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(msgAskDescription)
}

func (t *turn) blogDescription() error {
	b, err := t.d.repo.CreateBlog(t.ctx, blog.NewBlog{
		UserID:      t.ev.UserID,
		Name:        t.sess.BlogName,
		Subdomain:   t.sess.Subdomain,
		Description: blog.NormalizeDescription(t.ev.Text),
	})
	switch {
	case errors.Is(err, blog.ErrSubdomainTaken):
		if err := t.moveTo(state.Session{Step: state.StepAwaitingBlogName}); err != nil {
			return t.send(msgTryAgain)
		}
		return t.send(msgBlogNameTaken)
	case errors.Is(err, blog.ErrInvalidName):
		if err := t.moveTo(state.Session{Step: state.StepAwaitingBlogName}); err != nil {
			return t.send(msgTryAgain)
		}
		return t.send(msgInvalidBlogName)
	case errors.Is(err, blog.ErrBlogExists):
		if err := t.reset(); err != nil {
			return t.send(msgTryAgain)
		}
		return t.send(msgAlreadyHaveBlog)
	case err != nil:
		return t.tryAgain("blog.create", err)
	}

	if err := t.moveTo(state.Session{Step: state.StepAuthoringPost, BlogID: b.ID}); err != nil {
		return t.send(msgTryAgain)
	}
	return t.send(msgBlogCreated(b))
}

func (t *turn) publish() error {
	_, err := t.d.repo.CreatePost(t.ctx, blog.NewPost{
		BlogID:      t.sess.BlogID,
		Content:     t.ev.Text,
		ImageFileID: t.ev.ImageRef,
	})
	if errors.Is(err, blog.ErrBlogNotFound) {
		if err := t.reset(); err != nil {
			return t.send(msgTryAgain)
		}
		return t.send(msgBlogNotFound)
	}
	if err != nil {
		return t.tryAgain("post.create", err)
	}
	if err := t.moveTo(t.managing(t.sess.BlogID)); err != nil {
		return t.send(msgTryAgain)
	}
	if t.ev.ImageRef != "" {
		return t.send(msgPostWithImage)
	}
	return t.send(msgPostCreated)
}

func (t *turn) rewrite() error {
	_, err := t.d.repo.UpdatePostContent(t.ctx, t.sess.PostID, t.ev.Text, t.ev.ImageRef)
	if errors.Is(err, blog.ErrPostNotFound) {
		return t.stale()
	}
	if err != nil {
		return t.tryAgain("post.update", err)
	}
	if err := t.moveTo(t.managing(t.sess.BlogID)); err != nil {
		return t.send(msgTryAgain)
	}
	if t.ev.ImageRef != "" {
		return t.send(msgPostUpdatedImage)
	}
	return t.send(msgPostUpdated)
}
