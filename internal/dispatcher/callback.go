package dispatcher

import (
	"errors"

	"github.com/maximcoj/teleblog/core/telegram/state"
	"github.com/maximcoj/teleblog/internal/blog"
)

func (t *turn) callback() error {
	if t.ev.Action != ActionDeleteBlog || t.sess.Step != state.StepConfirmingBlogDeletion {
		return t.r.Answer(t.ctx, msgActionUnavailable)
	}
	switch t.ev.Payload {
	case PayloadCancel:
		if err := t.reset(); err != nil {
			return t.r.Answer(t.ctx, msgTryAgain)
		}
		if err := t.r.Edit(t.ctx, msgDeletionCancelled); err != nil {
			return err
		}
		return t.r.Answer(t.ctx, "")
	case PayloadConfirm:
		return t.confirmBlogDeletion()
	default:
		return t.r.Answer(t.ctx, msgActionUnavailable)
	}
}

func (t *turn) confirmBlogDeletion() error {
	name := t.sess.BlogName
	if _, err := t.d.repo.DeleteBlog(t.ctx, t.sess.BlogID); err != nil && !errors.Is(err, blog.ErrBlogNotFound) {
		t.d.fail(t.ctx, t.ev, "blog.delete", err)
		if err := t.r.Edit(t.ctx, msgDeleteBlogFailed); err != nil {
			return err
		}
		return t.r.Answer(t.ctx, "")
	}
	if err := t.reset(); err != nil {
		return t.r.Answer(t.ctx, msgTryAgain)
	}
	if err := t.r.Edit(t.ctx, msgBlogDeleted(name)); err != nil {
		return err
	}
	return t.r.Answer(t.ctx, "")
}
