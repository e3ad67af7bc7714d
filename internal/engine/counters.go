package engine

import (
	"context"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"
)

// IncrementPostScore adds delta to the post's score. A missing post is
// skipped without error.
func (e *Engine) IncrementPostScore(ctx context.Context, postID int64, delta int) error {
	_, err := e.store.UpdatePost(ctx, postID, func(p *models.Post) error {
		p.Score += delta
		return nil
	})
	if utils.IsNotFound(err) {
		e.logger.Debug("post score increment skipped, post not found", "postId", postID, "delta", delta)
		return nil
	}
	return err
}

// IncrementUserScore adds delta to the user's score. A missing user is
// skipped without error.
func (e *Engine) IncrementUserScore(ctx context.Context, userID int64, delta int) error {
	_, err := e.store.UpdateUser(ctx, userID, func(u *models.User) error {
		u.Score += delta
		return nil
	})
	if utils.IsNotFound(err) {
		e.logger.Debug("user score increment skipped, user not found", "userId", userID, "delta", delta)
		return nil
	}
	return err
}
