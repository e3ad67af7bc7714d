package engine

import (
	"context"
	"time"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"
)

// ToggleLike likes the post for userID, or retracts the like if userID
// already likes it. A like awards LikeAward to the post and its author;
// retracting a like leaves both scores untouched.
func (e *Engine) ToggleLike(ctx context.Context, postID, userID int64) (*models.Post, error) {
	defer e.observe("toggle_like", time.Now())

	if userID <= 0 {
		return nil, utils.NewValidationError("User ID is required")
	}
	if _, err := e.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}

	ctx, cancel, err := e.commit(ctx, "toggle_like")
	if err != nil {
		return nil, err
	}
	defer cancel()

	// The set operations decide membership atomically, so two racing
	// toggles from one user cannot both take the same path.
	removed, err := e.store.RemoveLike(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if removed {
		post, err := e.store.UpdatePost(ctx, postID, func(p *models.Post) error {
			p.Likes = max(0, p.Likes-1)
			return nil
		})
		if err != nil {
			return nil, err
		}
		e.logger.Debug("post unliked", "postId", postID, "userId", userID, "likes", post.Likes)
		return post, nil
	}

	added, err := e.store.AddLike(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !added {
		return e.store.GetPost(ctx, postID)
	}

	post, err := e.store.UpdatePost(ctx, postID, func(p *models.Post) error {
		p.Likes++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.IncrementPostScore(ctx, postID, LikeAward); err != nil {
		return nil, err
	}
	if err := e.IncrementUserScore(ctx, post.UserID, LikeAward); err != nil {
		return nil, err
	}

	e.logger.Debug("post liked", "postId", postID, "userId", userID, "likes", post.Likes)
	return e.store.GetPost(ctx, postID)
}

// HasLiked reports whether userID currently likes the post.
func (e *Engine) HasLiked(ctx context.Context, postID, userID int64) (bool, error) {
	return e.store.IsLiked(ctx, postID, userID)
}
