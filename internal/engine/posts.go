package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"golang.org/x/sync/errgroup"
)

// CreatePost stores a new post for userID and awards PostCreationBonus to
// the post and its author. The author's record is optional.
func (e *Engine) CreatePost(ctx context.Context, userID int64, content string, imageURL *string) (*models.Post, error) {
	defer e.observe("create_post", time.Now())

	if userID <= 0 {
		return nil, utils.NewValidationError("User ID is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.NewValidationError("Content is required")
	}
	if imageURL != nil {
		if url := strings.TrimSpace(*imageURL); url != "" {
			imageURL = &url
		} else {
			imageURL = nil
		}
	}

	ctx, cancel, err := e.commit(ctx, "create_post")
	if err != nil {
		return nil, err
	}
	defer cancel()

	id, err := e.store.NextID(ctx, models.KindPost)
	if err != nil {
		return nil, err
	}
	post := &models.Post{
		ID:        id,
		UserID:    userID,
		Content:   content,
		ImageURL:  imageURL,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	_, err = e.store.UpdateUser(ctx, userID, func(u *models.User) error {
		u.PostsCount++
		return nil
	})
	switch {
	case utils.IsNotFound(err):
		e.logger.Debug("post created for unknown user", "postId", id, "userId", userID)
	case err != nil:
		return nil, err
	}

	if err := e.IncrementPostScore(ctx, id, PostCreationBonus); err != nil {
		return nil, err
	}
	if err := e.IncrementUserScore(ctx, userID, PostCreationBonus); err != nil {
		return nil, err
	}

	e.logger.Info("post created", "postId", id, "userId", userID)
	return e.store.GetPost(ctx, id)
}

func (e *Engine) GetPost(ctx context.Context, postID int64) (*models.Post, error) {
	return e.store.GetPost(ctx, postID)
}

// GetPosts returns every post newest first, each with its author when the
// author still exists.
func (e *Engine) GetPosts(ctx context.Context) ([]*models.PostWithUser, error) {
	var (
		posts []*models.Post
		users []*models.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		posts, err = e.store.GetAllPosts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = e.store.GetAllUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}

	sortNewestFirst(posts)
	feed := make([]*models.PostWithUser, 0, len(posts))
	for _, post := range posts {
		feed = append(feed, &models.PostWithUser{Post: *post, User: byID[post.UserID]})
	}
	return feed, nil
}

// GetUserPosts returns the user's posts newest first, or nothing when the
// user does not exist.
func (e *Engine) GetUserPosts(ctx context.Context, userID int64) ([]*models.PostWithUser, error) {
	user, err := e.store.GetUser(ctx, userID)
	if utils.IsNotFound(err) {
		return []*models.PostWithUser{}, nil
	}
	if err != nil {
		return nil, err
	}

	posts, err := e.store.GetAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(posts)

	feed := []*models.PostWithUser{}
	for _, post := range posts {
		if post.UserID == userID {
			feed = append(feed, &models.PostWithUser{Post: *post, User: user})
		}
	}
	return feed, nil
}

func sortNewestFirst(posts []*models.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}
