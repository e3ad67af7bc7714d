// internal/database/store.go
package database

import (
	"context"

	"fresh-hub/internal/models"
)

// Store defines the common interface for entity storage. Every backend
// enforces username uniqueness and serialises UpdateUser/UpdatePost per entity.
type Store interface {
	// Connection
	Close(ctx context.Context) error

	// NextID allocates the next identifier for kind. Identifiers start at 1.
	NextID(ctx context.Context, kind models.Kind) (int64, error)

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	// UpdateUser runs fn on the current user and persists the result atomically.
	// An error from fn aborts the update without writing.
	UpdateUser(ctx context.Context, id int64, fn func(*models.User) error) (*models.User, error)

	// Post methods
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	GetAllPosts(ctx context.Context) ([]*models.Post, error)
	UpdatePost(ctx context.Context, id int64, fn func(*models.Post) error) (*models.Post, error)

	// Like-set methods. AddLike and RemoveLike report whether membership changed.
	AddLike(ctx context.Context, postID, userID int64) (bool, error)
	RemoveLike(ctx context.Context, postID, userID int64) (bool, error)
	IsLiked(ctx context.Context, postID, userID int64) (bool, error)
	CountLikes(ctx context.Context, postID int64) (int, error)
}
