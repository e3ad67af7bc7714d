// internal/database/post_repository.go
package database

import (
	"context"
	"errors"
	"time"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// PostDocument represents the MongoDB schema for a post.
type PostDocument struct {
	ID        int64     `bson:"_id"`
	UserID    int64     `bson:"userId"`
	Content   string    `bson:"content"`
	ImageURL  *string   `bson:"imageUrl,omitempty"`
	Likes     int       `bson:"likes"`
	Comments  int       `bson:"comments"`
	Score     int       `bson:"score"`
	CreatedAt time.Time `bson:"createdAt"`
	Version   int64     `bson:"version"`
}

// ModelToDocument converts a Post model to a MongoDB document.
func ModelToDocument(post *models.Post, version int64) *PostDocument {
	return &PostDocument{
		ID:        post.ID,
		UserID:    post.UserID,
		Content:   post.Content,
		ImageURL:  post.ImageURL,
		Likes:     post.Likes,
		Comments:  post.Comments,
		Score:     post.Score,
		CreatedAt: post.CreatedAt,
		Version:   version,
	}
}

// DocumentToModel converts a MongoDB document to a Post model.
func DocumentToModel(doc *PostDocument) *models.Post {
	return &models.Post{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Content:   doc.Content,
		ImageURL:  doc.ImageURL,
		Likes:     doc.Likes,
		Comments:  doc.Comments,
		Score:     doc.Score,
		CreatedAt: doc.CreatedAt.UTC(),
	}
}

// CreatePost inserts a new post document.
func (m *MongoDB) CreatePost(ctx context.Context, post *models.Post) error {
	if _, err := m.Posts.InsertOne(ctx, ModelToDocument(post, 0)); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save post", err)
	}
	return m.advanceCounter(ctx, models.KindPost, post.ID)
}

func (m *MongoDB) findPost(ctx context.Context, id int64) (*PostDocument, error) {
	var doc PostDocument
	err := m.Posts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewPostNotFoundError(id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query post", err)
	}
	return &doc, nil
}

// GetPost retrieves a post by ID.
func (m *MongoDB) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	doc, err := m.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	return DocumentToModel(doc), nil
}

func (m *MongoDB) GetAllPosts(ctx context.Context) ([]*models.Post, error) {
	cursor, err := m.Posts.Find(ctx, bson.M{})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query all posts", err)
	}
	defer cursor.Close(ctx)

	var posts []*models.Post
	for cursor.Next(ctx) {
		var doc PostDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode post", err)
		}
		posts = append(posts, DocumentToModel(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "cursor error", err)
	}
	return posts, nil
}

// UpdatePost is a version-guarded replace, retried on conflict.
func (m *MongoDB) UpdatePost(ctx context.Context, id int64, fn func(*models.Post) error) (*models.Post, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		doc, err := m.findPost(ctx, id)
		if err != nil {
			return nil, err
		}

		post := DocumentToModel(doc)
		if err := fn(post); err != nil {
			return nil, err
		}
		post.ID = id

		result, err := m.Posts.ReplaceOne(ctx,
			bson.M{"_id": id, "version": doc.Version},
			ModelToDocument(post, doc.Version+1),
		)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to update post", err)
		}
		if result.MatchedCount == 1 {
			return post, nil
		}
	}
	return nil, utils.NewAppError(utils.ErrDatabase, "post update contended too long", nil)
}
