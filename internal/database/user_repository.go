// internal/database/user_repository.go
package database

import (
	"context"
	"errors"
	"strings"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID             int64  `bson:"_id"`
	Username       string `bson:"username"`
	Bio            string `bson:"bio"`
	Avatar         string `bson:"avatar"`
	Score          int    `bson:"score"`
	PostsCount     int    `bson:"postsCount"`
	FollowersCount int    `bson:"followersCount"`
	FollowingCount int    `bson:"followingCount"`
	Version        int64  `bson:"version"` // bumped on every write, guards UpdateUser
}

func userToDocument(user *models.User, version int64) UserDocument {
	return UserDocument{
		ID:             user.ID,
		Username:       user.Username,
		Bio:            user.Bio,
		Avatar:         string(user.Avatar),
		Score:          user.Score,
		PostsCount:     user.PostsCount,
		FollowersCount: user.FollowersCount,
		FollowingCount: user.FollowingCount,
		Version:        version,
	}
}

func (doc *UserDocument) toModel() *models.User {
	return &models.User{
		ID:             doc.ID,
		Username:       doc.Username,
		Bio:            doc.Bio,
		Avatar:         models.Avatar(doc.Avatar),
		Score:          doc.Score,
		PostsCount:     doc.PostsCount,
		FollowersCount: doc.FollowersCount,
		FollowingCount: doc.FollowingCount,
	}
}

// CreateUser inserts a new user document
func (m *MongoDB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := m.Users.InsertOne(ctx, userToDocument(user, 0))
	if err != nil {
		if isDuplicateUsername(err) {
			return utils.NewDuplicateUsernameError(user.Username)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return m.advanceCounter(ctx, models.KindUser, user.ID)
}

// isDuplicateUsername reports a duplicate key on the username index only.
// A clash on _id is a storage fault, not a taken name.
func isDuplicateUsername(err error) bool {
	if !mongo.IsDuplicateKeyError(err) {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 && strings.Contains(e.Message, usernameIndex) {
				return true
			}
		}
	}
	return false
}

func (m *MongoDB) findUser(ctx context.Context, filter bson.M) (*UserDocument, error) {
	var doc UserDocument
	if err := m.Users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	doc, err := m.findUser(ctx, bson.M{"_id": id})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by id", err)
	}
	return doc.toModel(), nil
}

// GetUserByUsername retrieves a user from MongoDB by their username
func (m *MongoDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	doc, err := m.findUser(ctx, bson.M{"username": username})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewAppError(utils.ErrNotFound, "User not found: "+username, err)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by username", err)
	}
	return doc.toModel(), nil
}

func (m *MongoDB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	cursor, err := m.Users.Find(ctx, bson.M{})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query all users", err)
	}
	defer cursor.Close(ctx)

	var docs []UserDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode users", err)
	}

	users := make([]*models.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toModel())
	}
	return users, nil
}

// UpdateUser replaces the user only if nobody wrote it since it was read,
// retrying from a fresh read otherwise.
func (m *MongoDB) UpdateUser(ctx context.Context, id int64, fn func(*models.User) error) (*models.User, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		doc, err := m.findUser(ctx, bson.M{"_id": id})
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewUserNotFoundError(id)
		}
		if err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by id", err)
		}

		user := doc.toModel()
		if err := fn(user); err != nil {
			return nil, err
		}
		user.ID = id

		result, err := m.Users.ReplaceOne(ctx,
			bson.M{"_id": id, "version": doc.Version},
			userToDocument(user, doc.Version+1),
		)
		if err != nil {
			if isDuplicateUsername(err) {
				return nil, utils.NewDuplicateUsernameError(user.Username)
			}
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to update user", err)
		}
		if result.MatchedCount == 1 {
			return user, nil
		}
	}
	return nil, utils.NewAppError(utils.ErrDatabase, "user update contended too long", nil)
}
