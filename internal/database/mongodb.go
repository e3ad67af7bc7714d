// internal/database/mongodb.go
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxCASRetries bounds the optimistic read-modify-write loops.
const maxCASRetries = 50

type MongoDB struct {
	Client   *mongo.Client
	Users    *mongo.Collection
	Posts    *mongo.Collection
	Likes    *mongo.Collection
	Counters *mongo.Collection
	logger   *slog.Logger
}

func NewMongoDB(uri, database string, logger *slog.Logger) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB", "database", database)

	db := client.Database(database)
	return &MongoDB{
		Client:   client,
		Users:    db.Collection("users"),
		Posts:    db.Collection("posts"),
		Likes:    db.Collection("post_likes"),
		Counters: db.Collection("counters"),
		logger:   logger,
	}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

const usernameIndex = "username_unique"

// EnsureIndexes creates the unique username index and the lookup indexes.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := m.Users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(usernameIndex),
	})
	if err != nil {
		return fmt.Errorf("failed to create username index: %w", err)
	}

	_, err = m.Posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create post author index: %w", err)
	}

	_, err = m.Likes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "postId", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create like index: %w", err)
	}
	return nil
}

type counterDocument struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// NextID increments the kind's counter document, creating it on first use.
func (m *MongoDB) NextID(ctx context.Context, kind models.Kind) (int64, error) {
	if kind != models.KindUser && kind != models.KindPost {
		return 0, utils.NewValidationError("unknown entity kind %q", kind)
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc counterDocument
	err := m.Counters.FindOneAndUpdate(ctx,
		bson.M{"_id": string(kind)},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to allocate id", err)
	}
	return doc.Seq, nil
}

// advanceCounter keeps the kind's counter at or above id.
func (m *MongoDB) advanceCounter(ctx context.Context, kind models.Kind, id int64) error {
	_, err := m.Counters.UpdateOne(ctx,
		bson.M{"_id": string(kind)},
		bson.M{"$max": bson.M{"seq": id}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to advance counter", err)
	}
	return nil
}

// LikeDocument is one membership of a post's like-set.
type LikeDocument struct {
	ID        string    `bson:"_id"` // "<postId>:<userId>"
	PostID    int64     `bson:"postId"`
	UserID    int64     `bson:"userId"`
	CreatedAt time.Time `bson:"createdAt"`
}

func likeKey(postID, userID int64) string {
	return fmt.Sprintf("%d:%d", postID, userID)
}

func (m *MongoDB) AddLike(ctx context.Context, postID, userID int64) (bool, error) {
	_, err := m.Likes.InsertOne(ctx, LikeDocument{
		ID:        likeKey(postID, userID),
		PostID:    postID,
		UserID:    userID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, utils.NewAppError(utils.ErrDatabase, "failed to record like", err)
	}
	return true, nil
}

func (m *MongoDB) RemoveLike(ctx context.Context, postID, userID int64) (bool, error) {
	result, err := m.Likes.DeleteOne(ctx, bson.M{"_id": likeKey(postID, userID)})
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to remove like", err)
	}
	return result.DeletedCount > 0, nil
}

func (m *MongoDB) IsLiked(ctx context.Context, postID, userID int64) (bool, error) {
	err := m.Likes.FindOne(ctx, bson.M{"_id": likeKey(postID, userID)}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check like", err)
	}
	return true, nil
}

func (m *MongoDB) CountLikes(ctx context.Context, postID int64) (int, error) {
	count, err := m.Likes.CountDocuments(ctx, bson.M{"postId": postID})
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count likes", err)
	}
	return int(count), nil
}
