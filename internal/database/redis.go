// internal/database/redis.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"github.com/redis/go-redis/v9"
)

const (
	usersSetKey  = "users"
	postsSetKey  = "posts"
	usernamesKey = "usernames"
)

func userKey(id int64) string           { return fmt.Sprintf("user:%d", id) }
func postKey(id int64) string           { return fmt.Sprintf("post:%d", id) }
func likesKey(postID int64) string      { return fmt.Sprintf("likes:%d", postID) }
func counterKey(kind models.Kind) string { return fmt.Sprintf("counters:%s", kind) }

// raiseCounter sets KEYS[1] to ARGV[1] when the stored value is lower.
var raiseCounter = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps entities as JSON strings, like-sets as Redis sets and
// username ownership in a hash. Entity updates are WATCH/MULTI transactions.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisStore(addr, password string, db int, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	logger.Info("connected to Redis", "addr", addr, "db", db)
	return &RedisStore{client: client, logger: logger}, nil
}

func (r *RedisStore) Close(ctx context.Context) error {
	return r.client.Close()
}

func (r *RedisStore) NextID(ctx context.Context, kind models.Kind) (int64, error) {
	if kind != models.KindUser && kind != models.KindPost {
		return 0, utils.NewValidationError("unknown entity kind %q", kind)
	}
	id, err := r.client.Incr(ctx, counterKey(kind)).Result()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to allocate id", err)
	}
	return id, nil
}

func (r *RedisStore) advanceCounter(ctx context.Context, kind models.Kind, id int64) error {
	if err := raiseCounter.Run(ctx, r.client, []string{counterKey(kind)}, id).Err(); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to advance counter", err)
	}
	return nil
}

// loadAll fetches every JSON document whose id is a member of setKey.
func loadAll[T any](ctx context.Context, client *redis.Client, setKey string, keyOf func(int64) string) ([]*T, error) {
	members, err := client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list "+setKey, err)
	}
	out := make([]*T, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "invalid id in "+setKey, err)
		}
		keys = append(keys, keyOf(id))
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to load "+setKey, err)
	}
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		item := new(T)
		if err := json.Unmarshal([]byte(raw), item); err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode "+setKey, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// watchRetry runs txf under WATCH until it commits without interference.
func (r *RedisStore) watchRetry(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err := r.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return utils.NewAppError(utils.ErrDatabase, "update contended too long", redis.TxFailedErr)
}

func asStoreError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return utils.NewAppError(utils.ErrDatabase, msg, err)
}

// --- Users ---

func (r *RedisStore) CreateUser(ctx context.Context, user *models.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to encode user", err)
	}

	claimed, err := r.client.HSetNX(ctx, usernamesKey, user.Username, user.ID).Result()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to reserve username", err)
	}
	if !claimed {
		return utils.NewDuplicateUsernameError(user.Username)
	}

	if err := r.saveNewUser(ctx, user, payload); err != nil {
		// Release the name so a failed insert does not keep it taken.
		if delErr := r.client.HDel(ctx, usernamesKey, user.Username).Err(); delErr != nil {
			r.logger.Error("failed to release username", "username", user.Username, "error", delErr)
		}
		return err
	}
	return r.advanceCounter(ctx, models.KindUser, user.ID)
}

func (r *RedisStore) saveNewUser(ctx context.Context, user *models.User, payload []byte) error {
	created, err := r.client.SetNX(ctx, userKey(user.ID), payload, 0).Result()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	if !created {
		return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("user %d already exists", user.ID), nil)
	}
	if err := r.client.SAdd(ctx, usersSetKey, user.ID).Err(); err != nil {
		r.client.Del(ctx, userKey(user.ID))
		return utils.NewAppError(utils.ErrDatabase, "failed to index user", err)
	}
	return nil
}

func (r *RedisStore) getUser(ctx context.Context, cmd getter, id int64) (*models.User, error) {
	raw, err := cmd.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, utils.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by id", err)
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode user", err)
	}
	return &user, nil
}

func (r *RedisStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, r.client, id)
}

func (r *RedisStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	id, err := r.client.HGet(ctx, usernamesKey, username).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, utils.NewAppError(utils.ErrNotFound, "User not found: "+username, err)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by username", err)
	}
	return r.GetUser(ctx, id)
}

func (r *RedisStore) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	return loadAll[models.User](ctx, r.client, usersSetKey, userKey)
}

func (r *RedisStore) UpdateUser(ctx context.Context, id int64, fn func(*models.User) error) (*models.User, error) {
	var updated *models.User
	txf := func(tx *redis.Tx) error {
		user, err := r.getUser(ctx, tx, id)
		if err != nil {
			return err
		}
		oldName := user.Username
		if err := fn(user); err != nil {
			return err
		}
		user.ID = id

		renamed := user.Username != oldName
		if renamed {
			owner, err := tx.HGet(ctx, usernamesKey, user.Username).Int64()
			switch {
			case err == nil && owner != id:
				return utils.NewDuplicateUsernameError(user.Username)
			case err != nil && !errors.Is(err, redis.Nil):
				return err
			}
		}

		payload, err := json.Marshal(user)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(id), payload, 0)
			if renamed {
				pipe.HDel(ctx, usernamesKey, oldName)
				pipe.HSet(ctx, usernamesKey, user.Username, id)
			}
			return nil
		})
		if err == nil {
			updated = user
		}
		return err
	}

	if err := r.watchRetry(ctx, txf, userKey(id), usernamesKey); err != nil {
		return nil, asStoreError(err, "failed to update user")
	}
	return updated, nil
}

// --- Posts ---

func (r *RedisStore) CreatePost(ctx context.Context, post *models.Post) error {
	payload, err := json.Marshal(post)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to encode post", err)
	}
	created, err := r.client.SetNX(ctx, postKey(post.ID), payload, 0).Result()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save post", err)
	}
	if !created {
		return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("post %d already exists", post.ID), nil)
	}
	if err := r.client.SAdd(ctx, postsSetKey, post.ID).Err(); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to index post", err)
	}
	return r.advanceCounter(ctx, models.KindPost, post.ID)
}

func (r *RedisStore) getPost(ctx context.Context, cmd getter, id int64) (*models.Post, error) {
	raw, err := cmd.Get(ctx, postKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, utils.NewPostNotFoundError(id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query post", err)
	}
	var post models.Post
	if err := json.Unmarshal(raw, &post); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode post", err)
	}
	return &post, nil
}

func (r *RedisStore) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	return r.getPost(ctx, r.client, id)
}

func (r *RedisStore) GetAllPosts(ctx context.Context) ([]*models.Post, error) {
	return loadAll[models.Post](ctx, r.client, postsSetKey, postKey)
}

func (r *RedisStore) UpdatePost(ctx context.Context, id int64, fn func(*models.Post) error) (*models.Post, error) {
	var updated *models.Post
	txf := func(tx *redis.Tx) error {
		post, err := r.getPost(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(post); err != nil {
			return err
		}
		post.ID = id

		payload, err := json.Marshal(post)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, postKey(id), payload, 0)
			return nil
		})
		if err == nil {
			updated = post
		}
		return err
	}

	if err := r.watchRetry(ctx, txf, postKey(id)); err != nil {
		return nil, asStoreError(err, "failed to update post")
	}
	return updated, nil
}

// --- Likes ---

func (r *RedisStore) AddLike(ctx context.Context, postID, userID int64) (bool, error) {
	added, err := r.client.SAdd(ctx, likesKey(postID), userID).Result()
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to record like", err)
	}
	return added == 1, nil
}

func (r *RedisStore) RemoveLike(ctx context.Context, postID, userID int64) (bool, error) {
	removed, err := r.client.SRem(ctx, likesKey(postID), userID).Result()
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to remove like", err)
	}
	return removed == 1, nil
}

func (r *RedisStore) IsLiked(ctx context.Context, postID, userID int64) (bool, error) {
	liked, err := r.client.SIsMember(ctx, likesKey(postID), userID).Result()
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check like", err)
	}
	return liked, nil
}

func (r *RedisStore) CountLikes(ctx context.Context, postID int64) (int, error) {
	count, err := r.client.SCard(ctx, likesKey(postID)).Result()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count likes", err)
	}
	return int(count), nil
}
