package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func backends(t *testing.T) map[string]storeFactory {
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			store, err := NewRedisStore(mr.Addr(), "", 0, utils.DiscardLogger())
			require.NoError(t, err)
			t.Cleanup(func() { store.Close(context.Background()) })
			return store
		},
	}

	if url := os.Getenv("TEST_POSTGRES_URL"); url != "" {
		factories["postgres"] = func(t *testing.T) Store {
			ctx := context.Background()
			store, err := NewPostgresDB("postgres", url, utils.DiscardLogger())
			require.NoError(t, err)
			require.NoError(t, store.InitializeTables(ctx))
			_, err = store.DB.ExecContext(ctx, `TRUNCATE post_likes, posts, users`)
			require.NoError(t, err)
			_, err = store.DB.ExecContext(ctx, `ALTER SEQUENCE user_id_seq RESTART; ALTER SEQUENCE post_id_seq RESTART`)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close(ctx) })
			return store
		}
	}

	if uri := os.Getenv("TEST_MONGODB_URI"); uri != "" {
		factories["mongodb"] = func(t *testing.T) Store {
			name := "fresh_hub_test_" + uuid.NewString()[:8]
			store, err := NewMongoDB(uri, name, utils.DiscardLogger())
			require.NoError(t, err)
			require.NoError(t, store.EnsureIndexes(context.Background()))
			t.Cleanup(func() {
				ctx := context.Background()
				store.Client.Database(name).Drop(ctx)
				store.Close(ctx)
			})
			return store
		}
	}
	return factories
}

func forEachStore(t *testing.T, test func(t *testing.T, store Store)) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			test(t, factory(t))
		})
	}
}

func newUser(id int64, name string) *models.User {
	return &models.User{ID: id, Username: name, Avatar: models.DefaultAvatar}
}

func newPost(id, userID int64) *models.Post {
	return &models.Post{ID: id, UserID: userID, Content: fmt.Sprintf("post %d", id), CreatedAt: time.Now().UTC()}
}

func TestStoreNextID(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		first, err := store.NextID(ctx, models.KindPost)
		require.NoError(t, err)
		second, err := store.NextID(ctx, models.KindPost)
		require.NoError(t, err)
		assert.Equal(t, int64(1), first)
		assert.Equal(t, int64(2), second)

		// Explicit identifiers push the sequence forward.
		require.NoError(t, store.CreateUser(ctx, newUser(10, "seeded")))
		next, err := store.NextID(ctx, models.KindUser)
		require.NoError(t, err)
		assert.Equal(t, int64(11), next)

		_, err = store.NextID(ctx, models.Kind("comment"))
		assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
	})
}

func TestStoreIssuedIDsAreNeverReissued(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for want := int64(1); want <= 3; want++ {
			id, err := store.NextID(ctx, models.KindUser)
			require.NoError(t, err)
			require.Equal(t, want, id)
		}

		// An id below the counter must leave the counter where it is.
		require.NoError(t, store.CreateUser(ctx, newUser(1, "early")))
		next, err := store.NextID(ctx, models.KindUser)
		require.NoError(t, err)
		assert.Equal(t, int64(4), next)
	})
}

func TestStoreIDClashIsNotDuplicateUsername(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.CreateUser(ctx, newUser(1, "alice")))

		err := store.CreateUser(ctx, newUser(1, "bob"))
		require.Error(t, err)
		assert.False(t, utils.IsErrorCode(err, utils.ErrDuplicateUsername))

		alice, err := store.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "alice", alice.Username)

		// The failed insert must not keep the name.
		_, err = store.GetUserByUsername(ctx, "bob")
		assert.True(t, utils.IsNotFound(err))
		require.NoError(t, store.CreateUser(ctx, newUser(2, "bob")))
	})
}

func TestStoreUsers(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		require.NoError(t, store.CreateUser(ctx, newUser(1, "alice")))
		require.NoError(t, store.CreateUser(ctx, newUser(2, "bob")))

		err := store.CreateUser(ctx, newUser(3, "alice"))
		assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicateUsername))

		alice, err := store.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "alice", alice.Username)
		assert.Equal(t, models.DefaultAvatar, alice.Avatar)

		byName, err := store.GetUserByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(2), byName.ID)

		_, err = store.GetUser(ctx, 99)
		assert.True(t, utils.IsNotFound(err))
		_, err = store.GetUserByUsername(ctx, "nobody")
		assert.True(t, utils.IsNotFound(err))

		all, err := store.GetAllUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestStoreUpdateUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.CreateUser(ctx, newUser(1, "alice")))
		require.NoError(t, store.CreateUser(ctx, newUser(2, "bob")))

		updated, err := store.UpdateUser(ctx, 1, func(u *models.User) error {
			u.Score += 5
			u.Username = "alicia"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 5, updated.Score)

		_, err = store.GetUserByUsername(ctx, "alice")
		assert.True(t, utils.IsNotFound(err), "old name must be released")
		renamed, err := store.GetUserByUsername(ctx, "alicia")
		require.NoError(t, err)
		assert.Equal(t, 5, renamed.Score)

		_, err = store.UpdateUser(ctx, 1, func(u *models.User) error {
			u.Username = "bob"
			return nil
		})
		assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicateUsername))

		abort := errors.New("abort")
		_, err = store.UpdateUser(ctx, 1, func(u *models.User) error {
			u.Score = 1000
			return abort
		})
		assert.ErrorIs(t, err, abort)

		current, err := store.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "alicia", current.Username)
		assert.Equal(t, 5, current.Score)

		_, err = store.UpdateUser(ctx, 42, func(u *models.User) error { return nil })
		assert.True(t, utils.IsNotFound(err))
	})
}

func TestStorePosts(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		url := "https://img.example/1.png"
		post := newPost(1, 7)
		post.ImageURL = &url

		require.NoError(t, store.CreatePost(ctx, post))
		require.NoError(t, store.CreatePost(ctx, newPost(2, 7)))

		got, err := store.GetPost(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, post.Content, got.Content)
		require.NotNil(t, got.ImageURL)
		assert.Equal(t, url, *got.ImageURL)
		assert.WithinDuration(t, post.CreatedAt, got.CreatedAt, time.Millisecond)

		updated, err := store.UpdatePost(ctx, 1, func(p *models.Post) error {
			p.Likes++
			p.Score += 3
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.Likes)
		assert.Equal(t, 3, updated.Score)

		_, err = store.GetPost(ctx, 5)
		assert.True(t, utils.IsNotFound(err))
		_, err = store.UpdatePost(ctx, 5, func(p *models.Post) error { return nil })
		assert.True(t, utils.IsNotFound(err))

		all, err := store.GetAllPosts(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestStoreLikeSet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.CreatePost(ctx, newPost(1, 1)))

		added, err := store.AddLike(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = store.AddLike(ctx, 1, 2)
		require.NoError(t, err)
		assert.False(t, added, "membership is idempotent")

		_, err = store.AddLike(ctx, 1, 3)
		require.NoError(t, err)

		liked, err := store.IsLiked(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, liked)

		count, err := store.CountLikes(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		removed, err := store.RemoveLike(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = store.RemoveLike(ctx, 1, 2)
		require.NoError(t, err)
		assert.False(t, removed)

		count, err = store.CountLikes(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestStoreConcurrentUpdatesAreSerialized(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.CreatePost(ctx, newPost(1, 1)))
		require.NoError(t, store.CreateUser(ctx, newUser(1, "alice")))

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.UpdatePost(ctx, 1, func(p *models.Post) error {
					p.Score++
					return nil
				})
				assert.NoError(t, err)
				_, err = store.UpdateUser(ctx, 1, func(u *models.User) error {
					u.Score++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		post, err := store.GetPost(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, workers, post.Score)

		user, err := store.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, workers, user.Score)
	})
}

func TestMemoryStoreWithoutKeyLocksLosesUpdates(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	store := NewMemoryStore(
		WithoutKeyLocks(),
		WithBeforeWrite(func(kind models.Kind, id int64) {
			// Both writers hold the same stale read before either writes.
			arrived.Done()
			arrived.Wait()
		}),
	)
	ctx := context.Background()
	require.NoError(t, store.CreatePost(ctx, newPost(1, 1)))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdatePost(ctx, 1, func(p *models.Post) error {
				p.Likes++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	post, err := store.GetPost(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, post.Likes, "one increment is overwritten")
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, newUser(1, "alice")))

	user, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	user.Score = 999

	again, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Score)
}
