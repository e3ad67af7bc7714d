package actors

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fresh-hub/internal/database"
	"fresh-hub/internal/engine"
	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, opts ...DispatcherOption) (*Dispatcher, *engine.Engine) {
	t.Helper()
	return newDispatcherOver(t, database.NewMemoryStore(), opts...)
}

func newDispatcherOver(t *testing.T, store database.Store, opts ...DispatcherOption) (*Dispatcher, *engine.Engine) {
	t.Helper()
	system := actor.NewActorSystem()
	eng := engine.New(store)
	d := NewDispatcher(system, eng, 5*time.Second, utils.DiscardLogger(), opts...)
	t.Cleanup(d.Stop)
	return d, eng
}

// blockingStore pauses the first armed write matching match until release
// is closed, and closes entered when it gets there.
type blockingStore struct {
	*database.MemoryStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore(match func(kind models.Kind, id int64) bool) *blockingStore {
	bs := &blockingStore{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	bs.MemoryStore = database.NewMemoryStore(database.WithBeforeWrite(func(kind models.Kind, id int64) {
		if match(kind, id) && bs.armed.CompareAndSwap(true, false) {
			close(bs.entered)
			<-bs.release
		}
	}))
	return bs
}

func TestRegisterAndUpdateThroughSupervisor(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	alice, err := d.RegisterUser(ctx, engine.NewUser{Username: "alice", Bio: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Username)
	assert.Equal(t, models.DefaultAvatar, alice.Avatar)

	_, err = d.RegisterUser(ctx, engine.NewUser{Username: "alice"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicateUsername))

	name := "alicia"
	updated, err := d.UpdateProfile(ctx, alice.ID, engine.UserPatch{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Username)

	_, err = d.UpdateProfile(ctx, 404, engine.UserPatch{Username: &name})
	assert.True(t, utils.IsNotFound(err))
}

func TestConcurrentRegistrationsOfOneName(t *testing.T) {
	d, eng := newTestDispatcher(t)
	ctx := context.Background()

	const attempts = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.RegisterUser(ctx, engine.NewUser{Username: "popular"}); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicateUsername))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	board, err := eng.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Len(t, board, 1)
}

func TestToggleLikeThroughPostActor(t *testing.T) {
	d, eng := newTestDispatcher(t)
	ctx := context.Background()

	alice, err := d.RegisterUser(ctx, engine.NewUser{Username: "alice"})
	require.NoError(t, err)
	post, err := d.CreatePost(ctx, alice.ID, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, engine.PostCreationBonus, post.Score)

	liked, err := d.ToggleLike(ctx, post.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, liked.Likes)
	assert.Equal(t, 6, liked.Score)

	unliked, err := d.ToggleLike(ctx, post.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, unliked.Likes)
	assert.Equal(t, 6, unliked.Score)

	author, err := eng.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, author.Score)

	count, err := d.PostActorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestToggleLikeOnMissingPostSpawnsNothing(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.ToggleLike(ctx, 99, 1)
	assert.True(t, utils.IsNotFound(err))

	count, err := d.PostActorCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreatePostValidationThroughDispatcher(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.CreatePost(context.Background(), 1, "  ", nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestConcurrentTogglesAcrossPosts(t *testing.T) {
	d, eng := newTestDispatcher(t)
	ctx := context.Background()

	author, err := d.RegisterUser(ctx, engine.NewUser{Username: "author"})
	require.NoError(t, err)

	var postIDs []int64
	for i := 0; i < 3; i++ {
		post, err := d.CreatePost(ctx, author.ID, fmt.Sprintf("post %d", i), nil)
		require.NoError(t, err)
		postIDs = append(postIDs, post.ID)
	}

	const likers = 25
	var wg sync.WaitGroup
	for _, postID := range postIDs {
		for i := 0; i < likers; i++ {
			wg.Add(1)
			go func(postID, userID int64) {
				defer wg.Done()
				_, err := d.ToggleLike(ctx, postID, userID)
				assert.NoError(t, err)
			}(postID, int64(100+i))
		}
	}
	wg.Wait()

	for _, postID := range postIDs {
		post, err := eng.GetPost(ctx, postID)
		require.NoError(t, err)
		assert.Equal(t, likers, post.Likes)
		assert.Equal(t, engine.PostCreationBonus+likers, post.Score)
	}

	user, err := eng.GetUser(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*(engine.PostCreationBonus+likers), user.Score)

	count, err := d.PostActorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDispatcherHonoursContextDeadline(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := d.PostActorCount(ctx)
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout))
}

func TestToggleDequeuedAfterDeadlineWritesNothing(t *testing.T) {
	var postID int64
	store := newBlockingStore(func(kind models.Kind, id int64) bool {
		return kind == models.KindPost && id == postID
	})
	d, eng := newDispatcherOver(t, store)
	ctx := context.Background()

	alice, err := eng.CreateUser(ctx, engine.NewUser{Username: "alice"})
	require.NoError(t, err)
	post, err := eng.CreatePost(ctx, alice.ID, "hello", nil)
	require.NoError(t, err)
	postID = post.ID
	store.armed.Store(true)

	first := make(chan error, 1)
	go func() {
		_, err := d.ToggleLike(ctx, post.ID, 100)
		first <- err
	}()
	<-store.entered

	// Queued behind the stalled toggle until well past its deadline.
	late := make(chan error, 1)
	go func() {
		lateCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err := d.ToggleLike(lateCtx, post.ID, 101)
		late <- err
	}()
	time.Sleep(300 * time.Millisecond)
	close(store.release)

	require.NoError(t, <-first)
	err = <-late
	assert.True(t, utils.IsErrorCode(err, utils.ErrActorTimeout), "got %v", err)

	reloaded, err := eng.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Likes)
	assert.Equal(t, engine.PostCreationBonus+engine.LikeAward, reloaded.Score)

	liked, err := eng.HasLiked(ctx, post.ID, 101)
	require.NoError(t, err)
	assert.False(t, liked)

	author, err := eng.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PostCreationBonus+engine.LikeAward, author.Score)
}

func TestSlowPostCreationDoesNotDelayToggles(t *testing.T) {
	var slowAuthor int64
	store := newBlockingStore(func(kind models.Kind, id int64) bool {
		return kind == models.KindUser && id == slowAuthor
	})
	d, eng := newDispatcherOver(t, store)
	ctx := context.Background()

	alice, err := eng.CreateUser(ctx, engine.NewUser{Username: "alice"})
	require.NoError(t, err)
	carol, err := eng.CreateUser(ctx, engine.NewUser{Username: "carol"})
	require.NoError(t, err)
	post, err := eng.CreatePost(ctx, alice.ID, "hello", nil)
	require.NoError(t, err)
	slowAuthor = carol.ID
	store.armed.Store(true)

	created := make(chan error, 1)
	go func() {
		_, err := d.CreatePost(ctx, carol.ID, "slow", nil)
		created <- err
	}()
	<-store.entered

	toggleCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	liked, err := d.ToggleLike(toggleCtx, post.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, liked.Likes)

	close(store.release)
	require.NoError(t, <-created)
}

func TestIdlePostActorIsStopped(t *testing.T) {
	d, eng := newTestDispatcher(t, WithIdleTimeout(50*time.Millisecond))
	ctx := context.Background()

	alice, err := eng.CreateUser(ctx, engine.NewUser{Username: "alice"})
	require.NoError(t, err)
	post, err := eng.CreatePost(ctx, alice.ID, "hello", nil)
	require.NoError(t, err)

	_, err = d.ToggleLike(ctx, post.ID, 100)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		count, err := d.PostActorCount(ctx)
		return err == nil && count == 0
	}, 2*time.Second, 20*time.Millisecond)

	// A later toggle gets a fresh actor and sees the earlier like.
	unliked, err := d.ToggleLike(ctx, post.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, unliked.Likes)
}
