// internal/database/memory.go
package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"
)

type entityKey struct {
	kind models.Kind
	id   int64
}

// MemoryStore keeps every entity in process memory. Updates to one entity are
// serialised by a per-key mutex.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[int64]*models.User
	usernames map[string]int64
	posts     map[int64]*models.Post
	likes     map[int64]map[int64]struct{}

	userSeq atomic.Int64
	postSeq atomic.Int64

	keyLocks    sync.Map // entityKey -> *sync.Mutex
	noKeyLocks  bool
	beforeWrite func(kind models.Kind, id int64)
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithoutKeyLocks turns UpdateUser/UpdatePost into unsynchronised
// read-then-write sequences, so concurrent updates may overwrite each other.
func WithoutKeyLocks() MemoryOption {
	return func(m *MemoryStore) {
		m.noKeyLocks = true
	}
}

// WithBeforeWrite installs a hook that runs after an update has read the
// entity and before it writes it back.
func WithBeforeWrite(hook func(kind models.Kind, id int64)) MemoryOption {
	return func(m *MemoryStore) {
		m.beforeWrite = hook
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		users:     make(map[int64]*models.User),
		usernames: make(map[string]int64),
		posts:     make(map[int64]*models.Post),
		likes:     make(map[int64]map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) NextID(ctx context.Context, kind models.Kind) (int64, error) {
	switch kind {
	case models.KindUser:
		return m.userSeq.Add(1), nil
	case models.KindPost:
		return m.postSeq.Add(1), nil
	}
	return 0, utils.NewValidationError("unknown entity kind %q", kind)
}

func (m *MemoryStore) lockKey(kind models.Kind, id int64) func() {
	if m.noKeyLocks {
		return func() {}
	}
	v, _ := m.keyLocks.LoadOrStore(entityKey{kind: kind, id: id}, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *MemoryStore) hook(kind models.Kind, id int64) {
	if m.beforeWrite != nil {
		m.beforeWrite(kind, id)
	}
}

// bumpSeq keeps the sequence ahead of explicitly inserted identifiers.
func bumpSeq(seq *atomic.Int64, id int64) {
	for {
		cur := seq.Load()
		if cur >= id || seq.CompareAndSwap(cur, id) {
			return
		}
	}
}

// --- Users ---

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("user %d already exists", user.ID), nil)
	}
	if _, taken := m.usernames[user.Username]; taken {
		return utils.NewDuplicateUsernameError(user.Username)
	}
	m.users[user.ID] = user.Clone()
	m.usernames[user.Username] = user.ID
	bumpSeq(&m.userSeq, user.ID)
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id)
	}
	return user.Clone(), nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "User not found: "+username, nil)
	}
	return m.users[id].Clone(), nil
}

func (m *MemoryStore) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user.Clone())
	}
	return users, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, id int64, fn func(*models.User) error) (*models.User, error) {
	unlock := m.lockKey(models.KindUser, id)
	defer unlock()

	user, err := m.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := user.Username
	if err := fn(user); err != nil {
		return nil, err
	}
	user.ID = id
	m.hook(models.KindUser, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return nil, utils.NewUserNotFoundError(id)
	}
	if user.Username != oldName {
		if owner, taken := m.usernames[user.Username]; taken && owner != id {
			return nil, utils.NewDuplicateUsernameError(user.Username)
		}
		delete(m.usernames, oldName)
		m.usernames[user.Username] = id
	}
	m.users[id] = user.Clone()
	return user, nil
}

// --- Posts ---

func (m *MemoryStore) CreatePost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.posts[post.ID]; exists {
		return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("post %d already exists", post.ID), nil)
	}
	m.posts[post.ID] = post.Clone()
	bumpSeq(&m.postSeq, post.ID)
	return nil
}

func (m *MemoryStore) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	post, ok := m.posts[id]
	if !ok {
		return nil, utils.NewPostNotFoundError(id)
	}
	return post.Clone(), nil
}

func (m *MemoryStore) GetAllPosts(ctx context.Context) ([]*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	posts := make([]*models.Post, 0, len(m.posts))
	for _, post := range m.posts {
		posts = append(posts, post.Clone())
	}
	return posts, nil
}

func (m *MemoryStore) UpdatePost(ctx context.Context, id int64, fn func(*models.Post) error) (*models.Post, error) {
	unlock := m.lockKey(models.KindPost, id)
	defer unlock()

	post, err := m.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(post); err != nil {
		return nil, err
	}
	post.ID = id
	m.hook(models.KindPost, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return nil, utils.NewPostNotFoundError(id)
	}
	m.posts[id] = post.Clone()
	return post, nil
}

// --- Likes ---

func (m *MemoryStore) AddLike(ctx context.Context, postID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.likes[postID]
	if !ok {
		set = make(map[int64]struct{})
		m.likes[postID] = set
	}
	if _, liked := set[userID]; liked {
		return false, nil
	}
	set[userID] = struct{}{}
	return true, nil
}

func (m *MemoryStore) RemoveLike(ctx context.Context, postID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.likes[postID]
	if _, liked := set[userID]; !liked {
		return false, nil
	}
	delete(set, userID)
	return true, nil
}

func (m *MemoryStore) IsLiked(ctx context.Context, postID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, liked := m.likes[postID][userID]
	return liked, nil
}

func (m *MemoryStore) CountLikes(ctx context.Context, postID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.likes[postID]), nil
}
