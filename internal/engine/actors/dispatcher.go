package actors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fresh-hub/internal/engine"
	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

const defaultIdleTimeout = 2 * time.Minute

// Dispatcher is the synchronous front of the actor layer used by the HTTP
// handlers.
type Dispatcher struct {
	system      *actor.ActorSystem
	engine      *engine.Engine
	posts       *actor.PID
	users       *actor.PID
	timeout     time.Duration
	idleTimeout time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithIdleTimeout sets how long a PostActor may sit idle before it is stopped.
func WithIdleTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.idleTimeout = timeout
	}
}

func NewDispatcher(system *actor.ActorSystem, eng *engine.Engine, timeout time.Duration, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		system:      system,
		engine:      eng,
		timeout:     timeout,
		idleTimeout: defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	postProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPostSupervisor(eng, d.idleTimeout, logger)
	})
	userProps := actor.PropsFromProducer(func() actor.Actor {
		return NewUserSupervisor(eng, logger)
	})
	d.posts = system.Root.Spawn(postProps)
	d.users = system.Root.Spawn(userProps)
	return d
}

// deadline is the sooner of the dispatcher timeout and the context deadline.
func (d *Dispatcher) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}

// request sends a message carrying deadline and waits for the answer. An
// actor that dequeues the message late refuses it and says so, and one that
// started in time finishes its writes, so the wait extends one timeout past
// the deadline to receive either answer instead of guessing.
func (d *Dispatcher) request(pid *actor.PID, msg interface{}, deadline time.Time, name string) (interface{}, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, utils.NewActorTimeoutError(name, context.DeadlineExceeded)
	}

	result, err := d.system.Root.RequestFuture(pid, msg, remaining+d.timeout).Result()
	if err != nil {
		return nil, utils.NewActorTimeoutError(name, err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

func unexpected(name string, result interface{}) error {
	return utils.NewAppError(utils.ErrDatabase, fmt.Sprintf("unexpected %s response type: %T", name, result), nil)
}

func (d *Dispatcher) ToggleLike(ctx context.Context, postID, userID int64) (*models.Post, error) {
	deadline := d.deadline(ctx)
	msg := &ToggleLikeMsg{PostID: postID, UserID: userID, Deadline: deadline}
	result, err := d.request(d.posts, msg, deadline, "PostActor")
	if err != nil {
		return nil, err
	}
	post, ok := result.(*models.Post)
	if !ok {
		return nil, unexpected("PostActor", result)
	}
	return post, nil
}

// CreatePost goes straight to the engine. A new post has no like traffic to
// order against, and routing it through the post supervisor would hold up
// every toggle behind it.
func (d *Dispatcher) CreatePost(ctx context.Context, userID int64, content string, imageURL *string) (*models.Post, error) {
	ctx, cancel := context.WithDeadline(ctx, d.deadline(ctx))
	defer cancel()
	return d.engine.CreatePost(ctx, userID, content, imageURL)
}

func (d *Dispatcher) RegisterUser(ctx context.Context, in engine.NewUser) (*models.User, error) {
	deadline := d.deadline(ctx)
	msg := &RegisterUserMsg{Username: in.Username, Bio: in.Bio, Avatar: in.Avatar, Deadline: deadline}
	result, err := d.request(d.users, msg, deadline, "UserSupervisor")
	if err != nil {
		return nil, err
	}
	user, ok := result.(*models.User)
	if !ok {
		return nil, unexpected("UserSupervisor", result)
	}
	return user, nil
}

func (d *Dispatcher) UpdateProfile(ctx context.Context, userID int64, patch engine.UserPatch) (*models.User, error) {
	deadline := d.deadline(ctx)
	msg := &UpdateProfileMsg{
		UserID:   userID,
		Username: patch.Username,
		Bio:      patch.Bio,
		Avatar:   patch.Avatar,
		Deadline: deadline,
	}
	result, err := d.request(d.users, msg, deadline, "UserSupervisor")
	if err != nil {
		return nil, err
	}
	user, ok := result.(*models.User)
	if !ok {
		return nil, unexpected("UserSupervisor", result)
	}
	return user, nil
}

// PostActorCount reports how many per-post actors are alive.
func (d *Dispatcher) PostActorCount(ctx context.Context) (int, error) {
	deadline := d.deadline(ctx)
	result, err := d.request(d.posts, &GetCountsMsg{}, deadline, "PostSupervisor")
	if err != nil {
		return 0, err
	}
	count, ok := result.(int)
	if !ok {
		return 0, unexpected("PostSupervisor", result)
	}
	return count, nil
}

// Stop shuts both supervisors down, waiting for in-flight messages.
func (d *Dispatcher) Stop() {
	d.system.Root.Poison(d.posts)
	d.system.Root.Poison(d.users)
}
