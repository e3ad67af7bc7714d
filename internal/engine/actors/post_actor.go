package actors

import (
	stdctx "context"
	"log/slog"
	"time"

	"fresh-hub/internal/engine"
	"fresh-hub/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Message types for Post operations
type (
	// ToggleLikeMsg is refused untouched when it is dequeued after Deadline.
	ToggleLikeMsg struct {
		PostID   int64
		UserID   int64
		Deadline time.Time
	}

	GetCountsMsg struct{}

	// postIdleMsg is sent by a PostActor that has received nothing for the
	// idle timeout.
	postIdleMsg struct {
		PostID int64
		PID    *actor.PID
	}
)

// requestContext returns a context bounded by deadline, or an ACTOR_TIMEOUT
// error when the deadline has already passed and nothing may be written.
func requestContext(deadline time.Time, name string) (stdctx.Context, stdctx.CancelFunc, *utils.AppError) {
	if !time.Now().Before(deadline) {
		return nil, nil, utils.NewActorTimeoutError(name, stdctx.DeadlineExceeded)
	}
	ctx, cancel := stdctx.WithDeadline(stdctx.Background(), deadline)
	return ctx, cancel, nil
}

// PostSupervisor owns one PostActor per post and forwards like toggles to it,
// so toggles on the same post run one at a time. It does nothing else, so a
// slow toggle on one post never holds up another.
type PostSupervisor struct {
	engine      *engine.Engine
	postActors  map[int64]*actor.PID
	idleTimeout time.Duration
	logger      *slog.Logger
}

func NewPostSupervisor(eng *engine.Engine, idleTimeout time.Duration, logger *slog.Logger) actor.Actor {
	return &PostSupervisor{
		engine:      eng,
		postActors:  make(map[int64]*actor.PID),
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

func (s *PostSupervisor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		s.logger.Debug("PostSupervisor started")

	case *ToggleLikeMsg:
		pid, err := s.getOrCreatePostActor(context, msg)
		if err != nil {
			context.Respond(err)
			return
		}
		// The child answers the original requester.
		context.Forward(pid)

	case *GetCountsMsg:
		context.Respond(len(s.postActors))

	case *postIdleMsg:
		// Poison queues behind toggles already forwarded, so none are lost.
		// Later toggles for the post get a fresh child.
		if pid, ok := s.postActors[msg.PostID]; ok && pid.Id == msg.PID.Id {
			delete(s.postActors, msg.PostID)
			context.Poison(pid)
		}

	case *actor.Terminated:
		for id, pid := range s.postActors {
			if pid.Id == msg.Who.Id {
				delete(s.postActors, id)
				break
			}
		}
	}
}

// getOrCreatePostActor spawns a child only for posts that exist. Posts are
// never deleted, so a spawned child stays valid.
func (s *PostSupervisor) getOrCreatePostActor(context actor.Context, msg *ToggleLikeMsg) (*actor.PID, *utils.AppError) {
	if pid, exists := s.postActors[msg.PostID]; exists {
		return pid, nil
	}

	ctx, cancel, appErr := requestContext(msg.Deadline, "PostSupervisor")
	if appErr != nil {
		return nil, appErr
	}
	defer cancel()
	if _, err := s.engine.GetPost(ctx, msg.PostID); err != nil {
		return nil, utils.AsAppError(err)
	}

	postID := msg.PostID
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPostActor(postID, s.engine, s.idleTimeout, s.logger)
	})
	pid := context.Spawn(props)
	s.postActors[postID] = pid
	return pid, nil
}

// PostActor applies like toggles for a single post in arrival order.
type PostActor struct {
	postID      int64
	engine      *engine.Engine
	idleTimeout time.Duration
	logger      *slog.Logger
}

func NewPostActor(postID int64, eng *engine.Engine, idleTimeout time.Duration, logger *slog.Logger) *PostActor {
	return &PostActor{
		postID:      postID,
		engine:      eng,
		idleTimeout: idleTimeout,
		logger:      logger.With("postId", postID),
	}
}

func (a *PostActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Debug("PostActor started")
		if a.idleTimeout > 0 {
			context.SetReceiveTimeout(a.idleTimeout)
		}

	case *actor.ReceiveTimeout:
		context.CancelReceiveTimeout()
		context.Send(context.Parent(), &postIdleMsg{PostID: a.postID, PID: context.Self()})

	case *ToggleLikeMsg:
		ctx, cancel, appErr := requestContext(msg.Deadline, "PostActor")
		if appErr != nil {
			a.logger.Warn("toggle like dropped after deadline", "userId", msg.UserID)
			context.Respond(appErr)
			return
		}
		defer cancel()

		post, err := a.engine.ToggleLike(ctx, a.postID, msg.UserID)
		if err != nil {
			a.logger.Warn("toggle like failed", "userId", msg.UserID, "error", err)
			context.Respond(utils.AsAppError(err))
			return
		}
		context.Respond(post)
	}
}
