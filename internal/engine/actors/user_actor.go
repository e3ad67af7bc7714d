package actors

import (
	"log/slog"
	"time"

	"fresh-hub/internal/engine"
	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

type (
	RegisterUserMsg struct {
		Username string
		Bio      string
		Avatar   models.Avatar
		Deadline time.Time
	}

	UpdateProfileMsg struct {
		UserID   int64
		Username *string
		Bio      *string
		Avatar   *models.Avatar
		Deadline time.Time
	}
)

// UserSupervisor handles registrations and profile edits one at a time, so
// the username check and the insert cannot interleave within a process.
type UserSupervisor struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewUserSupervisor(eng *engine.Engine, logger *slog.Logger) actor.Actor {
	return &UserSupervisor{
		engine: eng,
		logger: logger,
	}
}

func (s *UserSupervisor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		s.logger.Debug("UserSupervisor started")

	case *RegisterUserMsg:
		ctx, cancel, appErr := requestContext(msg.Deadline, "UserSupervisor")
		if appErr != nil {
			context.Respond(appErr)
			return
		}
		defer cancel()

		user, err := s.engine.CreateUser(ctx, engine.NewUser{
			Username: msg.Username,
			Bio:      msg.Bio,
			Avatar:   msg.Avatar,
		})
		if err != nil {
			s.logger.Debug("registration rejected", "username", msg.Username, "error", err)
			context.Respond(utils.AsAppError(err))
			return
		}
		context.Respond(user)

	case *UpdateProfileMsg:
		ctx, cancel, appErr := requestContext(msg.Deadline, "UserSupervisor")
		if appErr != nil {
			context.Respond(appErr)
			return
		}
		defer cancel()

		user, err := s.engine.UpdateUser(ctx, msg.UserID, engine.UserPatch{
			Username: msg.Username,
			Bio:      msg.Bio,
			Avatar:   msg.Avatar,
		})
		if err != nil {
			context.Respond(utils.AsAppError(err))
			return
		}
		context.Respond(user)
	}
}
