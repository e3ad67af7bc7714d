package engine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"
)

const (
	maxUsernameLength = 50
	maxBioLength      = 280
)

// NewUser is a registration request.
type NewUser struct {
	Username string
	Bio      string
	Avatar   models.Avatar
}

// UserPatch changes a user's profile. Nil fields are left alone.
type UserPatch struct {
	Username *string
	Bio      *string
	Avatar   *models.Avatar
}

func validateUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" {
		return "", utils.NewValidationError("Username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return "", utils.NewValidationError("Username must be at most %d characters", maxUsernameLength)
	}
	return username, nil
}

func validateBio(bio string) error {
	if utf8.RuneCountInString(bio) > maxBioLength {
		return utils.NewValidationError("Bio must be at most %d characters", maxBioLength)
	}
	return nil
}

func validateAvatar(avatar models.Avatar) error {
	if !avatar.Valid() {
		return utils.NewValidationError("Invalid avatar %q", avatar)
	}
	return nil
}

// CreateUser registers a new user with zeroed counters.
func (e *Engine) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	defer e.observe("create_user", time.Now())

	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	if err := validateBio(in.Bio); err != nil {
		return nil, err
	}
	if in.Avatar == "" {
		in.Avatar = models.DefaultAvatar
	}
	if err := validateAvatar(in.Avatar); err != nil {
		return nil, err
	}

	if _, err := e.store.GetUserByUsername(ctx, username); err == nil {
		return nil, utils.NewDuplicateUsernameError(username)
	} else if !utils.IsNotFound(err) {
		return nil, err
	}

	ctx, cancel, err := e.commit(ctx, "create_user")
	if err != nil {
		return nil, err
	}
	defer cancel()

	id, err := e.store.NextID(ctx, models.KindUser)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:       id,
		Username: username,
		Bio:      in.Bio,
		Avatar:   in.Avatar,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	e.logger.Info("user registered", "userId", id, "username", username)
	return user, nil
}

func (e *Engine) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return e.store.GetUser(ctx, userID)
}

// UpdateUser applies a profile patch. Scores and counters cannot be changed here.
func (e *Engine) UpdateUser(ctx context.Context, userID int64, patch UserPatch) (*models.User, error) {
	defer e.observe("update_user", time.Now())

	var username string
	if patch.Username != nil {
		var err error
		if username, err = validateUsername(*patch.Username); err != nil {
			return nil, err
		}
	}
	if patch.Bio != nil {
		if err := validateBio(*patch.Bio); err != nil {
			return nil, err
		}
	}
	if patch.Avatar != nil {
		if err := validateAvatar(*patch.Avatar); err != nil {
			return nil, err
		}
	}

	ctx, cancel, err := e.commit(ctx, "update_user")
	if err != nil {
		return nil, err
	}
	defer cancel()

	return e.store.UpdateUser(ctx, userID, func(u *models.User) error {
		if patch.Username != nil {
			u.Username = username
		}
		if patch.Bio != nil {
			u.Bio = *patch.Bio
		}
		if patch.Avatar != nil {
			u.Avatar = *patch.Avatar
		}
		return nil
	})
}
