package command

import (
	"context"

	"github.com/youlearn/youlearn-progress/internal/application/query"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// UpdateProfileCommand changes the editable account fields. Nil fields are
// left as they are; an empty ParentEmail clears it.
type UpdateProfileCommand struct {
	UserID      string
	DisplayName *string
	Email       *string
	Age         *int
	ParentEmail *string

	// NewPassword replaces the password. CurrentPassword must match when
	// one is already set.
	CurrentPassword string
	NewPassword     string
}

// UpdateProfileHandler handles UpdateProfileCommand.
type UpdateProfileHandler struct {
	deps Deps
	log  *logger.Logger
}

// NewUpdateProfileHandler creates a new UpdateProfileHandler.
func NewUpdateProfileHandler(deps Deps) *UpdateProfileHandler {
	deps = deps.withDefaults()
	return &UpdateProfileHandler{deps: deps, log: deps.Logger.With(logger.Component("update_profile"))}
}

// Handle applies the changes through the user's setters and stores them.
func (h *UpdateProfileHandler) Handle(ctx context.Context, cmd UpdateProfileCommand) (*query.Profile, error) {
	if cmd.UserID == "" {
		return nil, shared.ErrEmptyUserID
	}

	var out *query.Profile
	err := h.deps.Store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().GetByID(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		if err := applyProfile(u, cmd); err != nil {
			return err
		}
		if err := tx.Users().Update(ctx, u); err != nil {
			return err
		}
		out = query.ProfileOf(u)
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("profile updated", logger.UserID(cmd.UserID), logger.Bool("password_changed", cmd.NewPassword != ""))
	return out, nil
}

func applyProfile(u *user.User, cmd UpdateProfileCommand) error {
	if cmd.DisplayName != nil {
		if err := u.SetDisplayName(*cmd.DisplayName); err != nil {
			return err
		}
	}
	if cmd.Email != nil {
		if err := u.SetEmail(*cmd.Email); err != nil {
			return err
		}
	}
	if cmd.Age != nil {
		if err := u.SetAge(*cmd.Age); err != nil {
			return err
		}
	}
	if cmd.ParentEmail != nil {
		if err := u.SetParentEmail(*cmd.ParentEmail); err != nil {
			return err
		}
	}
	if cmd.NewPassword == "" {
		return nil
	}
	if u.PasswordHash() != "" {
		if err := u.CheckPassword(cmd.CurrentPassword); err != nil {
			return err
		}
	}
	return u.SetPassword(cmd.NewPassword)
}
