package command

import (
	"context"

	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// RegisterUserCommand creates a learner with a zeroed progression.
type RegisterUserCommand struct {
	Username    string
	Email       string
	DisplayName string
	Age         int
	ParentEmail string

	// Password is optional; when set it is hashed before storage.
	Password string
}

// RegisterUserResult contains the new user's id.
type RegisterUserResult struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Level    int    `json:"level"`
	TotalXP  int    `json:"total_xp"`
}

// RegisterUserHandler handles RegisterUserCommand.
type RegisterUserHandler struct {
	deps Deps
	log  *logger.Logger
}

// NewRegisterUserHandler creates a new RegisterUserHandler.
func NewRegisterUserHandler(deps Deps) *RegisterUserHandler {
	deps = deps.withDefaults()
	return &RegisterUserHandler{deps: deps, log: deps.Logger.With(logger.Component("register_user"))}
}

// Handle validates the user, then stores user and progression atomically.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*RegisterUserResult, error) {
	now := h.deps.Clock.Now()

	u, err := user.NewUser(user.NewUserParams{
		Username:    cmd.Username,
		Email:       cmd.Email,
		DisplayName: cmd.DisplayName,
		Age:         cmd.Age,
		ParentEmail: cmd.ParentEmail,
	}, now)
	if err != nil {
		return nil, err
	}
	if cmd.Password != "" {
		if err := u.SetPassword(cmd.Password); err != nil {
			return nil, err
		}
	}

	state, err := progression.NewState(u.ID(), now)
	if err != nil {
		return nil, err
	}

	err = h.deps.Store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		return tx.Progress().Create(ctx, state)
	})
	if err != nil {
		return nil, err
	}

	if h.deps.Publisher != nil {
		if err := h.deps.Publisher.Publish(shared.NewUserRegisteredEvent(u.ID(), u.Username(), now)); err != nil {
			h.log.Warn("failed to publish registration", logger.UserID(u.ID()), logger.Err(err))
		}
	}
	h.log.Info("user registered", logger.UserID(u.ID()), logger.String("username", u.Username()))

	return &RegisterUserResult{
		UserID:   u.ID(),
		Username: u.Username(),
		Level:    state.Level(),
		TotalXP:  state.CumulativeXP(),
	}, nil
}
