package query

import (
	"context"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
)

// Profile is the public view of a learner account.
type Profile struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Age         int       `json:"age"`
	ParentEmail string    `json:"parent_email,omitempty"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProfileOf builds the view for u.
func ProfileOf(u *user.User) *Profile {
	return &Profile{
		UserID:      u.ID(),
		Username:    u.Username(),
		Email:       u.Email(),
		DisplayName: u.DisplayName(),
		Age:         u.Age(),
		ParentEmail: u.ParentEmail(),
		HasPassword: u.PasswordHash() != "",
		CreatedAt:   u.CreatedAt(),
	}
}

// GetProfileHandler loads a learner's profile.
type GetProfileHandler struct {
	store store.Store
}

// NewGetProfileHandler creates a new GetProfileHandler.
func NewGetProfileHandler(st store.Store) *GetProfileHandler {
	return &GetProfileHandler{store: st}
}

// Handle executes the query.
func (h *GetProfileHandler) Handle(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, shared.ErrEmptyUserID
	}
	var out *Profile
	err := h.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		out = ProfileOf(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
