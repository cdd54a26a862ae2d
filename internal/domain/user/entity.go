// Package user contains the learner account. Fields are unexported: a User can
// only be built through NewUser or Restore and changed through validated setters.
package user

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
)

// Age bounds for learners.
const (
	MinAge = 5
	MaxAge = 12

	MinPasswordLength = 8

	MaxDisplayNameLength = 100
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

var (
	ErrInvalidUsername = shared.NewDomainError("user", "Validate", shared.ErrValidation, "username must be 3-32 characters of a-z, 0-9 or _")
	ErrInvalidEmail    = shared.NewDomainError("user", "Validate", shared.ErrValidation, "invalid email address")
	ErrInvalidAge      = shared.NewDomainError("user", "Validate", shared.ErrValueOutOfRange, "age must be between 5 and 12")
	ErrInvalidName     = shared.NewDomainError("user", "SetDisplayName", shared.ErrValidation, "display name must be 1-100 characters")
	ErrWeakPassword    = shared.NewDomainError("user", "SetPassword", shared.ErrValidation, "password must be at least 8 characters")
	ErrWrongPassword   = shared.NewDomainError("user", "CheckPassword", shared.ErrInvalidInput, "password does not match")
	ErrNoPassword      = shared.NewDomainError("user", "CheckPassword", shared.ErrInvalidInput, "no password set")
)

// User is a registered learner.
type User struct {
	id           string
	username     string
	email        string
	displayName  string
	age          int
	parentEmail  string
	passwordHash string
	createdAt    time.Time
}

// NewUserParams holds the fields required to register a learner.
type NewUserParams struct {
	Username    string
	Email       string
	DisplayName string
	Age         int
	ParentEmail string
}

// NewUser validates params and creates a user with a fresh id.
func NewUser(p NewUserParams, now time.Time) (*User, error) {
	u := &User{id: uuid.NewString(), createdAt: now.UTC()}

	username := strings.ToLower(strings.TrimSpace(p.Username))
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	u.username = username

	if err := u.SetEmail(p.Email); err != nil {
		return nil, err
	}
	if err := u.SetParentEmail(p.ParentEmail); err != nil {
		return nil, err
	}
	if err := u.SetAge(p.Age); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = username
	}
	if err := u.SetDisplayName(name); err != nil {
		return nil, err
	}
	return u, nil
}

// Restore rebuilds a user from storage. passwordHash may be empty.
func Restore(id, username, email, displayName string, age int, parentEmail, passwordHash string, createdAt time.Time) (*User, error) {
	if id == "" {
		return nil, shared.ErrEmptyUserID
	}
	return &User{
		id:           id,
		username:     username,
		email:        email,
		displayName:  displayName,
		age:          age,
		parentEmail:  parentEmail,
		passwordHash: passwordHash,
		createdAt:    createdAt,
	}, nil
}

func (u *User) ID() string           { return u.id }
func (u *User) Username() string     { return u.username }
func (u *User) Email() string        { return u.email }
func (u *User) DisplayName() string  { return u.displayName }
func (u *User) Age() int             { return u.age }
func (u *User) ParentEmail() string  { return u.parentEmail }
func (u *User) PasswordHash() string { return u.passwordHash }
func (u *User) CreatedAt() time.Time { return u.createdAt }

// SetDisplayName trims and sets the name shown to the learner.
func (u *User) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return ErrInvalidName
	}
	u.displayName = name
	return nil
}

// SetEmail validates and sets the learner's email.
func (u *User) SetEmail(email string) error {
	addr, err := parseEmail(email)
	if err != nil {
		return err
	}
	u.email = addr
	return nil
}

// SetParentEmail validates and sets the parent's email. Empty clears it.
func (u *User) SetParentEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		u.parentEmail = ""
		return nil
	}
	addr, err := parseEmail(email)
	if err != nil {
		return err
	}
	u.parentEmail = addr
	return nil
}

// SetAge validates and sets the learner's age.
func (u *User) SetAge(age int) error {
	if age < MinAge || age > MaxAge {
		return ErrInvalidAge
	}
	u.age = age
	return nil
}

// SetPassword hashes and stores a new password.
func (u *User) SetPassword(plain string) error {
	if len(plain) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return shared.WrapError("user", "SetPassword", shared.ErrInvalidInput, "failed to hash password", err)
	}
	u.passwordHash = string(hash)
	return nil
}

// CheckPassword compares plain against the stored hash.
func (u *User) CheckPassword(plain string) error {
	if u.passwordHash == "" {
		return ErrNoPassword
	}
	err := bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrWrongPassword
	}
	return err
}

func parseEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// Repository persists users. Implemented by the infrastructure layer.
type Repository interface {
	// Create stores a new user; ErrAlreadyExists on a duplicate id or username.
	Create(ctx context.Context, u *User) error

	// GetByID loads a user; ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*User, error)

	// Update stores changed profile fields; ErrNotFound if absent.
	Update(ctx context.Context, u *User) error
}
