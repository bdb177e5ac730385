package model

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"

	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"

	userEmailMaxLength = 320
	userNameMaxLength  = 200
)

var (
	ErrInvalidUserEmail  = errors.New("invalid_user_email")
	ErrInvalidUserName   = errors.New("invalid_user_name")
	ErrInvalidUserRole   = errors.New("invalid_user_role")
	ErrInvalidUserStatus = errors.New("invalid_user_status")
	ErrMissingUserSecret = errors.New("missing_user_password_hash")
)

// User is a dashboard account owning forms and API keys.
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Name         string    `gorm:"size:200"`
	Email        string    `gorm:"not null;size:320;uniqueIndex"`
	PasswordHash string    `gorm:"not null;size:100"`
	Role         string    `gorm:"not null;size:16"`
	Status       string    `gorm:"not null;size:16;index"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// UserInput holds the raw values used to construct a User.
type UserInput struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Status       string
}

// NewUser constructs a User with validated, normalized fields.
func NewUser(input UserInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || len(email) > userEmailMaxLength {
		return User{}, fmt.Errorf("%w: empty or too long", ErrInvalidUserEmail)
	}
	if _, parseErr := mail.ParseAddress(email); parseErr != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidUserEmail, parseErr)
	}

	name := strings.TrimSpace(input.Name)
	if len(name) > userNameMaxLength {
		return User{}, fmt.Errorf("%w: too long", ErrInvalidUserName)
	}

	passwordHash := strings.TrimSpace(input.PasswordHash)
	if passwordHash == "" {
		return User{}, ErrMissingUserSecret
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = UserRoleUser
	}
	if role != UserRoleUser && role != UserRoleAdmin {
		return User{}, fmt.Errorf("%w: %s", ErrInvalidUserRole, role)
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = UserStatusActive
	}
	if status != UserStatusActive && status != UserStatusBlocked {
		return User{}, fmt.Errorf("%w: %s", ErrInvalidUserStatus, status)
	}

	return User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       status,
	}, nil
}
