package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	APIKeyStatusActive  = "active"
	APIKeyStatusRevoked = "revoked"

	apiKeyNameMaxLength = 200
	apiKeyHashMaxLength = 64
)

var (
	ErrInvalidAPIKeyUserID = errors.New("invalid_api_key_user_id")
	ErrInvalidAPIKeyName   = errors.New("invalid_api_key_name")
	ErrInvalidAPIKeyHash   = errors.New("invalid_api_key_hash")
	ErrInvalidAPIKeyStatus = errors.New("invalid_api_key_status")
)

// APIKey stores a one-way hash of a developer key. The raw value is shown
// exactly once at creation and never persisted.
type APIKey struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     string    `gorm:"index;not null;size:36"`
	KeyHash    string    `gorm:"not null;size:64;uniqueIndex"`
	Name       string    `gorm:"not null;size:200"`
	Status     string    `gorm:"not null;size:16;index"`
	LastUsedAt time.Time
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// APIKeyInput holds the raw values used to construct an APIKey.
type APIKeyInput struct {
	UserID  string
	KeyHash string
	Name    string
}

// NewAPIKey constructs an APIKey with validated, normalized fields.
func NewAPIKey(input APIKeyInput) (APIKey, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return APIKey{}, ErrInvalidAPIKeyUserID
	}

	keyHash := strings.TrimSpace(input.KeyHash)
	if keyHash == "" || len(keyHash) > apiKeyHashMaxLength {
		return APIKey{}, ErrInvalidAPIKeyHash
	}

	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > apiKeyNameMaxLength {
		return APIKey{}, fmt.Errorf("%w: empty or too long", ErrInvalidAPIKeyName)
	}

	return APIKey{
		ID:      uuid.NewString(),
		UserID:  userID,
		KeyHash: keyHash,
		Name:    name,
		Status:  APIKeyStatusActive,
	}, nil
}
