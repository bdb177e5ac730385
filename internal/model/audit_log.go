package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Admin actions recorded in the audit log.
const (
	AuditActionBlockUser    = "BLOCK_USER"
	AuditActionUnblockUser  = "UNBLOCK_USER"
	AuditActionRevokeAPIKey = "REVOKE_API_KEY"
	AuditActionChangeRole   = "CHANGE_ROLE"
	AuditActionDeleteForm   = "DELETE_FORM"

	AuditTargetUser   = "user"
	AuditTargetAPIKey = "api_key"
	AuditTargetForm   = "form"
)

var (
	ErrInvalidAuditActor  = errors.New("invalid_audit_actor")
	ErrInvalidAuditAction = errors.New("invalid_audit_action")
	ErrInvalidAuditTarget = errors.New("invalid_audit_target")
)

// AuditLog is an append-only record of an administrative action. Entries are
// never updated or deleted.
type AuditLog struct {
	ID          string    `gorm:"primaryKey;size:36"`
	AdminUserID string    `gorm:"index;not null;size:36"`
	Action      string    `gorm:"not null;size:50"`
	TargetType  string    `gorm:"not null;size:20"`
	TargetID    string    `gorm:"not null;size:36"`
	Metadata    string    `gorm:"size:2000"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// AuditLogInput holds the raw values used to construct an AuditLog entry.
type AuditLogInput struct {
	AdminUserID string
	Action      string
	TargetType  string
	TargetID    string
	Metadata    map[string]string
}

// NewAuditLog constructs an AuditLog entry with validated fields.
func NewAuditLog(input AuditLogInput) (AuditLog, error) {
	adminUserID := strings.TrimSpace(input.AdminUserID)
	if adminUserID == "" {
		return AuditLog{}, ErrInvalidAuditActor
	}

	action := strings.TrimSpace(input.Action)
	if action == "" {
		return AuditLog{}, ErrInvalidAuditAction
	}

	targetType := strings.TrimSpace(input.TargetType)
	targetID := strings.TrimSpace(input.TargetID)
	if targetType == "" || targetID == "" {
		return AuditLog{}, ErrInvalidAuditTarget
	}

	encodedMetadata := "{}"
	if len(input.Metadata) > 0 {
		encoded, marshalErr := json.Marshal(input.Metadata)
		if marshalErr != nil {
			return AuditLog{}, marshalErr
		}
		encodedMetadata = string(encoded)
	}

	return AuditLog{
		ID:          uuid.NewString(),
		AdminUserID: adminUserID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    encodedMetadata,
	}, nil
}
