package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	FormStatusActive   = "active"
	FormStatusPaused   = "paused"
	FormStatusTestMode = "test_mode"
	FormStatusRevoked  = "revoked"

	formNameMaxLength       = 200
	formSettingsMaxLength   = 4000
	formTemplateIDMaxLength = 100
)

var (
	ErrInvalidFormOwnerID  = errors.New("invalid_form_owner_id")
	ErrInvalidFormName     = errors.New("invalid_form_name")
	ErrInvalidFormStatus   = errors.New("invalid_form_status")
	ErrFormRevokedTerminal = errors.New("form_revoked_terminal")
)

// Form is a configured submission endpoint owned by a user.
type Form struct {
	ID         string `gorm:"primaryKey;size:36"`
	OwnerID    string `gorm:"index;not null;size:36"`
	Name       string `gorm:"not null;size:200"`
	Status     string `gorm:"not null;size:16;index"`
	Settings   string `gorm:"size:4000"`
	TemplateID string `gorm:"size:100"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// FormSettings captures the dashboard-configurable behavior of a form.
type FormSettings struct {
	SuccessURL         string `json:"success_url,omitempty"`
	EmailNotifications bool   `json:"email_notifications,omitempty"`
}

// FormInput holds the raw values used to construct a Form.
type FormInput struct {
	OwnerID    string
	Name       string
	Status     string
	Settings   FormSettings
	TemplateID string
}

// NewForm constructs a Form with validated, normalized fields.
func NewForm(input FormInput) (Form, error) {
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return Form{}, ErrInvalidFormOwnerID
	}

	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > formNameMaxLength {
		return Form{}, fmt.Errorf("%w: empty or too long", ErrInvalidFormName)
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = FormStatusActive
	}
	if err := validateFormStatus(status); err != nil {
		return Form{}, err
	}

	templateID := strings.TrimSpace(input.TemplateID)
	if len(templateID) > formTemplateIDMaxLength {
		return Form{}, fmt.Errorf("%w: template id too long", ErrInvalidFormName)
	}

	encodedSettings, encodeErr := EncodeFormSettings(input.Settings)
	if encodeErr != nil {
		return Form{}, encodeErr
	}

	return Form{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		Status:     status,
		Settings:   encodedSettings,
		TemplateID: templateID,
	}, nil
}

// TransitionStatus validates a status change. Revoked is terminal: once a form
// is revoked no transition out of it is permitted.
func (form Form) TransitionStatus(targetStatus string) (string, error) {
	normalizedTarget := strings.TrimSpace(targetStatus)
	if err := validateFormStatus(normalizedTarget); err != nil {
		return "", err
	}
	if form.Status == FormStatusRevoked && normalizedTarget != FormStatusRevoked {
		return "", ErrFormRevokedTerminal
	}
	return normalizedTarget, nil
}

// AcceptsSubmissions reports whether the submission pipeline may persist for
// this form. Paused and revoked forms reject writes.
func (form Form) AcceptsSubmissions() bool {
	return form.Status == FormStatusActive || form.Status == FormStatusTestMode
}

// ParsedSettings decodes the stored settings JSON. A blank or malformed value
// yields zero settings rather than an error so that a corrupt row cannot take
// the ingest pipeline down.
func (form Form) ParsedSettings() FormSettings {
	trimmed := strings.TrimSpace(form.Settings)
	if trimmed == "" {
		return FormSettings{}
	}
	var settings FormSettings
	if unmarshalErr := json.Unmarshal([]byte(trimmed), &settings); unmarshalErr != nil {
		return FormSettings{}
	}
	return settings
}

// SuccessRedirectURL returns the dashboard-configured success URL, or empty.
func (form Form) SuccessRedirectURL() string {
	return strings.TrimSpace(form.ParsedSettings().SuccessURL)
}

// EncodeFormSettings serializes settings for storage.
func EncodeFormSettings(settings FormSettings) (string, error) {
	encoded, marshalErr := json.Marshal(settings)
	if marshalErr != nil {
		return "", marshalErr
	}
	if len(encoded) > formSettingsMaxLength {
		return "", fmt.Errorf("%w: settings too long", ErrInvalidFormName)
	}
	return string(encoded), nil
}

func validateFormStatus(status string) error {
	switch status {
	case FormStatusActive, FormStatusPaused, FormStatusTestMode, FormStatusRevoked:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFormStatus, status)
	}
}
