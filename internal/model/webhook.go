package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	WebhookStatusActive   = "active"
	WebhookStatusDisabled = "disabled"

	webhookURLMaxLength    = 500
	webhookSecretMaxLength = 100
)

var (
	ErrInvalidWebhookFormID = errors.New("invalid_webhook_form_id")
	ErrInvalidWebhookURL    = errors.New("invalid_webhook_url")
	ErrInvalidWebhookSecret = errors.New("invalid_webhook_secret")
	ErrInvalidWebhookStatus = errors.New("invalid_webhook_status")
)

// Webhook is a customer-registered destination notified on new submissions via
// signed HTTP POST. The signing secret is generated once at creation and never
// rotated in place.
type Webhook struct {
	ID        string    `gorm:"primaryKey;size:36"`
	FormID    string    `gorm:"index;not null;size:36"`
	URL       string    `gorm:"not null;size:500"`
	Secret    string    `gorm:"not null;size:100"`
	Status    string    `gorm:"not null;size:16;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// WebhookInput holds the raw values used to construct a Webhook.
type WebhookInput struct {
	FormID string
	URL    string
	Secret string
	Status string
}

// NewWebhook constructs a Webhook with validated, normalized fields.
func NewWebhook(input WebhookInput) (Webhook, error) {
	formID := strings.TrimSpace(input.FormID)
	if formID == "" {
		return Webhook{}, ErrInvalidWebhookFormID
	}

	destinationURL := strings.TrimSpace(input.URL)
	if err := validateWebhookURL(destinationURL); err != nil {
		return Webhook{}, err
	}

	secret := strings.TrimSpace(input.Secret)
	if secret == "" || len(secret) > webhookSecretMaxLength {
		return Webhook{}, ErrInvalidWebhookSecret
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = WebhookStatusActive
	}
	if err := ValidateWebhookStatus(status); err != nil {
		return Webhook{}, err
	}

	return Webhook{
		ID:     uuid.NewString(),
		FormID: formID,
		URL:    destinationURL,
		Secret: secret,
		Status: status,
	}, nil
}

// ValidateWebhookStatus reports whether status names a known webhook state.
func ValidateWebhookStatus(status string) error {
	switch status {
	case WebhookStatusActive, WebhookStatusDisabled:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidWebhookStatus, status)
	}
}

func validateWebhookURL(rawURL string) error {
	if rawURL == "" || len(rawURL) > webhookURLMaxLength {
		return fmt.Errorf("%w: empty or too long", ErrInvalidWebhookURL)
	}
	parsedURL, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookURL, parseErr)
	}
	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidWebhookURL)
	}
	if strings.TrimSpace(parsedURL.Host) == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidWebhookURL)
	}
	return nil
}
