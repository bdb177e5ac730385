package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix marks raw developer keys so they are recognizable in
	// Authorization headers and support dumps without storing the raw value.
	APIKeyPrefix = "fv_"
	// WebhookSecretPrefix marks per-webhook signing secrets.
	WebhookSecretPrefix = "whsec_"

	apiKeyRandomBytes        = 20
	webhookSecretRandomBytes = 16
)

// GenerateAPIKey returns a new raw developer key and the hex SHA-256 hash that
// is persisted in its place. The raw value is shown exactly once.
func GenerateAPIKey() (rawKey string, keyHash string, err error) {
	randomSuffix, randomErr := randomHex(apiKeyRandomBytes)
	if randomErr != nil {
		return "", "", fmt.Errorf("generate api key: %w", randomErr)
	}
	rawKey = APIKeyPrefix + randomSuffix
	return rawKey, HashAPIKey(rawKey), nil
}

// HashAPIKey computes the hex SHA-256 digest stored for a raw key. The key
// itself is high entropy, so no salt is required.
func HashAPIKey(rawKey string) string {
	digest := sha256.Sum256([]byte(strings.TrimSpace(rawKey)))
	return hex.EncodeToString(digest[:])
}

// MatchAPIKey compares a raw key against a stored hash in constant time.
func MatchAPIKey(rawKey string, storedHash string) bool {
	return hmac.Equal([]byte(HashAPIKey(rawKey)), []byte(strings.TrimSpace(storedHash)))
}

// GenerateWebhookSecret returns a new per-webhook signing secret. It is
// persisted as-is because the dispatcher needs the raw value to sign payloads.
func GenerateWebhookSecret() (string, error) {
	randomSuffix, randomErr := randomHex(webhookSecretRandomBytes)
	if randomErr != nil {
		return "", fmt.Errorf("generate webhook secret: %w", randomErr)
	}
	return WebhookSecretPrefix + randomSuffix, nil
}

func randomHex(byteCount int) (string, error) {
	buffer := make([]byte, byteCount)
	if _, readErr := rand.Read(buffer); readErr != nil {
		return "", readErr
	}
	return hex.EncodeToString(buffer), nil
}
