package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTokenTTL = 24 * time.Hour

var (
	ErrMissingTokenSecret = errors.New("missing_token_secret")
	ErrInvalidToken       = errors.New("invalid_token")
)

// SessionClaims are the dashboard session claims carried by a signed token.
type SessionClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies dashboard session tokens.
type TokenManager struct {
	secret   string
	tokenTTL time.Duration
}

// NewTokenManager creates a TokenManager with the provided signing secret.
func NewTokenManager(secret string, tokenTTL time.Duration) (*TokenManager, error) {
	normalizedSecret := strings.TrimSpace(secret)
	if normalizedSecret == "" {
		return nil, ErrMissingTokenSecret
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultSessionTokenTTL
	}
	return &TokenManager{secret: normalizedSecret, tokenTTL: tokenTTL}, nil
}

// IssueToken signs a session token for the given user.
func (manager *TokenManager) IssueToken(userID string, email string, role string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(manager.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(manager.secret))
}

// ParseToken verifies a session token and returns its claims.
func (manager *TokenManager) ParseToken(tokenValue string) (*SessionClaims, error) {
	token, parseErr := jwt.ParseWithClaims(strings.TrimSpace(tokenValue), &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, isHMAC := token.Method.(*jwt.SigningMethodHMAC); !isHMAC {
			return nil, ErrInvalidToken
		}
		return []byte(manager.secret), nil
	})
	if parseErr != nil {
		return nil, parseErr
	}

	claims, claimsOK := token.Claims.(*SessionClaims)
	if !claimsOK || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
