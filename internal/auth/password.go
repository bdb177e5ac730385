package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 72
)

var (
	ErrPasswordTooShort = errors.New("password_too_short")
	ErrPasswordTooLong  = errors.New("password_too_long")
)

// HashPassword derives a bcrypt hash for storage.
func HashPassword(plainPassword string) (string, error) {
	if len(plainPassword) < passwordMinLength {
		return "", ErrPasswordTooShort
	}
	if len(plainPassword) > passwordMaxLength {
		return "", ErrPasswordTooLong
	}
	hashed, hashErr := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if hashErr != nil {
		return "", hashErr
	}
	return string(hashed), nil
}

// CheckPassword reports whether the plain password matches the stored hash.
func CheckPassword(storedHash string, plainPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plainPassword)) == nil
}
