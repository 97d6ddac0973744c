package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPassword is returned for passwords that are empty or contain
// anything but ASCII letters and digits.
var ErrInvalidPassword = errors.New("password must be non-empty ASCII letters and digits")

// ValidatePassword checks the admin password rules.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrInvalidPassword
	}
	for _, c := range password {
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum {
			return ErrInvalidPassword
		}
	}
	return nil
}

// HashPassword validates and bcrypt-hashes a new admin password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a hash from HashPassword.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
