package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func HashOrRead(secret string) ([]byte, error) {
	if strings.HasPrefix(secret, "$2a$") || strings.HasPrefix(secret, "$2b$") || strings.HasPrefix(secret, "$2y$") {
		return []byte(secret), nil // already bcrypt
	}
	return bcrypt.GenerateFromPassword([]byte(secret), 10)
}

// CompareSecret reports whether plain matches the bcrypt hash.
func CompareSecret(hash []byte, plain string) bool {
	if len(hash) == 0 || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}
