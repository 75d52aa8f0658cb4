package service

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminSecret is the shared secret for the issuance endpoint. It is fixed at
// startup; a bcrypt hash may be configured instead of the plain value.
type AdminSecret struct {
	value  []byte
	hashed bool
}

func NewAdminSecret(secret string) AdminSecret {
	return AdminSecret{
		value:  []byte(secret),
		hashed: isBcryptHash(secret),
	}
}

// Enabled is false when no secret is configured; issuance is then refused.
func (s AdminSecret) Enabled() bool {
	return len(s.value) > 0
}

// Matches compares presented against the configured secret in constant time.
func (s AdminSecret) Matches(presented string) bool {
	if !s.Enabled() || presented == "" {
		return false
	}
	if s.hashed {
		return bcrypt.CompareHashAndPassword(s.value, []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare(s.value, []byte(presented)) == 1
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
