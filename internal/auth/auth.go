// Package auth manages the bearer token that guards the issuer's HTTP API.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ovpn-issuer/internal/settings"
)

// bcryptCost is the work factor used when hashing tokens.
// Tests lower it to bcrypt.MinCost.
var bcryptCost = bcrypt.DefaultCost

// Manager handles API token generation and validation.
// Only the token's bcrypt hash is persisted, inside the Settings struct.
type Manager struct {
	settings *settings.Manager
	now      func() time.Time
}

// NewManager creates an auth manager backed by the provided settings manager.
func NewManager(sm *settings.Manager) *Manager {
	return &Manager{settings: sm, now: time.Now}
}

// EnsureToken creates a token on first run. The plain token is returned only when it was
// generated by this call; otherwise token is empty.
func (m *Manager) EnsureToken() (token string, created bool, err error) {
	s, err := m.settings.Get()
	if err != nil {
		return "", false, err
	}
	if s.AuthTokenHash != "" {
		return "", false, nil
	}
	token, err = m.RotateToken()
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// RotateToken creates a new random API token, persists its hash, and returns it.
// The previous token stops working immediately.
func (m *Manager) RotateToken() (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := m.SetToken(token); err != nil {
		return "", err
	}
	return token, nil
}

// SetToken stores the hash of a caller-supplied token.
func (m *Manager) SetToken(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	if err != nil {
		return err
	}
	return m.settings.Update(func(s *settings.Settings) error {
		s.AuthTokenHash = string(hash)
		s.AuthTokenRotated = m.now().UTC()
		return nil
	})
}

// ValidateToken returns true if token matches the stored hash.
func (m *Manager) ValidateToken(token string) bool {
	if token == "" {
		return false
	}
	s, err := m.settings.Get()
	if err != nil || s.AuthTokenHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.AuthTokenHash), []byte(token)) == nil
}

// generateToken returns a cryptographically random 32-byte hex string.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
