// Package auth implements the pairing PIN and the bearer-token session
// set for the peer protocol.
//
// Pairing is deliberately simple: the host shows a 4-digit PIN, a
// client submits it once and receives an opaque bearer token that is
// valid for the lifetime of the process. Tokens are never persisted.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/shelfsyncapp/shelfsync-agent/internal/errors"
)

// PINLength is the number of digits in a pairing PIN.
const PINLength = 4

// Service holds the current PIN and the set of issued tokens.
type Service struct {
	logger *slog.Logger

	mu     sync.RWMutex
	pin    string
	tokens map[string]struct{}
}

// NewService creates an auth service with a freshly generated PIN.
func NewService(logger *slog.Logger) (*Service, error) {
	pin, err := GeneratePIN()
	if err != nil {
		return nil, fmt.Errorf("generate pin: %w", err)
	}

	return &Service{
		logger: logger,
		pin:    pin,
		tokens: make(map[string]struct{}),
	}, nil
}

// GeneratePIN returns a random 4-digit PIN, zero-padded.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", PINLength, n.Int64()), nil
}

// PIN returns the current pairing PIN for display to the user.
func (s *Service) PIN() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pin
}

// RotatePIN replaces the PIN. Already-issued tokens stay valid.
func (s *Service) RotatePIN() (string, error) {
	pin, err := GeneratePIN()
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}

	s.mu.Lock()
	s.pin = pin
	s.mu.Unlock()

	s.logger.Info("pairing pin rotated")
	return pin, nil
}

// CheckPIN verifies a submitted PIN and, on success, mints and records
// a new bearer token. Returns errors.ErrUnauthorized on mismatch.
func (s *Service) CheckPIN(submitted string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subtle.ConstantTimeCompare([]byte(submitted), []byte(s.pin)) != 1 {
		s.logger.Warn("pin check failed")
		return "", errors.Unauthorized("invalid pin")
	}

	token := uuid.NewString()
	s.tokens[token] = struct{}{}

	s.logger.Info("client paired", "active_tokens", len(s.tokens))
	return token, nil
}

// ValidateToken reports whether token was issued by this process.
func (s *Service) ValidateToken(token string) bool {
	if token == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tokens[token]
	return ok
}

// TokenCount returns the number of active tokens.
func (s *Service) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
