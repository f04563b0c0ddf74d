// Package auth provides bearer-token authentication for the ForumLink API.
//
// ForumLink is a backend collaborator, not a user-facing product, so its
// auth model is deliberately small: named API tokens, hashed with bcrypt
// at registration, verified on each request. There are no users, sessions,
// or roles; callers are services holding a token.
//
// Example Usage:
//
//	store := auth.NewTokenStore(auth.DefaultConfig())
//
//	// At startup, register the configured token.
//	if err := store.Register("primary", cfg.Auth.Token); err != nil {
//		log.Fatal(err)
//	}
//
//	// Per request.
//	name, err := store.Verify(bearerToken)
//	if err != nil {
//		http.Error(w, "unauthorized", http.StatusUnauthorized)
//		return
//	}
//	log.Printf("authenticated as %s", name)
//
// Security:
//   - Tokens are hashed with bcrypt; plaintext is never retained.
//   - Issue generates tokens from crypto/rand.
//   - Disabled auth is explicit: a nil *TokenStore verifies everything,
//     so wiring stays uniform whether auth is on or off.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Errors for token operations.
var (
	ErrTokenExists   = errors.New("token name already registered")
	ErrTokenTooShort = errors.New("token does not meet minimum length requirement")
	ErrInvalidToken  = errors.New("invalid token")
	ErrNoCredentials = errors.New("no credentials provided")
)

// Config holds token store configuration.
type Config struct {
	// MinTokenLength for registered tokens
	MinTokenLength int
	// BcryptCost for token hashing
	BcryptCost int
}

// DefaultConfig returns the default token store configuration.
func DefaultConfig() Config {
	return Config{
		MinTokenLength: 16,
		BcryptCost:     bcrypt.DefaultCost,
	}
}

// tokenRecord is one registered token.
type tokenRecord struct {
	name      string
	hash      []byte
	createdAt time.Time
}

// TokenStore manages bcrypt-hashed API tokens.
//
// A nil *TokenStore is valid and verifies every token, which is how the
// server runs with authentication disabled.
//
// Thread-safe for concurrent use.
type TokenStore struct {
	mu     sync.RWMutex
	tokens []tokenRecord
	config Config
}

// NewTokenStore creates an empty token store.
func NewTokenStore(config Config) *TokenStore {
	if config.MinTokenLength == 0 {
		config.MinTokenLength = 16
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &TokenStore{config: config}
}

// Register hashes and stores a caller-supplied token under name.
//
// Returns ErrTokenExists if the name is taken and ErrTokenTooShort if the
// token is shorter than the configured minimum.
func (s *TokenStore) Register(name, token string) error {
	if len(token) < s.config.MinTokenLength {
		return fmt.Errorf("%w: minimum %d characters required",
			ErrTokenTooShort, s.config.MinTokenLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.tokens {
		if rec.name == name {
			return ErrTokenExists
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}

	s.tokens = append(s.tokens, tokenRecord{
		name:      name,
		hash:      hash,
		createdAt: time.Now(),
	})
	return nil
}

// Issue generates a fresh random token, registers it under name, and
// returns the plaintext. The plaintext is returned exactly once; only the
// bcrypt hash is retained.
func (s *TokenStore) Issue(name string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	if err := s.Register(name, token); err != nil {
		return "", err
	}
	return token, nil
}

// Verify checks token against every registered hash and returns the name
// of the matching registration.
//
// A "Bearer " prefix is stripped first. A nil store accepts everything and
// returns the name "anonymous". Returns ErrNoCredentials for an empty
// token and ErrInvalidToken when nothing matches.
func (s *TokenStore) Verify(token string) (string, error) {
	if s == nil {
		return "anonymous", nil
	}

	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoCredentials
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.tokens {
		if bcrypt.CompareHashAndPassword(rec.hash, []byte(token)) == nil {
			return rec.name, nil
		}
	}
	return "", ErrInvalidToken
}

// Revoke removes the token registered under name. Revoking an unknown
// name is a no-op.
func (s *TokenStore) Revoke(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.tokens {
		if rec.name == name {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			return
		}
	}
}

// Count returns the number of registered tokens.
func (s *TokenStore) Count() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
