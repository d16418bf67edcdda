package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const tokenTTL = 5 * time.Minute

// TokenStore mints one-use admission tokens for manual calls to mutation
// endpoints. Tokens expire after a few minutes and are consumed on first use.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: map[string]time.Time{},
		now:    time.Now,
	}
}

// Mint issues a fresh token.
func (s *TokenStore) Mint() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.tokens[token] = s.now().Add(tokenTTL)
	s.sweep()
	return token
}

// Consume validates and invalidates a token.
func (s *TokenStore) Consume(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.tokens[token]
	if !ok {
		return false
	}
	delete(s.tokens, token)
	return s.now().Before(expiry)
}

// sweep drops expired tokens. Called with the lock held.
func (s *TokenStore) sweep() {
	now := s.now()
	for token, expiry := range s.tokens {
		if !now.Before(expiry) {
			delete(s.tokens, token)
		}
	}
}
