package credential

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"BollWatch/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptyToken is returned when an update carries no token.
var ErrEmptyToken = errors.New("access token is empty")

// Store owns the current quote API credential. Readers get a copy, so a token
// captured by an in-flight request is never changed underneath it.
type Store struct {
	mu       sync.RWMutex
	cur      model.Credential
	filePath string
	now      func() time.Time
}

// NewStore creates a Store seeded from config. A token persisted by a previous
// update takes precedence over the seed.
func NewStore(filePath string, seed model.Credential) (*Store, error) {
	s := &Store{filePath: filePath, now: time.Now}
	s.cur = seed
	if s.cur.ExpiresAt == nil {
		s.cur.ExpiresAt = TokenExpiry(seed.AccessToken)
	}

	if filePath != "" {
		p, err := LoadState(filePath)
		if err != nil {
			return nil, fmt.Errorf("load credential state: %w", err)
		}
		if p != nil && p.AccessToken != "" {
			s.cur.AccessToken = p.AccessToken
			s.cur.ExpiresAt = p.ExpiresAt
			s.cur.Version = p.Version
			s.cur.UpdatedAt = p.UpdatedAt
			log.Printf("[INFO] credential restored from %s (version %d)", filePath, p.Version)
		}
	}
	return s, nil
}

// Current returns a copy of the current credential.
func (s *Store) Current() model.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cur
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		c.ExpiresAt = &t
	}
	return c
}

// Update replaces the access token, bumps the version and persists it.
// Requests started after Update returns use the new token.
func (s *Store) Update(token string) (model.Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Credential{}, ErrEmptyToken
	}

	s.mu.Lock()
	next := s.cur
	next.AccessToken = token
	next.ExpiresAt = TokenExpiry(token)
	next.Version++
	next.UpdatedAt = s.now()
	if s.filePath != "" {
		if err := SaveState(s.filePath, next); err != nil {
			s.mu.Unlock()
			return model.Credential{}, fmt.Errorf("save credential state: %w", err)
		}
	}
	s.cur = next
	s.mu.Unlock()

	log.Printf("[INFO] access token updated (version %d)", next.Version)
	return s.Current(), nil
}

// TokenExpiry extracts the exp claim from a JWT-shaped access token without
// verifying it. LongBridge tokens carry an "m_" prefix before the JWT.
// Returns nil when the token is opaque.
func TokenExpiry(token string) *time.Time {
	raw := strings.TrimPrefix(strings.TrimSpace(token), "m_")
	if strings.Count(raw, ".") != 2 {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
