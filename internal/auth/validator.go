// Package auth validates client tokens for the WebSocket and HTTP
// surfaces. Lookup is three-level: static config tokens, an in-memory
// cache, then Redis. Only the Redis path populates the cache.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleettrack/internal/domain"
)

// TokenSource resolves a token to the identity it was issued for.
type TokenSource interface {
	GetToken(ctx context.Context, token string) (string, error)
}

type cacheEntry struct {
	identity  string
	expiresAt time.Time
}

type Validator struct {
	localCache sync.Map
	source     TokenSource
	ttl        time.Duration
	static     map[string]bool
}

// NewValidator builds a validator from the static token list and an
// optional Redis-backed source. source may be nil; then only static
// tokens are accepted.
func NewValidator(staticTokens []string, source TokenSource, ttl time.Duration) *Validator {
	static := make(map[string]bool, len(staticTokens))
	for _, t := range staticTokens {
		if t != "" {
			static[t] = true
		}
	}

	return &Validator{
		source: source,
		ttl:    ttl,
		static: static,
	}
}

// Validate resolves the token to an identity. Unknown and expired tokens
// fail with ErrUnauthorized.
func (v *Validator) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	// Level 0: static config tokens
	if v.static[token] {
		return "operator", nil
	}

	// Level 1: in-memory cache
	if raw, ok := v.localCache.Load(token); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.identity, nil
		}
		v.localCache.Delete(token)
	}

	// Level 2: Redis lookup
	if v.source == nil {
		return "", fmt.Errorf("%w: unknown token", domain.ErrUnauthorized)
	}
	identity, err := v.source.GetToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("token lookup: %w", err)
	}
	if identity == "" {
		return "", fmt.Errorf("%w: unknown token", domain.ErrUnauthorized)
	}

	v.localCache.Store(token, cacheEntry{
		identity:  identity,
		expiresAt: time.Now().Add(v.ttl),
	})

	return identity, nil
}
