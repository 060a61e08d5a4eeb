package cache

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned by Get when the cache holds no live entry
// for the token.
var ErrTokenNotFound = errors.New("token not found in cache")

// TokenEntry is the cached projection of an access token. It carries
// everything the bearer validator needs so a cache hit avoids the
// repository entirely, including the bound resource set.
type TokenEntry struct {
	ID        string    `json:"id" redis:"id"`
	Token     string    `json:"token" redis:"token"`
	ClientID  string    `json:"client_id" redis:"client_id"`
	UserID    string    `json:"user_id,omitempty" redis:"user_id"`
	Scope     string    `json:"scope" redis:"scope"`
	Resources []string  `json:"resources,omitempty" redis:"resources"`
	ExpiresAt time.Time `json:"expires_at" redis:"expires_at"`
	CreatedAt time.Time `json:"created_at" redis:"created_at"`
}

// Expired reports whether the entry is past its expiry.
func (e *TokenEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TokenStore caches access token entries keyed by the SHA-256 hash of the
// opaque token value. Entries expire with the token; revocation must delete
// the entry explicitly, the store never resurrects a deleted token.
type TokenStore interface {
	Set(ctx context.Context, entry *TokenEntry) error
	Get(ctx context.Context, token string) (*TokenEntry, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
}
