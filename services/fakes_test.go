package services

import (
	"context"
	"sync"
	"time"

	"github.com/pilab-dev/shadow-authz/domain"
)

// In-memory repositories for service tests. They honor the repository
// contracts, including atomic grant consumption and conditional rotation.

type memGrantRepo struct {
	mu     sync.Mutex
	grants map[string]*domain.Grant
}

func newMemGrantRepo() *memGrantRepo {
	return &memGrantRepo{grants: make(map[string]*domain.Grant)}
}

func (r *memGrantRepo) CreateGrant(_ context.Context, g *domain.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[g.Code] = g
	return nil
}

func (r *memGrantRepo) ConsumeGrant(_ context.Context, code string) (*domain.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[code]
	if !ok {
		return nil, domain.ErrGrantNotFound
	}
	delete(r.grants, code)
	return g, nil
}

func (r *memGrantRepo) DeleteExpiredGrants(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for code, g := range r.grants {
		if g.Expired(now) {
			delete(r.grants, code)
		}
	}
	return nil
}

type memTokenRepo struct {
	mu       sync.Mutex
	access   map[string]*domain.AccessToken
	refresh  map[string]*domain.RefreshToken
	idTokens []*domain.IDToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{
		access:  make(map[string]*domain.AccessToken),
		refresh: make(map[string]*domain.RefreshToken),
	}
}

func (r *memTokenRepo) CreateAccessToken(_ context.Context, t *domain.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.access[t.Token] = t
	return nil
}

func (r *memTokenRepo) GetAccessToken(_ context.Context, tokenValue string) (*domain.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.access[tokenValue]
	if !ok || t.IsRevoked || t.Expired(time.Now().UTC()) {
		return nil, domain.ErrAccessTokenNotFound
	}
	return t, nil
}

func (r *memTokenRepo) RevokeAccessToken(_ context.Context, tokenValue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.access[tokenValue]
	if !ok {
		return domain.ErrAccessTokenNotFound
	}
	t.IsRevoked = true
	return nil
}

func (r *memTokenRepo) CreateRefreshToken(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh[t.Token] = t
	return nil
}

func (r *memTokenRepo) GetRefreshToken(_ context.Context, tokenValue string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.refresh[tokenValue]
	if !ok {
		return nil, domain.ErrRefreshTokenNotFound
	}
	return t, nil
}

func (r *memTokenRepo) RevokeRefreshToken(_ context.Context, tokenValue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.refresh[tokenValue]
	if !ok {
		return domain.ErrRefreshTokenNotFound
	}
	t.Revoked = true
	return nil
}

func (r *memTokenRepo) RotateRefreshToken(_ context.Context, oldTokenValue string, successor *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.refresh[oldTokenValue]
	if !ok || old.Revoked {
		return domain.ErrRefreshTokenNotFound
	}
	old.Revoked = true
	r.refresh[successor.Token] = successor
	return nil
}

func (r *memTokenRepo) CreateIDToken(_ context.Context, t *domain.IDToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idTokens = append(r.idTokens, t)
	return nil
}

func (r *memTokenRepo) ListIDTokensForUser(_ context.Context, userID string) ([]*domain.IDToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.IDToken
	for _, t := range r.idTokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTokenRepo) RevokeUserApplicationTokens(_ context.Context, userID, clientID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var revoked []string
	for _, t := range r.access {
		if t.UserID == userID && t.ClientID == clientID {
			t.IsRevoked = true
			revoked = append(revoked, t.Token)
		}
	}
	return revoked, nil
}

func (r *memTokenRepo) DeleteExpiredTokens(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for k, t := range r.access {
		if t.Expired(now) {
			delete(r.access, k)
		}
	}
	for k, t := range r.refresh {
		if t.Expired(now) {
			delete(r.refresh, k)
		}
	}
	return nil
}

type memAppRepo struct {
	mu   sync.Mutex
	apps map[string]*domain.Application
}

func newMemAppRepo() *memAppRepo {
	return &memAppRepo{apps: make(map[string]*domain.Application)}
}

func (r *memAppRepo) CreateApplication(_ context.Context, app *domain.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[app.ClientID] = app
	return nil
}

func (r *memAppRepo) GetApplication(_ context.Context, clientID string) (*domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[clientID]
	if !ok {
		return nil, domain.ErrApplicationNotFound
	}
	return app, nil
}
