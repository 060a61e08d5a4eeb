package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-authz/cache"
	"github.com/pilab-dev/shadow-authz/domain"
	serrors "github.com/pilab-dev/shadow-authz/errors"
	applog "github.com/pilab-dev/shadow-authz/log"
)

func seedAccessToken(t *testing.T, repo *memTokenRepo, mod func(*domain.AccessToken)) *domain.AccessToken {
	t.Helper()
	now := time.Now().UTC()
	access := &domain.AccessToken{
		ID:        "at-1",
		Token:     "opaque-access-token",
		ClientID:  "client-1",
		UserID:    "user-1",
		Scope:     "read write",
		Resources: []string{"https://api.example.com/mcp"},
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if mod != nil {
		mod(access)
	}
	require.NoError(t, repo.CreateAccessToken(context.Background(), access))
	return access
}

func assertBearerError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	oe, ok := serrors.AsOAuth2Error(err)
	require.True(t, ok)
	assert.Equal(t, code, oe.Code)
}

func TestValidateBearer(t *testing.T) {
	repo := newMemTokenRepo()
	access := seedAccessToken(t, repo, nil)
	svc := NewBearerService(repo, applog.NewNop())

	principal, err := svc.ValidateBearer(context.Background(), access.Token,
		[]string{"read"}, "https://api.example.com/mcp/tool")
	require.NoError(t, err)
	assert.Equal(t, "client-1", principal.ClientID)
	assert.Equal(t, "user-1", principal.UserID)
	assert.Equal(t, access.Resources, principal.Resources)
}

func TestValidateBearerRejections(t *testing.T) {
	tests := []struct {
		name     string
		mod      func(*domain.AccessToken)
		token    string
		scopes   []string
		uri      string
		wantCode string
	}{
		{
			name:     "empty token",
			token:    "",
			wantCode: serrors.InvalidToken,
		},
		{
			name:     "unknown token",
			token:    "no-such-token",
			wantCode: serrors.InvalidToken,
		},
		{
			name:     "revoked token",
			mod:      func(a *domain.AccessToken) { a.IsRevoked = true },
			wantCode: serrors.InvalidToken,
		},
		{
			name:     "expired token",
			mod:      func(a *domain.AccessToken) { a.ExpiresAt = time.Now().UTC().Add(-time.Minute) },
			wantCode: serrors.InvalidToken,
		},
		{
			name:     "missing scope",
			scopes:   []string{"admin"},
			wantCode: serrors.InsufficientScope,
		},
		{
			name:     "audience mismatch",
			uri:      "https://data.example.com/mcp",
			wantCode: serrors.InvalidToken,
		},
		{
			name:     "path outside granted prefix",
			uri:      "https://api.example.com/other",
			wantCode: serrors.InvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemTokenRepo()
			access := seedAccessToken(t, repo, tt.mod)
			svc := NewBearerService(repo, applog.NewNop())

			token := access.Token
			if tt.token != "" || tt.name == "empty token" {
				token = tt.token
			}
			uri := tt.uri
			if uri == "" {
				uri = "https://api.example.com/mcp"
			}

			_, err := svc.ValidateBearer(context.Background(), token, tt.scopes, uri)
			assertBearerError(t, err, tt.wantCode)
		})
	}
}

func TestValidateBearerAudienceRejectionNamesURI(t *testing.T) {
	repo := newMemTokenRepo()
	access := seedAccessToken(t, repo, nil)
	svc := NewBearerService(repo, applog.NewNop())

	_, err := svc.ValidateBearer(context.Background(), access.Token, nil,
		"https://data.example.com/mcp")
	require.Error(t, err)
	oe, ok := serrors.AsOAuth2Error(err)
	require.True(t, ok)
	assert.Equal(t, serrors.InvalidToken, oe.Code)
	assert.Contains(t, oe.Description, "https://data.example.com/mcp")
}

func TestValidateBearerWithoutAudienceValidation(t *testing.T) {
	repo := newMemTokenRepo()
	access := seedAccessToken(t, repo, nil)
	svc := NewBearerService(repo, applog.NewNop(), WithoutAudienceValidation())

	// A URI outside the granted set passes when validation is disabled.
	_, err := svc.ValidateBearer(context.Background(), access.Token, nil,
		"https://data.example.com/mcp")
	require.NoError(t, err)
}

func TestValidateBearerWarmsCache(t *testing.T) {
	repo := newMemTokenRepo()
	access := seedAccessToken(t, repo, nil)
	store := cache.NewMemoryTokenStore(time.Minute)
	svc := NewBearerService(repo, applog.NewNop(), WithTokenStore(store))

	_, err := svc.ValidateBearer(context.Background(), access.Token, nil,
		"https://api.example.com/mcp")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count(context.Background()))

	// Second validation is served from the cache even if the repository
	// record disappears.
	delete(repo.access, access.Token)
	_, err = svc.ValidateBearer(context.Background(), access.Token, nil,
		"https://api.example.com/mcp")
	require.NoError(t, err)
}

func TestRevokeEvictsCache(t *testing.T) {
	repo := newMemTokenRepo()
	access := seedAccessToken(t, repo, nil)
	store := cache.NewMemoryTokenStore(time.Minute)
	svc := NewBearerService(repo, applog.NewNop(), WithTokenStore(store))

	_, err := svc.ValidateBearer(context.Background(), access.Token, nil, "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), access.Token))

	_, err = svc.ValidateBearer(context.Background(), access.Token, nil, "")
	assertBearerError(t, err, serrors.InvalidToken)
}
