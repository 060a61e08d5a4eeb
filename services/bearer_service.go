package services

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/shadow-authz/audience"
	"github.com/pilab-dev/shadow-authz/cache"
	"github.com/pilab-dev/shadow-authz/domain"
	serrors "github.com/pilab-dev/shadow-authz/errors"
	applog "github.com/pilab-dev/shadow-authz/log"
)

// Principal is the identity established by a validated bearer token. For
// client_credentials tokens UserID is empty and the application itself is
// the acting party.
type Principal struct {
	ClientID  string
	UserID    string
	Scope     string
	Resources []string
	TokenID   string
}

// BearerService validates bearer tokens presented to protected resources,
// per RFC 6750 with RFC 8707 audience restriction. Lookups go through the
// cache first and fall back to the repository, warming the cache on a hit.
type BearerService struct {
	tokens domain.TokenRepository
	store  cache.TokenStore
	// validator is nil when audience validation is disabled by
	// configuration; every token then passes the resource check.
	validator audience.Validator
	logger    applog.Logger
}

// BearerServiceOption configures a BearerService.
type BearerServiceOption func(*BearerService)

// WithTokenStore installs a cache in front of the token repository.
func WithTokenStore(store cache.TokenStore) BearerServiceOption {
	return func(s *BearerService) { s.store = store }
}

// WithoutAudienceValidation disables resource audience checks. Scope and
// expiry validation still apply.
func WithoutAudienceValidation() BearerServiceOption {
	return func(s *BearerService) { s.validator = nil }
}

// NewBearerService creates a bearer validator with prefix audience matching.
func NewBearerService(tokens domain.TokenRepository, logger applog.Logger, opts ...BearerServiceOption) *BearerService {
	s := &BearerService{
		tokens:    tokens,
		validator: audience.NewPrefixValidator(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateBearer checks the token against expiry, revocation, required
// scopes and the request's audience, in that order. Unknown, expired and
// revoked tokens are indistinguishable to the caller: all fail with
// invalid_token.
func (s *BearerService) ValidateBearer(
	ctx context.Context,
	token string,
	requiredScopes []string,
	requestURI string,
) (*Principal, error) {
	if token == "" {
		return nil, serrors.NewInvalidToken("no bearer token provided")
	}

	entry, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	if !scopeCovers(entry.Scope, requiredScopes) {
		return nil, serrors.NewInsufficientScope("token does not carry the required scope")
	}

	if s.validator != nil && requestURI != "" {
		if !s.validator.Allows(requestURI, entry.Resources) {
			s.logger.Debug(ctx, "bearer token rejected by audience restriction", map[string]interface{}{
				"client_id":   entry.ClientID,
				"request_uri": requestURI,
			})
			return nil, serrors.NewInvalidToken("token is not valid for the requested resource: " + requestURI)
		}
	}

	return &Principal{
		ClientID:  entry.ClientID,
		UserID:    entry.UserID,
		Scope:     entry.Scope,
		Resources: entry.Resources,
		TokenID:   entry.ID,
	}, nil
}

// lookup resolves a live token entry, cache first.
func (s *BearerService) lookup(ctx context.Context, token string) (*cache.TokenEntry, error) {
	now := time.Now().UTC()

	if s.store != nil {
		entry, err := s.store.Get(ctx, token)
		if err == nil {
			if entry.Expired(now) {
				return nil, serrors.NewInvalidToken("token is expired")
			}
			return entry, nil
		}
		if !errors.Is(err, cache.ErrTokenNotFound) {
			s.logger.Warn(ctx, "token cache lookup failed, falling back to repository", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	access, err := s.tokens.GetAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrAccessTokenNotFound) {
			return nil, serrors.NewInvalidToken("token is invalid, expired or revoked")
		}
		return nil, err
	}
	if access.IsRevoked || access.Expired(now) {
		return nil, serrors.NewInvalidToken("token is invalid, expired or revoked")
	}

	entry := &cache.TokenEntry{
		ID:        access.ID,
		Token:     access.Token,
		ClientID:  access.ClientID,
		UserID:    access.UserID,
		Scope:     access.Scope,
		Resources: access.Resources,
		ExpiresAt: access.ExpiresAt,
		CreatedAt: access.CreatedAt,
	}
	if s.store != nil {
		if err := s.store.Set(ctx, entry); err != nil {
			s.logger.Warn(ctx, "failed to warm token cache", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return entry, nil
}

// Revoke revokes an access token and evicts it from the cache.
func (s *BearerService) Revoke(ctx context.Context, token string) error {
	if err := s.tokens.RevokeAccessToken(ctx, token); err != nil &&
		!errors.Is(err, domain.ErrAccessTokenNotFound) {
		return err
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, token); err != nil {
			s.logger.Warn(ctx, "failed to evict revoked token from cache", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return nil
}

// scopeCovers reports whether the granted scope string contains every
// required scope value.
func scopeCovers(granted string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		if !hasScope(granted, want) {
			return false
		}
	}
	return true
}
