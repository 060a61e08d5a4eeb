package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pilab-dev/shadow-authz/cache"
	"github.com/pilab-dev/shadow-authz/domain"
	serrors "github.com/pilab-dev/shadow-authz/errors"
	"github.com/pilab-dev/shadow-authz/internal/metrics"
	applog "github.com/pilab-dev/shadow-authz/log"
)

// GrantServiceConfig is the immutable configuration threaded into the grant
// engine at construction. No ambient global state is read.
type GrantServiceConfig struct {
	Issuer          string
	GrantTTL        time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	IDTokenTTL      time.Duration

	// RotateRefreshTokens controls whether each refresh mints a successor
	// refresh token and revokes its predecessor.
	RotateRefreshTokens bool

	// RevokeOldTokensOnReauth revokes a user's existing access tokens for
	// an application when a new authorization is granted. Off by default:
	// re-authorization keeps prior tokens alive.
	RevokeOldTokensOnReauth bool
}

// GrantService orchestrates the four grant-type state machines. All state
// lives in the repositories; the service itself is safe for concurrent use.
type GrantService struct {
	grants   domain.GrantRepository
	tokens   domain.TokenRepository
	enforcer *ResourceEnforcer
	signer   *TokenSigner
	// store, when set, is the bearer-side token cache. Tokens revoked
	// through the repository are evicted here so a cached entry never
	// outlives its revocation.
	store  cache.TokenStore
	cfg    GrantServiceConfig
	logger applog.Logger
}

// GrantServiceOption configures a GrantService.
type GrantServiceOption func(*GrantService)

// WithRevocationCache wires the bearer token cache into the grant engine's
// revocation paths. Pass the same store the BearerService reads from.
func WithRevocationCache(store cache.TokenStore) GrantServiceOption {
	return func(s *GrantService) { s.store = store }
}

// NewGrantService creates the grant engine.
func NewGrantService(
	grants domain.GrantRepository,
	tokens domain.TokenRepository,
	enforcer *ResourceEnforcer,
	signer *TokenSigner,
	cfg GrantServiceConfig,
	logger applog.Logger,
	opts ...GrantServiceOption,
) *GrantService {
	s := &GrantService{
		grants:   grants,
		tokens:   tokens,
		enforcer: enforcer,
		signer:   signer,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// evictTokens removes revoked token values from the bearer cache.
func (s *GrantService) evictTokens(ctx context.Context, tokenValues []string) {
	if s.store == nil {
		return
	}
	for _, value := range tokenValues {
		if err := s.store.Delete(ctx, value); err != nil {
			s.logger.Warn(ctx, "failed to evict revoked token from cache", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// newOpaqueToken generates a secure random opaque token value.
func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}

// Authorize records a new authorization-code grant. The requested resources
// are stored verbatim on the grant: no enforcement happens here, the set
// establishes the authorized ceiling for the later exchange.
func (s *GrantService) Authorize(
	ctx context.Context,
	app *domain.Application,
	userID, scope string,
	resources []string,
	redirectURI string,
	codeChallenge, codeChallengeMethod string,
) (*domain.Grant, error) {
	if !app.AllowsGrantType(domain.GrantAuthorizationCode) {
		return nil, serrors.NewUnauthorizedClient("authorization_code grant is not allowed for this client")
	}
	if !app.AllowsRedirectURI(redirectURI) {
		return nil, serrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}
	if app.RequirePKCE && codeChallenge == "" {
		return nil, serrors.NewInvalidRequest("PKCE is required for this client")
	}

	if s.cfg.RevokeOldTokensOnReauth && userID != "" {
		revoked, err := s.tokens.RevokeUserApplicationTokens(ctx, userID, app.ClientID)
		if err != nil {
			return nil, fmt.Errorf("failed to revoke prior tokens on reauthorization: %w", err)
		}
		s.evictTokens(ctx, revoked)
	}

	code, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	grant := &domain.Grant{
		Code:                code,
		ClientID:            app.ClientID,
		UserID:              userID,
		Scope:               scope,
		RedirectURI:         redirectURI,
		Resources:           resources,
		ExpiresAt:           now.Add(s.cfg.GrantTTL),
		CreatedAt:           now,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	}
	if err := s.grants.CreateGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to persist grant: %w", err)
	}

	s.logger.Debug(ctx, "authorization grant created", map[string]interface{}{
		"client_id": app.ClientID,
		"user_id":   userID,
		"resources": len(resources),
	})
	return grant, nil
}

// Exchange consumes an authorization code and mints tokens bound to the
// enforced resource set. The grant is deleted atomically with the read
// (single use); a failed exchange burns the code but never persists a
// partial token.
func (s *GrantService) Exchange(
	ctx context.Context,
	code string,
	app *domain.Application,
	resources []string,
	redirectURI, codeVerifier string,
) (*TokenResponse, error) {
	grant, err := s.grants.ConsumeGrant(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrGrantNotFound) {
			return nil, serrors.NewInvalidGrant("authorization code is invalid, expired or already used")
		}
		return nil, fmt.Errorf("failed to consume grant: %w", err)
	}

	if grant.ClientID != app.ClientID {
		return nil, serrors.NewInvalidGrant("authorization code was issued to a different client")
	}
	if grant.Expired(time.Now().UTC()) {
		return nil, serrors.NewInvalidGrant("authorization code expired")
	}
	if grant.RedirectURI != "" && grant.RedirectURI != redirectURI {
		return nil, serrors.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if grant.CodeChallenge != "" {
		if !VerifyPKCEChallenge(grant.CodeChallenge, grant.CodeChallengeMethod, codeVerifier) {
			return nil, serrors.NewInvalidPKCE("code verifier does not match the challenge")
		}
	}

	bound, err := s.enforcer.Bind(resources, grant.Resources)
	if err != nil {
		metrics.InvalidTargetRejectionsTotal.Inc()
		return nil, err
	}

	withRefresh := app.AllowsGrantType(domain.GrantRefreshToken)
	resp, err := s.issueTokens(ctx, app, grant.UserID, grant.Scope, bound, grant.Resources, withRefresh)
	if err != nil {
		return nil, err
	}
	metrics.GrantsExchangedTotal.Inc()
	return resp, nil
}

// ClientCredentials issues an access token directly to the application.
// There is no prior grant, so the requested resources are the authorized
// set; unrestricted when empty.
func (s *GrantService) ClientCredentials(
	ctx context.Context,
	app *domain.Application,
	scope string,
	resources []string,
) (*TokenResponse, error) {
	if !app.AllowsGrantType(domain.GrantClientCredentials) {
		return nil, serrors.NewUnauthorizedClient("client_credentials grant is not allowed for this client")
	}

	bound, err := s.enforcer.Bind(resources, resources)
	if err != nil {
		metrics.InvalidTargetRejectionsTotal.Inc()
		return nil, err
	}

	access, err := s.mintAccessToken(ctx, app.ClientID, "", scope, bound, "")
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
		Scope:       scope,
	}, nil
}

// Refresh exchanges a refresh token for a fresh access token. The refresh
// token's resource set is the ceiling: narrowing binds the new access token
// only, and a rotated successor always carries the original set forward.
func (s *GrantService) Refresh(
	ctx context.Context,
	refreshTokenValue string,
	app *domain.Application,
	resources []string,
) (*TokenResponse, error) {
	rt, err := s.tokens.GetRefreshToken(ctx, refreshTokenValue)
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenNotFound) {
			return nil, serrors.NewInvalidGrant("refresh token is invalid")
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if rt.Revoked || rt.Expired(time.Now().UTC()) {
		return nil, serrors.NewInvalidGrant("refresh token is expired or revoked")
	}
	if rt.ClientID != app.ClientID {
		return nil, serrors.NewInvalidGrant("refresh token was issued to a different client")
	}

	bound, err := s.enforcer.Bind(resources, rt.Resources)
	if err != nil {
		metrics.InvalidTargetRejectionsTotal.Inc()
		return nil, err
	}

	refreshValue := rt.Token
	refreshID := rt.ID

	if s.cfg.RotateRefreshTokens {
		successorValue, err := newOpaqueToken()
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		successor := &domain.RefreshToken{
			ID:       uuid.NewString(),
			Token:    successorValue,
			ClientID: rt.ClientID,
			UserID:   rt.UserID,
			Scope:    rt.Scope,
			// The ceiling, not the narrowed set, propagates forward.
			Resources: rt.Resources,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
			CreatedAt: now,
		}
		if err := s.tokens.RotateRefreshToken(ctx, rt.Token, successor); err != nil {
			if errors.Is(err, domain.ErrRefreshTokenNotFound) {
				// Lost a concurrent rotation race; the token is spent.
				return nil, serrors.NewInvalidGrant("refresh token is expired or revoked")
			}
			return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
		}
		metrics.RefreshRotationsTotal.Inc()
		refreshValue = successor.Token
		refreshID = successor.ID
	}

	access, err := s.mintAccessToken(ctx, rt.ClientID, rt.UserID, rt.Scope, bound, refreshID)
	if err != nil {
		if s.cfg.RotateRefreshTokens {
			// Best effort: do not leave a successor without an access token.
			if revokeErr := s.tokens.RevokeRefreshToken(ctx, refreshValue); revokeErr != nil {
				s.logger.Error(ctx, "failed to revoke orphaned refresh token", revokeErr, map[string]interface{}{
					"client_id": rt.ClientID,
				})
			}
		}
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  access.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		Scope:        rt.Scope,
		RefreshToken: refreshValue,
	}, nil
}

// AuthorizeImplicit issues an access token directly from the authorization
// endpoint. No grant is persisted; the requested resources apply directly
// to the token, per RFC 8707. The redirect URI must be registered: the
// token travels in the redirect fragment, so an unregistered URI would
// hand it to an arbitrary destination.
func (s *GrantService) AuthorizeImplicit(
	ctx context.Context,
	app *domain.Application,
	userID, scope string,
	resources []string,
	redirectURI string,
) (*domain.AccessToken, error) {
	if !app.AllowsGrantType(domain.GrantImplicit) {
		return nil, serrors.NewUnauthorizedClient("implicit grant is not allowed for this client")
	}
	if !app.AllowsRedirectURI(redirectURI) {
		return nil, serrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}

	bound, err := s.enforcer.Bind(resources, resources)
	if err != nil {
		metrics.InvalidTargetRejectionsTotal.Inc()
		return nil, err
	}

	return s.mintAccessToken(ctx, app.ClientID, userID, scope, bound, "")
}

// issueTokens mints the access token and, when enabled, the paired refresh
// token and ID token record for a code exchange. The refresh token carries
// the full authorized ceiling; the access token carries the bound set.
func (s *GrantService) issueTokens(
	ctx context.Context,
	app *domain.Application,
	userID, scope string,
	bound, ceiling []string,
	withRefresh bool,
) (*TokenResponse, error) {
	now := time.Now().UTC()

	accessValue, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	access := &domain.AccessToken{
		ID:        uuid.NewString(),
		Token:     accessValue,
		ClientID:  app.ClientID,
		UserID:    userID,
		Scope:     scope,
		Resources: bound,
		ExpiresAt: now.Add(s.cfg.AccessTokenTTL),
		CreatedAt: now,
	}

	var refresh *domain.RefreshToken
	if withRefresh {
		refreshValue, err := newOpaqueToken()
		if err != nil {
			return nil, err
		}
		refresh = &domain.RefreshToken{
			ID:            uuid.NewString(),
			Token:         refreshValue,
			ClientID:      app.ClientID,
			UserID:        userID,
			Scope:         scope,
			Resources:     ceiling,
			AccessTokenID: access.ID,
			ExpiresAt:     now.Add(s.cfg.RefreshTokenTTL),
			CreatedAt:     now,
		}
		access.RefreshTokenID = refresh.ID
	}

	if err := s.tokens.CreateAccessToken(ctx, access); err != nil {
		return nil, fmt.Errorf("failed to persist access token: %w", err)
	}
	if refresh != nil {
		if err := s.tokens.CreateRefreshToken(ctx, refresh); err != nil {
			if revokeErr := s.tokens.RevokeAccessToken(ctx, access.Token); revokeErr != nil {
				s.logger.Error(ctx, "failed to revoke access token after refresh token failure", revokeErr, map[string]interface{}{
					"client_id": app.ClientID,
				})
			}
			return nil, fmt.Errorf("failed to persist refresh token: %w", err)
		}
	}
	metrics.AccessTokensIssuedTotal.Inc()

	resp := &TokenResponse{
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
		Scope:       scope,
	}
	if refresh != nil {
		resp.RefreshToken = refresh.Token
	}

	if userID != "" && hasScope(scope, "openid") {
		idToken, err := s.issueIDToken(ctx, app, userID, scope, now)
		if err != nil {
			return nil, err
		}
		resp.IDToken = idToken
	}
	return resp, nil
}

// mintAccessToken creates and persists a standalone access token.
func (s *GrantService) mintAccessToken(
	ctx context.Context,
	clientID, userID, scope string,
	resources []string,
	refreshTokenID string,
) (*domain.AccessToken, error) {
	value, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	access := &domain.AccessToken{
		ID:             uuid.NewString(),
		Token:          value,
		ClientID:       clientID,
		UserID:         userID,
		Scope:          scope,
		Resources:      resources,
		RefreshTokenID: refreshTokenID,
		ExpiresAt:      now.Add(s.cfg.AccessTokenTTL),
		CreatedAt:      now,
	}
	if err := s.tokens.CreateAccessToken(ctx, access); err != nil {
		return nil, fmt.Errorf("failed to persist access token: %w", err)
	}
	metrics.AccessTokensIssuedTotal.Inc()
	return access, nil
}

// issueIDToken persists the ID token record and returns the signed JWT when
// the application has a signing algorithm configured. Applications with the
// "none" sentinel get the record only, no signed artifact.
func (s *GrantService) issueIDToken(
	ctx context.Context,
	app *domain.Application,
	userID, scope string,
	now time.Time,
) (string, error) {
	record := &domain.IDToken{
		ID:        uuid.NewString(),
		ClientID:  app.ClientID,
		UserID:    userID,
		Scope:     scope,
		ExpiresAt: now.Add(s.cfg.IDTokenTTL),
		CreatedAt: now,
	}
	if err := s.tokens.CreateIDToken(ctx, record); err != nil {
		return "", fmt.Errorf("failed to persist ID token: %w", err)
	}

	if app.Algorithm == domain.AlgNone {
		return "", nil
	}

	claims := jwt.MapClaims{
		"iss": s.cfg.Issuer,
		"sub": userID,
		"aud": jwt.ClaimStrings{app.ClientID},
		"exp": jwt.NewNumericDate(record.ExpiresAt).Unix(),
		"iat": jwt.NewNumericDate(now).Unix(),
		"jti": record.ID,
	}
	signed, err := s.signer.Sign(claims, app)
	if err != nil {
		return "", fmt.Errorf("failed to sign ID token: %w", err)
	}
	return signed, nil
}
