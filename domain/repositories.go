package domain

import (
	"context"
	"errors"
)

// Sentinel errors returned by repositories. Services map these onto the
// OAuth2 error taxonomy at the protocol boundary.
var (
	ErrGrantNotFound        = errors.New("authorization grant not found")
	ErrAccessTokenNotFound  = errors.New("access token not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrApplicationNotFound  = errors.New("application not found")
)

// GrantRepository stores authorization-code grants.
type GrantRepository interface {
	CreateGrant(ctx context.Context, grant *Grant) error

	// ConsumeGrant atomically reads and deletes the grant identified by
	// code. The delete happens with the read so the same code can never be
	// exchanged twice, even under concurrent requests. Returns
	// ErrGrantNotFound when the code is unknown or already consumed.
	ConsumeGrant(ctx context.Context, code string) (*Grant, error)

	DeleteExpiredGrants(ctx context.Context) error
}

// TokenRepository stores access, refresh and ID tokens.
type TokenRepository interface {
	CreateAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken returns the live (unrevoked, unexpired) access token
	// with the given opaque value, or ErrAccessTokenNotFound.
	GetAccessToken(ctx context.Context, tokenValue string) (*AccessToken, error)

	RevokeAccessToken(ctx context.Context, tokenValue string) error

	CreateRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken returns the refresh token with the given opaque
	// value regardless of revocation state, or ErrRefreshTokenNotFound.
	// Callers decide how a revoked token is reported.
	GetRefreshToken(ctx context.Context, tokenValue string) (*RefreshToken, error)

	RevokeRefreshToken(ctx context.Context, tokenValue string) error

	// RotateRefreshToken revokes the refresh token with the given value
	// and creates its successor. The revocation is conditional on the old
	// token still being live, so two concurrent rotations of the same
	// token cannot both produce a successor; the loser gets
	// ErrRefreshTokenNotFound and no new token is written.
	RotateRefreshToken(ctx context.Context, oldTokenValue string, successor *RefreshToken) error

	CreateIDToken(ctx context.Context, token *IDToken) error

	// ListIDTokensForUser returns every ID token issued to the user, across
	// all applications.
	ListIDTokensForUser(ctx context.Context, userID string) ([]*IDToken, error)

	// RevokeUserApplicationTokens revokes all access tokens issued to the
	// given (user, application) pair and returns the revoked token values,
	// so callers can evict them from any cache layered over the
	// repository. Used by the optional revoke-on-reauthorization policy.
	RevokeUserApplicationTokens(ctx context.Context, userID, clientID string) ([]string, error)

	DeleteExpiredTokens(ctx context.Context) error
}

// ApplicationRepository stores registered OAuth2 client applications.
type ApplicationRepository interface {
	CreateApplication(ctx context.Context, app *Application) error

	// GetApplication returns the application with the given client
	// identifier, or ErrApplicationNotFound.
	GetApplication(ctx context.Context, clientID string) (*Application, error)
}
