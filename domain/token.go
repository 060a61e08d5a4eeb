package domain

import (
	"strings"
	"time"
)

// AccessToken is an opaque bearer token bound to an application, an optional
// user identity, a scope and an RFC 8707 resource set. It is immutable after
// issuance.
type AccessToken struct {
	ID       string `bson:"_id"        json:"id"`
	Token    string `bson:"token"      json:"token"` // Opaque token value
	ClientID string `bson:"client_id"  json:"client_id"`
	UserID   string `bson:"user_id,omitempty" json:"user_id,omitempty"` // Empty for client-credentials tokens
	Scope    string `bson:"scope"      json:"scope"`

	// Resources is the audience the token may be presented to, a subset of
	// the set authorized at grant (or refresh chain) creation time. Empty
	// means unrestricted.
	Resources []string `bson:"resources,omitempty" json:"resources,omitempty"`

	// RefreshTokenID links back to the refresh token that produced this
	// access token, when one exists.
	RefreshTokenID string `bson:"refresh_token_id,omitempty" json:"refresh_token_id,omitempty"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	IsRevoked bool      `bson:"is_revoked,omitempty" json:"is_revoked,omitempty"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// HasScopes reports whether every required scope is present on the token.
func (t *AccessToken) HasScopes(required []string) bool {
	granted := strings.Fields(t.Scope)
	for _, req := range required {
		found := false
		for _, g := range granted {
			if g == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RefreshToken carries the originally authorized resource set across
// rotations: Resources is fixed at first issuance and acts as the ceiling
// for every access token minted from the refresh chain.
type RefreshToken struct {
	ID       string `bson:"_id"       json:"id"`
	Token    string `bson:"token"     json:"token"` // Opaque token value
	ClientID string `bson:"client_id" json:"client_id"`
	UserID   string `bson:"user_id"   json:"user_id"`
	Scope    string `bson:"scope"     json:"scope"`

	// Resources is the full originally-authorized set. Narrowing at refresh
	// time binds the new access token only; this field never changes.
	Resources []string `bson:"resources,omitempty" json:"resources,omitempty"`

	// AccessTokenID references the access token currently paired with this
	// refresh token.
	AccessTokenID string `bson:"access_token_id,omitempty" json:"access_token_id,omitempty"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	Revoked   bool      `bson:"revoked,omitempty" json:"revoked,omitempty"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IDToken records an OIDC ID token issued to a (user, application) pair. The
// records are the substrate for backchannel logout decisions; the signed JWT
// itself is not stored.
type IDToken struct {
	ID        string    `bson:"_id"        json:"id"`
	ClientID  string    `bson:"client_id"  json:"client_id"`
	UserID    string    `bson:"user_id"    json:"user_id"`
	Scope     string    `bson:"scope"      json:"scope"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// HasOfflineAccess reports whether the ID token was issued with the
// offline_access scope, meaning a refresh capability may still be live.
func (t *IDToken) HasOfflineAccess() bool {
	for _, s := range strings.Fields(t.Scope) {
		if s == "offline_access" {
			return true
		}
	}
	return false
}
