package domain

import "time"

// ClientType represents the type of OAuth2 client application.
type ClientType string

const (
	// ClientConfidential clients can securely store secrets.
	ClientConfidential ClientType = "confidential"
	// ClientPublic clients cannot securely store secrets (mobile apps, SPAs).
	ClientPublic ClientType = "public"
)

// SigningAlgorithm identifies the algorithm an application expects for
// tokens signed on its behalf (ID tokens, backchannel logout tokens).
type SigningAlgorithm string

const (
	// AlgNone is the "no algorithm configured" sentinel. Applications with
	// this value cannot receive signed artifacts such as logout tokens.
	AlgNone  SigningAlgorithm = ""
	AlgHS256 SigningAlgorithm = "HS256"
	AlgRS256 SigningAlgorithm = "RS256"
)

// GrantType enumerates the OAuth2 grant types an application may use.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantImplicit          GrantType = "implicit"
)

// Application is a registered OAuth2 client. It is immutable after creation;
// registration and administration happen outside this core.
//
//nolint:tagliatelle
type Application struct {
	ClientID   string     `bson:"client_id"             json:"client_id"`
	SecretHash string     `bson:"client_secret,omitempty" json:"-"` // bcrypt hash, opaque to this core
	Name       string     `bson:"client_name,omitempty" json:"name,omitempty"`
	Type       ClientType `bson:"client_type"           json:"client_type"`

	GrantTypes    []GrantType `bson:"allowed_grant_types"   json:"allowed_grant_types"`
	RedirectURIs  []string    `bson:"redirect_uris"         json:"redirect_uris"`
	AllowedScopes []string    `bson:"allowed_scopes,omitempty" json:"allowed_scopes,omitempty"`

	// Algorithm used when signing ID tokens and logout tokens for this
	// application. AlgNone means no signed artifacts can be produced.
	Algorithm SigningAlgorithm `bson:"algorithm,omitempty" json:"algorithm,omitempty"`

	// BackchannelLogoutURI, when set, receives OIDC backchannel logout
	// tokens on user logout. Empty means the application is not notified.
	BackchannelLogoutURI string `bson:"backchannel_logout_uri,omitempty" json:"backchannel_logout_uri,omitempty"`

	RequirePKCE bool      `bson:"require_pkce"          json:"require_pkce"`
	CreatedAt   time.Time `bson:"created_at"            json:"created_at"`
}

// AllowsGrantType reports whether the application may use the given grant type.
func (a *Application) AllowsGrantType(gt GrantType) bool {
	for _, allowed := range a.GrantTypes {
		if allowed == gt {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether uri is one of the registered redirect URIs.
func (a *Application) AllowsRedirectURI(uri string) bool {
	for _, registered := range a.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
