package domain

import "time"

// Grant is a short-lived authorization-code record bridging the
// authorization step and the token exchange. A grant is consumed exactly
// once: the repository deletes it atomically with the read, so a code can
// never be exchanged twice even under concurrent requests.
type Grant struct {
	Code        string    `bson:"_id"          json:"code"` // Opaque authorization code
	ClientID    string    `bson:"client_id"    json:"client_id"`
	UserID      string    `bson:"user_id"      json:"user_id"`
	Scope       string    `bson:"scope"        json:"scope"`
	RedirectURI string    `bson:"redirect_uri" json:"redirect_uri"`
	ExpiresAt   time.Time `bson:"expires_at"   json:"expires_at"`
	CreatedAt   time.Time `bson:"created_at"   json:"created_at"`

	// Resources is the RFC 8707 resource set requested at authorization
	// time, recorded verbatim. It is the ceiling for every token minted
	// from this grant. Empty means unrestricted.
	Resources []string `bson:"resources,omitempty" json:"resources,omitempty"`

	CodeChallenge       string `bson:"code_challenge,omitempty"        json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
}

// Expired reports whether the grant is past its expiry at the given instant.
func (g *Grant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}
