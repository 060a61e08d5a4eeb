// Package audience implements RFC 8707 audience matching: deciding whether
// a request URI is covered by the resource set granted to a token.
package audience

import (
	"net/url"
	"strings"
)

// Matches reports whether requestURI is covered by the granted audience set.
//
// An empty granted set means the token is unrestricted and matches any
// request (backward-compatible default). Otherwise at least one audience
// must match: scheme and authority compared by exact string equality, and
// the audience path (single trailing slash stripped) must equal the request
// path or be a proper prefix of it at a path-segment boundary. Query strings
// are ignored on both sides; callers are expected to strip them from the
// request URI.
//
// Pure and total: no network access, no mutation, unparseable URIs simply
// never match.
func Matches(requestURI string, granted []string) bool {
	if len(granted) == 0 {
		return true
	}

	req, err := url.Parse(requestURI)
	if err != nil {
		return false
	}

	for _, aud := range granted {
		a, err := url.Parse(aud)
		if err != nil {
			continue
		}
		if a.Scheme != req.Scheme || a.Host != req.Host {
			continue
		}
		if pathCovers(a.Path, req.Path) {
			return true
		}
	}
	return false
}

// pathCovers implements the segment-boundary prefix rule: the audience path
// "/foo" covers "/foo" and "/foo/bar" but never "/foobar".
func pathCovers(audiencePath, requestPath string) bool {
	base := strings.TrimSuffix(audiencePath, "/")
	return requestPath == base || strings.HasPrefix(requestPath, base+"/")
}

// Validator decides whether a bearer token's granted audiences allow a
// request URI. It is the pluggable strategy consumed by the bearer
// validator; implementations must be safe for concurrent use.
type Validator interface {
	Allows(requestURI string, granted []string) bool
}

// PrefixValidator is the default Validator: RFC 8707 prefix matching via
// Matches.
type PrefixValidator struct{}

// NewPrefixValidator returns the default RFC 8707 prefix validator.
func NewPrefixValidator() PrefixValidator { return PrefixValidator{} }

// Allows implements Validator.
func (PrefixValidator) Allows(requestURI string, granted []string) bool {
	return Matches(requestURI, granted)
}
