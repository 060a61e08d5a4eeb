package services

import (
	serrors "github.com/pilab-dev/shadow-authz/errors"
)

// escalationMessage is the invalid_target description used when a token
// request asks for a resource outside the originally authorized set.
const escalationMessage = "cannot escalate resource permissions beyond the original authorization grant"

// ResourceEnforcer computes the resource set to bind to a newly issued
// token. It is invoked both when exchanging a grant (authorized = the
// grant's resource set) and when exercising a refresh token (authorized =
// the refresh token's ceiling). Stateless and safe for concurrent use.
type ResourceEnforcer struct{}

// NewResourceEnforcer returns a ResourceEnforcer.
func NewResourceEnforcer() *ResourceEnforcer { return &ResourceEnforcer{} }

// Bind returns the resource set for a new token given the request's
// requested resources and the previously authorized set.
//
// An empty request binds the full authorized set. A non-empty request must
// be a subset of the authorized set by exact string membership (escalation
// checks are identity-based, distinct from the prefix matching used at the
// resource server); any element outside it fails with invalid_target naming
// the offending URI. On success the bound set is the requested one with
// duplicates collapsed, preserving first occurrence order.
func (e *ResourceEnforcer) Bind(requested, authorized []string) ([]string, error) {
	if len(requested) == 0 {
		bound := make([]string, len(authorized))
		copy(bound, authorized)
		return bound, nil
	}

	allowed := make(map[string]struct{}, len(authorized))
	for _, a := range authorized {
		allowed[a] = struct{}{}
	}

	bound := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, r := range requested {
		if _, ok := allowed[r]; !ok {
			return nil, serrors.NewInvalidTarget(escalationMessage, r)
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		bound = append(bound, r)
	}
	return bound, nil
}
