package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth2Error represents a standardized OAuth 2.0 error. It serializes to
// the RFC 6749 error body and knows which HTTP status it maps to.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes, plus the RFC 8707 and bearer-validation
// codes this server produces.
const (
	InvalidRequest       = "invalid_request"
	UnauthorizedClient   = "unauthorized_client"
	AccessDenied         = "access_denied"
	UnsupportedGrantType = "unsupported_grant_type"
	InvalidScope         = "invalid_scope"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	InvalidTarget        = "invalid_target" // RFC 8707: resource escalation or audience mismatch
	InvalidToken         = "invalid_token"  // RFC 6750: bearer token missing, expired or revoked
	InsufficientScope    = "insufficient_scope"
	ServerError          = "server_error"
)

// HTTPStatus maps the error code onto the protocol response status:
// request-level errors are 400, bearer-validation failures are 401.
func (e *OAuth2Error) HTTPStatus() int {
	switch e.Code {
	case InvalidToken, InsufficientScope:
		return http.StatusUnauthorized
	case ServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

// NewInvalidTarget reports an RFC 8707 resource failure. The offending URI
// is always part of the description so clients can identify the rejected
// resource.
func NewInvalidTarget(description, offendingURI string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidTarget,
		Description: fmt.Sprintf("%s: %s", description, offendingURI),
	}
}

func NewInvalidToken(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidToken, Description: description}
}

func NewInsufficientScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InsufficientScope, Description: description}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: UnauthorizedClient, Description: description}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

// PKCE failures are request-level invalid_grant errors at exchange time.
func NewInvalidPKCE(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: fmt.Sprintf("PKCE validation failed: %s", description),
	}
}

// AsOAuth2Error unwraps err into an *OAuth2Error if one is in its chain.
func AsOAuth2Error(err error) (*OAuth2Error, bool) {
	var oe *OAuth2Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
