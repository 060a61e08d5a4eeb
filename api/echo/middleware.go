package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pilab-dev/shadow-authz/errors"
	"github.com/pilab-dev/shadow-authz/services"
)

// principalContextKey is the echo context key the validated principal is
// stored under.
const principalContextKey = "authz.principal"

// RequireBearer validates the request's bearer token against the required
// scopes and the request URI's audience, per RFC 6750 and RFC 8707. On
// success the principal is stored on the context for downstream handlers.
func (oa *OAuth2API) RequireBearer(requiredScopes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerFromHeader(c.Request().Header.Get("Authorization"))

			requestURI := c.Scheme() + "://" + c.Request().Host + c.Request().URL.Path

			principal, err := oa.bearer.ValidateBearer(c.Request().Context(), token, requiredScopes, requestURI)
			if err != nil {
				if oauthErr, ok := errors.AsOAuth2Error(err); ok {
					c.Response().Header().Set("WWW-Authenticate",
						`Bearer error="`+oauthErr.Code+`"`)
					return c.JSON(oauthErr.HTTPStatus(), oauthErr)
				}
				return c.JSON(http.StatusInternalServerError, errors.NewServerError("internal error"))
			}

			c.Set(principalContextKey, principal)
			return next(c)
		}
	}
}

// PrincipalFromContext returns the principal established by RequireBearer,
// or nil when the request was not bearer-authenticated.
func PrincipalFromContext(c echo.Context) *services.Principal {
	principal, _ := c.Get(principalContextKey).(*services.Principal)
	return principal
}
