//nolint:varnamelen
package echo

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pilab-dev/shadow-authz/domain"
	"github.com/pilab-dev/shadow-authz/errors"
	applog "github.com/pilab-dev/shadow-authz/log"
	"github.com/pilab-dev/shadow-authz/services"
)

// UserResolver yields the authenticated user identity for an authorization
// or logout request. User authentication happens upstream of this server;
// the resolver is the boundary to that collaborator.
type UserResolver func(c echo.Context) (string, error)

// HeaderUserResolver reads the user identity from the X-Authenticated-User
// header, as set by an upstream authentication layer.
func HeaderUserResolver(c echo.Context) (string, error) {
	userID := c.Request().Header.Get("X-Authenticated-User")
	if userID == "" {
		return "", errors.NewInvalidRequest("no authenticated user")
	}
	return userID, nil
}

// OAuth2API holds the handler dependencies.
type OAuth2API struct {
	grants      *services.GrantService
	clients     *services.ClientService
	bearer      *services.BearerService
	backchannel *services.BackchannelService
	resolveUser UserResolver
	logger      applog.Logger
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(
	grants *services.GrantService,
	clients *services.ClientService,
	bearer *services.BearerService,
	backchannel *services.BackchannelService,
	resolveUser UserResolver,
	logger applog.Logger,
) *OAuth2API {
	if resolveUser == nil {
		resolveUser = HeaderUserResolver
	}
	return &OAuth2API{
		grants:      grants,
		clients:     clients,
		bearer:      bearer,
		backchannel: backchannel,
		resolveUser: resolveUser,
		logger:      logger,
	}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth2/authorize", oa.AuthorizeHandler)
	e.POST("/oauth2/token", oa.TokenHandler)
	e.POST("/oauth2/revoke", oa.RevokeHandler)
	e.POST("/oauth2/logout", oa.LogoutHandler)
}

// writeOAuthError serializes err as an RFC 6749 error body with the status
// the error code maps to.
func (oa *OAuth2API) writeOAuthError(c echo.Context, err error) error {
	if oauthErr, ok := errors.AsOAuth2Error(err); ok {
		return c.JSON(oauthErr.HTTPStatus(), oauthErr)
	}
	oa.logger.Error(c.Request().Context(), "request failed", err)
	return c.JSON(http.StatusInternalServerError, errors.NewServerError("internal error"))
}

// AuthorizeHandler handles OAuth 2.0 authorization requests for the code
// and implicit flows. The resource parameter is repeatable per RFC 8707 and
// recorded verbatim on the grant.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	clientID := c.QueryParam("client_id")
	redirectURI := c.QueryParam("redirect_uri")
	responseType := c.QueryParam("response_type")
	scope := c.QueryParam("scope")
	state := c.QueryParam("state")
	resources := c.QueryParams()["resource"]

	ctx := c.Request().Context()

	app, err := oa.clients.GetApplication(ctx, clientID)
	if err != nil {
		return oa.writeOAuthError(c, err)
	}
	if err := oa.clients.ValidateScope(app, scope); err != nil {
		return oa.writeOAuthError(c, err)
	}

	userID, err := oa.resolveUser(c)
	if err != nil {
		return oa.writeOAuthError(c, err)
	}

	switch responseType {
	case "code":
		codeChallenge := c.QueryParam("code_challenge")
		codeChallengeMethod := c.QueryParam("code_challenge_method")
		if codeChallenge != "" && codeChallengeMethod != "S256" && codeChallengeMethod != "plain" && codeChallengeMethod != "" {
			return oa.writeOAuthError(c, errors.NewInvalidRequest("invalid code_challenge_method"))
		}

		grant, err := oa.grants.Authorize(ctx, app, userID, scope, resources,
			redirectURI, codeChallenge, codeChallengeMethod)
		if err != nil {
			return oa.writeOAuthError(c, err)
		}

		redirectURL := fmt.Sprintf("%s?code=%s", redirectURI, url.QueryEscape(grant.Code))
		if state != "" {
			redirectURL += "&state=" + url.QueryEscape(state)
		}
		return c.Redirect(http.StatusFound, redirectURL)

	case "token":
		access, err := oa.grants.AuthorizeImplicit(ctx, app, userID, scope, resources, redirectURI)
		if err != nil {
			return oa.writeOAuthError(c, err)
		}

		fragment := url.Values{
			"access_token": {access.Token},
			"token_type":   {"Bearer"},
		}
		if state != "" {
			fragment.Set("state", state)
		}
		return c.Redirect(http.StatusFound, redirectURI+"#"+fragment.Encode())

	default:
		return oa.writeOAuthError(c, errors.NewInvalidRequest("unsupported response_type"))
	}
}

// TokenHandler handles OAuth2 token requests. It authenticates the client,
// dispatches on grant_type and returns either a token response or an RFC
// 6749 error body. The resource form parameter is repeatable per RFC 8707.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	clientID := c.FormValue("client_id")
	clientSecret := c.FormValue("client_secret")
	grantType := c.FormValue("grant_type")

	ctx := c.Request().Context()

	app, err := oa.clients.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		oa.logger.Warn(ctx, "client authentication failed", map[string]interface{}{
			"client_id": clientID,
		})
		return oa.writeOAuthError(c, err)
	}

	form, err := c.FormParams()
	if err != nil {
		return oa.writeOAuthError(c, errors.NewInvalidRequest("malformed request body"))
	}
	resources := form["resource"]

	var tokenResponse *services.TokenResponse

	switch domain.GrantType(grantType) {
	case domain.GrantAuthorizationCode:
		tokenResponse, err = oa.handleAuthorizationCodeGrant(c, app, resources)
	case domain.GrantClientCredentials:
		tokenResponse, err = oa.handleClientCredentialsGrant(c, app, resources)
	case domain.GrantRefreshToken:
		tokenResponse, err = oa.handleRefreshTokenGrant(c, app, resources)
	default:
		return oa.writeOAuthError(c, errors.NewUnsupportedGrantType())
	}
	if err != nil {
		return oa.writeOAuthError(c, err)
	}

	oa.logger.Info(ctx, "token issued", map[string]interface{}{
		"client_id":  clientID,
		"grant_type": grantType,
		"expires_in": tokenResponse.ExpiresIn,
	})
	return c.JSON(http.StatusOK, tokenResponse)
}

func (oa *OAuth2API) handleAuthorizationCodeGrant(c echo.Context, app *domain.Application, resources []string) (*services.TokenResponse, error) {
	code := c.FormValue("code")
	if code == "" {
		return nil, errors.NewInvalidRequest("code is required")
	}
	redirectURI := c.FormValue("redirect_uri")
	codeVerifier := c.FormValue("code_verifier")

	return oa.grants.Exchange(c.Request().Context(), code, app, resources, redirectURI, codeVerifier)
}

func (oa *OAuth2API) handleClientCredentialsGrant(c echo.Context, app *domain.Application, resources []string) (*services.TokenResponse, error) {
	scope := c.FormValue("scope")
	if err := oa.clients.ValidateScope(app, scope); err != nil {
		return nil, err
	}
	return oa.grants.ClientCredentials(c.Request().Context(), app, scope, resources)
}

func (oa *OAuth2API) handleRefreshTokenGrant(c echo.Context, app *domain.Application, resources []string) (*services.TokenResponse, error) {
	refreshToken := c.FormValue("refresh_token")
	if refreshToken == "" {
		return nil, errors.NewInvalidRequest("refresh_token is required")
	}
	return oa.grants.Refresh(c.Request().Context(), refreshToken, app, resources)
}

// RevokeHandler handles token revocation per RFC 7009. The endpoint returns
// 200 OK whether or not the token was known.
func (oa *OAuth2API) RevokeHandler(c echo.Context) error {
	token := c.FormValue("token")
	if token == "" {
		return oa.writeOAuthError(c, errors.NewInvalidRequest("token parameter is required"))
	}

	ctx := c.Request().Context()
	if _, err := oa.clients.Authenticate(ctx, c.FormValue("client_id"), c.FormValue("client_secret")); err != nil {
		return oa.writeOAuthError(c, err)
	}

	if err := oa.bearer.Revoke(ctx, token); err != nil {
		// RFC 7009 section 2.2: respond 200 even when revocation fails.
		oa.logger.Error(ctx, "failed to revoke token", err)
	}
	return c.JSON(http.StatusOK, echo.Map{})
}

// LogoutHandler terminates a user session and fans out backchannel logout
// notifications. The response is 200 regardless of per-application delivery
// failures; failures are logged and isolated inside the dispatcher.
func (oa *OAuth2API) LogoutHandler(c echo.Context) error {
	userID, err := oa.resolveUser(c)
	if err != nil {
		return oa.writeOAuthError(c, err)
	}

	ctx := c.Request().Context()
	if err := oa.backchannel.DispatchLogout(ctx, userID); err != nil {
		oa.logger.Error(ctx, "backchannel logout completed with failures", err, map[string]interface{}{
			"user_id": userID,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{})
}

// bearerFromHeader extracts the bearer token from an Authorization header.
func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
