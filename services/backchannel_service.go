package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pilab-dev/shadow-authz/domain"
	serrors "github.com/pilab-dev/shadow-authz/errors"
	"github.com/pilab-dev/shadow-authz/internal/metrics"
	applog "github.com/pilab-dev/shadow-authz/log"
)

// logoutEventClaim is the OIDC backchannel logout event identifier.
const logoutEventClaim = "http://schemas.openid.net/event/backchannel-logout"

// LogoutTokenDeliverer delivers a signed logout token to a relying
// application's backchannel endpoint.
type LogoutTokenDeliverer interface {
	PostLogoutToken(ctx context.Context, uri, signedToken string) error
}

// HTTPLogoutDeliverer posts the logout token as an application/x-www-form-urlencoded
// body with a logout_token field, per the OIDC backchannel logout profile.
type HTTPLogoutDeliverer struct {
	client *http.Client
}

// NewHTTPLogoutDeliverer creates a deliverer with the given per-request
// timeout.
func NewHTTPLogoutDeliverer(timeout time.Duration) *HTTPLogoutDeliverer {
	return &HTTPLogoutDeliverer{client: &http.Client{Timeout: timeout}}
}

// PostLogoutToken implements LogoutTokenDeliverer. Non-2xx responses are
// delivery failures.
func (d *HTTPLogoutDeliverer) PostLogoutToken(ctx context.Context, uri, signedToken string) error {
	form := url.Values{"logout_token": {signedToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, strings.NewReader(form.Encode()))
	if err != nil {
		return &serrors.DeliveryFailure{URI: uri, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return &serrors.DeliveryFailure{URI: uri, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &serrors.DeliveryFailure{URI: uri, Status: resp.StatusCode}
	}
	return nil
}

// BackchannelService dispatches OIDC backchannel logout notifications when
// a user's session ends. It is called directly by the session teardown
// path; there is no implicit event propagation.
type BackchannelService struct {
	tokens    domain.TokenRepository
	apps      domain.ApplicationRepository
	signer    *TokenSigner
	deliverer LogoutTokenDeliverer
	issuer    string
	logger    applog.Logger
}

// NewBackchannelService creates the logout dispatcher.
func NewBackchannelService(
	tokens domain.TokenRepository,
	apps domain.ApplicationRepository,
	signer *TokenSigner,
	deliverer LogoutTokenDeliverer,
	issuer string,
	logger applog.Logger,
) *BackchannelService {
	return &BackchannelService{
		tokens:    tokens,
		apps:      apps,
		signer:    signer,
		deliverer: deliverer,
		issuer:    issuer,
		logger:    logger,
	}
}

// DispatchLogout fans out logout notifications for the user. Per
// application: skipped when no backchannel URI is configured, skipped when
// any of the user's ID tokens for it carries offline_access (a live refresh
// capability means the session is not force-terminated), otherwise exactly
// one notification is sent regardless of how many ID tokens exist. Each
// application's dispatch is isolated: one failure never prevents the rest.
// The returned error aggregates per-application failures after the full
// fan-out completes. It is a delivery report only: the logout itself has
// already been dispatched everywhere it could be, and callers answering
// the logged-out user must not surface it as a failure of their request.
func (s *BackchannelService) DispatchLogout(ctx context.Context, userID string) error {
	idTokens, err := s.tokens.ListIDTokensForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list ID tokens for user: %w", err)
	}

	groups := make(map[string][]*domain.IDToken)
	order := make([]string, 0)
	for _, t := range idTokens {
		if _, seen := groups[t.ClientID]; !seen {
			order = append(order, t.ClientID)
		}
		groups[t.ClientID] = append(groups[t.ClientID], t)
	}

	var failures []string
	for _, clientID := range order {
		group := groups[clientID]
		if err := s.dispatchToApplication(ctx, userID, clientID, group); err != nil {
			metrics.LogoutDispatchFailuresTotal.Inc()
			s.logger.Error(ctx, "backchannel logout dispatch failed", err, map[string]interface{}{
				"client_id": clientID,
				"user_id":   userID,
			})
			failures = append(failures, clientID)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("backchannel logout failed for %d application(s): %s",
			len(failures), strings.Join(failures, ", "))
	}
	return nil
}

// dispatchToApplication handles the single-application decision and, when
// warranted, exactly one notification.
func (s *BackchannelService) dispatchToApplication(
	ctx context.Context,
	userID, clientID string,
	group []*domain.IDToken,
) error {
	app, err := s.apps.GetApplication(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to load application %s: %w", clientID, err)
	}
	if app.BackchannelLogoutURI == "" {
		return nil
	}
	for _, t := range group {
		if t.HasOfflineAccess() {
			s.logger.Debug(ctx, "skipping backchannel logout, session has offline access", map[string]interface{}{
				"client_id": clientID,
			})
			return nil
		}
	}

	signedToken, err := s.buildLogoutToken(userID, app)
	if err != nil {
		return err
	}
	if err := s.deliverer.PostLogoutToken(ctx, app.BackchannelLogoutURI, signedToken); err != nil {
		return err
	}

	metrics.LogoutDispatchesTotal.Inc()
	s.logger.Info(ctx, "backchannel logout dispatched", map[string]interface{}{
		"client_id": clientID,
		"user_id":   userID,
	})
	return nil
}

// buildLogoutToken constructs and signs the OIDC logout token. Applications
// configured with the "none" algorithm cannot receive a usable signed
// artifact; the signer rejects them with a ConfigurationError.
func (s *BackchannelService) buildLogoutToken(userID string, app *domain.Application) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": userID,
		"aud": jwt.ClaimStrings{app.ClientID},
		"iat": jwt.NewNumericDate(now).Unix(),
		"jti": uuid.NewString(),
		"events": map[string]interface{}{
			logoutEventClaim: map[string]interface{}{},
		},
	}
	signed, err := s.signer.Sign(claims, app)
	if err != nil {
		return "", fmt.Errorf("failed to sign logout token for %s: %w", app.ClientID, err)
	}
	return signed, nil
}
