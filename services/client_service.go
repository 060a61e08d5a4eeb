package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pilab-dev/shadow-authz/domain"
	serrors "github.com/pilab-dev/shadow-authz/errors"
)

// ClientService resolves and authenticates registered applications. Secret
// hashing lives outside this core; the service only verifies presented
// secrets against the stored bcrypt hash and surfaces mismatches as
// invalid_client.
type ClientService struct {
	apps domain.ApplicationRepository
}

// NewClientService creates a ClientService over the application repository.
func NewClientService(apps domain.ApplicationRepository) *ClientService {
	return &ClientService{apps: apps}
}

// GetApplication resolves an application by client identifier.
func (s *ClientService) GetApplication(ctx context.Context, clientID string) (*domain.Application, error) {
	app, err := s.apps.GetApplication(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrApplicationNotFound) {
			return nil, serrors.NewInvalidClient("unknown client")
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return app, nil
}

// Authenticate resolves the application and verifies the presented secret.
// Public clients carry no secret and authenticate by identifier alone.
func (s *ClientService) Authenticate(ctx context.Context, clientID, clientSecret string) (*domain.Application, error) {
	app, err := s.GetApplication(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if app.Type == domain.ClientPublic {
		return app, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(app.SecretHash), []byte(clientSecret)); err != nil {
		return nil, serrors.NewInvalidClient("invalid client credentials")
	}
	return app, nil
}

// ValidateScope checks the requested scope against the application's
// allowed scopes. An empty request or an application without a scope
// allowlist passes.
func (s *ClientService) ValidateScope(app *domain.Application, scope string) error {
	if scope == "" || len(app.AllowedScopes) == 0 {
		return nil
	}
	for _, requested := range strings.Fields(scope) {
		allowed := false
		for _, a := range app.AllowedScopes {
			if a == requested {
				allowed = true
				break
			}
		}
		if !allowed {
			return serrors.NewInvalidScope(fmt.Sprintf("scope %q is not allowed for this client", requested))
		}
	}
	return nil
}
