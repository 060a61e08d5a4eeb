package services

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pilab-dev/shadow-authz/domain"
	serrors "github.com/pilab-dev/shadow-authz/errors"
)

var errNoPEMBlock = errors.New("no PEM block found in signing key material")

// TokenSigner is the signing capability: it produces signed JWTs (ID tokens,
// backchannel logout tokens) using the algorithm each application is
// configured with. Key material is fixed at construction; the signer is safe
// for concurrent use.
type TokenSigner struct {
	hmacSecret []byte
	rsaKey     *rsa.PrivateKey
	keyID      string
}

// TokenSignerOption configures a TokenSigner.
type TokenSignerOption func(*TokenSigner)

// WithHMACSecret installs the shared secret used for HS256 applications.
func WithHMACSecret(secret []byte) TokenSignerOption {
	return func(s *TokenSigner) { s.hmacSecret = secret }
}

// WithRSAKey installs the private key used for RS256 applications. keyID is
// emitted as the "kid" header on tokens signed with it.
func WithRSAKey(key *rsa.PrivateKey, keyID string) TokenSignerOption {
	return func(s *TokenSigner) {
		s.rsaKey = key
		s.keyID = keyID
	}
}

// WithRSAKeyPEM parses a PKCS#1 or PKCS#8 encoded RSA private key.
func WithRSAKeyPEM(pemData []byte, keyID string) (TokenSignerOption, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errNoPEMBlock
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return WithRSAKey(key, keyID), nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an RSA private key")
	}
	return WithRSAKey(key, keyID), nil
}

// NewTokenSigner creates a TokenSigner with the given key material.
func NewTokenSigner(opts ...TokenSignerOption) *TokenSigner {
	s := &TokenSigner{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign produces a signed JWT for the given application. It fails with a
// ConfigurationError when the application's algorithm is the "none"
// sentinel or the signer lacks key material for it.
func (s *TokenSigner) Sign(claims jwt.Claims, app *domain.Application) (string, error) {
	switch app.Algorithm {
	case domain.AlgHS256:
		if len(s.hmacSecret) == 0 {
			return "", serrors.NewConfigurationError("no HMAC secret configured for HS256 application %s", app.ClientID)
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hmacSecret)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, nil

	case domain.AlgRS256:
		if s.rsaKey == nil {
			return "", serrors.NewConfigurationError("no RSA key configured for RS256 application %s", app.ClientID)
		}
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		if s.keyID != "" {
			token.Header["kid"] = s.keyID
		}
		signed, err := token.SignedString(s.rsaKey)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, nil

	case domain.AlgNone:
		return "", serrors.NewConfigurationError("application %s has no signing algorithm configured", app.ClientID)

	default:
		return "", serrors.NewConfigurationError("unsupported signing algorithm %q for application %s", app.Algorithm, app.ClientID)
	}
}
