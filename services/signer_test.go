package services

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-authz/domain"
	serrors "github.com/pilab-dev/shadow-authz/errors"
)

func TestTokenSignerHS256(t *testing.T) {
	secret := []byte("test-hmac-secret")
	signer := NewTokenSigner(WithHMACSecret(secret))
	app := &domain.Application{ClientID: "client-1", Algorithm: domain.AlgHS256}

	signed, err := signer.Sign(jwt.MapClaims{"sub": "user-1"}, app)
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestTokenSignerRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer := NewTokenSigner(WithRSAKey(key, "key-1"))
	app := &domain.Application{ClientID: "client-1", Algorithm: domain.AlgRS256}

	signed, err := signer.Sign(jwt.MapClaims{"sub": "user-1"}, app)
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (interface{}, error) {
		assert.Equal(t, "key-1", tok.Header["kid"])
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
}

func TestTokenSignerConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		signer *TokenSigner
		alg    domain.SigningAlgorithm
	}{
		{"none algorithm", NewTokenSigner(WithHMACSecret([]byte("s"))), domain.AlgNone},
		{"missing HMAC secret", NewTokenSigner(), domain.AlgHS256},
		{"missing RSA key", NewTokenSigner(), domain.AlgRS256},
		{"unknown algorithm", NewTokenSigner(), domain.SigningAlgorithm("ES512")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &domain.Application{ClientID: "client-1", Algorithm: tt.alg}
			_, err := tt.signer.Sign(jwt.MapClaims{}, app)
			require.Error(t, err)

			var ce *serrors.ConfigurationError
			assert.True(t, errors.As(err, &ce))
		})
	}
}
