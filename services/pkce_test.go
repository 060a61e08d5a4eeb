package services

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyPKCEChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	s256Challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	tests := []struct {
		name      string
		challenge string
		method    string
		verifier  string
		want      bool
	}{
		{"S256 match", s256Challenge, "S256", verifier, true},
		{"S256 mismatch", s256Challenge, "S256", "other-verifier", false},
		{"plain match", "plain-value", "plain", "plain-value", true},
		{"plain mismatch", "plain-value", "plain", "other", false},
		{"empty method defaults to plain", "plain-value", "", "plain-value", true},
		{"unknown method", s256Challenge, "S512", verifier, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPKCEChallenge(tt.challenge, tt.method, tt.verifier))
		})
	}
}
