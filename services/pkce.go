package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// VerifyPKCEChallenge validates a code verifier against the challenge
// recorded on the grant. The plain method compares directly; S256 compares
// against the base64url-encoded SHA-256 of the verifier. Comparison is
// constant-time.
func VerifyPKCEChallenge(challenge, method, verifier string) bool {
	switch method {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
	case "plain", "":
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	default:
		return false
	}
}
