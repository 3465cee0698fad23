package token

import (
	"time"

	"github.com/pushy-go/pushy/auth"
)

// VerifyToken checks a compact bearer token against a verification key at
// the given instant, for a server's provider-token verification path: the
// signature must verify under key's public key, kid/iss must match, and
// iat must fall within the acceptable skew window.
func VerifyToken(tokenString string, key *auth.VerificationKey, now time.Time) error {
	return verifyToken(tokenString, key, now)
}
