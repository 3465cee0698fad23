// Package token implements the APNs provider-token lifecycle: building and
// caching ES256 JWTs from a signing key, rotating them on a refresh
// threshold, and verifying them on the server side.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pushy-go/pushy/auth"
)

// RefreshThreshold is the default maximum age of a cached token before a
// new one is minted. APNs servers reject tokens older than roughly one
// hour; 55 minutes leaves headroom.
const RefreshThreshold = 55 * time.Minute

// MaxVerificationSkew bounds how far in the future a token's iat may be,
// and how far beyond one hour in the past, for VerifyToken to accept it.
const MaxVerificationSkew = 5 * time.Minute

// ErrTokenOutsideSkew is returned (wrapped) by VerifyToken when a token's
// iat is otherwise well-formed but falls outside the acceptable skew
// window — the "expired" case a mock server maps to
// ExpiredProviderToken, distinct from every other verification failure.
var ErrTokenOutsideSkew = errors.New("token: iat is outside the acceptable skew window")

// buildToken constructs the JWT header/claims APNs requires
// ({alg:ES256, typ:JWT, kid}, {iss, iat}) and signs it with key, returning
// the compact token string and the iat it embedded.
func buildToken(key *auth.SigningKey, now time.Time) (string, int64, error) {
	iat := now.UTC().Unix()
	claims := jwt.MapClaims{
		"iss": key.TeamID(),
		"iat": iat,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = key.KeyID()

	signed, err := tok.SignedString(key.Private())
	if err != nil {
		return "", 0, fmt.Errorf("token: failed to sign provider token: %w", err)
	}
	return signed, iat, nil
}

// verifyToken recomputes the signature over the token with the named
// verification key and checks kid/iss match and iat is within skew,
// mirroring the provider-token server-side verification path.
func verifyToken(tokenString string, key *auth.VerificationKey, now time.Time) error {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != key.KeyID() {
			return nil, fmt.Errorf("token: kid %q does not match verification key %q", kid, key.KeyID())
		}
		return key.Public(), nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return fmt.Errorf("token: signature verification failed: %w", err)
	}
	if !parsed.Valid {
		return errors.New("token: token is not valid")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("token: unexpected claims type")
	}
	iss, _ := claims["iss"].(string)
	if iss != key.TeamID() {
		return fmt.Errorf("token: iss %q does not match verification key team %q", iss, key.TeamID())
	}

	iatFloat, ok := claims["iat"].(float64)
	if !ok {
		return errors.New("token: missing iat claim")
	}
	iat := time.Unix(int64(iatFloat), 0)
	skew := now.Sub(iat)
	if skew < -MaxVerificationSkew || skew > time.Hour+MaxVerificationSkew {
		return fmt.Errorf("%w: iat %s, now %s", ErrTokenOutsideSkew, iat, now)
	}
	return nil
}
