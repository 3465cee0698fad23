// Package auth holds the P-256 signing and verification keys used for
// APNs provider authentication. Keys are immutable once
// constructed: rotating a key means constructing a new one.
package auth

import (
	"crypto/ecdsa"
	"fmt"
)

// KeyIDLength and TeamIDLength are the fixed lengths Apple assigns to a
// signing key's identifiers.
const (
	KeyIDLength  = 10
	TeamIDLength = 10
)

// SigningKey is an ES256 (P-256) private key tagged with the key ID and
// team ID Apple issued alongside it. It is validated at construction time
// so a malformed key fails fast, before any network use.
type SigningKey struct {
	private *ecdsa.PrivateKey
	keyID   string
	teamID  string
}

// NewSigningKey validates key, keyID, and teamID and returns an immutable
// SigningKey. An illegal key is rejected here rather than on first use.
func NewSigningKey(key *ecdsa.PrivateKey, keyID, teamID string) (*SigningKey, error) {
	if key == nil {
		return nil, fmt.Errorf("auth: signing key must not be nil")
	}
	if key.Curve == nil || key.Curve.Params().Name != "P-256" {
		return nil, fmt.Errorf("auth: signing key must use the P-256 curve")
	}
	if len(keyID) != KeyIDLength {
		return nil, fmt.Errorf("auth: key id must be %d characters, got %d", KeyIDLength, len(keyID))
	}
	if len(teamID) != TeamIDLength {
		return nil, fmt.Errorf("auth: team id must be %d characters, got %d", TeamIDLength, len(teamID))
	}
	return &SigningKey{private: key, keyID: keyID, teamID: teamID}, nil
}

// Private returns the underlying ECDSA private key.
func (k *SigningKey) Private() *ecdsa.PrivateKey { return k.private }

// KeyID returns the Apple-issued key identifier.
func (k *SigningKey) KeyID() string { return k.keyID }

// TeamID returns the Apple-issued team identifier.
func (k *SigningKey) TeamID() string { return k.teamID }

// CacheKey identifies this key for the purposes of per-key token caching;
// two SigningKeys with the same KeyID/TeamID are treated as the same
// signing identity even if constructed separately.
func (k *SigningKey) CacheKey() string { return k.teamID + ":" + k.keyID }

// VerificationKey is the public counterpart to a SigningKey, used by the
// mock server to verify provider tokens.
type VerificationKey struct {
	public *ecdsa.PublicKey
	keyID  string
	teamID string
}

// NewVerificationKey validates key, keyID, and teamID and returns an
// immutable VerificationKey.
func NewVerificationKey(key *ecdsa.PublicKey, keyID, teamID string) (*VerificationKey, error) {
	if key == nil {
		return nil, fmt.Errorf("auth: verification key must not be nil")
	}
	if key.Curve == nil || key.Curve.Params().Name != "P-256" {
		return nil, fmt.Errorf("auth: verification key must use the P-256 curve")
	}
	if len(keyID) != KeyIDLength {
		return nil, fmt.Errorf("auth: key id must be %d characters, got %d", KeyIDLength, len(keyID))
	}
	if len(teamID) != TeamIDLength {
		return nil, fmt.Errorf("auth: team id must be %d characters, got %d", TeamIDLength, len(teamID))
	}
	return &VerificationKey{public: key, keyID: keyID, teamID: teamID}, nil
}

func (k *VerificationKey) Public() *ecdsa.PublicKey { return k.public }
func (k *VerificationKey) KeyID() string            { return k.keyID }
func (k *VerificationKey) TeamID() string           { return k.teamID }
