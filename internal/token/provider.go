package token

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pushy-go/pushy/auth"
)

// cachedToken is a minted provider token and the instant it was built.
type cachedToken struct {
	value string
	iat   int64
	built time.Time
}

// Provider produces APNs bearer tokens for a single signing key, reusing a
// cached token while it is fresh and rotating it once its age exceeds
// RefreshThreshold. Building a new token is serialized so at
// most one is in flight per key at a time, even under concurrent callers.
type Provider struct {
	key   *auth.SigningKey
	group singleflight.Group

	mu     sync.RWMutex
	cached *cachedToken

	refreshThreshold time.Duration
	now              func() time.Time
}

// NewProvider returns a Provider for key using the default refresh
// threshold and wall-clock time.
func NewProvider(key *auth.SigningKey) *Provider {
	return &Provider{
		key:              key,
		refreshThreshold: RefreshThreshold,
		now:              time.Now,
	}
}

// WithClock overrides the provider's time source; used by tests to
// exercise rotation deterministically.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// WithRefreshThreshold overrides the default 55-minute refresh threshold.
func (p *Provider) WithRefreshThreshold(d time.Duration) *Provider {
	p.refreshThreshold = d
	return p
}

// Token returns a bearer token valid now, reusing the cached one if it is
// still fresh, otherwise minting a new one.
func (p *Provider) Token() (string, error) {
	if tok, ok := p.freshCached(); ok {
		return tok, nil
	}

	v, err, _ := p.group.Do(p.key.CacheKey(), func() (any, error) {
		if tok, ok := p.freshCached(); ok {
			return tok, nil
		}
		now := p.now()
		value, iat, err := buildToken(p.key, now)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.cached = &cachedToken{value: value, iat: iat, built: now}
		p.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate discards the cached token, forcing the next Token call to
// mint a fresh one. Called when the server rejects a token as expired or
// invalid (kind KindAuthRejection).
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// LastIssuedAt returns the iat of the most recently minted token, or zero
// if none has been minted yet. Exposed so callers can verify that after an
// auth rejection, the next outbound request bears a token whose iat is
// strictly greater than the rejected token's.
func (p *Provider) LastIssuedAt() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached == nil {
		return 0
	}
	return p.cached.iat
}

func (p *Provider) freshCached() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached == nil {
		return "", false
	}
	if p.now().Sub(p.cached.built) >= p.refreshThreshold {
		return "", false
	}
	return p.cached.value, true
}
