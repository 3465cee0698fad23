// Package pushy is a client for the Apple Push Notification service
// (APNs). It supports both token-based (.p8 / JWT) and certificate-based
// (.p12 / mTLS) authentication, and maintains a long-lived HTTP/2
// connection with automatic reconnection, GOAWAY handling, and idle
// liveness probing.
package pushy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pushy-go/pushy/auth"
	"github.com/pushy-go/pushy/internal/conn"
	"github.com/pushy-go/pushy/internal/token"
	"github.com/pushy-go/pushy/internal/wire"
)

// Environment selects which APNs host a Client talks to.
type Environment int

const (
	Production Environment = iota
	Development
)

const (
	productionHost  = "api.push.apple.com:443"
	developmentHost = "api.sandbox.push.apple.com:443"

	defaultDialTimeout = 10 * time.Second
)

func (e Environment) host() string {
	if e == Development {
		return developmentHost
	}
	return productionHost
}

// BatchResult pairs a submitted notification with its outcome, returned
// by SendBatch in the same order the notifications were given.
type BatchResult struct {
	Notification *PushNotification
	Response     *Response
	Err          error
}

// Client sends notifications over a supervised HTTP/2 connection to one
// APNs environment. A Client is safe for concurrent use by multiple
// goroutines once Connect has returned.
type Client struct {
	host          string
	tlsConfig     *tls.Config
	authenticator conn.Authenticator
	bundleID      string
	logger        *zap.Logger
	hooks         Hooks
	connConfig    conn.Config
	dialTimeout   time.Duration

	mu          sync.RWMutex
	current     *conn.Connection
	closed      bool
	reconnectCh chan struct{}

	closeCh chan struct{}
	backoff *conn.Backoff
	wg      sync.WaitGroup
}

// NewClientWithToken constructs a Client authenticated with a provider
// JWT minted from key, rotated automatically as it ages.
func NewClientWithToken(key *auth.SigningKey, env Environment, opts ...ClientOption) (*Client, error) {
	if key == nil {
		return nil, errors.New("pushy: signing key must not be nil")
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	return newClient(env.host(), tlsConfig, token.NewProvider(key), opts...)
}

// NewClientWithCertificate constructs a Client authenticated by presenting
// cert during the TLS handshake (mTLS); no provider token is ever minted
// or attached.
func NewClientWithCertificate(cert *tls.Certificate, env Environment, opts ...ClientOption) (*Client, error) {
	if cert == nil {
		return nil, errors.New("pushy: certificate must not be nil")
	}
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return nil, errors.New("pushy: invalid certificate: empty chain or private key")
	}
	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*cert},
	}
	return newClient(env.host(), tlsConfig, nil, opts...)
}

func newClient(host string, tlsConfig *tls.Config, authenticator conn.Authenticator, opts ...ClientOption) (*Client, error) {
	c := &Client{
		host:          host,
		tlsConfig:     tlsConfig,
		authenticator: authenticator,
		logger:        zap.NewNop(),
		dialTimeout:   defaultDialTimeout,
		closeCh:       make(chan struct{}),
		backoff:       conn.NewBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect dials the initial connection and, once it succeeds, starts the
// background supervisor that redials with exponential backoff whenever
// the active connection reaches Closed. It returns once the first
// connection is Ready or the dial fails.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.current != nil && c.current.State() != conn.Closed {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	cn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.current = cn
	c.mu.Unlock()
	c.backoff.Reset()

	c.wg.Add(1)
	go c.supervise(cn)
	return nil
}

// dial builds and connects one Connection, invoking OnConnectionFailure
// on failure and OnStateChange(StateReady) on success.
func (c *Client) dial(ctx context.Context) (*conn.Connection, error) {
	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}

	cn := conn.New(c.host, c.tlsConfig, c.authenticator, c.connConfig, c.logger)
	cn.Hooks = conn.Hooks{
		OnStateChange: func(s conn.State) { c.hooks.stateChanged(toPublicState(s)) },
		OnGoAway:      c.hooks.goAway,
	}
	if err := cn.Connect(dialCtx); err != nil {
		c.hooks.connectionFailure(err)
		c.logger.Warn("failed to connect to apns", zap.String("host", c.host), zap.Error(err))
		return nil, fmt.Errorf("pushy: failed to connect: %w", err)
	}
	c.logger.Info("connected to apns", zap.String("host", c.host))
	c.hooks.stateChanged(StateReady)
	c.notifyReconnected()
	return cn, nil
}

// ReconnectionFuture returns a channel that is closed the next time the
// Client's connection reaches Ready, whether from the initial Connect or
// a later automatic reconnect after a drop. A caller that observes a
// transport failure can block on the returned channel to learn when
// service has resumed, instead of polling State().
func (c *Client) ReconnectionFuture() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectCh == nil {
		c.reconnectCh = make(chan struct{})
	}
	return c.reconnectCh
}

// notifyReconnected resolves the current ReconnectionFuture, if anyone is
// waiting on one, and arms a fresh one for the next Ready transition.
func (c *Client) notifyReconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectCh != nil {
		close(c.reconnectCh)
	}
	c.reconnectCh = make(chan struct{})
}

// supervise watches cn and, unless the Client has been Disconnect-ed,
// redials with backoff until a new connection is established, then hands
// supervision to it in turn.
func (c *Client) supervise(cn *conn.Connection) {
	defer c.wg.Done()

	select {
	case <-cn.Done():
	case <-c.closeCh:
		return
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	for {
		delay := c.backoff.Next()
		select {
		case <-c.closeCh:
			return
		case <-time.After(delay):
		}

		next, err := c.dial(context.Background())
		if err != nil {
			continue
		}

		c.backoff.Reset()
		c.mu.Lock()
		c.current = next
		c.mu.Unlock()

		c.wg.Add(1)
		go c.supervise(next)
		return
	}
}

// Disconnect gracefully tears down the active connection and stops the
// reconnection supervisor. It is idempotent: calling it more than once
// returns nil on every call after the first.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cn := c.current
	c.mu.Unlock()

	close(c.closeCh)
	if cn == nil {
		return nil
	}
	err := cn.Disconnect(ctx)
	c.hooks.stateChanged(StateClosed)
	return err
}

// Send submits n over the active connection and blocks until a result is
// available or ctx is done. The returned *Response is non-nil whenever
// the server answered at all (accepted or rejected); it is nil for
// local-validation, not-connected, cancelled and transport failures.
func (c *Client) Send(ctx context.Context, n *PushNotification) (*Response, error) {
	if err := n.Validate(); err != nil {
		return nil, newValidationError(err)
	}

	c.mu.RLock()
	cn := c.current
	closed := c.closed
	c.mu.RUnlock()
	if closed || cn == nil {
		return nil, newNotConnected()
	}

	wireNotif := wire.Notification{
		DeviceToken: n.DeviceToken,
		Topic:       n.resolvedTopic(c.bundleID),
		Payload:     n.Payload,
		Expiration:  n.Expiration,
		Priority:    n.Priority,
		PushType:    n.PushType,
		CollapseID:  n.CollapseID,
		ApnsID:      n.ApnsID,
	}

	outcome, err := cn.Send(ctx, wireNotif)
	if err != nil {
		if errors.Is(err, conn.ErrNotConnected) {
			return nil, newNotConnected()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, newCancelled(err)
		}
		return nil, newTransportFailure(err)
	}

	resp := outcomeToResponse(outcome)
	if resp.Rejected != nil {
		sendErr := newServerRejection(resp)
		if sendErr.Kind == KindAuthRejection && c.authenticator != nil {
			c.authenticator.Invalidate()
		}
		c.hooks.rejection(resp)
		return resp, sendErr
	}
	return resp, nil
}

// SendBatch submits every notification concurrently and waits for all of
// them to resolve, returning one BatchResult per input in the same order.
// A slow or failed submission for one notification never blocks the
// others.
func (c *Client) SendBatch(ctx context.Context, notifications []*PushNotification) []*BatchResult {
	results := make([]*BatchResult, len(notifications))
	var wg sync.WaitGroup
	for i, n := range notifications {
		wg.Add(1)
		go func(i int, n *PushNotification) {
			defer wg.Done()
			resp, err := c.Send(ctx, n)
			results[i] = &BatchResult{Notification: n, Response: resp, Err: err}
		}(i, n)
	}
	wg.Wait()
	return results
}

// State reports the active connection's lifecycle state. It returns
// StateClosed if the Client has never connected or has been disconnected.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return StateClosed
	}
	return toPublicState(c.current.State())
}

func outcomeToResponse(outcome *wire.Outcome) *Response {
	resp := &Response{ApnsID: outcome.ApnsID}
	if outcome.Accepted {
		return resp
	}

	reason := ReasonFromText(outcome.ReasonText)
	raw := ""
	if reason == ReasonUnknown {
		raw = outcome.ReasonText
		reason = reasonFromStatusFamily(outcome.Status)
	}
	resp.Rejected = &RejectedInfo{
		Reason:                     reason,
		TokenInvalidationTimestamp: outcome.Timestamp,
		RawReason:                  raw,
	}
	return resp
}

func toPublicState(s conn.State) ConnectionState {
	switch s {
	case conn.Connecting:
		return StateConnecting
	case conn.Ready:
		return StateReady
	case conn.Draining:
		return StateDraining
	default:
		return StateClosed
	}
}
