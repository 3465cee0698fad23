package conn

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/pushy-go/pushy/internal/correlator"
	"github.com/pushy-go/pushy/internal/wire"
)

// Authenticator mints the bearer token a Connection attaches to outgoing
// requests. It is satisfied by *token.Provider; a nil Authenticator means
// the connection is mTLS-authenticated and no authorization header is
// sent.
type Authenticator interface {
	Token() (string, error)
	Invalidate()
}

// Hooks are observability callbacks invoked on state transitions and
// GOAWAY; both are optional. They receive immutable values, never live
// references to Connection internals.
type Hooks struct {
	OnStateChange func(State)
	OnGoAway      func(lastStreamID uint32)
}

var (
	// ErrNotConnected is returned by Send when the connection is not
	// Ready (Connecting, Draining, or Closed).
	ErrNotConnected = errors.New("conn: not connected")
	// ErrBackpressure is returned by Send when the pending count has
	// reached the soft queue limit or the server's concurrent-stream cap.
	ErrBackpressure = errors.New("conn: local backpressure, too many pending submissions")
	// ErrGoAway marks a submission resolved because the server is
	// draining the connection; safe to retry elsewhere.
	ErrGoAway = errors.New("conn: connection received GOAWAY")
	// ErrTeardown marks a submission resolved because the connection
	// reached Closed before it completed; safe to retry.
	ErrTeardown = errors.New("conn: connection closed before response arrived")
)

// Connection is one HTTP/2 connection to an APNs host, implementing the
// Connecting -> Ready -> Draining -> Closed lifecycle on top
// of golang.org/x/net/http2. There is no single owning goroutine: Send
// runs on each caller's goroutine, state is an atomic value, stream IDs
// come from an atomic counter, the pending table is guarded by the
// correlator's mutex, and transitions may happen on a caller, request or
// idle-ping goroutine. Each request's network I/O runs on its own
// goroutine, as the transport itself already synchronizes that safely.
type Connection struct {
	Host           string
	TLSConfig      *tls.Config
	Authenticator  Authenticator
	Logger         *zap.Logger
	Config         Config
	Hooks          Hooks

	transport *http2.Transport
	cc        *http2.ClientConn

	state    atomic.Int32
	nextRaw  atomic.Uint32 // allocStreamID: nextRaw.Add(2)-1 yields 1,3,5,...
	goAwayID atomic.Uint32
	goAway   sync.Once
	closeOne sync.Once

	corr     *correlator.Correlator
	activity chan struct{}
	closed   chan struct{}
}

// New returns a Connection in the Connecting state. Call Connect to
// perform the TCP+TLS+ALPN handshake and become Ready.
func New(host string, tlsConfig *tls.Config, authenticator Authenticator, cfg Config, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connection{
		Host:          host,
		TLSConfig:     tlsConfig,
		Authenticator: authenticator,
		Logger:        logger,
		Config:        cfg.withDefaults(),
		transport:     &http2.Transport{TLSClientConfig: tlsConfig},
		corr:          correlator.New(),
		activity:      make(chan struct{}, 1),
		closed:        make(chan struct{}),
	}
	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Connect performs the TCP+TLS handshake with ALPN advertising h2 and
// transitions Connecting -> Ready. Any failure transitions to Closed.
func (c *Connection) Connect(ctx context.Context) error {
	cfg := c.TLSConfig.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg.NextProtos = []string{http2.NextProtoTLS}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}

	dialer := &tls.Dialer{Config: cfg}
	rawConn, err := dialer.DialContext(ctx, "tcp", c.Host)
	if err != nil {
		c.transitionClosed(fmt.Errorf("conn: dial failed: %w", err))
		return err
	}
	tlsConn, ok := rawConn.(*tls.Conn)
	if !ok {
		rawConn.Close()
		err := errors.New("conn: dialer did not return a *tls.Conn")
		c.transitionClosed(err)
		return err
	}
	if tlsConn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
		tlsConn.Close()
		err := errors.New("conn: peer did not negotiate h2 via ALPN")
		c.transitionClosed(err)
		return err
	}

	cc, err := c.transport.NewClientConn(tlsConn)
	if err != nil {
		tlsConn.Close()
		c.transitionClosed(fmt.Errorf("conn: failed to establish h2 client connection: %w", err))
		return err
	}
	c.cc = cc
	c.setState(Ready)
	go c.idleLoop()
	return nil
}

// Send encodes n, opens a new logical stream, and blocks until a result
// is available or ctx is done. Cancellation before the request has been
// handed to the transport removes the submission locally; cancellation
// after is best-effort (the transport resets the stream) and the eventual
// outcome is discarded.
func (c *Connection) Send(ctx context.Context, n wire.Notification) (*wire.Outcome, error) {
	if c.State() != Ready {
		return nil, ErrNotConnected
	}
	if c.corr.Len() >= c.Config.SoftQueueLimit {
		return nil, ErrBackpressure
	}
	if max := c.cc.State().MaxConcurrentStreams; max > 0 && uint32(c.corr.Len()) >= max {
		return nil, ErrBackpressure
	}
	if c.Authenticator != nil {
		tok, err := c.Authenticator.Token()
		if err != nil {
			return nil, fmt.Errorf("conn: failed to mint provider token: %w", err)
		}
		n.AuthToken = tok
	}

	req, err := wire.EncodeRequest(n)
	if err != nil {
		return nil, err
	}

	id := c.allocStreamID()
	p := correlator.NewPending(id, n)
	c.corr.Register(p)
	c.markActivity()

	httpReq, err := c.buildHTTPRequest(ctx, req)
	if err != nil {
		c.corr.Discard(id)
		return nil, err
	}

	go c.roundTrip(p, httpReq)

	select {
	case result := <-p.Done():
		return result.Outcome, result.Err
	case <-ctx.Done():
		c.corr.Discard(id)
		return nil, ctx.Err()
	}
}

func (c *Connection) buildHTTPRequest(ctx context.Context, req *wire.Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+c.Host+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("conn: failed to build request: %w", err)
	}
	for k, v := range req.Header {
		if k == "Content-Length" {
			continue // net/http derives this from the body/ContentLength field
		}
		httpReq.Header[k] = v
	}
	httpReq.ContentLength = int64(len(req.Body))
	return httpReq, nil
}

func (c *Connection) roundTrip(p *correlator.Pending, req *http.Request) {
	resp, err := c.cc.RoundTrip(req)
	if err != nil {
		var goAwayErr http2.GoAwayError
		if errors.As(err, &goAwayErr) {
			c.handleGoAway(goAwayErr.LastStreamID)
		}
		c.corr.Fail(p.StreamID, err)
		c.maybeCompleteDrain()
		return
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, correlator.MaxAccumulatedBytes+1))
	if readErr != nil {
		c.corr.Fail(p.StreamID, fmt.Errorf("conn: failed to read response body: %w", readErr))
		c.maybeCompleteDrain()
		return
	}
	if err := c.corr.Accumulate(p.StreamID, body); err != nil {
		c.maybeCompleteDrain() // Accumulate already failed the stream closed on overflow
		return
	}
	c.corr.Complete(p.StreamID, resp.StatusCode, resp.Header)
	c.maybeCompleteDrain()
}

// handleGoAway transitions Ready -> Draining exactly once. It does not
// fail any pending stream itself: RoundTrip already returns a
// *http2.GoAwayError for every stream the server will not process, each
// resolved individually through corr.Fail in roundTrip above, since those
// streams are keyed by this connection's own submission-order stream ID
// rather than the id the transport negotiated on the wire (the only one
// GoAwayError.LastStreamID names) and the two cannot be reconciled here.
func (c *Connection) handleGoAway(lastStreamID uint32) {
	c.goAway.Do(func() {
		c.goAwayID.Store(lastStreamID)
		c.setState(Draining)
		c.Logger.Warn("apns connection received GOAWAY", zap.Uint32("last_stream_id", lastStreamID))
		if c.Hooks.OnGoAway != nil {
			c.Hooks.OnGoAway(lastStreamID)
		}
		if c.Hooks.OnStateChange != nil {
			c.Hooks.OnStateChange(Draining)
		}
		c.maybeCompleteDrain()
	})
}

// maybeCompleteDrain transitions Draining -> Closed once every stream
// registered before the GOAWAY has resolved, one way or another: this is
// the only path to Closed after a server-initiated GOAWAY, since nothing
// else observes a draining connection's pending table emptying out.
func (c *Connection) maybeCompleteDrain() {
	if State(c.state.Load()) == Draining && c.corr.Len() == 0 {
		c.transitionClosed(ErrGoAway)
	}
}

// Disconnect initiates a graceful shutdown: it sends GOAWAY, waits for
// in-flight streams to complete up to Config.GracefulShutdownTimeout, then
// force-fails anything left and transitions to Closed. Calling Disconnect
// twice is a no-op the second time (idempotent).
func (c *Connection) Disconnect(ctx context.Context) error {
	if c.State() == Closed {
		return nil
	}
	c.state.CompareAndSwap(int32(Ready), int32(Draining))
	if c.Hooks.OnStateChange != nil {
		c.Hooks.OnStateChange(Draining)
	}

	shutdownCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, c.Config.GracefulShutdownTimeout)
		defer cancel()
	}

	var shutdownErr error
	if c.cc != nil {
		shutdownErr = c.cc.Shutdown(shutdownCtx)
	}
	c.transitionClosed(ErrTeardown)
	return shutdownErr
}

// Close abruptly tears down the connection without draining, used when
// the transport has already failed (idle-ping timeout, dial failure).
func (c *Connection) Close(cause error) {
	c.transitionClosed(cause)
}

func (c *Connection) transitionClosed(cause error) {
	c.closeOne.Do(func() {
		c.setState(Closed)
		if c.cc != nil {
			c.cc.Close()
		}
		close(c.closed)
		if cause == nil {
			cause = ErrTeardown
		}
		c.corr.FailAll(cause)
		if c.Hooks.OnStateChange != nil {
			c.Hooks.OnStateChange(Closed)
		}
	})
}

// idleLoop implements the idle-ping policy: if no request has
// been sent for Config.IdleInterval, send a PING; if it is not
// acknowledged within Config.PingAckTimeout, transition to Closed.
func (c *Connection) idleLoop() {
	timer := time.NewTimer(c.Config.IdleInterval)
	defer timer.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-c.activity:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.Config.IdleInterval)
		case <-timer.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), c.Config.PingAckTimeout)
			err := c.cc.Ping(pingCtx)
			cancel()
			if err != nil {
				c.transitionClosed(fmt.Errorf("conn: idle ping failed: %w", err))
				return
			}
			timer.Reset(c.Config.IdleInterval)
		}
	}
}

func (c *Connection) markActivity() {
	select {
	case c.activity <- struct{}{}:
	default:
	}
}

func (c *Connection) allocStreamID() uint32 {
	return c.nextRaw.Add(2) - 1
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// PendingCount reports the number of outstanding submissions, used by
// tests and the Client facade to confirm no pending entry outlives its
// connection.
func (c *Connection) PendingCount() int {
	return c.corr.Len()
}

// Done returns a channel that is closed once the connection reaches
// Closed, for a supervising Client to detect the transition and decide
// whether to redial.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}
