package pushy

import (
	"crypto/x509"
	"time"

	"go.uber.org/zap"

	"github.com/pushy-go/pushy/internal/conn"
)

// ClientOption configures a Client at construction time, mirroring the
// functional-options pattern the underlying engine already uses for
// PushNotification.
type ClientOption func(*Client)

// WithLogger attaches a zap logger. The default is zap.NewNop(); pass
// NewDevelopmentLogger() or NewProductionLogger() for real output.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHooks attaches observability callbacks.
func WithHooks(h Hooks) ClientOption {
	return func(c *Client) { c.hooks = h }
}

// WithBundleID sets the bundle identifier PushNotification.DefaultTopic
// resolves against when a notification omits an explicit Topic.
func WithBundleID(bundleID string) ClientOption {
	return func(c *Client) { c.bundleID = bundleID }
}

// WithSoftQueueLimit overrides the default cap on outstanding submissions
// per connection, beyond which Send fails fast with local backpressure.
func WithSoftQueueLimit(n int) ClientOption {
	return func(c *Client) { c.connConfig.SoftQueueLimit = n }
}

// WithIdleInterval overrides how long a connection may go without sending
// a request before it probes liveness with a PING.
func WithIdleInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.connConfig.IdleInterval = d }
}

// WithPingAckTimeout overrides how long a connection waits for a PING
// acknowledgement before treating the transport as dead.
func WithPingAckTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.connConfig.PingAckTimeout = d }
}

// WithGracefulShutdownTimeout overrides how long Disconnect waits for
// in-flight streams to finish before force-failing what remains.
func WithGracefulShutdownTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.connConfig.GracefulShutdownTimeout = d }
}

// WithConnConfig replaces the connection tunables wholesale; later calls
// to the single-field With* options still apply on top of it.
func WithConnConfig(cfg conn.Config) ClientOption {
	return func(c *Client) { c.connConfig = cfg }
}

// WithDialTimeout bounds how long a single connection attempt (initial or
// reconnect) may take before it is treated as a failure.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.dialTimeout = d }
}

// WithHost overrides the host:port the constructor would otherwise derive
// from the Environment, for talking to a compatible endpoint other than
// Apple's own — a local mock server in tests, or a provider-side proxy.
func WithHost(host string) ClientOption {
	return func(c *Client) { c.host = host }
}

// WithRootCAs replaces the certificate pool used to verify the server's
// TLS certificate, for trusting a non-Apple endpoint configured via
// WithHost.
func WithRootCAs(pool *x509.CertPool) ClientOption {
	return func(c *Client) { c.tlsConfig.RootCAs = pool }
}
