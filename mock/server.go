// Package mock provides a reusable in-process APNs server for
// integration tests, serving real HTTP/2 (not HTTP/1.1) so stream IDs,
// GOAWAY, and SETTINGS all behave the way they do against the genuine
// service. It implements APNs's request validation and rejection rules
// and the provider-token verification path of §4.2.
package mock

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"

	"github.com/pushy-go/pushy"
	"github.com/pushy-go/pushy/auth"
	"github.com/pushy-go/pushy/internal/token"
)

// Server is an in-process mock APNs endpoint.
type Server struct {
	httpSrv *httptest.Server

	verificationKey *auth.VerificationKey
	clientCAs       *x509.CertPool
	allowedTopics   map[string]struct{}

	mu          sync.Mutex
	invalidated map[string]time.Time
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithVerificationKey puts the server in token-auth mode: every request
// must carry a bearer token that verifies against key. Without this
// option the server assumes mTLS-only auth and does not inspect the
// authorization header.
func WithVerificationKey(key *auth.VerificationKey) ServerOption {
	return func(s *Server) { s.verificationKey = key }
}

// WithClientCAs requires and verifies a client certificate against pool
// during the TLS handshake (mTLS mode).
func WithClientCAs(pool *x509.CertPool) ServerOption {
	return func(s *Server) { s.clientCAs = pool }
}

// WithAllowedTopics restricts which apns-topic values the server accepts.
// With zero topics configured (the default), any non-empty topic is
// accepted and an empty topic is rejected as MissingTopic; with exactly
// one topic configured, an empty apns-topic header is treated as
// implicitly that topic, matching a credential that authorizes exactly
// one topic.
func WithAllowedTopics(topics ...string) ServerOption {
	return func(s *Server) {
		for _, t := range topics {
			s.allowedTopics[t] = struct{}{}
		}
	}
}

// NewServer starts a mock server listening on an ephemeral local port.
// Callers must call Close when done.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		allowedTopics: make(map[string]struct{}),
		invalidated:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}

	httpSrv := httptest.NewUnstartedServer(http.HandlerFunc(s.handle))
	if err := http2.ConfigureServer(httpSrv.Config, &http2.Server{}); err != nil {
		panic("mock: failed to configure h2 server: " + err.Error())
	}
	httpSrv.TLS = httpSrv.Config.TLSConfig.Clone()
	if s.clientCAs != nil {
		httpSrv.TLS.ClientCAs = s.clientCAs
		httpSrv.TLS.ClientAuth = tls.RequireAndVerifyClientCert
	}
	httpSrv.StartTLS()
	s.httpSrv = httpSrv
	return s
}

// Close shuts the server down immediately.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// Host returns the "host:port" a Client should dial.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.httpSrv.URL, "https://")
}

// ClientTLSConfig returns a tls.Config that trusts this server's
// certificate, suitable as the base for a test Client's credentials.
func (s *Server) ClientTLSConfig() *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(s.httpSrv.Certificate())
	return &tls.Config{RootCAs: pool}
}

// MarkUnregistered makes the server respond Unregistered with
// invalidatedAt as the token_invalidation_timestamp for every subsequent
// request to deviceToken, modeling a device that has uninstalled the app.
func (s *Server) MarkUnregistered(deviceToken string, invalidatedAt time.Time) {
	s.mu.Lock()
	s.invalidated[strings.ToLower(deviceToken)] = invalidatedAt
	s.mu.Unlock()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if reason, rejected := validateRequestShape(r, body); rejected {
		s.reject(w, reason, nil)
		return
	}

	topic := r.Header.Get("apns-topic")
	if topic == "" {
		if len(s.allowedTopics) != 1 {
			s.reject(w, pushy.ReasonMissingTopic, nil)
			return
		}
	} else if len(s.allowedTopics) > 0 {
		if _, ok := s.allowedTopics[topic]; !ok {
			s.reject(w, pushy.ReasonTopicDisallowed, nil)
			return
		}
	}

	if reason, ok := s.authenticate(r); !ok {
		s.reject(w, reason, nil)
		return
	}

	deviceToken := strings.ToLower(deviceTokenFromPath(r.URL.Path))
	s.mu.Lock()
	invalidatedAt, invalidated := s.invalidated[deviceToken]
	s.mu.Unlock()
	if invalidated {
		s.reject(w, pushy.ReasonUnregistered, &invalidatedAt)
		return
	}

	apnsID := r.Header.Get("apns-id")
	if apnsID == "" {
		apnsID = uuid.NewString()
	}
	w.Header().Set("apns-id", apnsID)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authenticate(r *http.Request) (pushy.RejectionReason, bool) {
	if s.verificationKey == nil {
		return pushy.ReasonUnknown, true
	}

	const prefix = "bearer "
	authz := r.Header.Get("authorization")
	if !strings.HasPrefix(authz, prefix) {
		return pushy.ReasonMissingProviderToken, false
	}

	tokenStr := strings.TrimPrefix(authz, prefix)
	if err := token.VerifyToken(tokenStr, s.verificationKey, time.Now()); err != nil {
		if errors.Is(err, token.ErrTokenOutsideSkew) {
			return pushy.ReasonExpiredProviderToken, false
		}
		return pushy.ReasonInvalidProviderToken, false
	}
	return pushy.ReasonUnknown, true
}

func (s *Server) reject(w http.ResponseWriter, reason pushy.RejectionReason, timestamp *time.Time) {
	body := map[string]any{"reason": reason.CanonicalText()}
	if timestamp != nil {
		body["timestamp"] = timestamp.Unix()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reason.HTTPStatus())
	_ = json.NewEncoder(w).Encode(body)
}
