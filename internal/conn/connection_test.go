package conn_test

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/http2"

	"github.com/pushy-go/pushy/internal/conn"
	"github.com/pushy-go/pushy/internal/wire"
)

func newH2Server(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(handler)
	if err := http2.ConfigureServer(srv.Config, &http2.Server{}); err != nil {
		t.Fatalf("failed to configure h2 server: %v", err)
	}
	srv.TLS = srv.Config.TLSConfig
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func dialConfig(srv *httptest.Server) *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}

func hostFor(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "https://")
}

func TestConnection_ConnectAndSendAccepted(t *testing.T) {
	srv := newH2Server(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/device/abc123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("apns-topic"); got != "com.example.App" {
			t.Errorf("unexpected apns-topic: %q", got)
		}
		w.WriteHeader(http.StatusOK)
	})

	c := conn.New(hostFor(srv), dialConfig(srv), nil, conn.Config{}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close(nil)

	if c.State() != conn.Ready {
		t.Fatalf("expected Ready after Connect, got %s", c.State())
	}

	outcome, err := c.Send(context.Background(), wire.Notification{
		DeviceToken: "abc123",
		Topic:       "com.example.App",
		Payload:     []byte(`{"aps":{"alert":"hi"}}`),
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !outcome.Accepted {
		t.Errorf("expected accepted outcome, got %+v", outcome)
	}
}

func TestConnection_SendSurfacesRejection(t *testing.T) {
	srv := newH2Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reason":    "Unregistered",
			"timestamp": 1627776000,
		})
	})

	c := conn.New(hostFor(srv), dialConfig(srv), nil, conn.Config{}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close(nil)

	outcome, err := c.Send(context.Background(), wire.Notification{
		DeviceToken: "stale-token",
		Topic:       "com.example.App",
		Payload:     []byte(`{"aps":{}}`),
	})
	if err != nil {
		t.Fatalf("Send returned transport error for a well-formed rejection: %v", err)
	}
	if outcome.Accepted {
		t.Fatalf("expected rejection, got accepted outcome")
	}
	if outcome.ReasonText != "Unregistered" {
		t.Errorf("unexpected rejection reason: %+v", outcome)
	}
	if outcome.Timestamp == nil {
		t.Errorf("expected token-invalidation timestamp to be populated")
	}
}

func TestConnection_SendBeforeConnectFails(t *testing.T) {
	c := conn.New("127.0.0.1:0", &tls.Config{}, nil, conn.Config{}, nil)
	_, err := c.Send(context.Background(), wire.Notification{DeviceToken: "abc"})
	if err != conn.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnection_DisconnectIsIdempotent(t *testing.T) {
	srv := newH2Server(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := conn.New(hostFor(srv), dialConfig(srv), nil, conn.Config{}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Disconnect(ctx); err != nil {
		t.Fatalf("first Disconnect failed: %v", err)
	}
	if err := c.Disconnect(ctx); err != nil {
		t.Fatalf("second Disconnect should be a no-op, got: %v", err)
	}
	if c.State() != conn.Closed {
		t.Fatalf("expected Closed after Disconnect, got %s", c.State())
	}
}

func TestConnection_DisconnectDrainsInFlightSend(t *testing.T) {
	release := make(chan struct{})
	srv := newH2Server(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})

	c := conn.New(hostFor(srv), dialConfig(srv), nil, conn.Config{}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	type sendResult struct {
		outcome *wire.Outcome
		err     error
	}
	results := make(chan sendResult, 1)
	go func() {
		outcome, err := c.Send(context.Background(), wire.Notification{
			DeviceToken: "abc123",
			Payload:     []byte(`{"aps":{}}`),
		})
		results <- sendResult{outcome, err}
	}()

	// give the send a moment to reach the handler before draining begins.
	time.Sleep(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- c.Disconnect(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	res := <-results
	if res.err != nil {
		t.Fatalf("in-flight send should complete despite graceful shutdown, got: %v", res.err)
	}
	if !res.outcome.Accepted {
		t.Errorf("expected accepted outcome, got %+v", res.outcome)
	}
}
