package mock_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/http2"

	"github.com/pushy-go/pushy/auth"
	"github.com/pushy-go/pushy/internal/token"
	"github.com/pushy-go/pushy/mock"
)

func newTestKeys(t *testing.T) (*auth.SigningKey, *auth.VerificationKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	sk, err := auth.NewSigningKey(priv, "ABCD123456", "TEAM123456")
	if err != nil {
		t.Fatalf("NewSigningKey failed: %v", err)
	}
	vk, err := auth.NewVerificationKey(&priv.PublicKey, "ABCD123456", "TEAM123456")
	if err != nil {
		t.Fatalf("NewVerificationKey failed: %v", err)
	}
	return sk, vk
}

// h2Client returns an *http.Client speaking HTTP/2 directly (no ALPN
// upgrade dance needed since we already know the server is h2-only) that
// trusts srv's certificate and, if cert is non-nil, presents it for mTLS.
func h2Client(t *testing.T, srv *mock.Server, cert *tls.Certificate) *http.Client {
	t.Helper()
	tlsConfig := srv.ClientTLSConfig()
	if cert != nil {
		tlsConfig.Certificates = []tls.Certificate{*cert}
	}
	transport := &http2.Transport{TLSClientConfig: tlsConfig}
	return &http.Client{Transport: transport}
}

func decodeErrorBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", data, err)
	}
	return body
}

func TestServer_AcceptsWellFormedRequest(t *testing.T) {
	sk, vk := newTestKeys(t)
	srv := mock.NewServer(mock.WithVerificationKey(vk), mock.WithAllowedTopics("com.example.App"))
	defer srv.Close()

	provider := token.NewProvider(sk)
	tok, err := provider.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	client := h2Client(t, srv, nil)
	req, _ := http.NewRequest(http.MethodPost, "https://"+srv.Host()+"/3/device/"+strings.Repeat("a", 64), bytes.NewReader([]byte(`{"aps":{}}`)))
	req.Header.Set("apns-topic", "com.example.App")
	req.Header.Set("authorization", "bearer "+tok)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("apns-id") == "" {
		t.Errorf("expected apns-id header on acceptance")
	}
}

func TestServer_RejectsBadDeviceToken(t *testing.T) {
	srv := mock.NewServer()
	defer srv.Close()

	client := h2Client(t, srv, nil)
	req, _ := http.NewRequest(http.MethodPost, "https://"+srv.Host()+"/3/device/not-hex", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("apns-topic", "com.example.App")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeErrorBody(t, resp)
	if body["reason"] != "BadDeviceToken" {
		t.Errorf("unexpected reason: %v", body["reason"])
	}
}

func TestServer_RejectsMissingTopicWhenMultipleAllowed(t *testing.T) {
	srv := mock.NewServer(mock.WithAllowedTopics("com.example.App", "com.example.App.voip"))
	defer srv.Close()

	client := h2Client(t, srv, nil)
	req, _ := http.NewRequest(http.MethodPost, "https://"+srv.Host()+"/3/device/"+strings.Repeat("a", 64), bytes.NewReader([]byte(`{}`)))

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeErrorBody(t, resp)
	if body["reason"] != "MissingTopic" {
		t.Errorf("unexpected reason: %v", body["reason"])
	}
}

func TestServer_RejectsPayloadTooLarge(t *testing.T) {
	srv := mock.NewServer(mock.WithAllowedTopics("com.example.App"))
	defer srv.Close()

	client := h2Client(t, srv, nil)
	big := bytes.Repeat([]byte("a"), 4097)
	req, _ := http.NewRequest(http.MethodPost, "https://"+srv.Host()+"/3/device/"+strings.Repeat("a", 64), bytes.NewReader(big))
	req.Header.Set("apns-topic", "com.example.App")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestServer_MarkUnregisteredReturnsTimestamp(t *testing.T) {
	srv := mock.NewServer(mock.WithAllowedTopics("com.example.App"))
	defer srv.Close()

	deviceToken := strings.Repeat("b", 64)
	invalidatedAt := time.Now().Add(-time.Hour).Truncate(time.Second)
	srv.MarkUnregistered(deviceToken, invalidatedAt)

	client := h2Client(t, srv, nil)
	req, _ := http.NewRequest(http.MethodPost, "https://"+srv.Host()+"/3/device/"+deviceToken, bytes.NewReader([]byte(`{}`)))
	req.Header.Set("apns-topic", "com.example.App")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("expected 410, got %d", resp.StatusCode)
	}
	body := decodeErrorBody(t, resp)
	if body["reason"] != "Unregistered" {
		t.Errorf("unexpected reason: %v", body["reason"])
	}
	ts, ok := body["timestamp"].(float64)
	if !ok || int64(ts) != invalidatedAt.Unix() {
		t.Errorf("unexpected timestamp: %v", body["timestamp"])
	}
}

func TestServer_RejectsMissingProviderToken(t *testing.T) {
	_, vk := newTestKeys(t)
	srv := mock.NewServer(mock.WithVerificationKey(vk), mock.WithAllowedTopics("com.example.App"))
	defer srv.Close()

	client := h2Client(t, srv, nil)
	req, _ := http.NewRequest(http.MethodPost, "https://"+srv.Host()+"/3/device/"+strings.Repeat("a", 64), bytes.NewReader([]byte(`{}`)))
	req.Header.Set("apns-topic", "com.example.App")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decodeErrorBody(t, resp)
	if body["reason"] != "MissingProviderToken" {
		t.Errorf("unexpected reason: %v", body["reason"])
	}
}
