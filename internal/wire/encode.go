// Package wire implements the APNs HTTP/2 request/response codec (spec
// §4.1). Encoding and decoding are pure: they never touch shared state or
// the network.
package wire

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pushy-go/pushy/notification/priority"
)

// MaxPayloadBytes is the largest payload APNs accepts for a standard push.
const MaxPayloadBytes = 4096

// Request is the encoded form of a push notification, ready to be handed
// to an HTTP/2 transport: a path, a header set, and a body.
type Request struct {
	Path    string
	Header  http.Header
	Body    []byte
}

// Notification is the input to EncodeRequest — a plain struct rather than
// the public PushNotification type so this package stays free of an import
// cycle and free of any knowledge of validation policy, which is the
// caller's job — encoding itself stays pure.
type Notification struct {
	DeviceToken string
	Topic       string
	Payload     []byte
	Expiration  *time.Time
	Priority    priority.Priority
	PushType    string
	CollapseID  string
	ApnsID      string
	// AuthToken, if non-empty, is sent as "authorization: bearer <token>".
	// Leave empty for mTLS-authenticated connections.
	AuthToken string
}

// ErrPayloadTooLarge is returned by EncodeRequest when the payload exceeds
// MaxPayloadBytes; the caller should synthesize a local PAYLOAD_TOO_LARGE
// rejection instead of sending anything.
var ErrPayloadTooLarge = fmt.Errorf("wire: payload exceeds %d bytes", MaxPayloadBytes)

// EncodeRequest builds the path and headers for a new HTTP/2 stream. The
// pseudo-headers (:method, :scheme, :authority, :path) are left to the
// transport, which derives them from Path and the connection's authority;
// this function only produces the regular headers APNs defines plus the
// request body.
func EncodeRequest(n Notification) (*Request, error) {
	if len(n.Payload) > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	header := make(http.Header, 8)
	if n.PushType != "" {
		header.Set("apns-push-type", n.PushType)
	}
	if n.Topic != "" {
		header.Set("apns-topic", n.Topic)
	}
	if n.Priority != priority.None {
		header.Set("apns-priority", n.Priority.String())
	}
	if n.Expiration != nil {
		header.Set("apns-expiration", formatExpiration(*n.Expiration))
	}
	if n.CollapseID != "" {
		header.Set("apns-collapse-id", n.CollapseID)
	}
	if n.ApnsID != "" {
		header.Set("apns-id", n.ApnsID)
	}
	if n.AuthToken != "" {
		header.Set("authorization", "bearer "+n.AuthToken)
	}
	header.Set("content-length", fmt.Sprintf("%d", len(n.Payload)))

	return &Request{
		Path:   "/3/device/" + url.PathEscape(n.DeviceToken),
		Header: header,
		Body:   n.Payload,
	}, nil
}

// formatExpiration renders an expiration instant as Unix seconds. A zero
// time.Time means "do not store" (apns-expiration: 0).
func formatExpiration(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return fmt.Sprintf("%d", t.UTC().Unix())
}
