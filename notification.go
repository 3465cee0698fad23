package pushy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pushy-go/pushy/notification"
	"github.com/pushy-go/pushy/notification/priority"
)

const (
	// MaxPayloadBytes is the largest payload APNs accepts for a standard push.
	MaxPayloadBytes = 4096
	// MaxCollapseIDBytes is the largest apns-collapse-id APNs accepts.
	MaxCollapseIDBytes = 64
	// DeviceTokenLength is the fixed length of a hex-encoded device token.
	DeviceTokenLength = 64
)

// PushNotification is the value type submitted to a Client. It is immutable
// once constructed: callers build one, hand it to Send, and do not mutate it
// afterward.
type PushNotification struct {
	// DeviceToken is 64 lowercase hex characters. NewPushNotification
	// normalizes an uppercase token to lowercase.
	DeviceToken string
	// Topic is the bundle-style identifier the notification targets. May be
	// left empty when the credential authorizes exactly one topic.
	Topic string
	// Payload is the raw, already-encoded JSON body. The core never
	// inspects it beyond its length.
	Payload []byte
	// Expiration is the absolute instant APNs should stop trying to
	// deliver the notification. A nil Expiration omits apns-expiration; a
	// zero time.Time (IsZero) means "do not store" (apns-expiration: 0).
	Expiration *time.Time
	// Priority is IMMEDIATE or CONSERVE_POWER. Zero value omits the header.
	Priority priority.Priority
	// PushType maps to apns-push-type.
	PushType notification.PushType
	// CollapseID is optional, at most MaxCollapseIDBytes UTF-8 bytes.
	CollapseID string
	// ApnsID is an optional caller-supplied UUID. If empty, the server
	// assigns one and it is echoed back in Response.ApnsID.
	ApnsID string
}

// NewPushNotification validates and normalizes its arguments into a
// PushNotification. It fails fast on malformed input so construction-time
// mistakes never reach the network.
func NewPushNotification(deviceToken string, payload []byte, opts ...NotificationOption) (*PushNotification, error) {
	n := &PushNotification{
		DeviceToken: strings.ToLower(deviceToken),
		Payload:     payload,
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// NotificationOption configures a PushNotification at construction time.
type NotificationOption func(*PushNotification)

func WithTopic(topic string) NotificationOption {
	return func(n *PushNotification) { n.Topic = topic }
}

func WithExpiration(t time.Time) NotificationOption {
	return func(n *PushNotification) { n.Expiration = &t }
}

// WithNoStore marks the notification as "do not store" (apns-expiration: 0).
func WithNoStore() NotificationOption {
	return func(n *PushNotification) {
		var zero time.Time
		n.Expiration = &zero
	}
}

func WithPriority(p priority.Priority) NotificationOption {
	return func(n *PushNotification) { n.Priority = p }
}

func WithPushType(pt notification.PushType) NotificationOption {
	return func(n *PushNotification) { n.PushType = pt }
}

func WithCollapseID(id string) NotificationOption {
	return func(n *PushNotification) { n.CollapseID = id }
}

func WithApnsID(id string) NotificationOption {
	return func(n *PushNotification) { n.ApnsID = id }
}

// Validate checks the local, pre-send invariants APNs imposes: device
// token shape, payload size, collapse-id size, and apns-id shape. It never
// touches the network.
func (n *PushNotification) Validate() error {
	if len(n.DeviceToken) != DeviceTokenLength {
		return fmt.Errorf("%w: device token must be %d hex characters, got %d", ErrBadDeviceToken, DeviceTokenLength, len(n.DeviceToken))
	}
	for _, c := range n.DeviceToken {
		if !isLowerHex(c) {
			return fmt.Errorf("%w: device token must be lowercase hex", ErrBadDeviceToken)
		}
	}
	if len(n.Payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(n.Payload) > MaxPayloadBytes {
		return fmt.Errorf("%w: payload is %d bytes, max %d", ErrPayloadTooLarge, len(n.Payload), MaxPayloadBytes)
	}
	if len(n.CollapseID) > MaxCollapseIDBytes {
		return fmt.Errorf("%w: collapse id is %d bytes, max %d", ErrBadCollapseID, len(n.CollapseID), MaxCollapseIDBytes)
	}
	if n.ApnsID != "" {
		if _, err := uuid.Parse(n.ApnsID); err != nil {
			return fmt.Errorf("%w: %v", ErrBadMessageID, err)
		}
	}
	if n.Priority != priority.None {
		switch n.Priority {
		case priority.Conserve, priority.Immediate:
		default:
			return fmt.Errorf("%w: priority must be 5 or 10", ErrBadPriority)
		}
	}
	return nil
}

func isLowerHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

// DefaultTopic derives the apns-topic header value from a bundle ID and the
// notification's push type, mirroring the suffix rules APNs documents for
// special push types (complication, location, voip, ...). An explicit
// n.Topic always takes precedence; call this only when Topic is empty.
func (n *PushNotification) DefaultTopic(bundleID string) string {
	suffix, ok := topicSuffixes[n.PushType]
	if !ok {
		return bundleID
	}
	return bundleID + suffix
}

var topicSuffixes = map[notification.PushType]string{
	notification.Complication:  ".complication",
	notification.Controls:      ".push-type.controls",
	notification.Fileprovider:  ".pushkit.fileprovider",
	notification.Liveactivity:  ".push-type.liveactivity",
	notification.Location:      ".location-query",
	notification.Pushtotalk:    ".voip-ptt",
	notification.Voip:          ".voip",
	notification.Widgets:       ".push-type.widgets",
}

// resolvedTopic returns n.Topic if set, else DefaultTopic(bundleID).
func (n *PushNotification) resolvedTopic(bundleID string) string {
	if n.Topic != "" {
		return n.Topic
	}
	return n.DefaultTopic(bundleID)
}

// ErrBadDeviceToken and friends are the local-validation sentinels, one per
// fault the server would reject with the like-named RejectionReason. They
// are plain errors for errors.Is; they do not wrap or carry a
// RejectionReason.
var (
	ErrBadDeviceToken  = errors.New("pushy: bad device token")
	ErrPayloadEmpty    = errors.New("pushy: empty payload")
	ErrPayloadTooLarge = errors.New("pushy: payload too large")
	ErrBadCollapseID   = errors.New("pushy: bad collapse id")
	ErrBadMessageID    = errors.New("pushy: bad apns-id")
	ErrBadPriority     = errors.New("pushy: bad priority")
)
