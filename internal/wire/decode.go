package wire

import (
	"encoding/json"
	"net/http"
	"time"
)

// Outcome is the decoded form of a response, independent of the pushy
// package's public Response type so this package has no knowledge of
// RejectionReason's canonical-text table; Decode's caller maps Outcome
// into a pushy.Response.
type Outcome struct {
	ApnsID string
	// Accepted is true iff the server returned 200.
	Accepted bool
	// Status is the HTTP status code, always populated.
	Status int
	// ReasonText is the server's literal reason string (empty when
	// Accepted).
	ReasonText string
	// Timestamp is the server's token_invalidation_timestamp, present
	// only for an Unregistered rejection.
	Timestamp *time.Time
}

type errorBody struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// DecodeResponse decodes a completed response: status 200
// yields Accepted with the apns-id header; any other status reads the
// JSON error body for {reason, timestamp?}.
func DecodeResponse(status int, header http.Header, body []byte) (*Outcome, error) {
	out := &Outcome{
		ApnsID: header.Get("apns-id"),
		Status: status,
	}
	if status == http.StatusOK {
		out.Accepted = true
		return out, nil
	}

	var eb errorBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &eb); err != nil {
			return nil, err
		}
	}
	out.ReasonText = eb.Reason
	if eb.Reason == "Unregistered" && eb.Timestamp != 0 {
		ts := time.Unix(eb.Timestamp, 0).UTC()
		out.Timestamp = &ts
	}
	return out, nil
}
