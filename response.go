package pushy

import "time"

// Response is the tagged outcome of a single Send call. Exactly one of
// Accepted/Rejected describes the outcome; check Rejected != nil first.
type Response struct {
	// ApnsID is the apns-id the server returned — present for both
	// accepted and rejected outcomes.
	ApnsID string
	// Rejected is nil for an accepted notification.
	Rejected *RejectedInfo
}

// Accepted reports whether the server accepted the notification.
func (r *Response) Accepted() bool {
	return r != nil && r.Rejected == nil
}

// RejectedInfo carries the detail of a server rejection.
type RejectedInfo struct {
	Reason RejectionReason
	// TokenInvalidationTimestamp is set only when Reason == Unregistered.
	TokenInvalidationTimestamp *time.Time
	// RawReason preserves the server's literal reason string when it did
	// not match any known RejectionReason.
	RawReason string
}

// RejectionReason is the closed enum of APNs rejection reasons.
// Each carries a fixed HTTP status and canonical wire text.
type RejectionReason int

const (
	ReasonUnknown RejectionReason = iota
	ReasonBadCollapseID
	ReasonBadDeviceToken
	ReasonBadExpirationDate
	ReasonBadMessageID
	ReasonBadPriority
	ReasonBadTopic
	ReasonDeviceTokenNotForTopic
	ReasonDuplicateHeaders
	ReasonIdleTimeout
	ReasonMissingDeviceToken
	ReasonMissingTopic
	ReasonPayloadEmpty
	ReasonTopicDisallowed
	ReasonBadCertificate
	ReasonBadCertificateEnvironment
	ReasonExpiredProviderToken
	ReasonForbidden
	ReasonInvalidProviderToken
	ReasonMissingProviderToken
	ReasonBadPath
	ReasonMethodNotAllowed
	ReasonUnregistered
	ReasonPayloadTooLarge
	ReasonTooManyProviderTokenUpdates
	ReasonTooManyRequests
	ReasonInternalServerError
	ReasonServiceUnavailable
	ReasonShutdown
)

type reasonInfo struct {
	text   string
	status int
}

var reasonTable = map[RejectionReason]reasonInfo{
	ReasonBadCollapseID:              {"BadCollapseId", 400},
	ReasonBadDeviceToken:             {"BadDeviceToken", 400},
	ReasonBadExpirationDate:          {"BadExpirationDate", 400},
	ReasonBadMessageID:               {"BadMessageId", 400},
	ReasonBadPriority:                {"BadPriority", 400},
	ReasonBadTopic:                   {"BadTopic", 400},
	ReasonDeviceTokenNotForTopic:     {"DeviceTokenNotForTopic", 400},
	ReasonDuplicateHeaders:           {"DuplicateHeaders", 400},
	ReasonIdleTimeout:                {"IdleTimeout", 400},
	ReasonMissingDeviceToken:         {"MissingDeviceToken", 400},
	ReasonMissingTopic:               {"MissingTopic", 400},
	ReasonPayloadEmpty:               {"PayloadEmpty", 400},
	ReasonTopicDisallowed:            {"TopicDisallowed", 400},
	ReasonBadCertificate:             {"BadCertificate", 403},
	ReasonBadCertificateEnvironment:  {"BadCertificateEnvironment", 403},
	ReasonExpiredProviderToken:       {"ExpiredProviderToken", 403},
	ReasonForbidden:                  {"Forbidden", 403},
	ReasonInvalidProviderToken:       {"InvalidProviderToken", 403},
	ReasonMissingProviderToken:       {"MissingProviderToken", 403},
	ReasonBadPath:                    {"BadPath", 404},
	ReasonMethodNotAllowed:           {"MethodNotAllowed", 405},
	ReasonUnregistered:               {"Unregistered", 410},
	ReasonPayloadTooLarge:            {"PayloadTooLarge", 413},
	ReasonTooManyProviderTokenUpdates: {"TooManyProviderTokenUpdates", 429},
	ReasonTooManyRequests:            {"TooManyRequests", 429},
	ReasonInternalServerError:        {"InternalServerError", 500},
	ReasonServiceUnavailable:         {"ServiceUnavailable", 503},
	ReasonShutdown:                   {"Shutdown", 503},
}

var reasonByText = func() map[string]RejectionReason {
	m := make(map[string]RejectionReason, len(reasonTable))
	for reason, info := range reasonTable {
		m[info.text] = reason
	}
	return m
}()

// CanonicalText returns the wire text APNs uses for this reason, e.g.
// "BadCollapseId". ReasonUnknown and any reason not in the table return "".
func (r RejectionReason) CanonicalText() string {
	return reasonTable[r].text
}

// HTTPStatus returns the status code APNs sends alongside this reason.
func (r RejectionReason) HTTPStatus() int {
	return reasonTable[r].status
}

// String implements fmt.Stringer for readable test failures and logs.
func (r RejectionReason) String() string {
	if text := r.CanonicalText(); text != "" {
		return text
	}
	return "Unknown"
}

// ReasonFromText maps a server-supplied reason string to a RejectionReason.
// An unrecognized string maps to ReasonUnknown; callers are expected to
// preserve the original string in RejectedInfo.RawReason in that case.
func ReasonFromText(text string) RejectionReason {
	if r, ok := reasonByText[text]; ok {
		return r
	}
	return ReasonUnknown
}

// reasonFromStatusFamily resolves an unrecognized reason text to the
// closest known family by HTTP status code: 4xx maps to a validation-like
// reason, 5xx to a server-failure reason.
func reasonFromStatusFamily(status int) RejectionReason {
	switch {
	case status >= 500:
		return ReasonInternalServerError
	case status == 403:
		return ReasonForbidden
	case status >= 400:
		return ReasonBadTopic
	default:
		return ReasonUnknown
	}
}
