package mock

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/pushy-go/pushy"
)

const (
	maxPayloadBytes    = 4096
	maxCollapseIDBytes = 64
	devicePathPrefix   = "/3/device/"
)

var deviceTokenPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// validateRequestShape implements the wire-shape rejection rules of spec
// §4.6, steps 1-2 and 4-7: everything checkable from the request and body
// alone, in the order APNs documents. Steps 3 (topic) and 8-9
// (authentication, invalidation) need the Server's configuration and
// state, so the handler applies those afterward.
func validateRequestShape(r *http.Request, body []byte) (pushy.RejectionReason, bool) {
	if r.Method != http.MethodPost {
		return pushy.ReasonMethodNotAllowed, true
	}

	if !strings.HasPrefix(r.URL.Path, devicePathPrefix) {
		return pushy.ReasonBadPath, true
	}
	deviceToken := strings.TrimPrefix(r.URL.Path, devicePathPrefix)
	if deviceToken == "" {
		return pushy.ReasonMissingDeviceToken, true
	}
	if !deviceTokenPattern.MatchString(deviceToken) {
		return pushy.ReasonBadDeviceToken, true
	}

	if collapseID := r.Header.Get("apns-collapse-id"); len(collapseID) > maxCollapseIDBytes {
		return pushy.ReasonBadCollapseID, true
	}

	if p := r.Header.Get("apns-priority"); p != "" && p != "5" && p != "10" {
		return pushy.ReasonBadPriority, true
	}

	if id := r.Header.Get("apns-id"); id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return pushy.ReasonBadMessageID, true
		}
	}

	if len(body) == 0 {
		return pushy.ReasonPayloadEmpty, true
	}
	if len(body) > maxPayloadBytes {
		return pushy.ReasonPayloadTooLarge, true
	}

	return pushy.ReasonUnknown, false
}

func deviceTokenFromPath(path string) string {
	return strings.TrimPrefix(path, devicePathPrefix)
}
