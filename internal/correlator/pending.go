// Package correlator implements the stream correlator: the
// map from HTTP/2 stream ID to the submission awaiting that stream's
// response, plus the exactly-once completion bookkeeping that backs
// invariants I1-I3.
package correlator

import (
	"bytes"
	"sync/atomic"

	"github.com/pushy-go/pushy/internal/wire"
)

// MaxAccumulatedBytes bounds a single response body; APNs error bodies are
// a few hundred bytes at most, so a few KiB is generous headroom (spec
// §4.3).
const MaxAccumulatedBytes = 8 * 1024

// Result is what a Pending submission resolves to: either a decoded
// Outcome, or Err describing why no outcome could be produced (transport
// failure, cancellation).
type Result struct {
	Outcome *wire.Outcome
	Err     error
}

// Pending is one outstanding submission: the stream ID the transport
// allocated it, the original notification (kept for diagnostics only),
// and the one-shot completion channel the caller is waiting on.
type Pending struct {
	StreamID     uint32
	Notification wire.Notification

	body     bytes.Buffer
	done     chan Result
	resolved atomic.Bool
}

// NewPending allocates a Pending for streamID. The returned value must be
// registered with a Correlator before any frames for streamID are
// processed — register first, then let frames go out.
func NewPending(streamID uint32, n wire.Notification) *Pending {
	return &Pending{
		StreamID:     streamID,
		Notification: n,
		done:         make(chan Result, 1),
	}
}

// Done returns the channel the caller receives the eventual Result on.
func (p *Pending) Done() <-chan Result {
	return p.done
}

// resolve delivers r exactly once; subsequent calls are no-ops and
// report false.
func (p *Pending) resolve(r Result) bool {
	if !p.resolved.CompareAndSwap(false, true) {
		return false
	}
	p.done <- r
	return true
}
