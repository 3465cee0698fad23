package correlator

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/pushy-go/pushy/internal/wire"
)

// ErrAccumulatorOverflow is returned by Accumulate when a response body
// would exceed MaxAccumulatedBytes. APNs error bodies are tiny, so this
// indicates a misbehaving peer; the stream is failed closed rather than
// allowed to grow unbounded.
var ErrAccumulatorOverflow = fmt.Errorf("correlator: response body exceeds %d bytes", MaxAccumulatedBytes)

// Correlator maps HTTP/2 stream IDs to their Pending submission for the
// lifetime of one connection. It never blocks frame ingest;
// Complete is O(1).
type Correlator struct {
	mu    sync.Mutex
	table map[uint32]*Pending
}

// New returns an empty Correlator.
func New() *Correlator {
	return &Correlator{table: make(map[uint32]*Pending)}
}

// Register records p under p.StreamID. It must be called immediately
// after the transport allocates the stream, before any further frames for
// that stream are handled.
func (c *Correlator) Register(p *Pending) {
	c.mu.Lock()
	c.table[p.StreamID] = p
	c.mu.Unlock()
}

// Accumulate appends a fragment of response body for streamID. It is a
// no-op if the stream is not registered (already completed or never
// registered) so stray frames after teardown are harmless.
func (c *Correlator) Accumulate(streamID uint32, chunk []byte) error {
	c.mu.Lock()
	p, ok := c.table[streamID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if p.body.Len()+len(chunk) > MaxAccumulatedBytes {
		c.failStream(streamID, ErrAccumulatorOverflow)
		return ErrAccumulatorOverflow
	}
	p.body.Write(chunk)
	return nil
}

// Complete decodes the accumulated body via wire.DecodeResponse and
// resolves streamID's Pending exactly once, then removes it from the
// table.
func (c *Correlator) Complete(streamID uint32, status int, header http.Header) {
	p := c.remove(streamID)
	if p == nil {
		return
	}
	outcome, err := wire.DecodeResponse(status, header, p.body.Bytes())
	if err != nil {
		p.resolve(Result{Err: fmt.Errorf("correlator: failed to decode response: %w", err)})
		return
	}
	p.resolve(Result{Outcome: outcome})
}

// FailAll resolves every outstanding entry with err, marked "safe to
// retry" by convention of the caller wrapping err appropriately, and
// empties the table. Called exactly once per connection, on teardown
// (invariant: after a connection reaches Closed, the pending table is
// empty).
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	pending := c.table
	c.table = make(map[uint32]*Pending)
	c.mu.Unlock()

	for _, p := range pending {
		p.resolve(Result{Err: err})
	}
}

// Fail resolves and removes a single stream's entry with err. Used when a
// per-request RoundTrip fails (a transport error, a GOAWAY surfaced on
// that request, a body read failure), leaving every other stream as is.
func (c *Correlator) Fail(streamID uint32, err error) {
	c.failStream(streamID, err)
}

// Discard removes streamID's entry without resolving it — used when the
// caller already resolved the submission through another path (e.g. a
// best-effort cancellation whose outcome is discarded).
func (c *Correlator) Discard(streamID uint32) {
	c.mu.Lock()
	delete(c.table, streamID)
	c.mu.Unlock()
}

// Len reports the number of outstanding submissions.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

func (c *Correlator) remove(streamID uint32) *Pending {
	c.mu.Lock()
	p := c.table[streamID]
	delete(c.table, streamID)
	c.mu.Unlock()
	return p
}

func (c *Correlator) failStream(streamID uint32, err error) {
	p := c.remove(streamID)
	if p == nil {
		return
	}
	p.resolve(Result{Err: err})
}
