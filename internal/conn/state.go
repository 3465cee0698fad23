// Package conn implements the connection state machine: the
// per-connection lifecycle (Connecting -> Ready -> Draining -> Closed)
// layered on top of golang.org/x/net/http2's client connection, plus the
// idle-ping policy, GOAWAY handling, and graceful shutdown that the
// lifecycle depends on.
package conn

import "fmt"

// State is one state in the Connecting/Ready/Draining/Closed lifecycle of
// The zero value is Connecting.
type State int32

const (
	Connecting State = iota
	Ready
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
