package node

import (
	"sync/atomic"
)

// State captures the state of a node actor: Running or Stopped.
type State uint32

const (
	// Running is the initial state of an actor.
	Running State = iota
	// Stopped is terminal.
	Stopped
)

// String ...
func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
