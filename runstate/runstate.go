// Package runstate implements the run-state latch: a single cell holding
// RUNNING, SUSPENDED, or STOP, polled by the kernel probe and the consumer,
// written only by the UI/CLI driver.
package runstate

import "sync/atomic"

// State is one of Running, Suspended, or Stop.
type State int32

const (
	// Running allows the probe to capture and the consumer to pop.
	Running State = iota
	// Suspended makes the probe drop on its run-state check; the
	// consumer sleeps briefly instead of popping.
	Suspended
	// Stop makes the probe emit nothing further; the consumer drains and
	// exits after observing it.
	Stop
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Suspended:
		return "SUSPENDED"
	case Stop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Latch is the process-wide run-state cell. Its only legal writer is the
// session's control path (CLI signal handling, --collect lifetime, or an
// explicit suspend/resume command); probe and consumer only read it.
type Latch struct {
	v atomic.Int32
}

// New returns a Latch initialized to Running.
func New() *Latch {
	l := &Latch{}
	l.v.Store(int32(Running))
	return l
}

// Load returns the current state. Reads are eventually consistent by
// design; no reader blocks on a writer.
func (l *Latch) Load() State {
	return State(l.v.Load())
}

// Store sets the state.
func (l *Latch) Store(s State) {
	l.v.Store(int32(s))
}

// IsRunning reports whether the state is Running. Any lookup failure on
// the kernel side is treated as "assume running" per the original probe's
// fail-open behavior; this mirrors that only at the call site, not here.
func (l *Latch) IsRunning() bool {
	return l.Load() == Running
}
