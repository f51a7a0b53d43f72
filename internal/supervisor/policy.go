package supervisor

import (
	"time"

	"github.com/agenthatchery/watchdog/internal/process"
)

// State is the restart policy's view of the child.
type State int

const (
	// AwaitingChild: a child is running or about to be started.
	AwaitingChild State = iota
	// SelfUpdateRequested: the child exited with process.SelfUpdateExitCode.
	SelfUpdateRequested
	// UnexpectedExit: the child exited any other way.
	UnexpectedExit
)

func (s State) String() string {
	switch s {
	case SelfUpdateRequested:
		return "self-update"
	case UnexpectedExit:
		return "unexpected-exit"
	default:
		return "awaiting-child"
	}
}

// Policy holds the delays between child runs.
type Policy struct {
	// SelfUpdateDelay is waited after a self-update cycle.
	SelfUpdateDelay time.Duration
	// CrashBackoff is waited after any other exit.
	CrashBackoff time.Duration
}

// DefaultPolicy returns the stock delays.
func DefaultPolicy() Policy {
	return Policy{SelfUpdateDelay: 2 * time.Second, CrashBackoff: 10 * time.Second}
}

// Decision is what the loop does before starting the next child.
type Decision struct {
	State     State
	Resync    bool
	Reinstall bool
	Delay     time.Duration
}

// Decide maps a child's exit to the next action. Only a voluntary exit with
// the self-update status triggers a pull; everything else, including
// signals and start failures, is a crash with a fixed backoff.
func (p Policy) Decide(o process.ExitOutcome) Decision {
	if o.SelfUpdateRequested() {
		return Decision{State: SelfUpdateRequested, Resync: true, Reinstall: true, Delay: p.SelfUpdateDelay}
	}
	return Decision{State: UnexpectedExit, Delay: p.CrashBackoff}
}
