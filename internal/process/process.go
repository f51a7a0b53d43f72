package process

import (
	"errors"
	"fmt"
	"time"
)

// SelfUpdateExitCode is the exit status by which the child asks to be
// updated and restarted. It is the only child-to-supervisor signal.
const SelfUpdateExitCode = 42

// ErrBusy is returned when RunOnce is called while a child is running.
var ErrBusy = errors.New("a child process is already running")

// ExitOutcome describes how a child ended. Code is -1 when the child was
// terminated by a signal or could not be started.
type ExitOutcome struct {
	Code     int
	Signaled bool
	Signal   string
	StartErr error
	Duration time.Duration
	RunID    string
}

// SelfUpdateRequested reports whether the child exited on its own with
// SelfUpdateExitCode.
func (o ExitOutcome) SelfUpdateRequested() bool {
	return o.StartErr == nil && !o.Signaled && o.Code == SelfUpdateExitCode
}

func (o ExitOutcome) String() string {
	switch {
	case o.StartErr != nil:
		return fmt.Sprintf("failed to start: %v", o.StartErr)
	case o.Signaled:
		return fmt.Sprintf("killed by signal %s after %s", o.Signal, o.Duration.Round(time.Millisecond))
	default:
		return fmt.Sprintf("exited with status %d after %s", o.Code, o.Duration.Round(time.Millisecond))
	}
}

// Handle identifies the running child.
type Handle struct {
	PID       int
	Dir       string
	Command   []string
	Env       []string
	RunID     string
	StartedAt time.Time
}
