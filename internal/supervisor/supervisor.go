// Package supervisor runs the sync, install, run and decide loop that keeps
// the managed application alive and up to date.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/agenthatchery/watchdog/internal/deps"
	"github.com/agenthatchery/watchdog/internal/gitsync"
	"github.com/agenthatchery/watchdog/internal/process"
	"github.com/agenthatchery/watchdog/internal/state"
	"github.com/agenthatchery/watchdog/internal/telemetry"
)

// Phases recorded in the run state.
const (
	PhaseStarting   = "starting"
	PhaseSyncing    = "syncing"
	PhaseInstalling = "installing"
	PhaseRunning    = "running"
	PhaseWaiting    = "waiting"
	PhaseStopped    = "stopped"
)

// Syncer brings the working copy up to date.
type Syncer interface {
	Sync(ctx context.Context, mode gitsync.Mode) gitsync.Result
}

// Installer installs the application's dependencies, best-effort.
type Installer interface {
	Install(ctx context.Context, target string) deps.Outcome
}

// Runner runs one child to completion.
type Runner interface {
	RunOnce(ctx context.Context, target string) process.ExitOutcome
}

// startNotifier is implemented by runners that can report a child's start
// while RunOnce is still blocked.
type startNotifier interface {
	OnStart(func(process.Handle))
}

// Options configures a Supervisor.
type Options struct {
	// Target is the live working copy the child runs from.
	Target string
	Policy Policy
	// StatePath is where the run state is persisted; empty disables it.
	StatePath string
	Version   string
	Branch    string
	// Remote is the credential-free repository URL.
	Remote string
}

// Supervisor owns the control loop. All of its work happens on the
// goroutine that calls Run; Snapshot and Ready may be called concurrently.
type Supervisor struct {
	opts      Options
	syncer    Syncer
	installer Installer
	runner    Runner
	metrics   *telemetry.Metrics
	log       *slog.Logger

	// sleep waits between child runs; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	st    state.State
	ready bool
}

// New creates a Supervisor. metrics may be nil.
func New(opts Options, s Syncer, i Installer, r Runner, m *telemetry.Metrics, logger *slog.Logger) *Supervisor {
	sup := &Supervisor{
		opts:      opts,
		syncer:    s,
		installer: i,
		runner:    r,
		metrics:   m,
		log:       logger.With("component", "supervisor"),
		sleep:     sleepContext,
		st: state.State{
			Version:   opts.Version,
			PID:       os.Getpid(),
			StartedAt: time.Now().UTC(),
			Phase:     PhaseStarting,
			LiveDir:   opts.Target,
			Branch:    opts.Branch,
			Remote:    opts.Remote,
		},
	}
	if n, ok := r.(startNotifier); ok {
		n.OnStart(sup.childStarted)
	}
	return sup
}

// Run performs the cold-start sync and install, then supervises the child
// until ctx is cancelled. It returns nil on cancellation and an error
// wrapping gitsync.ErrFatalBootstrap when no code could be obtained.
func (s *Supervisor) Run(ctx context.Context) error {
	res := s.sync(ctx, gitsync.ColdStart)
	if ctx.Err() != nil {
		s.stopped()
		return nil
	}
	if res.Fatal() {
		s.setPhase(PhaseStopped)
		return fmt.Errorf("cold start: %w", res.Err)
	}
	s.install(ctx)

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	for {
		if ctx.Err() != nil {
			s.stopped()
			return nil
		}

		s.setPhase(PhaseRunning)
		outcome := s.runner.RunOnce(ctx, s.opts.Target)

		if ctx.Err() != nil {
			// Operator stop: no further sync or install.
			s.recordExit(outcome, "stopped", telemetry.ReasonSignal)
			s.stopped()
			return nil
		}

		d := s.opts.Policy.Decide(outcome)
		switch d.State {
		case SelfUpdateRequested:
			s.log.Info("child requested an update", "run_id", outcome.RunID, "delay", d.Delay)
			s.recordExit(outcome, d.State.String(), telemetry.ReasonSelfUpdate)
		default:
			reason := telemetry.ReasonCrash
			if outcome.Signaled {
				reason = telemetry.ReasonSignal
			}
			s.log.Warn("child exited unexpectedly, restarting after backoff",
				"run_id", outcome.RunID, "outcome", outcome.String(), "backoff", d.Delay)
			s.recordExit(outcome, d.State.String(), reason)
		}

		if d.Resync {
			s.sync(ctx, gitsync.PullOnly)
		}
		if d.Reinstall && ctx.Err() == nil {
			s.install(ctx)
		}

		s.setPhase(PhaseWaiting)
		if err := s.sleep(ctx, d.Delay); err != nil {
			s.stopped()
			return nil
		}
	}
}

// SyncOnce runs one sync in the given mode followed by an install, for
// one-shot use outside the loop.
func (s *Supervisor) SyncOnce(ctx context.Context, mode gitsync.Mode) gitsync.Result {
	res := s.sync(ctx, mode)
	if !res.Fatal() && ctx.Err() == nil {
		s.install(ctx)
	}
	s.setPhase(PhaseStopped)
	return res
}

// Snapshot returns a copy of the run state.
func (s *Supervisor) Snapshot() state.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Ready reports whether the cold-start sync and install have completed.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Supervisor) sync(ctx context.Context, mode gitsync.Mode) gitsync.Result {
	s.setPhase(PhaseSyncing)
	res := s.syncer.Sync(ctx, mode)

	rec := &state.SyncRecord{
		Mode:     mode.String(),
		Source:   string(res.Source),
		Revision: res.Revision,
		At:       time.Now().UTC(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	s.update(func(st *state.State) {
		st.LastSync = rec
		if res.Err != nil {
			st.Counters.SyncFailures++
		}
	})
	s.metrics.SyncDone(string(res.Source), res.Err != nil)

	if res.Err == nil {
		s.log.Info("working copy ready", "mode", mode.String(), "source", res.Source, "revision", res.Revision)
	}
	return res
}

func (s *Supervisor) install(ctx context.Context) {
	s.setPhase(PhaseInstalling)
	outcome := s.installer.Install(ctx, s.opts.Target)
	s.metrics.InstallDone(string(outcome))
}

// childStarted is called by the runner once the child has a PID.
func (s *Supervisor) childStarted(h process.Handle) {
	s.update(func(st *state.State) {
		st.Phase = PhaseRunning
		st.Child = &state.ChildRecord{PID: h.PID, RunID: h.RunID, StartedAt: h.StartedAt.UTC()}
		st.Counters.Starts++
	})
	s.metrics.ChildStarted()
}

func (s *Supervisor) recordExit(o process.ExitOutcome, decision, reason string) {
	rec := &state.ExitRecord{
		RunID:    o.RunID,
		Code:     o.Code,
		Signal:   o.Signal,
		Decision: decision,
		Duration: o.Duration,
		At:       time.Now().UTC(),
	}
	if o.StartErr != nil {
		rec.StartError = o.StartErr.Error()
	}
	s.update(func(st *state.State) {
		st.Child = nil
		st.LastExit = rec
		switch reason {
		case telemetry.ReasonSelfUpdate:
			st.Counters.SelfUpdates++
		case telemetry.ReasonCrash:
			st.Counters.Crashes++
		}
	})
	s.metrics.ChildExited(reason, o.Code)
}

func (s *Supervisor) setPhase(phase string) {
	s.update(func(st *state.State) { st.Phase = phase })
}

func (s *Supervisor) stopped() {
	s.log.Info("supervisor stopping")
	s.setPhase(PhaseStopped)
}

// update applies fn to the state under the lock and persists the result.
func (s *Supervisor) update(fn func(*state.State)) {
	s.mu.Lock()
	fn(&s.st)
	s.st.UpdatedAt = time.Now().UTC()
	snapshot := s.st
	s.mu.Unlock()

	if s.opts.StatePath == "" {
		return
	}
	if err := state.Save(s.opts.StatePath, &snapshot); err != nil {
		s.log.Debug("saving run state failed", "path", s.opts.StatePath, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
