package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthatchery/watchdog/internal/branding"
	"github.com/agenthatchery/watchdog/internal/manifest"
)

// Options configures a Runner.
type Options struct {
	// Command is the default argv, used when the working copy has no
	// application manifest with a run section.
	Command []string
	// StopGrace is how long the child has to exit after SIGTERM before it is
	// killed.
	StopGrace time.Duration
	// Version is the supervisor version, checked against the manifest's
	// requires constraint.
	Version string

	// Stdout and Stderr default to the supervisor's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Runner starts children one at a time.
type Runner struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	current *Handle
	onStart func(Handle)
}

// NewRunner creates a Runner.
func NewRunner(opts Options, logger *slog.Logger) *Runner {
	if opts.StopGrace <= 0 {
		opts.StopGrace = 10 * time.Second
	}
	return &Runner{opts: opts, log: logger.With("component", "process")}
}

// OnStart registers fn to be called, on the RunOnce goroutine, right after
// each child has started.
func (r *Runner) OnStart(fn func(Handle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStart = fn
}

// Current returns the running child, if any.
func (r *Runner) Current() (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Handle{}, false
	}
	return *r.current, true
}

// RunOnce starts the application in target and blocks until it exits. When
// ctx is cancelled the child's process group receives SIGTERM and, after
// StopGrace, SIGKILL.
func (r *Runner) RunOnce(ctx context.Context, target string) ExitOutcome {
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return ExitOutcome{Code: -1, StartErr: ErrBusy}
	}
	// Reserve the slot before releasing the lock.
	h := &Handle{Dir: target, RunID: uuid.NewString()}
	r.current = h
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()
	}()

	argv, extraEnv := r.resolve(target)
	if len(argv) == 0 {
		return ExitOutcome{Code: -1, StartErr: errors.New("no application command configured"), RunID: h.RunID}
	}

	env := os.Environ()
	for k, v := range extraEnv {
		env = setEnv(env, k, v)
	}
	env = setEnv(env, branding.EnvVar("CODE_ROOT"), target)
	env = setEnv(env, branding.EnvVar("RUN_ID"), h.RunID)
	env = setEnv(env, branding.EnvVar("SELF_UPDATE_EXIT"), strconv.Itoa(SelfUpdateExitCode))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = target
	cmd.Env = env
	cmd.Stdin = nil
	cmd.Stdout = r.opts.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		r.log.Info("stopping child", "pid", cmd.Process.Pid, "grace", r.opts.StopGrace)
		return terminateGroup(cmd.Process)
	}
	cmd.WaitDelay = r.opts.StopGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		r.log.Error("child failed to start", "command", strings.Join(argv, " "), "error", err)
		return ExitOutcome{Code: -1, StartErr: fmt.Errorf("starting %s: %w", argv[0], err), RunID: h.RunID}
	}

	r.mu.Lock()
	h.PID = cmd.Process.Pid
	h.Command = argv
	h.Env = env
	h.StartedAt = start
	started, onStart := *h, r.onStart
	r.mu.Unlock()

	if onStart != nil {
		onStart(started)
	}

	r.log.Info("child started", "pid", h.PID, "run_id", h.RunID, "command", strings.Join(argv, " "), "dir", target)

	waitErr := cmd.Wait()
	outcome := ExitOutcome{Code: -1, Duration: time.Since(start), RunID: h.RunID}

	if ctx.Err() != nil {
		// Stragglers left in the group after the leader went away.
		killGroup(h.PID)
	}

	state := cmd.ProcessState
	if state == nil {
		outcome.StartErr = fmt.Errorf("waiting for %s: %w", argv[0], waitErr)
		return outcome
	}
	outcome.Code = state.ExitCode()
	if sig, ok := signalOf(state); ok {
		outcome.Signaled = true
		outcome.Signal = sig
	}

	r.log.Info("child exited", "pid", h.PID, "run_id", h.RunID, "code", outcome.Code,
		"signal", outcome.Signal, "duration", outcome.Duration.Round(time.Millisecond))
	return outcome
}

// resolve returns the argv and extra environment for the code in target.
func (r *Runner) resolve(target string) ([]string, map[string]string) {
	app, err := manifest.Resolve(target, r.opts.Version)
	if err != nil {
		r.log.Warn("ignoring application manifest, using configured command", "error", err)
	}
	if app != nil && app.Run != nil {
		return app.Run.Argv(), app.Run.Env
	}
	return r.opts.Command, nil
}

// setEnv sets or replaces an environment variable in the env slice.
func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
