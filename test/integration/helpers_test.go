//go:build integration

package integration_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agenthatchery/watchdog/internal/deps"
	"github.com/agenthatchery/watchdog/internal/gitsync"
	"github.com/agenthatchery/watchdog/internal/logging"
	"github.com/agenthatchery/watchdog/internal/process"
	"github.com/agenthatchery/watchdog/internal/supervisor"
	"github.com/agenthatchery/watchdog/internal/telemetry"
)

// testEnv holds the isolated directories of one supervisor.
type testEnv struct {
	DataDir      string // persistent volume
	LiveDir      string // <data>/code, the working copy
	BootstrapDir string // image snapshot; empty when the test has none
	OutFile      string // the application appends one line per run here
	Marker       string // the v1 application waits for this file before exiting 42
}

// setupTestEnv requires git and sh, isolates git from the user's
// configuration and exports the paths the test application scripts use.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, bin := range []string{"git", "sh"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available, skipping", bin)
		}
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_AUTHOR_NAME", "test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")

	data := t.TempDir()
	env := &testEnv{
		DataDir: data,
		LiveDir: filepath.Join(data, "code"),
		OutFile: filepath.Join(t.TempDir(), "runs.log"),
		Marker:  filepath.Join(t.TempDir(), "update-now"),
	}
	t.Setenv("TEST_OUT", env.OutFile)
	t.Setenv("TEST_MARKER", env.Marker)
	return env
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// remoteFixture is a bare repository plus a seed clone used to push commits.
type remoteFixture struct {
	bare string
	seed string
}

func (f *remoteFixture) URL() string {
	return "file://" + f.bare
}

func newRemote(t *testing.T, script string) *remoteFixture {
	t.Helper()
	root := t.TempDir()
	f := &remoteFixture{
		bare: filepath.Join(root, "remote.git"),
		seed: filepath.Join(root, "seed"),
	}
	runGit(t, root, "init", "--bare", f.bare)
	runGit(t, root, "init", f.seed)
	runGit(t, f.seed, "symbolic-ref", "HEAD", "refs/heads/main")
	f.push(t, script, "C1")
	return f
}

// push commits script as run.sh and pushes it, returning the new revision.
func (f *remoteFixture) push(t *testing.T, script, msg string) string {
	t.Helper()
	writeFile(t, filepath.Join(f.seed, "run.sh"), script)
	runGit(t, f.seed, "add", "-A")
	runGit(t, f.seed, "commit", "-q", "-m", msg)
	runGit(t, f.seed, "push", "-q", f.bare, "main")
	return runGit(t, f.seed, "rev-parse", "HEAD")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// runs returns the lines the application has written so far.
func runs(t *testing.T, env *testEnv) []string {
	t.Helper()
	data, err := os.ReadFile(env.OutFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Fields(string(data))
}

// waitForRuns polls until the application has written at least n lines.
func waitForRuns(t *testing.T, env *testEnv, n int) []string {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		if got := runs(t, env); len(got) >= n {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("application ran %d time(s), want %d: %v", len(runs(t, env)), n, runs(t, env))
	return nil
}

// newSupervisor wires the real components the way the run command does,
// with short delays.
func newSupervisor(env *testEnv, remoteURL string) *supervisor.Supervisor {
	logger := logging.Discard()
	syncer := gitsync.New(gitsync.Options{
		RemoteURL: remoteURL,
		Branch:    "main",
		Target:    env.LiveDir,
		Bootstrap: env.BootstrapDir,
	}, logger)
	installer := deps.New(deps.Options{
		Manifest: "requirements.txt",
		Command:  "pip install -r {manifest}",
		Timeout:  time.Minute,
		Version:  "dev",
	}, logger)
	runner := process.NewRunner(process.Options{
		Command:   []string{"sh", "run.sh"},
		StopGrace: 2 * time.Second,
		Version:   "dev",
	}, logger)
	return supervisor.New(supervisor.Options{
		Target:    env.LiveDir,
		Policy:    supervisor.Policy{SelfUpdateDelay: 10 * time.Millisecond, CrashBackoff: 50 * time.Millisecond},
		StatePath: filepath.Join(env.DataDir, "watchdog", "state.json"),
		Version:   "dev",
		Branch:    "main",
		Remote:    gitsync.PublicURL(remoteURL),
	}, syncer, installer, runner, telemetry.NewMetrics(), logger)
}

// start runs sup in the background; the returned stop function cancels it
// and returns Run's error.
func start(t *testing.T, sup *supervisor.Supervisor) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	var stopped bool
	var result error
	stop := func() error {
		if stopped {
			return result
		}
		stopped = true
		cancel()
		select {
		case result = <-done:
		case <-time.After(20 * time.Second):
			t.Fatal("supervisor did not stop")
		}
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}
