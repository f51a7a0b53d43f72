//go:build integration

package integration_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/agenthatchery/watchdog/internal/gitsync"
	"github.com/agenthatchery/watchdog/internal/state"
)

// v1 records a run, then asks for an update once the test drops the marker.
const v1Script = `echo v1 >> "$TEST_OUT"
while [ ! -f "$TEST_MARKER" ]; do sleep 0.05; done
exit 42
`

// v2 records a run and stays up until it is stopped.
const v2Script = `echo v2 >> "$TEST_OUT"
exec sleep 60
`

// crashScript fails immediately every time.
const crashScript = `echo crash >> "$TEST_OUT"
exit 1
`

func TestSelfUpdateCycle(t *testing.T) {
	env := setupTestEnv(t)
	remote := newRemote(t, v1Script)

	stop := start(t, newSupervisor(env, remote.URL()))
	waitForRuns(t, env, 1)

	c2 := remote.push(t, v2Script, "C2")
	writeFile(t, env.Marker, "")

	got := waitForRuns(t, env, 2)
	if want := []string{"v1", "v2"}; !reflect.DeepEqual(got[:2], want) {
		t.Errorf("runs = %v, want %v", got, want)
	}

	if err := stop(); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if head := runGit(t, env.LiveDir, "rev-parse", "HEAD"); head != c2 {
		t.Errorf("live HEAD = %s, want %s", head, c2)
	}

	st, err := state.Load(filepath.Join(env.DataDir, "watchdog", "state.json"))
	if err != nil || st == nil {
		t.Fatalf("state.Load = %v, %v", st, err)
	}
	if st.Counters.SelfUpdates != 1 || st.Counters.Starts != 2 {
		t.Errorf("counters = %+v", st.Counters)
	}
	if st.LastSync == nil || st.LastSync.Source != string(gitsync.SourcePulled) || st.LastSync.Revision != c2 {
		t.Errorf("last sync = %+v", st.LastSync)
	}
}

func TestCrashLoopDoesNotPull(t *testing.T) {
	env := setupTestEnv(t)
	remote := newRemote(t, crashScript)

	stop := start(t, newSupervisor(env, remote.URL()))
	waitForRuns(t, env, 1)
	c1 := runGit(t, env.LiveDir, "rev-parse", "HEAD")

	// A new revision must not be picked up by crash restarts.
	remote.push(t, v2Script, "C2")
	got := waitForRuns(t, env, 3)

	if err := stop(); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	for _, run := range got {
		if run != "crash" {
			t.Errorf("runs = %v, want only the crashing revision", got)
			break
		}
	}
	if head := runGit(t, env.LiveDir, "rev-parse", "HEAD"); head != c1 {
		t.Errorf("live HEAD moved from %s to %s on a crash restart", c1, head)
	}
}

func TestColdStartFallsBackToBootstrap(t *testing.T) {
	env := setupTestEnv(t)
	env.BootstrapDir = t.TempDir()
	writeFile(t, filepath.Join(env.BootstrapDir, "run.sh"), `echo bootstrap >> "$TEST_OUT"
exec sleep 60
`)

	stop := start(t, newSupervisor(env, "file://"+filepath.Join(t.TempDir(), "missing.git")))
	got := waitForRuns(t, env, 1)

	if err := stop(); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got[0] != "bootstrap" {
		t.Errorf("runs = %v, want the bootstrap copy to run", got)
	}
}

func TestColdStartWithoutAnyCodeIsFatal(t *testing.T) {
	env := setupTestEnv(t)
	env.BootstrapDir = filepath.Join(t.TempDir(), "absent")

	sup := newSupervisor(env, "file://"+filepath.Join(t.TempDir(), "missing.git"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err := sup.Run(ctx)
	if !errors.Is(err, gitsync.ErrFatalBootstrap) {
		t.Fatalf("Run() = %v, want ErrFatalBootstrap", err)
	}
	if len(runs(t, env)) != 0 {
		t.Error("application ran without code")
	}
}
