package deps

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available, skipping")
	}
}

func newTestInstaller(opts Options) (*Installer, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return New(opts, logger), &buf
}

func TestExpand(t *testing.T) {
	got := expand("pip install -q -r {manifest}", "/code/requirements.txt")
	want := []string{"pip", "install", "-q", "-r", "/code/requirements.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expand = %v, want %v", got, want)
	}
	if got := expand("   ", "x"); len(got) != 0 {
		t.Errorf("expand(blank) = %v, want empty", got)
	}
}

func TestInstallNoManifestIsNoop(t *testing.T) {
	target := t.TempDir()
	marker := filepath.Join(t.TempDir(), "ran")
	inst, logs := newTestInstaller(Options{
		Manifest: "requirements.txt",
		Command:  "touch " + marker,
	})

	if got := inst.Install(context.Background(), target); got != Skipped {
		t.Errorf("Install = %q, want %q", got, Skipped)
	}

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("installer ran without a manifest")
	}
	if strings.Contains(logs.String(), "level=WARN") {
		t.Errorf("missing manifest should not warn: %s", logs)
	}
}

func TestInstallRunsCommandInTarget(t *testing.T) {
	requireSh(t)
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, "requirements.txt"), []byte("httpx\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// Commands are split on whitespace, so quoting is not available; use a
	// script file.
	script := filepath.Join(t.TempDir(), "install.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\ncp \"$1\" installed.txt\n"), 0755); err != nil {
		t.Fatal(err)
	}
	inst, _ := newTestInstaller(Options{
		Manifest: "requirements.txt",
		Command:  "sh " + script + " {manifest}",
	})

	if got := inst.Install(context.Background(), target); got != Installed {
		t.Errorf("Install = %q, want %q", got, Installed)
	}

	data, err := os.ReadFile(filepath.Join(target, "installed.txt"))
	if err != nil {
		t.Fatalf("installer did not run in target: %v", err)
	}
	if string(data) != "httpx\n" {
		t.Errorf("installer received wrong manifest: %q", data)
	}
}

func TestInstallFailureIsSwallowed(t *testing.T) {
	requireSh(t)
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, "requirements.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(t.TempDir(), "fail.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'no matching distribution' >&2\nexit 1\n"), 0755); err != nil {
		t.Fatal(err)
	}

	inst, logs := newTestInstaller(Options{Manifest: "requirements.txt", Command: "sh " + script})
	if got := inst.Install(context.Background(), target); got != Failed {
		t.Errorf("Install = %q, want %q", got, Failed)
	}

	out := logs.String()
	if !strings.Contains(out, "dependency install failed") {
		t.Errorf("expected warning, got %s", out)
	}
	if !strings.Contains(out, "no matching distribution") {
		t.Errorf("warning should carry installer output, got %s", out)
	}
}

func TestInstallMissingInstallerIsSwallowed(t *testing.T) {
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, "requirements.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	inst, logs := newTestInstaller(Options{Manifest: "requirements.txt", Command: "definitely-not-an-installer -r {manifest}"})
	inst.Install(context.Background(), target)

	if !strings.Contains(logs.String(), "not found") {
		t.Errorf("expected not-found warning, got %s", logs)
	}
}

func TestInstallHonoursAppManifest(t *testing.T) {
	requireSh(t)
	target := t.TempDir()
	script := filepath.Join(t.TempDir(), "install.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\ncp \"$1\" installed.txt\n"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"package.json": "{}\n",
		"watchdog.yaml": "install:\n  manifest: package.json\n  command: sh " + script + " {manifest}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(target, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	inst, _ := newTestInstaller(Options{Manifest: "requirements.txt", Command: "false"})
	inst.Install(context.Background(), target)

	data, err := os.ReadFile(filepath.Join(target, "installed.txt"))
	if err != nil {
		t.Fatalf("manifest installer did not run: %v", err)
	}
	if string(data) != "{}\n" {
		t.Errorf("installed.txt = %q, want package.json contents", data)
	}
}
