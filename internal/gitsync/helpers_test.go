package gitsync

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agenthatchery/watchdog/internal/logging"
)

// requireGit skips the test when git is not installed and isolates git from
// the developer's global configuration.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available, skipping")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_AUTHOR_NAME", "test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")
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

func newRemote(t *testing.T) *remoteFixture {
	t.Helper()
	root := t.TempDir()
	f := &remoteFixture{
		bare: filepath.Join(root, "remote.git"),
		seed: filepath.Join(root, "seed"),
	}
	runGit(t, root, "init", "--bare", f.bare)
	runGit(t, root, "init", f.seed)
	runGit(t, f.seed, "symbolic-ref", "HEAD", "refs/heads/main")
	f.commit(t, "app.py", "print('v1')\n", "C1")
	return f
}

// commit writes file in the seed clone, commits and pushes it, returning the
// new revision.
func (f *remoteFixture) commit(t *testing.T, name, content, msg string) string {
	t.Helper()
	writeFile(t, filepath.Join(f.seed, name), content)
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newTestSyncer(remoteURL, target, bootstrap string) *Syncer {
	return New(Options{
		RemoteURL: remoteURL,
		Branch:    "main",
		Target:    target,
		Bootstrap: bootstrap,
	}, logging.Discard())
}

// snapshot maps relative paths to contents for every regular file under
// root, skipping .git.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.Type().IsRegular() {
			rel, _ := filepath.Rel(root, path)
			files[rel] = readFile(t, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func discard() *slog.Logger { return logging.Discard() }

var bg = context.Background()
