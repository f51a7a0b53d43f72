package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agenthatchery/watchdog/internal/config"
	"github.com/agenthatchery/watchdog/internal/gitsync"
	"github.com/agenthatchery/watchdog/internal/layout"
	"github.com/agenthatchery/watchdog/internal/manifest"
	"github.com/agenthatchery/watchdog/internal/remote"
)

var doctorSkipRemote bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorSkipRemote, "offline", false, "Skip the GitHub API check")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Health check for the supervisor's environment",
	Long: `Run diagnostic checks: required binaries, data and bootstrap directories,
the application manifest, and the remote branch as seen by the GitHub API
compared with the local checkout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		d := &doctor{out: cmd.OutOrStdout()}
		d.run(cmd.Context(), s)
		if d.failures > 0 {
			return fmt.Errorf("%d check(s) failed", d.failures)
		}
		return nil
	},
}

// doctor prints check results in the "[ OK ] message" style.
type doctor struct {
	out      io.Writer
	failures int
}

func (d *doctor) ok(format string, args ...any)   { d.line("[ OK ]", format, args...) }
func (d *doctor) warn(format string, args ...any) { d.line("[WARN]", format, args...) }
func (d *doctor) miss(format string, args ...any) { d.failures++; d.line("[MISS]", format, args...) }
func (d *doctor) fail(format string, args ...any) { d.failures++; d.line("[FAIL]", format, args...) }

func (d *doctor) line(tag, format string, args ...any) {
	fmt.Fprintf(d.out, "  %s %s\n", tag, fmt.Sprintf(format, args...))
}

func (d *doctor) section(name string) {
	fmt.Fprintf(d.out, "%s:\n", name)
}

func (d *doctor) run(ctx context.Context, s *config.Settings) {
	l := layoutFor(s)

	d.section("Binaries")
	d.checkBinary("git", "git")
	if argv := strings.Fields(s.DepsCommand); len(argv) > 0 {
		d.checkBinary("dependency installer", argv[0])
	}
	if len(s.AppCommand) > 0 {
		d.checkBinary("application command", s.AppCommand[0])
	}

	d.section("Directories")
	d.checkWritable("data dir", s.DataDir)
	liveRev := d.checkLiveDir(ctx, l)
	if populated, err := layout.IsPopulated(l.BootstrapDir); err != nil {
		d.fail("bootstrap dir %s: %v", l.BootstrapDir, err)
	} else if !populated {
		d.warn("bootstrap dir %s is missing or empty; a cold start without network would be fatal", l.BootstrapDir)
	} else {
		d.ok("bootstrap dir %s", l.BootstrapDir)
	}

	d.section("Application manifest")
	d.checkManifest(l.LiveDir)

	d.section("Remote")
	if doctorSkipRemote {
		d.warn("skipped (--offline)")
		return
	}
	d.checkRemote(ctx, s, liveRev)
}

func (d *doctor) checkBinary(label, name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		d.miss("%s: %s not found in PATH", label, name)
		return
	}
	d.ok("%s: %s", label, path)
}

func (d *doctor) checkWritable(label, dir string) {
	if err := os.MkdirAll(dir, layout.DirPermNormal); err != nil {
		d.fail("%s %s: %v", label, dir, err)
		return
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		d.fail("%s %s is not writable: %v", label, dir, err)
		return
	}
	f.Close()
	os.Remove(f.Name())
	d.ok("%s %s is writable", label, dir)
}

// checkLiveDir reports on the working copy and returns its HEAD, if any.
func (d *doctor) checkLiveDir(ctx context.Context, l layout.Layout) string {
	if layout.HasVCS(l.LiveDir) {
		g := &gitsync.Git{}
		rev, err := g.Revision(ctx, l.LiveDir)
		if err != nil {
			d.fail("live dir %s: %v", l.LiveDir, err)
			return ""
		}
		branch, _ := g.CurrentBranch(ctx, l.LiveDir)
		d.ok("live dir %s is a clone (%s @ %s)", l.LiveDir, branch, shortRev(rev))
		return rev
	}

	populated, err := layout.IsPopulated(l.LiveDir)
	switch {
	case err != nil:
		d.fail("live dir %s: %v", l.LiveDir, err)
	case populated:
		d.warn("live dir %s holds a bootstrap fallback copy; updates resume after the next successful clone", l.LiveDir)
	default:
		d.warn("live dir %s is empty; it is created on the first cold start", l.LiveDir)
	}
	return ""
}

func (d *doctor) checkManifest(dir string) {
	m, err := manifest.Load(dir)
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		d.ok("no %s, using configured commands", manifest.FileName)
		return
	case err != nil:
		d.fail("%v", err)
		return
	}
	if err := m.CheckRequires(buildVersion); err != nil {
		d.fail("%s: %v", filepath.Join(dir, manifest.FileName), err)
		return
	}
	d.ok("%s is valid", filepath.Join(dir, manifest.FileName))
}

func (d *doctor) checkRemote(ctx context.Context, s *config.Settings, localRev string) {
	owner, repo, ok := remote.ParseGitHubURL(s.RepoURL)
	if !ok {
		d.warn("%s is not a GitHub URL; skipping API check", gitsync.PublicURL(s.RepoURL))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	client := remote.New(remote.WithToken(s.GitHubPAT))
	head, err := client.BranchHead(ctx, owner, repo, s.Branch)
	if err != nil {
		hint := ""
		switch {
		case errors.Is(err, remote.ErrNotFound) && s.GitHubPAT == "":
			hint = " (private repository? set GITHUB_PAT)"
		case errors.Is(err, remote.ErrNotFound), errors.Is(err, remote.ErrUnauthorized):
			hint = " (check that GITHUB_PAT is valid and can read the repository)"
		}
		d.fail("%s/%s@%s: %s%s", owner, repo, s.Branch, gitsync.Redact(err.Error(), s.GitHubPAT), hint)
		return
	}

	d.ok("%s/%s@%s is at %s: %s", owner, repo, s.Branch, shortRev(head.SHA), head.Message)
	switch {
	case localRev == "":
	case localRev == head.SHA:
		d.ok("working copy is up to date")
	default:
		d.warn("working copy is at %s; the next self-update will pull %s", shortRev(localRev), shortRev(head.SHA))
	}
}
