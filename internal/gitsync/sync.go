package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/agenthatchery/watchdog/internal/layout"
)

// tmpSuffix is appended to the target dir while a clone or copy is staged.
const tmpSuffix = ".tmp"

// ErrFatalBootstrap means no working copy could be obtained by any path.
// The supervisor must exit rather than loop on an empty directory.
var ErrFatalBootstrap = errors.New("no working copy available: clone failed and bootstrap copy unavailable")

// Source says where the code in the working copy came from.
type Source string

const (
	SourceCloned   Source = "CLONED"
	SourcePulled   Source = "PULLED"
	SourceFallback Source = "FALLBACK"
	// SourceSkipped is a pull-only sync on a directory without git metadata.
	SourceSkipped Source = "SKIPPED"
)

// Mode selects which paths a sync may take.
type Mode int

const (
	// ColdStart may clone and fall back to the bootstrap copy.
	ColdStart Mode = iota
	// PullOnly only fast-forwards an existing clone.
	PullOnly
)

func (m Mode) String() string {
	if m == PullOnly {
		return "pull-only"
	}
	return "cold-start"
}

// Result is the outcome of one sync. Err is a recoverable failure that has
// already been logged, unless it wraps ErrFatalBootstrap.
type Result struct {
	Source   Source
	Root     string
	Revision string
	Err      error
}

// Fatal reports whether the supervisor cannot continue.
func (r Result) Fatal() bool {
	return errors.Is(r.Err, ErrFatalBootstrap)
}

// Options configures a Syncer.
type Options struct {
	// RemoteURL is the repository URL without credentials.
	RemoteURL string
	// Token is embedded into http(s) URLs for clone and pull. Secret.
	Token  string
	Branch string
	// Depth > 0 makes the initial clone shallow.
	Depth int
	// Target is the live working copy.
	Target string
	// Bootstrap is the read-only fallback snapshot.
	Bootstrap string
}

// Syncer implements clone / fast-forward / fallback for one working copy.
type Syncer struct {
	opts Options
	git  *Git
	log  *slog.Logger
}

// New creates a Syncer.
func New(opts Options, logger *slog.Logger) *Syncer {
	return &Syncer{
		opts: opts,
		git:  &Git{Secrets: []string{opts.Token}},
		log:  logger.With("component", "sync"),
	}
}

// Sync brings the working copy up to date. It never panics or blocks the
// caller beyond the git invocations, and only returns a fatal result when
// neither clone nor bootstrap copy produced runnable code.
func (s *Syncer) Sync(ctx context.Context, mode Mode) Result {
	target := s.opts.Target

	if layout.HasVCS(target) {
		return s.pull(ctx)
	}

	if mode == PullOnly {
		err := fmt.Errorf("%s has no git metadata; cloning is only attempted on cold start", target)
		s.log.Warn("pull skipped", "target", target, "error", err)
		return Result{Source: SourceSkipped, Root: target, Err: err}
	}

	return s.coldStart(ctx)
}

// pull fast-forwards the existing clone. Divergence, auth and network
// failures leave the code on disk untouched.
func (s *Syncer) pull(ctx context.Context) Result {
	target := s.opts.Target
	res := Result{Source: SourcePulled, Root: target}

	before, _ := s.git.Revision(ctx, target)
	res.Revision = before

	if err := s.git.Available(); err != nil {
		res.Err = err
		s.log.Warn("pull failed, continuing with code on disk", "error", err)
		return res
	}

	branch, err := s.git.CurrentBranch(ctx, target)
	if err != nil {
		res.Err = fmt.Errorf("resolving current branch: %w", err)
		s.log.Warn("pull failed, continuing with code on disk", "error", res.Err)
		return res
	}
	if branch != s.opts.Branch {
		res.Err = fmt.Errorf("working copy is on branch %q, expected %q", branch, s.opts.Branch)
		s.log.Warn("pull refused, continuing with code on disk", "error", res.Err)
		return res
	}

	authURL, err := AuthURL(s.opts.RemoteURL, s.opts.Token)
	if err != nil {
		res.Err = fmt.Errorf("building remote URL: %w", err)
		s.log.Warn("pull failed, continuing with code on disk", "error", Redact(res.Err.Error(), s.opts.Token))
		return res
	}

	if _, err := s.git.Run(ctx, target, "pull", "--ff-only", "--no-rebase", authURL, s.opts.Branch); err != nil {
		res.Err = err
		s.log.Warn("pull failed, continuing with code on disk",
			"remote", PublicURL(s.opts.RemoteURL), "branch", s.opts.Branch, "revision", short(before), "error", err)
		return res
	}

	after, err := s.git.Revision(ctx, target)
	if err == nil {
		res.Revision = after
	}
	if after == before {
		s.log.Info("working copy already up to date", "branch", s.opts.Branch, "revision", short(after))
	} else {
		s.log.Info("working copy fast-forwarded", "branch", s.opts.Branch, "from", short(before), "to", short(after))
	}
	return res
}

// coldStart clones, or falls back to existing fallback code, or copies the
// bootstrap snapshot. The bootstrap → live copy is one-directional and only
// fires when the live directory is empty. A cancelled ctx ends the sync after
// the clone attempt with a non-fatal result.
func (s *Syncer) coldStart(ctx context.Context) Result {
	target := s.opts.Target

	cloneErr := s.clone(ctx)
	if cloneErr == nil {
		rev, _ := s.git.Revision(ctx, target)
		s.log.Info("working copy cloned", "remote", PublicURL(s.opts.RemoteURL), "branch", s.opts.Branch, "revision", short(rev))
		return Result{Source: SourceCloned, Root: target, Revision: rev}
	}
	if ctx.Err() != nil {
		s.log.Info("clone interrupted by shutdown", "target", target)
		return Result{Root: target, Err: ctx.Err()}
	}
	s.log.Warn("clone failed", "remote", PublicURL(s.opts.RemoteURL), "branch", s.opts.Branch, "error", cloneErr)

	populated, err := layout.IsPopulated(target)
	if err != nil {
		return Result{Source: SourceFallback, Root: target, Err: fmt.Errorf("%w: %v", ErrFatalBootstrap, err)}
	}
	if populated {
		s.log.Warn("keeping code from an earlier fallback copy", "target", target)
		return Result{Source: SourceFallback, Root: target, Err: cloneErr}
	}

	if err := s.restoreBootstrap(); err != nil {
		s.log.Error("bootstrap copy failed", "bootstrap", s.opts.Bootstrap, "error", err)
		return Result{Source: SourceFallback, Root: target, Err: fmt.Errorf("%w: %v", ErrFatalBootstrap, err)}
	}
	s.log.Warn("running from bootstrap copy until the remote is reachable", "bootstrap", s.opts.Bootstrap, "target", target)
	return Result{Source: SourceFallback, Root: target, Err: cloneErr}
}

// clone stages a clone next to the target and renames it into place.
func (s *Syncer) clone(ctx context.Context) error {
	if err := s.git.Available(); err != nil {
		return err
	}

	target := s.opts.Target
	tmpDir := target + tmpSuffix

	// Clean up any leftover tmp dir from a previous failed attempt.
	_ = os.RemoveAll(tmpDir)

	if err := os.MkdirAll(filepath.Dir(tmpDir), layout.DirPermNormal); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	authURL, err := AuthURL(s.opts.RemoteURL, s.opts.Token)
	if err != nil {
		return fmt.Errorf("building remote URL: %s", Redact(err.Error(), s.opts.Token))
	}

	args := []string{"clone", "--branch", s.opts.Branch, "--single-branch"}
	if s.opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(s.opts.Depth))
	}
	args = append(args, "--", authURL, tmpDir)

	if _, err := s.git.Run(ctx, filepath.Dir(tmpDir), args...); err != nil {
		_ = os.RemoveAll(tmpDir)
		return err
	}

	// Keep the token out of .git/config; pulls pass it explicitly.
	if _, err := s.git.Run(ctx, tmpDir, "remote", "set-url", "origin", PublicURL(s.opts.RemoteURL)); err != nil {
		_ = os.RemoveAll(tmpDir)
		return err
	}

	return replaceDir(tmpDir, target)
}

// restoreBootstrap copies the bootstrap snapshot into the target.
func (s *Syncer) restoreBootstrap() error {
	populated, err := layout.IsPopulated(s.opts.Bootstrap)
	if err != nil {
		return err
	}
	if !populated {
		return fmt.Errorf("bootstrap directory %s is missing or empty", s.opts.Bootstrap)
	}

	tmpDir := s.opts.Target + tmpSuffix
	_ = os.RemoveAll(tmpDir)
	if err := copyTree(s.opts.Bootstrap, tmpDir, vcsDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("copying %s: %w", s.opts.Bootstrap, err)
	}
	return replaceDir(tmpDir, s.opts.Target)
}

// replaceDir moves staged into place. Only called when target holds no git
// metadata, so nothing pulled is ever discarded. When target cannot be removed
// or renamed over, as with a volume mount point, it is refilled in place.
func replaceDir(staged, target string) error {
	err := os.RemoveAll(target)
	if err == nil {
		err = os.Rename(staged, target)
	}
	if err == nil {
		return nil
	}
	if ferr := refillDir(staged, target); ferr != nil {
		_ = os.RemoveAll(staged)
		return fmt.Errorf("replacing %s: %w (refilling in place: %v)", target, err, ferr)
	}
	return nil
}

// refillDir empties target and moves the entries of staged into it, copying
// any entry that cannot be renamed across filesystems. staged is removed.
func refillDir(staged, target string) error {
	if err := os.MkdirAll(target, layout.DirPermNormal); err != nil {
		return err
	}
	old, err := os.ReadDir(target)
	if err != nil {
		return err
	}
	for _, entry := range old {
		if err := os.RemoveAll(filepath.Join(target, entry.Name())); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(staged)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		src := filepath.Join(staged, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if os.Rename(src, dst) == nil {
			continue
		}
		if err := copyEntry(src, dst, entry.Type(), nil); err != nil {
			return err
		}
	}
	return os.RemoveAll(staged)
}

func short(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
