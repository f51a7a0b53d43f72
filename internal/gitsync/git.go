package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Git runs git subcommands with credentials scrubbed from their output.
type Git struct {
	// Bin defaults to "git" resolved on PATH.
	Bin string
	// Secrets are redacted from errors in addition to URL userinfo.
	Secrets []string
}

// Available reports whether the git binary can be found.
func (g *Git) Available() error {
	if _, err := exec.LookPath(g.bin()); err != nil {
		return fmt.Errorf("git is required but not found in PATH")
	}
	return nil
}

// Run executes git with args in dir and returns trimmed combined output.
// Errors carry the redacted output so callers can log them as-is.
func (g *Git) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.bin(), args...)
	cmd.Dir = dir
	// A revoked token must fail instead of waiting on a credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		return "", fmt.Errorf("git %s: %w\n%s", g.redact(args[0]), err, g.redact(output))
	}
	return output, nil
}

// Revision returns the commit HEAD points at in dir.
func (g *Git) Revision(ctx context.Context, dir string) (string, error) {
	return g.Run(ctx, dir, "rev-parse", "HEAD")
}

// CurrentBranch returns the branch HEAD points at in dir.
func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return g.Run(ctx, dir, "symbolic-ref", "--short", "HEAD")
}

func (g *Git) redact(s string) string {
	return Redact(s, g.Secrets...)
}

func (g *Git) bin() string {
	if g.Bin != "" {
		return g.Bin
	}
	return "git"
}
