// Package deps installs the managed application's runtime dependencies from
// a manifest file in the working copy. Installation is best-effort: every
// failure is logged and swallowed, because the previously installed set
// usually still runs the code well enough to start or to fix itself.
package deps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agenthatchery/watchdog/internal/manifest"
)

// ManifestPlaceholder in a command template is replaced by the manifest path.
const ManifestPlaceholder = "{manifest}"

// outputTail bounds how much installer output is kept for a warning.
const outputTail = 2048

// Options configures an Installer. Values from the application manifest
// take precedence over these.
type Options struct {
	Manifest string
	Command  string
	Timeout  time.Duration
	// Version is the supervisor version, checked against the manifest's
	// requires constraint.
	Version string
}

// Outcome summarises an Install call.
type Outcome string

const (
	Installed Outcome = "installed"
	Skipped   Outcome = "skipped"
	Failed    Outcome = "failed"
)

// Installer runs the external dependency installer.
type Installer struct {
	opts Options
	log  *slog.Logger
}

// New creates an Installer.
func New(opts Options, logger *slog.Logger) *Installer {
	return &Installer{opts: opts, log: logger.With("component", "deps")}
}

// Install installs dependencies for the code in target. Failures are logged
// and reported as Failed; they never stop the caller.
func (i *Installer) Install(ctx context.Context, target string) Outcome {
	outcome, err := i.install(ctx, target)
	if err != nil {
		i.log.Warn("dependency install failed, starting with the previous set", "target", target, "error", err)
		return Failed
	}
	return outcome
}

func (i *Installer) install(ctx context.Context, target string) (Outcome, error) {
	manifestName, template := i.opts.Manifest, i.opts.Command
	app, err := manifest.Resolve(target, i.opts.Version)
	if err != nil {
		i.log.Debug("ignoring application manifest", "error", err)
	}
	if app != nil && app.Install != nil {
		if app.Install.Manifest != "" {
			manifestName = app.Install.Manifest
		}
		if app.Install.Command != "" {
			template = app.Install.Command
		}
	}

	manifestPath := manifestName
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(target, manifestName)
	}
	if _, err := os.Stat(manifestPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			i.log.Debug("no dependency manifest, skipping install", "manifest", manifestPath)
			return Skipped, nil
		}
		return Failed, fmt.Errorf("checking %s: %w", manifestPath, err)
	}

	argv := expand(template, manifestPath)
	if len(argv) == 0 {
		return Failed, fmt.Errorf("installer command is empty")
	}
	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return Failed, fmt.Errorf("installer %q not found: %w", argv[0], err)
	}

	timeout := i.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Dir = target
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	i.log.Info("installing dependencies", "manifest", manifestPath, "command", strings.Join(argv, " "))
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return Failed, fmt.Errorf("%s: %w\n%s", argv[0], err, tail(out.String()))
	}
	i.log.Info("dependencies installed", "duration", time.Since(start).Round(time.Millisecond))
	return Installed, nil
}

// expand splits template on whitespace and substitutes the manifest path.
func expand(template, manifestPath string) []string {
	fields := strings.Fields(template)
	for idx, f := range fields {
		fields[idx] = strings.ReplaceAll(f, ManifestPlaceholder, manifestPath)
	}
	return fields
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > outputTail {
		return "..." + s[len(s)-outputTail:]
	}
	return s
}
