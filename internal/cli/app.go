package cli

import (
	"github.com/agenthatchery/watchdog/internal/config"
	"github.com/agenthatchery/watchdog/internal/deps"
	"github.com/agenthatchery/watchdog/internal/gitsync"
	"github.com/agenthatchery/watchdog/internal/layout"
	"github.com/agenthatchery/watchdog/internal/logging"
	"github.com/agenthatchery/watchdog/internal/process"
	"github.com/agenthatchery/watchdog/internal/supervisor"
	"github.com/agenthatchery/watchdog/internal/telemetry"
)

// app is the wired supervisor shared by the run and sync commands.
type app struct {
	settings *config.Settings
	layout   layout.Layout
	log      *logging.Logger
	metrics  *telemetry.Metrics
	sup      *supervisor.Supervisor
}

func layoutFor(s *config.Settings) layout.Layout {
	return layout.Layout{
		LiveDir:      s.LiveDir,
		BootstrapDir: s.BootstrapDir,
		DataDir:      s.DataDir,
		LogsDir:      s.LogsDir,
	}
}

func newApp(s *config.Settings) *app {
	l := layoutFor(s)

	// Directory problems are logged; the sync step reports what it cannot do.
	dirErr := l.EnsureDirs()
	logger := logging.New(logging.Options{
		Level:    s.LogLevel,
		Format:   s.LogFormat,
		FilePath: l.LogPath(),
	})
	if dirErr != nil {
		logger.Warn("preparing data directories", "error", dirErr)
	}

	remote := gitsync.PublicURL(s.RepoURL)
	logger.Info("starting",
		"version", buildVersion,
		"remote", remote,
		"branch", s.Branch,
		"live_dir", l.LiveDir,
		"bootstrap_dir", l.BootstrapDir,
		"authenticated", s.GitHubPAT != "")

	syncer := gitsync.New(gitsync.Options{
		RemoteURL: s.RepoURL,
		Token:     s.GitHubPAT,
		Branch:    s.Branch,
		Depth:     s.CloneDepth,
		Target:    l.LiveDir,
		Bootstrap: l.BootstrapDir,
	}, logger.Logger)

	installer := deps.New(deps.Options{
		Manifest: s.DepsManifest,
		Command:  s.DepsCommand,
		Timeout:  s.DepsTimeout,
		Version:  buildVersion,
	}, logger.Logger)

	runner := process.NewRunner(process.Options{
		Command:   s.AppCommand,
		StopGrace: s.StopGrace,
		Version:   buildVersion,
	}, logger.Logger)

	metrics := telemetry.NewMetrics()
	sup := supervisor.New(supervisor.Options{
		Target: l.LiveDir,
		Policy: supervisor.Policy{
			SelfUpdateDelay: s.UpdateDelay,
			CrashBackoff:    s.CrashBackoff,
		},
		StatePath: l.StatePath(),
		Version:   buildVersion,
		Branch:    s.Branch,
		Remote:    remote,
	}, syncer, installer, runner, metrics, logger.Logger)

	return &app{settings: s, layout: l, log: logger, metrics: metrics, sup: sup}
}

func (a *app) Close() error {
	return a.log.Close()
}
