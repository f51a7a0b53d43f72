package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenthatchery/watchdog/internal/branding"
	"github.com/agenthatchery/watchdog/internal/config"
	"github.com/agenthatchery/watchdog/internal/gitsync"
)

// Process exit statuses.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitFatalBootstrap is sysexits EX_CONFIG: no code could be obtained
	// from the remote or the bootstrap copy.
	ExitFatalBootstrap = 78
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string

	configFile string
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` keeps an application in sync with a branch of a git repository
and supervises it as a child process. The application asks for an update by
exiting with status 42; any other exit is treated as a crash and restarted
after a backoff.

Running without a subcommand is the same as "` + branding.CLIName() + ` run".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runSupervisor,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default <data_dir>/watchdog/config.yaml)")
	addRunFlags(rootCmd)
}

// Execute runs the root command with build info injected via ldflags and
// returns the process exit status.
func Execute(version, commit, date string) int {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, gitsync.ErrFatalBootstrap):
		return ExitFatalBootstrap
	default:
		return ExitFailure
	}
}

// loadSettings reads the configuration and applies flag overrides.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	s, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := applyRunFlags(cmd, s); err != nil {
		return nil, err
	}
	return s, nil
}
