package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agenthatchery/watchdog/internal/config"
	"github.com/agenthatchery/watchdog/internal/telemetry"
)

var (
	flagBranch      string
	flagMetricsAddr string
	flagLogLevel    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync the application and supervise it (default command)",
	Long: `Clone or update the working copy, install dependencies and run the
application, restarting it for ever:

  exit status 42   pull the branch, reinstall dependencies, restart
  anything else    wait for the crash backoff, restart unchanged

SIGINT or SIGTERM stops the child (SIGTERM to its process group, SIGKILL after
the stop grace period) and exits with status 0. If no code can be obtained at
all the command exits with status 78.`,
	Args: cobra.NoArgs,
	RunE: runSupervisor,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagBranch, "branch", "", "Branch to track (overrides "+config.KeyBranch+")")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve /metrics, /healthz and /status on this address")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// applyRunFlags copies explicitly set flags over the loaded settings.
func applyRunFlags(cmd *cobra.Command, s *config.Settings) error {
	changed := false
	if f := cmd.Flags().Lookup("branch"); f != nil && f.Changed {
		s.Branch, changed = flagBranch, true
	}
	if f := cmd.Flags().Lookup("metrics-addr"); f != nil && f.Changed {
		s.MetricsAddr = flagMetricsAddr
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		s.LogLevel = flagLogLevel
	}
	if changed {
		return s.Validate()
	}
	return nil
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a := newApp(s)
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.MetricsAddr != "" {
		srv := telemetry.NewServer(s.MetricsAddr, a.metrics, a.sup, a.log.Logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				a.log.Error("telemetry server stopped", "error", err)
			}
		}()
	}

	if err := a.sup.Run(ctx); err != nil {
		a.log.Error("supervisor cannot continue", "error", err)
		return err
	}
	return nil
}
