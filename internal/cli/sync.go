package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agenthatchery/watchdog/internal/gitsync"
)

var syncPullOnly bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the working copy and install dependencies once",
	Long: `Run one repository sync followed by a dependency install, then exit.

Without --pull-only this behaves like the supervisor's cold start: clone when
there is no working copy, fall back to the bootstrap copy when the remote is
unreachable. With --pull-only only an existing clone is fast-forwarded.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncPullOnly, "pull-only", false, "Only fast-forward an existing clone")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a := newApp(s)
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := gitsync.ColdStart
	if syncPullOnly {
		mode = gitsync.PullOnly
	}
	res := a.sup.SyncOnce(ctx, mode)

	out := cmd.OutOrStdout()
	rev := res.Revision
	if rev == "" {
		rev = "-"
	}
	fmt.Fprintf(out, "%s  %s  %s\n", res.Source, rev, res.Root)
	if res.Err != nil {
		return fmt.Errorf("%s sync: %w", mode, res.Err)
	}
	return nil
}
