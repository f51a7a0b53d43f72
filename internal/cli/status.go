package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/agenthatchery/watchdog/internal/state"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the supervisor's last recorded run state",
	Long: `Print the run state the supervisor persists in <data_dir>/watchdog/state.json:
last sync, last child exit, the running child and lifetime counters.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	path := layoutFor(s).StatePath()

	st, err := state.Load(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if st == nil {
		fmt.Fprintf(out, "No run state recorded at %s yet.\n", path)
		return nil
	}

	if statusJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling status: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Field", "Value")
	for _, row := range statusRows(st, time.Now()) {
		table.Append(row[0], row[1])
	}
	table.Render()
	return nil
}

// statusRows flattens the state into field/value pairs for display.
func statusRows(st *state.State, now time.Time) [][2]string {
	supervisor := strconv.Itoa(st.PID)
	if alive, err := process.PidExists(int32(st.PID)); err == nil && !alive {
		supervisor += " (not running)"
	}

	rows := [][2]string{
		{"Supervisor PID", supervisor},
		{"Version", st.Version},
		{"Phase", st.Phase},
		{"Remote", st.Remote},
		{"Branch", st.Branch},
		{"Live dir", st.LiveDir},
	}

	if sync := st.LastSync; sync != nil {
		v := fmt.Sprintf("%s %s (%s, %s ago)", sync.Source, shortRev(sync.Revision), sync.Mode, since(now, sync.At))
		rows = append(rows, [2]string{"Last sync", strings.TrimSpace(v)})
		if sync.Error != "" {
			rows = append(rows, [2]string{"Sync error", firstLine(sync.Error)})
		}
	}

	if child := st.Child; child != nil {
		rows = append(rows, [2]string{"Child", fmt.Sprintf("pid %d, run %s, up %s", child.PID, child.RunID, since(now, child.StartedAt))})
	}

	if exit := st.LastExit; exit != nil {
		how := fmt.Sprintf("status %d", exit.Code)
		switch {
		case exit.StartError != "":
			how = "start failed: " + firstLine(exit.StartError)
		case exit.Signal != "":
			how = "signal " + exit.Signal
		}
		rows = append(rows, [2]string{"Last exit", fmt.Sprintf("%s -> %s (%s ago)", how, exit.Decision, since(now, exit.At))})
	}

	c := st.Counters
	rows = append(rows,
		[2]string{"Starts", strconv.Itoa(c.Starts)},
		[2]string{"Self-updates", strconv.Itoa(c.SelfUpdates)},
		[2]string{"Crashes", strconv.Itoa(c.Crashes)},
		[2]string{"Sync failures", strconv.Itoa(c.SyncFailures)},
		[2]string{"Updated", st.UpdatedAt.Format(time.RFC3339)},
	)
	return rows
}

func since(now, t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	return now.Sub(t).Round(time.Second).String()
}

func shortRev(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
