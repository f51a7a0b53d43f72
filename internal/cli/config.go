package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthatchery/watchdog/internal/config"
)

var configShowSecret bool

func init() {
	configGetCmd.Flags().BoolVar(&configShowSecret, "show-secret", false, "Print secret values instead of masking them")
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage supervisor settings",
	Long: `Read and write settings in the config file (default
<data_dir>/watchdog/config.yaml). Environment variables take precedence over
the file. The file is kept at mode 0600 because it may hold the access token.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.Set(configFile, key, value); err != nil {
			return fmt.Errorf("setting config key %q: %w", key, err)
		}
		if config.IsSecret(key) {
			value = maskSecret(value)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.Get(configFile, args[0])
		if err != nil {
			return err
		}
		if config.IsSecret(args[0]) && !configShowSecret {
			value = maskSecret(value)
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	return "***"
}
