package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otusprobe/flowprobe/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file without starting the probe",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("invalid configuration", err)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "VALID: %d shard(s), capacity %d, %d plugin(s) configured\n",
			cfg.FlowCache.Shards, cfg.FlowCache.Capacity, len(cfg.Plugins))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
