// Package cmd implements the probe's command-line interface using
// cobra: start the capture pipeline, or validate a configuration file
// before deploying it.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "flowprobe",
	Short: "flowprobe captures network traffic and exports flow records",
	Long: `flowprobe is a network flow-export probe. It captures packets from a
live interface or a pcap file, groups them into bidirectional flows,
enriches them with protocol-specific metadata (TLS, WireGuard, ...)
and writes a one-line summary of each finished flow to stdout.`,
	Version: "0.1.0",
}

// Execute runs the root command; each subcommand registers itself with
// it from its own file's init. It is called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/flowprobe/config.yml",
		"configuration file path")
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
