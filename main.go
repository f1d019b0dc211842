// Package main is the entry point for the flow-export probe.
package main

import (
	"fmt"
	"os"

	"github.com/otusprobe/flowprobe/cmd"
	_ "github.com/otusprobe/flowprobe/plugins" // trigger built-in plugin init() registration
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
