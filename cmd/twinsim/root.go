package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "twinsim",
	Short: "IoT device and digital twin simulation toolkit",
	Long:  "twinsim simulates a resource-constrained sensor node and its cloud-side digital twin, for comparing synchronization strategies by energy, bandwidth, and mirror accuracy.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(whatIfCmd)
	rootCmd.AddCommand(replayCmd)
}
