package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"twinsim/internal/config"
	"twinsim/internal/sim"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayTUI       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a tick record log file",
	Long:  "replay feeds tick records from a JSONL log back into GreptimeDB, STDOUT, or the TUI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		writer, cleanup, err := newRecordWriter(config.Default(), replayPrintOnly, replayTUI)
		if err != nil {
			return err
		}
		defer cleanup()
		return sim.ReplayLogFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to tick record log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print records to STDOUT instead of writing to DB")
	replayCmd.Flags().BoolVar(&replayTUI, "tui", false, "Render the replay in a terminal UI")
	replayCmd.MarkFlagRequired("input")
}
