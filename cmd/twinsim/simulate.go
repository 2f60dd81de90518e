package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"twinsim/internal/admin"
	"twinsim/internal/config"
	"twinsim/internal/logging"
	"twinsim/internal/report"
	"twinsim/internal/sim"
)

var (
	simConfigPath string
	simSchemaPath string
	simStrategy   string
	simSeed       int64
	simDuration   float64
	simBattery    float64
	simRAM        float64
	simBandwidth  float64
	simNoEdge     bool
	simNoLeak     bool
	simPrintOnly  bool
	simTUI        bool
	simLogFile    string
	simCSVFile    string
	simPDFFile    string
	simAdminAddr  string
	simVerbose    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a device/twin simulation",
	Long:  "simulate runs the full tick pipeline over the configured duration and prints a summary report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if simStrategy != "" {
			cfg.Sync.Strategy = simStrategy
		}
		if cmd.Flags().Changed("seed") {
			cfg.Simulation.RandomSeed = simSeed
		}
		if cmd.Flags().Changed("duration") {
			cfg.Simulation.DurationHours = simDuration
		}
		if cmd.Flags().Changed("battery") {
			cfg.Device.Battery.CapacityMAh = simBattery
		}
		if cmd.Flags().Changed("ram") {
			cfg.Device.Memory.TotalRAMKB = simRAM
		}
		if cmd.Flags().Changed("bandwidth") {
			cfg.Device.Network.MaxBandwidthKbps = simBandwidth
		}
		if simNoEdge {
			cfg.Edge.Enabled = false
		}
		if simNoLeak {
			cfg.Device.Memory.LeakEnabled = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := slog.LevelInfo
		if simVerbose {
			level = slog.LevelDebug
		}
		log := logging.New(level)
		ctx := logging.NewContext(cmd.Context(), log)

		writer, alertWriter, cleanup, err := newWriters(cfg, simPrintOnly, simTUI, simLogFile, simCSVFile)
		if err != nil {
			return err
		}
		defer cleanup()

		rng := rand.New(rand.NewSource(cfg.Simulation.RandomSeed))
		pipeline, err := sim.NewPipeline(cfg, rng, writer, alertWriter)
		if err != nil {
			return err
		}

		if simAdminAddr != "" {
			srv := admin.NewServer(pipeline)
			go func() {
				log.Info("admin server listening", "addr", simAdminAddr)
				if err := srv.Start(simAdminAddr); err != nil && err != http.ErrServerClosed {
					log.Error("admin server failed", "err", err)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := pipeline.Run(ctx); err != nil {
			return err
		}

		metrics := pipeline.Metrics()
		fmt.Fprint(os.Stdout, report.RenderRun(metrics))

		if simPDFFile != "" {
			data, err := report.BuildRunPDF(metrics, pipeline.Alerts())
			if err != nil {
				return fmt.Errorf("pdf export: %w", err)
			}
			if err := os.WriteFile(simPDFFile, data, 0o644); err != nil {
				return err
			}
			log.Info("report exported", "path", simPDFFile)
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "schemas/twinsim.cue", "Path to CUE schema file")
	simulateCmd.Flags().StringVar(&simStrategy, "strategy", "", "Override sync strategy (full_state, delta, event_driven, adaptive)")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "Override random seed")
	simulateCmd.Flags().Float64Var(&simDuration, "duration", 0, "Override simulation duration in hours")
	simulateCmd.Flags().Float64Var(&simBattery, "battery", 0, "Override battery capacity in mAh")
	simulateCmd.Flags().Float64Var(&simRAM, "ram", 0, "Override total RAM in KB")
	simulateCmd.Flags().Float64Var(&simBandwidth, "bandwidth", 0, "Override max bandwidth in kbps")
	simulateCmd.Flags().BoolVar(&simNoEdge, "no-edge", false, "Disable edge preprocessing")
	simulateCmd.Flags().BoolVar(&simNoLeak, "no-leak", false, "Disable memory leak injection")
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print tick records to STDOUT instead of writing to DB")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Render the run in a terminal UI")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export tick/alert logs (JSONL)")
	simulateCmd.Flags().StringVar(&simCSVFile, "csv-file", "", "Path to export tick records (CSV)")
	simulateCmd.Flags().StringVar(&simPDFFile, "pdf", "", "Path to export the summary report (PDF)")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin", "", "Address for the admin/metrics HTTP server (e.g. :8080)")
	simulateCmd.Flags().BoolVar(&simVerbose, "verbose", false, "Enable debug logging")
}
