package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"twinsim/internal/config"
	"twinsim/internal/logging"
	"twinsim/internal/report"
	"twinsim/internal/sim"
	"twinsim/internal/telemetry"
)

var (
	whatIfConfigPath  string
	whatIfSchemaPath  string
	whatIfStrategy    string
	whatIfVariantPath string
	whatIfXLSXFile    string
	whatIfQuiet       bool
)

var whatIfCmd = &cobra.Command{
	Use:   "whatif",
	Short: "Compare two configurations over identical runs",
	Long:  "whatif runs the base configuration and a variant through isolated pipelines and prints a paired metrics comparison.",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := config.Load(whatIfConfigPath, whatIfSchemaPath)
		if err != nil {
			return err
		}

		var variant *config.Config
		if whatIfVariantPath != "" {
			variant, err = config.Load(whatIfVariantPath, whatIfSchemaPath)
			if err != nil {
				return err
			}
		} else {
			variant = base.Clone()
		}
		if whatIfStrategy != "" {
			variant.Sync.Strategy = whatIfStrategy
		}
		if whatIfVariantPath == "" && whatIfStrategy == "" {
			return fmt.Errorf("nothing to compare: provide --variant or --strategy")
		}
		if err := base.Validate(); err != nil {
			return fmt.Errorf("base config: %w", err)
		}
		if err := variant.Validate(); err != nil {
			return fmt.Errorf("variant config: %w", err)
		}

		log := logging.New(slog.LevelInfo)
		ctx := logging.NewContext(cmd.Context(), log)

		var writer sim.RecordWriter
		if !whatIfQuiet {
			writer = sim.NewJSONStdoutWriter()
		} else {
			writer = discardWriter{}
		}

		cmp, err := sim.RunWhatIf(ctx, base, variant, writer)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, report.RenderComparison(cmp))

		if whatIfXLSXFile != "" {
			data, err := report.BuildComparisonXLSX(cmp)
			if err != nil {
				return fmt.Errorf("xlsx export: %w", err)
			}
			if err := os.WriteFile(whatIfXLSXFile, data, 0o644); err != nil {
				return err
			}
			log.Info("comparison exported", "path", whatIfXLSXFile)
		}
		return nil
	},
}

// discardWriter drops tick records when only the final comparison matters.
type discardWriter struct{}

func (discardWriter) Write(telemetry.TickRecord) error { return nil }

func init() {
	whatIfCmd.Flags().StringVar(&whatIfConfigPath, "config", "config/simulation.yaml", "Path to base configuration YAML")
	whatIfCmd.Flags().StringVar(&whatIfSchemaPath, "schema", "schemas/twinsim.cue", "Path to CUE schema file")
	whatIfCmd.Flags().StringVar(&whatIfVariantPath, "variant", "", "Path to variant configuration YAML")
	whatIfCmd.Flags().StringVar(&whatIfStrategy, "strategy", "", "Variant sync strategy when no variant file is given")
	whatIfCmd.Flags().StringVar(&whatIfXLSXFile, "xlsx", "", "Path to export the comparison (XLSX)")
	whatIfCmd.Flags().BoolVar(&whatIfQuiet, "quiet", true, "Suppress per-tick output during the runs")
}
