package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/reporting"
)

func newReportCmd() *cobra.Command {
	var (
		stores       storeFlags
		runID        string
		scenarioPath string
		format       string
		output       string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a stored run",
		Long: `report reads the harvest reports and operations of --run-id from the
database and renders them as Markdown, harvest CSV or reverted-operation CSV.

Without --scenario, amounts are printed in base units and tokens as
addresses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			st, cleanup, err := createStores(ctx, &stores, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			var labels *reporting.Labels
			if scenarioPath != "" {
				sc, err := config.Load(scenarioPath)
				if err != nil {
					return err
				}
				labels = reporting.LabelsFromScenario(sc)
			}

			report, err := reporting.NewGenerator(st.reports, st.operations, labels).Generate(ctx, runID)
			if err != nil {
				return err
			}

			var content string
			switch format {
			case "markdown", "md":
				content = reporting.RenderMarkdown(report)
			case "csv":
				content = reporting.RenderCSV(report.Harvests)
			case "reverted-csv":
				content = reporting.RenderRevertedCSV(report.Reverted)
			default:
				return fmt.Errorf("unknown format %q (markdown, csv, reverted-csv)", format)
			}

			if output == "" || output == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), content)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			return os.WriteFile(output, []byte(content), 0o644)
		},
	}

	stores.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "Run ID (simulate prints it; keeper runs start with keeper-)")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario file for token symbols and decimals")
	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown, csv, reverted-csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
