package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/harness"
	"yield-adapter-lab/internal/reporting"
)

func newSimulateCmd() *cobra.Command {
	var (
		stores    storeFlags
		outputDir string
		noReport  bool
		verify    bool
	)

	cmd := &cobra.Command{
		Use:   "simulate SCENARIO.yaml...",
		Short: "Run scenarios and write harvest reports",
		Long: `simulate executes every step of each scenario in a fresh simulated chain,
persists operations, harvest reports and stake snapshots, and writes a
Markdown report plus CSV exports per run into --output-dir.

A revert on a step without expect_revert fails the run; operations up to
that step are still persisted.

With --verify, each stored run is replayed and compared record by record.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, cleanup, err := createStores(ctx, &stores, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runner := harness.NewRunner(harness.RunnerOptions{
				Reports:    st.reports,
				Operations: st.operations,
				Snapshots:  st.snapshots,
				Logger:     logger,
			})

			var failed int
			for _, path := range args {
				if err := simulateOne(ctx, runner, st, path, outputDir, noReport, verify, logger); err != nil {
					logger.Error("scenario failed", zap.String("path", path), zap.Error(err))
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
			}
			return nil
		},
	}

	stores.register(cmd)
	cmd.Flags().StringVar(&outputDir, "output-dir", "output", "Output directory for reports")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "Skip writing report files")
	cmd.Flags().BoolVar(&verify, "verify", false, "Replay each run and compare it with the stored records")
	return cmd
}

func simulateOne(
	ctx context.Context,
	runner *harness.Runner,
	st *allStores,
	path, outputDir string,
	noReport, verify bool,
	logger *zap.Logger,
) error {
	sc, err := config.Load(path)
	if err != nil {
		return err
	}

	res, runErr := runner.Run(ctx, sc)
	if res == nil {
		return runErr
	}
	fmt.Printf("%s: run %s, %d operations (%d reverted), %d reports, final block %d\n",
		sc.Name, res.RunID, len(res.Operations), len(res.Reverted()), len(res.Reports), res.FinalBlock)

	if !noReport {
		if err := writeRunReport(ctx, st, sc, res.RunID, outputDir); err != nil {
			logger.Error("write report", zap.String("run_id", res.RunID), zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		}
	}
	if verify && runErr == nil {
		runErr = verifyRun(ctx, st, sc, res.RunID, logger)
	}
	return runErr
}

// writeRunReport renders one run into outputDir as <scenario>_<run>.md plus
// harvest and reverted-operation CSVs.
func writeRunReport(ctx context.Context, st *allStores, sc *config.Scenario, runID, outputDir string) error {
	gen := reporting.NewGenerator(st.reports, st.operations, reporting.LabelsFromScenario(sc))
	report, err := gen.Generate(ctx, runID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	base := filepath.Join(outputDir, fmt.Sprintf("%s_%s", sc.Name, shortID(runID)))
	files := map[string]string{
		base + ".md":           reporting.RenderMarkdown(report),
		base + "_harvests.csv": reporting.RenderCSV(report.Harvests),
		base + "_reverted.csv": reporting.RenderRevertedCSV(report.Reverted),
	}
	for name, content := range files {
		if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	fmt.Printf("  report: %s.md\n", base)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
