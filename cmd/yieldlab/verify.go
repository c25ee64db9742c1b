package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/verification"
)

var errDivergent = errors.New("stored run diverges from replay")

func newVerifyCmd() *cobra.Command {
	var (
		stores       storeFlags
		runID        string
		scenarioPath string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay a scenario and compare it with a stored run",
		Long: `verify re-executes --scenario in a fresh simulated chain and compares the
harvest reports and operations stored under --run-id with the replay.
Stored IDs and profit/loss accounting are checked as well. Any divergence
exits non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			sc, err := config.Load(scenarioPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, cleanup, err := createStores(ctx, &stores, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			return verifyRun(ctx, st, sc, runID, logger)
		},
	}

	stores.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "Stored run to verify")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario the run was produced from")
	_ = cmd.MarkFlagRequired("run-id")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

// verifyRun prints one line per divergent record and a summary.
func verifyRun(ctx context.Context, st *allStores, sc *config.Scenario, runID string, logger *zap.Logger) error {
	v := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		Reports:    st.reports,
		Operations: st.operations,
		Logger:     logger,
	})
	report, err := v.VerifyRun(ctx, sc, runID)
	if err != nil {
		return err
	}

	for _, r := range report.Results {
		if r.Match {
			continue
		}
		for _, d := range r.Divergences {
			fmt.Printf("  %s: %s stored=%v replayed=%v\n", r.Key, d.Field, d.Expected, d.Actual)
		}
	}
	fmt.Printf("  verify: %d/%d reports, %d/%d operations match\n",
		report.MatchedReports, report.TotalReports, report.MatchedOperations, report.TotalOperations)

	if !report.Match() {
		return errDivergent
	}
	return nil
}
