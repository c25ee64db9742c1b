package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/harness"
	"yield-adapter-lab/internal/storage"
)

var (
	// ErrRunNotFound is returned when no report or operation is stored for the run.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoReportStore is returned when the verifier has no report store.
	ErrNoReportStore = errors.New("report store is required")
)

// ReplayVerifier implements Verifier interface.
type ReplayVerifier struct {
	reports    storage.HarvestReportStore
	operations storage.OperationStore
	logger     *zap.Logger
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
// Operations is optional; without it only reports are verified.
type ReplayVerifierOptions struct {
	Reports    storage.HarvestReportStore
	Operations storage.OperationStore
	Logger     *zap.Logger
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ReplayVerifier{
		reports:    opts.Reports,
		operations: opts.Operations,
		logger:     opts.Logger,
	}
}

// VerifyRun verifies a stored run by replaying sc.
// Steps:
//  1. Load stored reports and operations of runID
//  2. Replay sc in a fresh world without persistence
//  3. Check every stored record on its own (IDs, accounting)
//  4. Compare stored and replayed records pairwise
//
// A replay that aborts is still compared up to where it stopped, since the
// stored run aborts at the same step.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, sc *config.Scenario, runID string) (*VerificationReport, error) {
	if v.reports == nil {
		return nil, ErrNoReportStore
	}

	// 1. Load stored run
	storedReports, err := v.reports.GetByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	var storedOps []*domain.OperationRecord
	if v.operations != nil {
		storedOps, err = v.operations.GetByRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("load operations: %w", err)
		}
	}
	if len(storedReports) == 0 && len(storedOps) == 0 {
		return nil, ErrRunNotFound
	}

	// 2. Replay
	replayed, replayErr := harness.NewRunner(harness.RunnerOptions{Logger: v.logger}).Run(ctx, sc)
	if replayed == nil {
		return nil, fmt.Errorf("replay: %w", replayErr)
	}
	if replayErr != nil {
		v.logger.Warn("replay aborted", zap.String("scenario", sc.Name), zap.Error(replayErr))
	}

	report := &VerificationReport{RunID: runID, Scenario: sc.Name}

	// 3-4. Reports
	replayedReports := make(map[string]*domain.HarvestReport, len(replayed.Reports))
	for _, r := range replayed.Reports {
		replayedReports[reportKey(r.AdapterName, r.Sequence)] = r
	}
	seen := make(map[string]bool, len(storedReports))
	for _, stored := range storedReports {
		key := reportKey(stored.AdapterName, stored.Sequence)
		seen[key] = true

		divergences := CheckReport(stored)
		if r, ok := replayedReports[key]; ok {
			divergences = append(divergences, CompareHarvestReports(stored, r)...)
		} else {
			divergences = append(divergences, FieldDivergence{Field: "Missing", Expected: key, Actual: nil})
		}
		report.addReport(key, divergences)
	}
	for _, key := range extraKeys(replayedReports, seen) {
		report.addReport(key, []FieldDivergence{{Field: "Unexpected", Expected: nil, Actual: key}})
	}

	// 3-4. Operations
	if v.operations != nil {
		replayedOps := make(map[string]*domain.OperationRecord, len(replayed.Operations))
		for _, op := range replayed.Operations {
			replayedOps[operationKey(op.Index)] = op
		}
		seen := make(map[string]bool, len(storedOps))
		for _, stored := range storedOps {
			key := operationKey(stored.Index)
			seen[key] = true

			divergences := CheckOperation(stored)
			if op, ok := replayedOps[key]; ok {
				divergences = append(divergences, CompareOperations(stored, op)...)
			} else {
				divergences = append(divergences, FieldDivergence{Field: "Missing", Expected: key, Actual: nil})
			}
			report.addOperation(key, divergences)
		}
		for _, key := range extraKeys(replayedOps, seen) {
			report.addOperation(key, []FieldDivergence{{Field: "Unexpected", Expected: nil, Actual: key}})
		}
	}

	v.logger.Info("run verified",
		zap.String("run_id", runID),
		zap.Bool("match", report.Match()),
		zap.Int("divergent_reports", report.DivergentReports),
		zap.Int("divergent_operations", report.DivergentOperations),
	)
	return report, nil
}

func (r *VerificationReport) addReport(key string, divergences []FieldDivergence) {
	r.TotalReports++
	if len(divergences) == 0 {
		r.MatchedReports++
	} else {
		r.DivergentReports++
	}
	r.Results = append(r.Results, VerificationResult{Key: key, Match: len(divergences) == 0, Divergences: divergences})
}

func (r *VerificationReport) addOperation(key string, divergences []FieldDivergence) {
	r.TotalOperations++
	if len(divergences) == 0 {
		r.MatchedOperations++
	} else {
		r.DivergentOperations++
	}
	r.Results = append(r.Results, VerificationResult{Key: key, Match: len(divergences) == 0, Divergences: divergences})
}

// extraKeys returns the replayed keys with no stored counterpart, sorted.
func extraKeys[T any](replayed map[string]T, seen map[string]bool) []string {
	var keys []string
	for k := range replayed {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
