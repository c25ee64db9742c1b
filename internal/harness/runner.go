// Package harness runs YAML scenarios against the adapters in a simulated
// chain and records what happened.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/idhash"
	"yield-adapter-lab/internal/observability"
	"yield-adapter-lab/internal/storage"
)

// Runner errors
var (
	ErrUnexpectedRevert = errors.New("unexpected revert")
	ErrMissingRevert    = errors.New("expected revert did not happen")
)

// RunnerOptions contains configuration for creating a Runner.
// Every store is optional.
type RunnerOptions struct {
	Reports    storage.HarvestReportStore
	Operations storage.OperationStore
	Snapshots  storage.StakeSnapshotStore
	Logger     *zap.Logger
}

// Runner executes scenarios.
type Runner struct {
	reports    storage.HarvestReportStore
	operations storage.OperationStore
	snapshots  storage.StakeSnapshotStore
	logger     *zap.Logger
}

// NewRunner creates a scenario runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{
		reports:    opts.Reports,
		operations: opts.Operations,
		snapshots:  opts.Snapshots,
		logger:     opts.Logger,
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID      string
	Scenario   string
	Reports    []*domain.HarvestReport
	Operations []*domain.OperationRecord
	Snapshots  []*domain.StakeSnapshot
	FinalBlock uint64
}

// Reverted returns the reverted operations.
func (r *Result) Reverted() []*domain.OperationRecord {
	var out []*domain.OperationRecord
	for _, op := range r.Operations {
		if op.Reverted() {
			out = append(out, op)
		}
	}
	return out
}

// Run executes every step of sc in order.
// Steps:
//  1. Build the world (env, stub collaborators, adapters, vaults)
//  2. Execute each step as one transaction and record it
//  3. Snapshot staked and idle balances after each step
//  4. Persist operations and snapshots
//
// A revert on a step without expect_revert aborts the run; whatever was
// recorded up to that step is still persisted and returned.
func (r *Runner) Run(ctx context.Context, sc *config.Scenario) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID), zap.String("scenario", sc.Name))

	world, err := Build(ctx, sc, BuildOptions{RunID: runID, Reports: r.reports, Logger: logger})
	if err != nil {
		observability.RecordSimulationRun("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("build scenario %s: %w", sc.Name, err)
	}

	rec := &recorder{runID: runID, snapshots: make(map[snapshotKey]*domain.StakeSnapshot)}
	ex := &executor{sc: sc, world: world}

	var runErr error
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		out := ex.execute(ctx, step)
		if out.op != nil {
			rec.operation(step, out)
		}
		if out.report != nil {
			rec.reports = append(rec.reports, out.report)
		}
		if err := rec.snapshot(ctx, world); err != nil {
			runErr = fmt.Errorf("step %d: snapshot: %w", i, err)
			break
		}

		if runErr = stepError(i, step, out); runErr != nil {
			break
		}

		logger.Debug("step done",
			zap.Int("step", i),
			zap.String("action", step.Action),
			zap.Bool("reverted", out.err != nil),
		)
	}

	result := &Result{
		RunID:      runID,
		Scenario:   sc.Name,
		Reports:    rec.reports,
		Operations: rec.operations,
		Snapshots:  rec.sortedSnapshots(),
		FinalBlock: world.Env.BlockNumber(),
	}

	if err := r.persist(ctx, result); err != nil && runErr == nil {
		runErr = err
	}

	status := "ok"
	if runErr != nil {
		status = "failed"
	}
	observability.RecordSimulationRun(status, time.Since(start).Seconds())
	logger.Info("scenario finished",
		zap.String("status", status),
		zap.Int("operations", len(result.Operations)),
		zap.Int("reverted", len(result.Reverted())),
		zap.Int("reports", len(result.Reports)),
		zap.Uint64("final_block", result.FinalBlock),
	)

	return result, runErr
}

// stepError classifies a step outcome against its expect_revert flag.
func stepError(i int, step config.Step, out outcome) error {
	switch {
	case out.invalid != nil:
		return fmt.Errorf("step %d (%s): %w", i, step.Action, out.invalid)
	case out.storeErr != nil:
		return fmt.Errorf("step %d (%s): %w", i, step.Action, out.storeErr)
	case out.err != nil && !step.ExpectRevert:
		return fmt.Errorf("step %d (%s): %w: %w", i, step.Action, ErrUnexpectedRevert, out.err)
	case out.err == nil && step.ExpectRevert:
		return fmt.Errorf("step %d (%s): %w", i, step.Action, ErrMissingRevert)
	}
	return nil
}

func (r *Runner) persist(ctx context.Context, res *Result) error {
	for _, op := range res.Operations {
		observability.RecordOperation(op.AdapterName, op.Op, op.Status)
	}

	if r.operations != nil {
		if err := r.operations.InsertBulk(ctx, res.Operations); err != nil {
			return fmt.Errorf("persist operations: %w", err)
		}
	}
	if r.snapshots != nil {
		if err := r.snapshots.InsertBulk(ctx, res.Snapshots); err != nil {
			return fmt.Errorf("persist snapshots: %w", err)
		}
	}
	return nil
}

type snapshotKey struct {
	adapter string
	block   uint64
}

// recorder accumulates the run's operations, reports and snapshots.
type recorder struct {
	runID      string
	operations []*domain.OperationRecord
	reports    []*domain.HarvestReport
	snapshots  map[snapshotKey]*domain.StakeSnapshot
}

func (rec *recorder) operation(step config.Step, out outcome) {
	op := out.op
	op.Index = len(rec.operations)
	op.RunID = rec.runID
	op.OperationID = idhash.ComputeOperationID(rec.runID, op.Index)
	op.AdapterName = step.Adapter
	op.Status = domain.OpStatusOK
	if out.err != nil {
		op.Status = domain.OpStatusReverted
		op.RevertReason = out.err.Error()
	}
	rec.operations = append(rec.operations, op)
}

// snapshot records every adapter's balances at the current block. Later steps
// in the same block replace earlier snapshots.
func (rec *recorder) snapshot(ctx context.Context, w *World) error {
	block := w.Env.BlockNumber()
	for _, v := range w.Vaults() {
		a := v.Adapter()
		staked, err := a.BalanceOfStake(ctx)
		if err != nil {
			return err
		}
		idle, err := a.BalanceOfAsset(ctx)
		if err != nil {
			return err
		}
		rec.snapshots[snapshotKey{a.Name(), block}] = &domain.StakeSnapshot{
			RunID:       rec.runID,
			AdapterName: a.Name(),
			BlockNumber: block,
			Timestamp:   w.Env.Timestamp(),
			Staked:      staked,
			Idle:        idle,
		}
	}
	return nil
}

func (rec *recorder) sortedSnapshots() []*domain.StakeSnapshot {
	out := make([]*domain.StakeSnapshot, 0, len(rec.snapshots))
	for _, s := range rec.snapshots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].AdapterName < out[j].AdapterName
	})
	return out
}
