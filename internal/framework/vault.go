// Package framework is a minimal vault host for one yield adapter.
//
// It calls the adapter hooks the way a tokenized-strategy framework would and
// keeps the accounting the adapters leave to it: deposited totals, profit and
// loss per report, and the shutdown flag. There are no shares or fees.
package framework

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/chain"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/idhash"
	"yield-adapter-lab/internal/observability"
	"yield-adapter-lab/internal/storage"
	"yield-adapter-lab/internal/strategy"
)

// Vault errors
var (
	ErrNonPositiveAmount  = errors.New("amount must be positive")
	ErrShutdown           = errors.New("strategy is shut down")
	ErrNotShutdown        = errors.New("strategy is not shut down")
	ErrInsufficientAssets = errors.New("withdraw exceeds total assets")
)

// Options configures a Vault.
type Options struct {
	Env     *chain.Env
	Adapter strategy.Adapter

	// Reports persists every successful report. Optional.
	Reports storage.HarvestReportStore

	// RunID groups reports. A random UUID is used when empty.
	RunID string

	// TrackTokens adds tokens to the reward deltas recorded per report on top
	// of the adapter's reward token set.
	TrackTokens []common.Address

	Logger *zap.Logger
}

// Vault hosts one adapter.
type Vault struct {
	env     *chain.Env
	adapter strategy.Adapter
	reports storage.HarvestReportStore
	runID   string
	track   []common.Address
	logger  *zap.Logger

	mu          sync.RWMutex
	shutdown    bool
	totalAssets *big.Int
	sequence    int
}

type vaultState struct {
	shutdown    bool
	totalAssets *big.Int
	sequence    int
}

// Compile-time interface checks.
var (
	_ strategy.Host  = (*Vault)(nil)
	_ chain.Stateful = (*Vault)(nil)
)

// New attaches a vault to the adapter and registers it with the environment.
func New(opts Options) (*Vault, error) {
	if opts.Env == nil {
		return nil, fmt.Errorf("framework: env is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("framework: adapter is required")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	v := &Vault{
		env:         opts.Env,
		adapter:     opts.Adapter,
		reports:     opts.Reports,
		runID:       opts.RunID,
		track:       append([]common.Address(nil), opts.TrackTokens...),
		logger:      opts.Logger.With(zap.String("adapter", opts.Adapter.Name())),
		totalAssets: new(big.Int),
	}
	opts.Adapter.Attach(v)
	opts.Env.Register(v)
	return v, nil
}

// Adapter returns the hosted adapter.
func (v *Vault) Adapter() strategy.Adapter { return v.adapter }

// RunID returns the run the vault's reports belong to.
func (v *Vault) RunID() string { return v.runID }

// IsShutdown reports whether Shutdown has been called.
func (v *Vault) IsShutdown() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.shutdown
}

// TotalAssets returns the accounted total: deposits, minus withdrawals, plus
// reported profit, minus reported loss.
func (v *Vault) TotalAssets() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.totalAssets)
}

// Reports returns the number of successful reports.
func (v *Vault) Reports() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sequence
}

// Deposit moves amount of asset from depositor to the adapter and deploys it.
func (v *Vault) Deposit(ctx context.Context, depositor common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	return v.env.Execute(ctx, func(ctx context.Context) error {
		if v.IsShutdown() {
			return ErrShutdown
		}
		a := v.adapter
		if err := v.env.Ledger().Transfer(a.Asset(), depositor, a.Address(), amount); err != nil {
			return err
		}
		if err := a.DeployFunds(ctx, amount); err != nil {
			return err
		}

		v.mu.Lock()
		v.totalAssets.Add(v.totalAssets, amount)
		v.mu.Unlock()
		return nil
	})
}

// WithdrawResult is the outcome of a withdrawal.
type WithdrawResult struct {
	Requested *big.Int
	Freed     *big.Int // asked of the yield source
	Withdrawn *big.Int // sent to the receiver
	Shortfall *big.Int // Requested - Withdrawn
}

// Withdraw frees what idle asset cannot cover and sends up to amount to
// receiver. A shortfall is realized by the withdrawer; the accounted total
// drops by the full requested amount.
func (v *Vault) Withdraw(ctx context.Context, receiver common.Address, amount *big.Int) (*WithdrawResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}

	var res *WithdrawResult
	err := v.env.Execute(ctx, func(ctx context.Context) error {
		if amount.Cmp(v.TotalAssets()) > 0 {
			return ErrInsufficientAssets
		}

		a := v.adapter
		idle, err := a.BalanceOfAsset(ctx)
		if err != nil {
			return err
		}

		freed := new(big.Int)
		if idle.Cmp(amount) < 0 {
			freed.Sub(amount, idle)
			if err := a.FreeFunds(ctx, freed); err != nil {
				return err
			}
		}

		held, err := a.BalanceOfAsset(ctx)
		if err != nil {
			return err
		}
		out := new(big.Int).Set(amount)
		if held.Cmp(out) < 0 {
			out.Set(held)
		}
		if out.Sign() > 0 {
			if err := v.env.Ledger().Transfer(a.Asset(), a.Address(), receiver, out); err != nil {
				return err
			}
		}

		v.mu.Lock()
		v.totalAssets.Sub(v.totalAssets, amount)
		v.mu.Unlock()

		res = &WithdrawResult{
			Requested: new(big.Int).Set(amount),
			Freed:     freed,
			Withdrawn: out,
			Shortfall: new(big.Int).Sub(amount, out),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Shortfall.Sign() > 0 {
		v.logger.Warn("withdraw shortfall",
			zap.String("requested", res.Requested.String()),
			zap.String("withdrawn", res.Withdrawn.String()),
		)
	}
	return res, nil
}

// Report runs HarvestAndReport as the keeper and records profit or loss
// against the previously accounted total.
func (v *Vault) Report(ctx context.Context, caller common.Address) (*domain.HarvestReport, error) {
	a := v.adapter
	if err := a.Roles().RequireKeeper(caller); err != nil {
		return nil, err
	}

	var report *domain.HarvestReport
	err := v.env.Execute(ctx, func(ctx context.Context) error {
		tokens := v.trackedTokens()
		before := v.balances(tokens)

		idle, err := a.BalanceOfAsset(ctx)
		if err != nil {
			return err
		}
		shutdown := v.IsShutdown()

		total, err := a.HarvestAndReport(ctx)
		if err != nil {
			return err
		}
		staked, err := a.BalanceOfStake(ctx)
		if err != nil {
			return err
		}

		v.mu.Lock()
		prev := new(big.Int).Set(v.totalAssets)
		v.totalAssets = new(big.Int).Set(total)
		v.sequence++
		seq := v.sequence
		v.mu.Unlock()

		profit, loss := new(big.Int), new(big.Int)
		switch total.Cmp(prev) {
		case 1:
			profit.Sub(total, prev)
		case -1:
			loss.Sub(prev, total)
		}

		deployed := new(big.Int)
		if !shutdown {
			deployed.Set(idle)
		}

		block := v.env.BlockNumber()
		report = &domain.HarvestReport{
			ReportID:     idhash.ComputeReportID(v.runID, a.Name(), block, seq),
			RunID:        v.runID,
			AdapterName:  a.Name(),
			AdapterKind:  a.Kind(),
			Sequence:     seq,
			BlockNumber:  block,
			Timestamp:    v.env.Timestamp(),
			IdleDeployed: deployed,
			Staked:       staked,
			TotalAssets:  new(big.Int).Set(total),
			PrevTotal:    prev,
			Profit:       profit,
			Loss:         loss,
			Rewards:      rewardDeltas(tokens, before, v.balances(tokens)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordHarvest(a.Name(), report.TotalAssets, report.Profit, report.Loss, report.Timestamp)
	v.logger.Info("harvest reported",
		zap.Int("sequence", report.Sequence),
		zap.Uint64("block", report.BlockNumber),
		zap.String("total_assets", report.TotalAssets.String()),
		zap.String("profit", report.Profit.String()),
		zap.String("loss", report.Loss.String()),
	)

	if v.reports != nil {
		if err := v.reports.Insert(ctx, report); err != nil {
			return report, fmt.Errorf("persist report %s: %w", report.ReportID, err)
		}
	}
	return report, nil
}

// Claim runs the adapter's keeper-gated claim as one transaction.
func (v *Vault) Claim(ctx context.Context, caller common.Address) error {
	return v.env.Execute(ctx, func(ctx context.Context) error {
		return v.adapter.ClaimRewardsAs(ctx, caller)
	})
}

// Shutdown stops deployment of new funds. Calling it again is a no-op.
func (v *Vault) Shutdown(ctx context.Context, caller common.Address) error {
	if err := v.adapter.Roles().RequireEmergencyAuthorized(caller); err != nil {
		return err
	}
	return v.env.Execute(ctx, func(context.Context) error {
		v.mu.Lock()
		v.shutdown = true
		v.mu.Unlock()
		v.logger.Info("strategy shut down", zap.String("caller", caller.Hex()))
		return nil
	})
}

// EmergencyWithdraw frees min(amount, staked) into idle after a shutdown.
func (v *Vault) EmergencyWithdraw(ctx context.Context, caller common.Address, amount *big.Int) error {
	if err := v.adapter.Roles().RequireEmergencyAuthorized(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNonPositiveAmount
	}
	return v.env.Execute(ctx, func(ctx context.Context) error {
		if !v.IsShutdown() {
			return ErrNotShutdown
		}
		return v.adapter.EmergencyWithdraw(ctx, amount)
	})
}

// Snapshot implements chain.Stateful.
func (v *Vault) Snapshot() any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return vaultState{
		shutdown:    v.shutdown,
		totalAssets: new(big.Int).Set(v.totalAssets),
		sequence:    v.sequence,
	}
}

// Restore implements chain.Stateful.
func (v *Vault) Restore(snapshot any) {
	s := snapshot.(vaultState)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shutdown = s.shutdown
	v.totalAssets = new(big.Int).Set(s.totalAssets)
	v.sequence = s.sequence
}

func (v *Vault) trackedTokens() []common.Address {
	tokens := append([]common.Address(nil), v.track...)
	for _, t := range v.adapter.RewardTokens() {
		if !containsAddress(tokens, t) {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func (v *Vault) balances(tokens []common.Address) []*big.Int {
	ledger := v.env.Ledger()
	out := make([]*big.Int, len(tokens))
	for i, t := range tokens {
		out[i] = ledger.BalanceOf(t, v.adapter.Address())
	}
	return out
}

// rewardDeltas returns the positive balance changes, in token order.
func rewardDeltas(tokens []common.Address, before, after []*big.Int) []domain.RewardAmount {
	var out []domain.RewardAmount
	for i, t := range tokens {
		d := new(big.Int).Sub(after[i], before[i])
		if d.Sign() > 0 {
			out = append(out, domain.RewardAmount{Token: t, Amount: d})
		}
	}
	return out
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
