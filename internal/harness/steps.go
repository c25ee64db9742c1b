package harness

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/strategy"
)

var (
	// ErrNoAuctionSupport is returned for auction steps on adapters without an auction gate.
	ErrNoAuctionSupport = errors.New("adapter has no auction gate")

	// ErrInvalidStep is returned for steps that name an unknown adapter or address.
	ErrInvalidStep = errors.New("invalid step")
)

// outcome is the result of one step.
type outcome struct {
	op       *domain.OperationRecord // nil for steps that are not transactions
	report   *domain.HarvestReport
	err      error // revert
	storeErr error
	invalid  error // step cannot run in this world; never an expected revert
}

type executor struct {
	sc    *config.Scenario
	world *World
}

// execute runs one validated step.
func (ex *executor) execute(ctx context.Context, step config.Step) outcome {
	if step.Action == config.ActionMine {
		ex.world.Env.Mine(step.Blocks)
		return outcome{}
	}

	v, ok := ex.world.Vault(step.Adapter)
	if !ok {
		return outcome{invalid: fmt.Errorf("%w: unknown adapter %q", ErrInvalidStep, step.Adapter)}
	}
	if err := ex.checkRefs(step); err != nil {
		return outcome{invalid: err}
	}
	a := v.Adapter()
	roles := a.Roles()

	switch step.Action {
	case config.ActionDeposit:
		from := ex.addr(step.Account)
		amount := ex.amount(step.Amount, a.Asset())
		return ex.tx(ex.caller(step, from), domain.OpDeposit, nil, amount, func() error {
			return v.Deposit(ctx, from, amount)
		})

	case config.ActionWithdraw:
		to := ex.addr(step.Account)
		amount := ex.amount(step.Amount, a.Asset())
		return ex.tx(ex.caller(step, to), domain.OpWithdraw, nil, amount, func() error {
			_, err := v.Withdraw(ctx, to, amount)
			return err
		})

	case config.ActionAccrue:
		token := ex.addr(step.Token)
		return outcome{err: ex.accrue(a, token, ex.amount(step.Amount, token))}

	case config.ActionDonate:
		return outcome{err: ex.world.Env.Ledger().Mint(a.Asset(), a.Address(), ex.amount(step.Amount, a.Asset()))}

	case config.ActionHarvest:
		caller := ex.caller(step, firstSet(roles.Keeper, roles.Management))
		op := &domain.OperationRecord{Op: domain.OpHarvest, Caller: caller, BlockNumber: ex.world.Env.BlockNumber()}
		report, err := v.Report(ctx, caller)
		if report != nil {
			op.Amount = new(big.Int).Set(report.TotalAssets)
			return outcome{op: op, report: report, storeErr: err}
		}
		return outcome{op: op, err: err}

	case config.ActionClaim:
		caller := ex.caller(step, firstSet(roles.Keeper, roles.Management))
		return ex.tx(caller, domain.OpClaim, nil, nil, func() error {
			return v.Claim(ctx, caller)
		})

	case config.ActionKick:
		caller := ex.caller(step, firstSet(roles.Keeper, roles.Management))
		token := ex.addr(step.Token)
		op := &domain.OperationRecord{Op: domain.OpKick, Caller: caller, Token: &token, BlockNumber: ex.world.Env.BlockNumber()}
		auctioneer, ok := a.(strategy.Auctioneer)
		if !ok {
			return outcome{op: op, err: ErrNoAuctionSupport}
		}
		err := ex.world.Env.Execute(ctx, func(ctx context.Context) error {
			kicked, err := auctioneer.KickAuction(ctx, caller, token)
			op.Amount = kicked
			return err
		})
		if err != nil {
			op.Amount = nil
		}
		return outcome{op: op, err: err}

	case config.ActionSetMinAmount:
		caller := ex.caller(step, roles.Management)
		token := ex.addr(step.Token)
		amount := ex.amount(step.Amount, token)
		return ex.tx(caller, domain.OpSetMinAmount, &token, amount, func() error {
			auctioneer, ok := a.(strategy.Auctioneer)
			if !ok {
				return ErrNoAuctionSupport
			}
			return ex.world.Env.Execute(ctx, func(ctx context.Context) error {
				return auctioneer.SetMinAmountToSell(ctx, caller, token, amount)
			})
		})

	case config.ActionAddToken:
		caller := ex.caller(step, roles.Management)
		tokens := ex.tokens(step)
		var first *common.Address
		if len(tokens) == 1 {
			first = &tokens[0]
		}
		return ex.tx(caller, domain.OpAddToken, first, nil, func() error {
			return ex.world.Env.Execute(ctx, func(ctx context.Context) error {
				if len(tokens) == 1 {
					return a.AddToken(ctx, caller, tokens[0])
				}
				return a.AddTokens(ctx, caller, tokens)
			})
		})

	case config.ActionRemoveToken:
		caller := ex.caller(step, roles.Management)
		token := ex.addr(step.Token)
		return ex.tx(caller, domain.OpRemoveToken, &token, nil, func() error {
			return ex.world.Env.Execute(ctx, func(ctx context.Context) error {
				return a.RemoveToken(ctx, caller, token)
			})
		})

	case config.ActionSetTradeFactory:
		caller := ex.caller(step, roles.Management)
		target := ex.addr(step.Target)
		return ex.tx(caller, domain.OpSetTradeFactory, &target, nil, func() error {
			return ex.world.Env.Execute(ctx, func(ctx context.Context) error {
				return a.SetTradeFactory(ctx, caller, target)
			})
		})

	case config.ActionRemoveTradeFactoryPermissions:
		caller := ex.caller(step, firstSet(roles.EmergencyAdmin, roles.Management))
		return ex.tx(caller, domain.OpRemoveTFPerms, nil, nil, func() error {
			return ex.world.Env.Execute(ctx, func(ctx context.Context) error {
				return a.RemoveTradeFactoryPermissions(ctx, caller)
			})
		})

	case config.ActionSetAuction:
		caller := ex.caller(step, roles.Management)
		target := ex.addr(step.Target)
		return ex.tx(caller, domain.OpSetAuction, &target, nil, func() error {
			auctioneer, ok := a.(strategy.Auctioneer)
			if !ok {
				return ErrNoAuctionSupport
			}
			return ex.world.Env.Execute(ctx, func(ctx context.Context) error {
				return auctioneer.SetAuction(ctx, caller, target)
			})
		})

	case config.ActionShutdown:
		caller := ex.caller(step, firstSet(roles.EmergencyAdmin, roles.Management))
		return ex.tx(caller, domain.OpShutdown, nil, nil, func() error {
			return v.Shutdown(ctx, caller)
		})

	case config.ActionEmergencyWithdraw:
		caller := ex.caller(step, firstSet(roles.EmergencyAdmin, roles.Management))
		amount := ex.amount(step.Amount, a.Asset())
		return ex.tx(caller, domain.OpEmergencyWithdraw, nil, amount, func() error {
			return v.EmergencyWithdraw(ctx, caller, amount)
		})

	case config.ActionSetWithdrawLimit:
		var limit *big.Int
		if step.Amount != "" {
			limit = ex.amount(step.Amount, a.Asset())
		}
		return outcome{err: ex.setWithdrawLimit(a, limit)}
	}

	return outcome{err: fmt.Errorf("unsupported action %q", step.Action)}
}

// tx runs fn and wraps its result in an operation record.
func (ex *executor) tx(caller common.Address, op string, token *common.Address, amount *big.Int, fn func() error) outcome {
	rec := &domain.OperationRecord{
		Op:          op,
		Caller:      caller,
		Token:       token,
		Amount:      amount,
		BlockNumber: ex.world.Env.BlockNumber(),
	}
	return outcome{op: rec, err: fn()}
}

// accrue credits the adapter with reward in the collaborator it stakes into.
func (ex *executor) accrue(a strategy.Adapter, token common.Address, amount *big.Int) error {
	switch a.Kind() {
	case domain.AdapterKindConvex:
		pool, err := ex.world.RewardPoolOf(a)
		if err != nil {
			return err
		}
		return pool.Accrue(a.Address(), token, amount)
	case domain.AdapterKindCurve:
		gauge, err := ex.world.GaugeOf(a)
		if err != nil {
			return err
		}
		if token == ex.world.CurveToken {
			gauge.AccrueEmission(a.Address(), amount)
			return nil
		}
		return gauge.AccrueReward(a.Address(), token, amount)
	}
	return fmt.Errorf("unknown adapter kind %s", a.Kind())
}

func (ex *executor) setWithdrawLimit(a strategy.Adapter, limit *big.Int) error {
	switch a.Kind() {
	case domain.AdapterKindConvex:
		pool, err := ex.world.RewardPoolOf(a)
		if err != nil {
			return err
		}
		pool.SetWithdrawLimit(limit)
		return nil
	case domain.AdapterKindCurve:
		gauge, err := ex.world.GaugeOf(a)
		if err != nil {
			return err
		}
		gauge.SetWithdrawLimit(limit)
		return nil
	}
	return fmt.Errorf("unknown adapter kind %s", a.Kind())
}

func (ex *executor) caller(step config.Step, fallback common.Address) common.Address {
	if step.Caller != "" {
		return ex.addr(step.Caller)
	}
	return fallback
}

// addr resolves a reference already checked by checkRefs.
func (ex *executor) addr(ref string) common.Address {
	return validatedAddress(ex.sc, ref)
}

// checkRefs resolves every address reference of step.
func (ex *executor) checkRefs(step config.Step) error {
	refs := append([]string{step.Caller, step.Account, step.Token, step.Target}, step.Tokens...)
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, err := ex.sc.Address(ref); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStep, err)
		}
	}
	return nil
}

// amount parses a validated amount.
func (ex *executor) amount(value string, token common.Address) *big.Int {
	v, err := ex.sc.Amount(value, token)
	if err != nil {
		return new(big.Int)
	}
	return v
}

func (ex *executor) tokens(step config.Step) []common.Address {
	var out []common.Address
	if step.Token != "" {
		out = append(out, ex.addr(step.Token))
	}
	for _, ref := range step.Tokens {
		out = append(out, ex.addr(ref))
	}
	return out
}

// firstSet returns the first non-zero address.
func firstSet(addrs ...common.Address) common.Address {
	for _, a := range addrs {
		if a != (common.Address{}) {
			return a
		}
	}
	return common.Address{}
}

// Apply executes the steps of sc against w without recording them. Used to
// bring a world into a starting state before handing it to a keeper.
func (w *World) Apply(ctx context.Context, sc *config.Scenario) error {
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid scenario %s: %w", sc.Name, err)
	}
	ex := &executor{sc: sc, world: w}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stepError(i, step, ex.execute(ctx, step)); err != nil {
			return err
		}
	}
	return nil
}
