package harness

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/chain"
	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/framework"
	"yield-adapter-lab/internal/protocol"
	"yield-adapter-lab/internal/protocol/stub"
	"yield-adapter-lab/internal/storage"
	"yield-adapter-lab/internal/strategy"
)

// World is a scenario's environment: the chain, the stub collaborators and
// one vault per adapter.
type World struct {
	Env      *chain.Env
	Registry *protocol.Registry

	Boosters       map[common.Address]*stub.Booster
	RewardPools    map[common.Address]*stub.RewardPool
	Gauges         map[common.Address]*stub.Gauge
	Minters        map[common.Address]*stub.Minter
	Auctions       map[common.Address]*stub.Auction
	TradeFactories map[common.Address]*stub.TradeFactory

	// CurveToken is the token the minters emit.
	CurveToken common.Address

	vaults map[string]*framework.Vault
	order  []string
}

// BuildOptions configures Build.
type BuildOptions struct {
	RunID   string
	Reports storage.HarvestReportStore
	Logger  *zap.Logger
}

// Build validates sc and creates the environment it describes.
func Build(ctx context.Context, sc *config.Scenario, opts BuildOptions) (*World, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", sc.Name, err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	env := chain.NewEnv(chain.EnvOptions{
		StartBlock:     sc.Chain.StartBlock,
		StartTimestamp: sc.Chain.StartTimestamp,
		BlockTime:      sc.Chain.BlockTime,
		Logger:         opts.Logger,
	})
	w := &World{
		Env:            env,
		Registry:       protocol.NewRegistry(),
		Boosters:       make(map[common.Address]*stub.Booster),
		RewardPools:    make(map[common.Address]*stub.RewardPool),
		Gauges:         make(map[common.Address]*stub.Gauge),
		Minters:        make(map[common.Address]*stub.Minter),
		Auctions:       make(map[common.Address]*stub.Auction),
		TradeFactories: make(map[common.Address]*stub.TradeFactory),
		vaults:         make(map[string]*framework.Vault),
	}

	if err := w.buildCollaborators(sc); err != nil {
		return nil, err
	}

	ledger := env.Ledger()
	for i, b := range sc.Balances {
		holder := validatedAddress(sc, b.Account)
		token := validatedAddress(sc, b.Token)
		amount, err := sc.Amount(b.Amount, token)
		if err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
		if err := ledger.Mint(token, holder, amount); err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
	}

	for _, spec := range sc.Adapters {
		if err := w.buildAdapter(ctx, sc, spec, opts); err != nil {
			return nil, fmt.Errorf("adapter %s: %w", spec.Name, err)
		}
	}
	return w, nil
}

func (w *World) buildCollaborators(sc *config.Scenario) error {
	env, reg := w.Env, w.Registry

	if c := sc.Convex; c != nil {
		boosterAddr := validatedAddress(sc, c.Booster)
		booster := stub.NewBooster(env, boosterAddr)
		w.Boosters[boosterAddr] = booster
		reg.BindBooster(boosterAddr, booster)

		for i, p := range c.Pools {
			rewardsAddr := validatedAddress(sc, p.Rewards)
			if _, dup := w.RewardPools[rewardsAddr]; dup {
				return fmt.Errorf("convex.pools[%d]: rewards contract %s reused", i, rewardsAddr.Hex())
			}
			extras, _ := sc.Addresses(p.ExtraRewards)
			pool := stub.NewRewardPool(env, rewardsAddr, validatedAddress(sc, p.RewardToken), extras...)

			var gauge common.Address
			if p.Gauge != "" {
				gauge = validatedAddress(sc, p.Gauge)
			}
			booster.AddPool(validatedAddress(sc, p.LPToken), validatedAddress(sc, p.DepositToken), gauge, pool)
			w.RewardPools[rewardsAddr] = pool
			reg.BindRewardPool(rewardsAddr, pool)
		}
	}

	if c := sc.Curve; c != nil {
		w.CurveToken = validatedAddress(sc, c.Token)
		minterAddr := validatedAddress(sc, c.Minter)
		minter := stub.NewMinter(env, minterAddr, w.CurveToken)
		w.Minters[minterAddr] = minter
		reg.BindMinter(minterAddr, minter)

		for _, g := range c.Gauges {
			addr := validatedAddress(sc, g.Address)
			gauge := stub.NewGauge(env, addr, validatedAddress(sc, g.LPToken))
			rewards, _ := sc.Addresses(g.RewardTokens)
			for _, token := range rewards {
				gauge.AddRewardToken(token)
			}
			minter.AddGauge(gauge)
			w.Gauges[addr] = gauge
			reg.BindGauge(addr, gauge)
		}
	}

	for _, a := range sc.Auctions {
		addr := validatedAddress(sc, a.Address)
		auction := stub.NewAuction(env, addr, validatedAddress(sc, a.Want))
		w.Auctions[addr] = auction
		reg.BindAuction(addr, auction)
	}

	for _, ref := range sc.TradeFactories {
		addr := validatedAddress(sc, ref)
		tf := stub.NewTradeFactory(env, addr)
		w.TradeFactories[addr] = tf
		reg.BindTradeFactory(addr, tf)
	}
	return nil
}

func (w *World) buildAdapter(ctx context.Context, sc *config.Scenario, spec config.AdapterSpec, opts BuildOptions) error {
	cfg := domain.AdapterConfig{
		Kind:           domain.AdapterKind(spec.Kind),
		Name:           spec.Name,
		Address:        validatedAddress(sc, spec.Address),
		Asset:          validatedAddress(sc, spec.Asset),
		PoolID:         spec.PoolID,
		Management:     validatedAddress(sc, spec.Management),
		EmergencyAdmin: optionalAddress(sc, spec.EmergencyAdmin),
		Keeper:         optionalAddress(sc, spec.Keeper),
		TradeFactory:   optionalAddress(sc, spec.TradeFactory),
		Auction:        optionalAddress(sc, spec.Auction),
	}
	switch cfg.Kind {
	case domain.AdapterKindConvex:
		cfg.Booster = optionalAddress(sc, spec.Booster)
		if cfg.Booster == (common.Address{}) && sc.Convex != nil {
			cfg.Booster = validatedAddress(sc, sc.Convex.Booster)
		}
	case domain.AdapterKindCurve:
		cfg.Gauge = validatedAddress(sc, spec.Gauge)
		cfg.Minter = optionalAddress(sc, spec.Minter)
		if cfg.Minter == (common.Address{}) && sc.Curve != nil {
			cfg.Minter = validatedAddress(sc, sc.Curve.Minter)
		}
	}

	sopts := strategy.Options{Env: w.Env, Registry: w.Registry, Logger: opts.Logger}
	var adapter strategy.Adapter
	err := w.Env.Execute(ctx, func(ctx context.Context) error {
		var err error
		adapter, err = strategy.FromConfig(ctx, sopts, cfg)
		return err
	})
	if err != nil {
		return err
	}

	track, _ := sc.Addresses(spec.TrackTokens)
	vault, err := framework.New(framework.Options{
		Env:         w.Env,
		Adapter:     adapter,
		Reports:     opts.Reports,
		RunID:       opts.RunID,
		TrackTokens: track,
		Logger:      opts.Logger,
	})
	if err != nil {
		return err
	}
	w.vaults[spec.Name] = vault
	w.order = append(w.order, spec.Name)
	return nil
}

// Vault returns the vault hosting the named adapter.
func (w *World) Vault(name string) (*framework.Vault, bool) {
	v, ok := w.vaults[name]
	return v, ok
}

// Vaults returns every vault in declaration order.
func (w *World) Vaults() []*framework.Vault {
	out := make([]*framework.Vault, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.vaults[name])
	}
	return out
}

// RewardPoolOf returns the reward pool a Convex adapter stakes into.
func (w *World) RewardPoolOf(a strategy.Adapter) (*stub.RewardPool, error) {
	cx, ok := a.(*strategy.ConvexAdapter)
	if !ok {
		return nil, fmt.Errorf("%s is not a convex adapter", a.Name())
	}
	pool, ok := w.RewardPools[cx.Binding().RewardsContract]
	if !ok {
		return nil, fmt.Errorf("no simulated reward pool for %s", a.Name())
	}
	return pool, nil
}

// GaugeOf returns the gauge a Curve adapter stakes into.
func (w *World) GaugeOf(a strategy.Adapter) (*stub.Gauge, error) {
	cv, ok := a.(*strategy.CurveAdapter)
	if !ok {
		return nil, fmt.Errorf("%s is not a curve adapter", a.Name())
	}
	gauge, ok := w.Gauges[cv.Binding().Gauge]
	if !ok {
		return nil, fmt.Errorf("no simulated gauge for %s", a.Name())
	}
	return gauge, nil
}

// validatedAddress resolves a reference of a scenario that passed Validate.
func validatedAddress(sc *config.Scenario, ref string) common.Address {
	addr, _ := sc.Address(ref)
	return addr
}

func optionalAddress(sc *config.Scenario, ref string) common.Address {
	if ref == "" {
		return common.Address{}
	}
	return validatedAddress(sc, ref)
}
