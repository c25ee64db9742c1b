package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/evm"
	"yield-adapter-lab/internal/harness"
	"yield-adapter-lab/internal/keeper"
)

func newKeeperCmd() *cobra.Command {
	var (
		stores        storeFlags
		scenarioPath  string
		setup         bool
		wsEndpoint    string
		interval      time.Duration
		blocksPerTick uint64
		harvestEvery  uint64
		claimEvery    uint64
		httpAddr      string
	)

	cmd := &cobra.Command{
		Use:   "keeper",
		Short: "Harvest scenario adapters on a block cadence",
		Long: `keeper builds the adapters of a scenario, optionally replays its steps to
reach a starting state, then calls report and claim on every adapter at a
fixed head cadence until interrupted.

Heads come from a simulated ticker that mines the scenario chain, or, with
--ws-endpoint, from a live newHeads subscription that advances the
scenario chain one block per live head.

/health, /status and /metrics are served on --http-addr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sc, err := config.Load(scenarioPath)
			if err != nil {
				return err
			}

			st, cleanup, err := createStores(ctx, &stores, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runID := "keeper-" + uuid.NewString()
			logger = logger.With(zap.String("run_id", runID), zap.String("scenario", sc.Name))

			world, err := harness.Build(ctx, sc, harness.BuildOptions{RunID: runID, Reports: st.reports, Logger: logger})
			if err != nil {
				return fmt.Errorf("build scenario %s: %w", sc.Name, err)
			}
			if setup {
				if err := world.Apply(ctx, sc); err != nil {
					return fmt.Errorf("apply scenario steps: %w", err)
				}
				logger.Info("scenario steps applied", zap.Uint64("block", world.Env.BlockNumber()))
			}

			var source keeper.HeadSource
			if wsEndpoint != "" {
				wsCfg := evm.DefaultWSConfig()
				wsCfg.Logger = logger
				ws, err := evm.NewWSClient(ctx, wsEndpoint, &wsCfg)
				if err != nil {
					return fmt.Errorf("connect websocket: %w", err)
				}
				defer ws.Close()
				source = keeper.NewFollowSource(world.Env, ws)
			} else {
				sim, err := keeper.NewSimulatedSource(world.Env, interval, blocksPerTick)
				if err != nil {
					return err
				}
				source = sim
			}

			var targets []keeper.Target
			for _, v := range world.Vaults() {
				a := v.Adapter()
				targets = append(targets, keeper.Target{Name: a.Name(), Vault: v, Caller: a.Roles().Keeper})
			}

			k := keeper.New(keeper.Options{
				Source:             source,
				Targets:            targets,
				HarvestEveryBlocks: harvestEvery,
				ClaimEveryBlocks:   claimEvery,
				Logger:             logger,
			})

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				err := k.Run(egCtx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			eg.Go(func() error {
				return keeper.Serve(egCtx, httpAddr, keeper.NewHandler(k), logger)
			})

			logger.Info("keeper started", zap.Int("targets", len(targets)), zap.String("http_addr", httpAddr))
			err = eg.Wait()

			s := k.Status()
			logger.Info("keeper stopped",
				zap.Uint64("heads", s.HeadsSeen),
				zap.Int("harvests", s.Harvests),
				zap.Int("claims", s.Claims),
				zap.Int("errors", s.Errors),
			)
			return err
		},
	}

	stores.register(cmd)
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario file describing the adapters")
	cmd.Flags().BoolVar(&setup, "setup", true, "Replay the scenario steps before starting")
	cmd.Flags().StringVar(&wsEndpoint, "ws-endpoint", os.Getenv("ETH_WS_URL"), "Live node websocket endpoint for block heads")
	cmd.Flags().DurationVar(&interval, "interval", 12*time.Second, "Simulated block interval")
	cmd.Flags().Uint64Var(&blocksPerTick, "blocks-per-tick", 1, "Blocks mined per simulated tick")
	cmd.Flags().Uint64Var(&harvestEvery, "harvest-every", 1, "Harvest every N heads (0 disables)")
	cmd.Flags().Uint64Var(&claimEvery, "claim-every", 0, "Claim rewards every N heads (0 disables)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":9090", "Status and metrics HTTP address")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}
