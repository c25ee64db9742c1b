package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/evm"
	"yield-adapter-lab/internal/evm/onchain"
)

// mainnetBooster is the Convex booster on Ethereum mainnet.
const mainnetBooster = "0xF403C135812408BFbE8713b5A23a04b3D48AAE31"

// inspectFlags are shared by the inspect subcommands.
type inspectFlags struct {
	rpcURL  string
	timeout time.Duration
	retries int
}

func newInspectCmd() *cobra.Command {
	f := &inspectFlags{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Verify live pool bindings against an asset",
		Long: `inspect resolves a Convex pool id or a Curve gauge on a live node with the
same binding checks the adapters run at construction. A mismatch between
the pool's LP token and --asset exits non-zero.`,
	}
	cmd.PersistentFlags().StringVar(&f.rpcURL, "rpc-url", os.Getenv("ETH_RPC_URL"), "JSON-RPC HTTP endpoint")
	cmd.PersistentFlags().DurationVar(&f.timeout, "timeout", evm.DefaultTimeout, "Per-request timeout")
	cmd.PersistentFlags().IntVar(&f.retries, "max-retries", evm.DefaultMaxRetries, "Retries per request")

	cmd.AddCommand(newInspectConvexCmd(f))
	cmd.AddCommand(newInspectCurveCmd(f))
	return cmd
}

// client connects to the node and logs the chain it reached.
func (f *inspectFlags) client(ctx context.Context) (*evm.HTTPClient, error) {
	if f.rpcURL == "" {
		return nil, fmt.Errorf("--rpc-url is required (or set ETH_RPC_URL)")
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	defer logger.Sync() //nolint:errcheck

	c := evm.NewHTTPClient(f.rpcURL, evm.WithTimeout(f.timeout), evm.WithMaxRetries(f.retries))
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	block, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	logger.Info("connected", zap.String("chain_id", chainID.String()), zap.Uint64("block", block))
	return c, nil
}

func newInspectConvexCmd(f *inspectFlags) *cobra.Command {
	var (
		booster string
		pid     uint64
		asset   string
	)

	cmd := &cobra.Command{
		Use:   "convex",
		Short: "Resolve a Convex pool id",
		RunE: func(cmd *cobra.Command, args []string) error {
			boosterAddr, err := parseAddress("booster", booster)
			if err != nil {
				return err
			}
			assetAddr, err := parseAddress("asset", asset)
			if err != nil {
				return err
			}

			c, err := f.client(cmd.Context())
			if err != nil {
				return err
			}
			pool, err := onchain.InspectConvex(cmd.Context(), c, boosterAddr, pid, assetAddr)
			if err != nil {
				return err
			}

			fmt.Printf("booster:         %s\n", pool.Binding.Booster.Hex())
			fmt.Printf("pool id:         %d of %d\n", pool.Binding.PoolID, pool.PoolLength)
			fmt.Printf("lp token:        %s\n", pool.Binding.LPToken.Hex())
			fmt.Printf("deposit token:   %s\n", pool.Info.Token.Hex())
			fmt.Printf("gauge:           %s\n", pool.Info.Gauge.Hex())
			fmt.Printf("rewards:         %s\n", pool.Binding.RewardsContract.Hex())
			fmt.Printf("reward token:    %s\n", pool.RewardToken.Hex())
			fmt.Printf("extra rewards:   %d\n", pool.ExtraRewards)
			fmt.Printf("shutdown:        %t\n", pool.Info.Shutdown)
			return nil
		},
	}
	cmd.Flags().StringVar(&booster, "booster", mainnetBooster, "Convex booster address")
	cmd.Flags().Uint64Var(&pid, "pid", 0, "Convex pool id")
	cmd.Flags().StringVar(&asset, "asset", "", "Expected LP token")
	_ = cmd.MarkFlagRequired("pid")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func newInspectCurveCmd(f *inspectFlags) *cobra.Command {
	var gauge, minter, asset string

	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Resolve a Curve liquidity gauge",
		RunE: func(cmd *cobra.Command, args []string) error {
			gaugeAddr, err := parseAddress("gauge", gauge)
			if err != nil {
				return err
			}
			minterAddr, err := parseAddress("minter", minter)
			if err != nil {
				return err
			}
			assetAddr, err := parseAddress("asset", asset)
			if err != nil {
				return err
			}

			c, err := f.client(cmd.Context())
			if err != nil {
				return err
			}
			g, err := onchain.InspectCurve(cmd.Context(), c, gaugeAddr, minterAddr, assetAddr)
			if err != nil {
				return err
			}

			fmt.Printf("gauge:           %s\n", g.Binding.Gauge.Hex())
			fmt.Printf("minter:          %s\n", g.Binding.Minter.Hex())
			fmt.Printf("lp token:        %s\n", g.Binding.LPToken.Hex())
			fmt.Printf("mint token:      %s\n", g.MintToken.Hex())
			fmt.Printf("reward tokens:   %d\n", len(g.RewardTokens))
			for _, t := range g.RewardTokens {
				fmt.Printf("  - %s\n", t.Hex())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gauge, "gauge", "", "Curve gauge address")
	cmd.Flags().StringVar(&minter, "minter", domain.CurveMinter.Hex(), "Curve minter address")
	cmd.Flags().StringVar(&asset, "asset", "", "Expected LP token")
	_ = cmd.MarkFlagRequired("gauge")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func parseAddress(flag, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", flag, value)
	}
	return common.HexToAddress(value), nil
}
