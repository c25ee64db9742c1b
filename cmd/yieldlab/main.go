// Package main provides the yieldlab CLI:
// - simulate: run scenarios against the adapters and write reports
// - keeper: drive periodic harvests from simulated or live block heads
// - inspect: verify a Convex pid or Curve gauge against a live node
// - report: render a stored run
// - verify: replay a scenario against a stored run
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var debug bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "yieldlab",
		Short: "Convex and Curve yield adapter lab",
		Long: `yieldlab runs Convex and Curve yield adapters in a simulated chain,
keeps them harvested on a block cadence, and checks live pool bindings
through a JSON-RPC node.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")

	root.AddCommand(newSimulateCmd())
	root.AddCommand(newKeeperCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

func main() {
	// Load .env file if exists. Must run before flags read their env defaults.
	loadEnvFile()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds a production logger, or a development one with --debug.
func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
