// Package reporting renders harvest history and reverted operations of a run
// as Markdown and CSV.
package reporting

import "time"

// Report represents the run report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	Scenario    string

	// Per-adapter totals, sorted by adapter name
	Adapters []AdapterSummary

	// Harvest history (sorted by block, adapter, sequence)
	Harvests []HarvestRow

	// Operations
	OperationCount int
	Reverted       []RevertedRow
}

// AdapterSummary aggregates the harvest history of one adapter.
type AdapterSummary struct {
	Name       string
	Kind       string
	Asset      string // asset symbol, or hex when unknown
	Harvests   int
	Operations int
	Reverted   int

	// Amounts are formatted in whole units of the asset.
	FirstTotal  string
	LastTotal   string
	TotalProfit string
	TotalLoss   string

	// Rewards is "SYM=amount;..." summed over every harvest, sorted by symbol.
	Rewards string
}

// HarvestRow represents one harvest report.
type HarvestRow struct {
	Adapter   string
	Sequence  int
	Block     uint64
	Timestamp int64 // unix seconds

	IdleDeployed string
	Staked       string
	TotalAssets  string
	PrevTotal    string
	Profit       string
	Loss         string
	Rewards      string
}

// RevertedRow represents one reverted operation.
type RevertedRow struct {
	Index   int
	Adapter string
	Op      string
	Caller  string
	Block   uint64
	Reason  string
}
