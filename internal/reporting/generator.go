package reporting

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/storage"
)

// ErrNoReportStore is returned when the generator has no report store.
var ErrNoReportStore = errors.New("harvest report store is required")

// Generator produces reports from stored data.
type Generator struct {
	reportStore    storage.HarvestReportStore
	operationStore storage.OperationStore // optional
	labels         *Labels
	now            func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. operationStore and labels may be nil.
func NewGenerator(
	reportStore storage.HarvestReportStore,
	operationStore storage.OperationStore,
	labels *Labels,
) *Generator {
	return &Generator{
		reportStore:    reportStore,
		operationStore: operationStore,
		labels:         labels,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the report of one run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	if g.reportStore == nil {
		return nil, ErrNoReportStore
	}

	reports, err := g.reportStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load harvest reports: %w", err)
	}

	var ops []*domain.OperationRecord
	if g.operationStore != nil {
		if ops, err = g.operationStore.GetByRun(ctx, runID); err != nil {
			return nil, fmt.Errorf("load operations: %w", err)
		}
	}

	r := &Report{
		GeneratedAt:    g.now(),
		RunID:          runID,
		OperationCount: len(ops),
		Harvests:       g.harvestRows(reports),
		Reverted:       g.revertedRows(ops),
		Adapters:       g.adapterSummaries(reports, ops),
	}
	if g.labels != nil {
		r.Scenario = g.labels.Scenario
	}
	return r, nil
}

func (g *Generator) harvestRows(reports []*domain.HarvestReport) []HarvestRow {
	rows := make([]HarvestRow, 0, len(reports))
	for _, hr := range reports {
		rewards := make(map[common.Address]*big.Int, len(hr.Rewards))
		for _, rw := range hr.Rewards {
			addInto(rewards, rw.Token, rw.Amount)
		}
		rows = append(rows, HarvestRow{
			Adapter:      hr.AdapterName,
			Sequence:     hr.Sequence,
			Block:        hr.BlockNumber,
			Timestamp:    hr.Timestamp,
			IdleDeployed: g.labels.assetAmount(hr.AdapterName, hr.IdleDeployed),
			Staked:       g.labels.assetAmount(hr.AdapterName, hr.Staked),
			TotalAssets:  g.labels.assetAmount(hr.AdapterName, hr.TotalAssets),
			PrevTotal:    g.labels.assetAmount(hr.AdapterName, hr.PrevTotal),
			Profit:       g.labels.assetAmount(hr.AdapterName, hr.Profit),
			Loss:         g.labels.assetAmount(hr.AdapterName, hr.Loss),
			Rewards:      g.labels.rewards(rewards),
		})
	}
	return rows
}

func (g *Generator) revertedRows(ops []*domain.OperationRecord) []RevertedRow {
	var rows []RevertedRow
	for _, op := range ops {
		if !op.Reverted() {
			continue
		}
		rows = append(rows, RevertedRow{
			Index:   op.Index,
			Adapter: op.AdapterName,
			Op:      op.Op,
			Caller:  op.Caller.Hex(),
			Block:   op.BlockNumber,
			Reason:  op.RevertReason,
		})
	}
	return rows
}

// summaryAcc accumulates one adapter's totals in base units.
type summaryAcc struct {
	kind       string
	harvests   int
	operations int
	reverted   int
	first      *big.Int
	last       *big.Int
	profit     *big.Int
	loss       *big.Int
	rewards    map[common.Address]*big.Int
}

func (g *Generator) adapterSummaries(reports []*domain.HarvestReport, ops []*domain.OperationRecord) []AdapterSummary {
	accs := make(map[string]*summaryAcc)
	get := func(name string) *summaryAcc {
		acc, ok := accs[name]
		if !ok {
			acc = &summaryAcc{
				profit:  new(big.Int),
				loss:    new(big.Int),
				rewards: make(map[common.Address]*big.Int),
			}
			accs[name] = acc
		}
		return acc
	}

	// reports arrive in block order, so first and last follow it
	for _, hr := range reports {
		acc := get(hr.AdapterName)
		acc.kind = string(hr.AdapterKind)
		acc.harvests++
		if acc.first == nil {
			acc.first = hr.TotalAssets
		}
		acc.last = hr.TotalAssets
		if hr.Profit != nil {
			acc.profit.Add(acc.profit, hr.Profit)
		}
		if hr.Loss != nil {
			acc.loss.Add(acc.loss, hr.Loss)
		}
		for _, rw := range hr.Rewards {
			addInto(acc.rewards, rw.Token, rw.Amount)
		}
	}
	for _, op := range ops {
		acc := get(op.AdapterName)
		acc.operations++
		if op.Reverted() {
			acc.reverted++
		}
	}

	names := make([]string, 0, len(accs))
	for name := range accs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]AdapterSummary, 0, len(names))
	for _, name := range names {
		acc := accs[name]
		asset := ""
		if addr, ok := g.labels.Asset(name); ok {
			asset = g.labels.Symbol(addr)
		}
		out = append(out, AdapterSummary{
			Name:        name,
			Kind:        acc.kind,
			Asset:       asset,
			Harvests:    acc.harvests,
			Operations:  acc.operations,
			Reverted:    acc.reverted,
			FirstTotal:  g.labels.assetAmount(name, acc.first),
			LastTotal:   g.labels.assetAmount(name, acc.last),
			TotalProfit: g.labels.assetAmount(name, acc.profit),
			TotalLoss:   g.labels.assetAmount(name, acc.loss),
			Rewards:     g.labels.rewards(acc.rewards),
		})
	}
	return out
}

// addInto adds v to m[token]. Nil amounts are skipped.
func addInto(m map[common.Address]*big.Int, token common.Address, v *big.Int) {
	if v == nil {
		return
	}
	cur, ok := m[token]
	if !ok {
		cur = new(big.Int)
		m[token] = cur
	}
	cur.Add(cur, v)
}
