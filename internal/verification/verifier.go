// Package verification checks stored runs against a deterministic replay of
// their scenario. Harvest reports are matched by (adapter, sequence) and
// operations by index; every field except the run-scoped IDs must agree.
package verification

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/idhash"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // stored value
	Actual   any    // replayed value
}

// VerificationResult contains the result of verifying one report or operation.
type VerificationResult struct {
	Key         string // "report <adapter>#<seq>" or "op <index>"
	Match       bool
	Divergences []FieldDivergence
}

// VerificationReport contains results for one run.
type VerificationReport struct {
	RunID    string
	Scenario string

	TotalReports     int
	MatchedReports   int
	DivergentReports int

	TotalOperations     int
	MatchedOperations   int
	DivergentOperations int

	Results []VerificationResult
}

// Match reports whether every report and operation matched.
func (r *VerificationReport) Match() bool {
	return r.DivergentReports == 0 && r.DivergentOperations == 0
}

// Verifier interface for run replay verification.
type Verifier interface {
	// VerifyRun loads the stored records of runID, re-executes sc and
	// compares both sides.
	VerifyRun(ctx context.Context, sc *config.Scenario, runID string) (*VerificationReport, error)
}

func reportKey(adapter string, seq int) string {
	return fmt.Sprintf("report %s#%d", adapter, seq)
}

func operationKey(index int) string {
	return fmt.Sprintf("op %d", index)
}

// CheckReport validates a stored report on its own: the ID must hash from
// its own fields and profit minus loss must equal the change in total.
func CheckReport(r *domain.HarvestReport) []FieldDivergence {
	var divergences []FieldDivergence

	if want := idhash.ComputeReportID(r.RunID, r.AdapterName, r.BlockNumber, r.Sequence); r.ReportID != want {
		divergences = append(divergences, FieldDivergence{Field: "ReportID", Expected: want, Actual: r.ReportID})
	}

	if r.TotalAssets != nil && r.PrevTotal != nil && r.Profit != nil && r.Loss != nil {
		delta := new(big.Int).Sub(r.TotalAssets, r.PrevTotal)
		net := new(big.Int).Sub(r.Profit, r.Loss)
		if delta.Cmp(net) != 0 {
			divergences = append(divergences, FieldDivergence{Field: "ProfitLoss", Expected: delta.String(), Actual: net.String()})
		}
		if r.Profit.Sign() > 0 && r.Loss.Sign() > 0 {
			divergences = append(divergences, FieldDivergence{Field: "ProfitAndLoss", Expected: "one of profit or loss", Actual: "both"})
		}
	}

	return divergences
}

// CompareHarvestReports compares two harvest reports and returns divergences.
// ReportID and RunID are run-scoped and not compared.
func CompareHarvestReports(stored, replayed *domain.HarvestReport) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.AdapterName != replayed.AdapterName {
		divergences = append(divergences, FieldDivergence{Field: "AdapterName", Expected: stored.AdapterName, Actual: replayed.AdapterName})
	}
	if stored.AdapterKind != replayed.AdapterKind {
		divergences = append(divergences, FieldDivergence{Field: "AdapterKind", Expected: stored.AdapterKind, Actual: replayed.AdapterKind})
	}
	if stored.Sequence != replayed.Sequence {
		divergences = append(divergences, FieldDivergence{Field: "Sequence", Expected: stored.Sequence, Actual: replayed.Sequence})
	}
	if stored.BlockNumber != replayed.BlockNumber {
		divergences = append(divergences, FieldDivergence{Field: "BlockNumber", Expected: stored.BlockNumber, Actual: replayed.BlockNumber})
	}
	if stored.Timestamp != replayed.Timestamp {
		divergences = append(divergences, FieldDivergence{Field: "Timestamp", Expected: stored.Timestamp, Actual: replayed.Timestamp})
	}

	amounts := []struct {
		field            string
		stored, replayed *big.Int
	}{
		{"IdleDeployed", stored.IdleDeployed, replayed.IdleDeployed},
		{"Staked", stored.Staked, replayed.Staked},
		{"TotalAssets", stored.TotalAssets, replayed.TotalAssets},
		{"PrevTotal", stored.PrevTotal, replayed.PrevTotal},
		{"Profit", stored.Profit, replayed.Profit},
		{"Loss", stored.Loss, replayed.Loss},
	}
	for _, a := range amounts {
		if !intEquals(a.stored, a.replayed) {
			divergences = append(divergences, FieldDivergence{Field: a.field, Expected: intString(a.stored), Actual: intString(a.replayed)})
		}
	}

	if want, got := rewardsByToken(stored.Rewards), rewardsByToken(replayed.Rewards); !rewardsEqual(want, got) {
		divergences = append(divergences, FieldDivergence{Field: "Rewards", Expected: want, Actual: got})
	}

	return divergences
}

// CheckOperation validates a stored operation on its own.
func CheckOperation(op *domain.OperationRecord) []FieldDivergence {
	var divergences []FieldDivergence

	if want := idhash.ComputeOperationID(op.RunID, op.Index); op.OperationID != want {
		divergences = append(divergences, FieldDivergence{Field: "OperationID", Expected: want, Actual: op.OperationID})
	}
	if op.Reverted() && op.RevertReason == "" {
		divergences = append(divergences, FieldDivergence{Field: "RevertReason", Expected: "non-empty", Actual: ""})
	}

	return divergences
}

// CompareOperations compares two operation records and returns divergences.
// OperationID and RunID are run-scoped and not compared.
func CompareOperations(stored, replayed *domain.OperationRecord) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.Index != replayed.Index {
		divergences = append(divergences, FieldDivergence{Field: "Index", Expected: stored.Index, Actual: replayed.Index})
	}
	if stored.AdapterName != replayed.AdapterName {
		divergences = append(divergences, FieldDivergence{Field: "AdapterName", Expected: stored.AdapterName, Actual: replayed.AdapterName})
	}
	if stored.Op != replayed.Op {
		divergences = append(divergences, FieldDivergence{Field: "Op", Expected: stored.Op, Actual: replayed.Op})
	}
	if stored.Caller != replayed.Caller {
		divergences = append(divergences, FieldDivergence{Field: "Caller", Expected: stored.Caller.Hex(), Actual: replayed.Caller.Hex()})
	}
	if !addressPtrEquals(stored.Token, replayed.Token) {
		divergences = append(divergences, FieldDivergence{Field: "Token", Expected: addressString(stored.Token), Actual: addressString(replayed.Token)})
	}
	if !intEquals(stored.Amount, replayed.Amount) {
		divergences = append(divergences, FieldDivergence{Field: "Amount", Expected: intString(stored.Amount), Actual: intString(replayed.Amount)})
	}
	if stored.BlockNumber != replayed.BlockNumber {
		divergences = append(divergences, FieldDivergence{Field: "BlockNumber", Expected: stored.BlockNumber, Actual: replayed.BlockNumber})
	}
	if stored.Status != replayed.Status {
		divergences = append(divergences, FieldDivergence{Field: "Status", Expected: stored.Status, Actual: replayed.Status})
	}
	if stored.RevertReason != replayed.RevertReason {
		divergences = append(divergences, FieldDivergence{Field: "RevertReason", Expected: stored.RevertReason, Actual: replayed.RevertReason})
	}

	return divergences
}

// intEquals treats nil and zero as different values.
func intEquals(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func intString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

func addressPtrEquals(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func addressString(a *common.Address) string {
	if a == nil {
		return "<nil>"
	}
	return a.Hex()
}

// rewardsByToken sums rewards per token, dropping zero totals.
func rewardsByToken(rewards []domain.RewardAmount) map[string]string {
	sums := make(map[common.Address]*big.Int)
	for _, r := range rewards {
		if r.Amount == nil {
			continue
		}
		sum, ok := sums[r.Token]
		if !ok {
			sum = new(big.Int)
			sums[r.Token] = sum
		}
		sum.Add(sum, r.Amount)
	}

	out := make(map[string]string, len(sums))
	for token, sum := range sums {
		if sum.Sign() != 0 {
			out[token.Hex()] = sum.String()
		}
	}
	return out
}

func rewardsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
