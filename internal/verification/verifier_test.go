package verification

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/harness"
	"yield-adapter-lab/internal/idhash"
	"yield-adapter-lab/internal/storage/memory"
)

var crv = common.HexToAddress("0xD533a949740bb3306d119CC777fa900bA034cd52")

func loadScenario(t *testing.T) *config.Scenario {
	t.Helper()
	sc, err := config.Load("../../scenarios/convex_steth.yaml")
	require.NoError(t, err)
	return sc
}

func storedRun(t *testing.T, sc *config.Scenario) (*harness.Result, *memory.HarvestReportStore, *memory.OperationStore) {
	t.Helper()
	reports := memory.NewHarvestReportStore()
	ops := memory.NewOperationStore()
	res, err := harness.NewRunner(harness.RunnerOptions{Reports: reports, Operations: ops}).Run(context.Background(), sc)
	require.NoError(t, err)
	return res, reports, ops
}

func sampleReport() *domain.HarvestReport {
	r := &domain.HarvestReport{
		RunID:        "run-1",
		AdapterName:  "convex-steth",
		AdapterKind:  domain.AdapterKindConvex,
		Sequence:     1,
		BlockNumber:  19_000_100,
		Timestamp:    1_704_068_400,
		IdleDeployed: big.NewInt(0),
		Staked:       big.NewInt(1_005),
		TotalAssets:  big.NewInt(1_005),
		PrevTotal:    big.NewInt(1_000),
		Profit:       big.NewInt(5),
		Loss:         big.NewInt(0),
		Rewards:      []domain.RewardAmount{{Token: crv, Amount: big.NewInt(7)}},
	}
	r.ReportID = idhash.ComputeReportID(r.RunID, r.AdapterName, r.BlockNumber, r.Sequence)
	return r
}

func TestCheckReport(t *testing.T) {
	r := sampleReport()
	assert.Empty(t, CheckReport(r))

	r.Profit = big.NewInt(6)
	d := CheckReport(r)
	require.Len(t, d, 1)
	assert.Equal(t, "ProfitLoss", d[0].Field)
	assert.Equal(t, "5", d[0].Expected)
	assert.Equal(t, "6", d[0].Actual)

	r = sampleReport()
	r.ReportID = "forged"
	d = CheckReport(r)
	require.Len(t, d, 1)
	assert.Equal(t, "ReportID", d[0].Field)
}

func TestCompareHarvestReports(t *testing.T) {
	stored, replayed := sampleReport(), sampleReport()
	replayed.RunID = "run-2"
	replayed.ReportID = "other"
	assert.Empty(t, CompareHarvestReports(stored, replayed), "run-scoped IDs are ignored")

	replayed.Staked = big.NewInt(1_004)
	replayed.Rewards = []domain.RewardAmount{{Token: crv, Amount: big.NewInt(3)}, {Token: crv, Amount: big.NewInt(3)}}
	d := CompareHarvestReports(stored, replayed)
	require.Len(t, d, 2)
	assert.Equal(t, "Staked", d[0].Field)
	assert.Equal(t, "Rewards", d[1].Field)
}

func TestCompareHarvestReports_RewardsSummedPerToken(t *testing.T) {
	stored, replayed := sampleReport(), sampleReport()
	replayed.Rewards = []domain.RewardAmount{
		{Token: crv, Amount: big.NewInt(3)},
		{Token: crv, Amount: big.NewInt(4)},
		{Token: common.HexToAddress("0x01"), Amount: big.NewInt(0)},
	}
	assert.Empty(t, CompareHarvestReports(stored, replayed))
}

func TestCompareOperations(t *testing.T) {
	token := crv
	stored := &domain.OperationRecord{Index: 3, AdapterName: "a", Op: domain.OpDeposit, Token: &token, Amount: big.NewInt(1), Status: domain.OpStatusOK}
	replayed := *stored
	replayed.Token = nil
	replayed.Amount = nil

	d := CompareOperations(stored, &replayed)
	require.Len(t, d, 2)
	assert.Equal(t, "Token", d[0].Field)
	assert.Equal(t, "<nil>", d[0].Actual)
	assert.Equal(t, "Amount", d[1].Field)
}

func TestCheckOperation(t *testing.T) {
	op := &domain.OperationRecord{RunID: "r", Index: 2, Status: domain.OpStatusReverted}
	op.OperationID = idhash.ComputeOperationID("r", 2)

	d := CheckOperation(op)
	require.Len(t, d, 1)
	assert.Equal(t, "RevertReason", d[0].Field)

	op.RevertReason = "!keeper"
	assert.Empty(t, CheckOperation(op))
}

func TestReplayVerifier_VerifyRun_Match(t *testing.T) {
	sc := loadScenario(t)
	res, reports, ops := storedRun(t, sc)

	v := NewReplayVerifier(ReplayVerifierOptions{Reports: reports, Operations: ops})
	report, err := v.VerifyRun(context.Background(), sc, res.RunID)
	require.NoError(t, err)

	assert.True(t, report.Match(), "%+v", report.Results)
	assert.Equal(t, res.RunID, report.RunID)
	assert.Equal(t, "convex-steth", report.Scenario)
	assert.Equal(t, 2, report.TotalReports)
	assert.Equal(t, 2, report.MatchedReports)
	assert.Equal(t, 10, report.TotalOperations)
	assert.Equal(t, 10, report.MatchedOperations)
}

func TestReplayVerifier_VerifyRun_Tampered(t *testing.T) {
	sc := loadScenario(t)
	res, _, _ := storedRun(t, sc)

	// Re-store the run with a forged profit on the first report.
	reports := memory.NewHarvestReportStore()
	for i, r := range res.Reports {
		c := *r
		if i == 0 {
			c.Profit = new(big.Int).Add(r.Profit, big.NewInt(1))
		}
		require.NoError(t, reports.Insert(context.Background(), &c))
	}

	v := NewReplayVerifier(ReplayVerifierOptions{Reports: reports})
	report, err := v.VerifyRun(context.Background(), sc, res.RunID)
	require.NoError(t, err)

	assert.False(t, report.Match())
	assert.Equal(t, 1, report.DivergentReports)
	assert.Equal(t, 0, report.TotalOperations, "operations are skipped without a store")

	var fields []string
	for _, r := range report.Results {
		for _, d := range r.Divergences {
			fields = append(fields, d.Field)
		}
	}
	assert.ElementsMatch(t, []string{"ProfitLoss", "Profit"}, fields)
}

func TestReplayVerifier_VerifyRun_UnexpectedReport(t *testing.T) {
	sc := loadScenario(t)
	res, _, _ := storedRun(t, sc)

	reports := memory.NewHarvestReportStore()
	require.NoError(t, reports.Insert(context.Background(), res.Reports[0]))

	v := NewReplayVerifier(ReplayVerifierOptions{Reports: reports})
	report, err := v.VerifyRun(context.Background(), sc, res.RunID)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalReports)
	assert.Equal(t, 1, report.DivergentReports)
	last := report.Results[len(report.Results)-1]
	assert.Equal(t, "report convex-steth#2", last.Key)
	assert.Equal(t, "Unexpected", last.Divergences[0].Field)
}

func TestReplayVerifier_Errors(t *testing.T) {
	sc := loadScenario(t)

	_, err := NewReplayVerifier(ReplayVerifierOptions{}).VerifyRun(context.Background(), sc, "x")
	assert.ErrorIs(t, err, ErrNoReportStore)

	v := NewReplayVerifier(ReplayVerifierOptions{
		Reports:    memory.NewHarvestReportStore(),
		Operations: memory.NewOperationStore(),
	})
	_, err = v.VerifyRun(context.Background(), sc, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
