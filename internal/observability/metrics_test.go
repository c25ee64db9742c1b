package observability

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHarvest(t *testing.T) {
	total, _ := new(big.Int).SetString("2500000000000000000000", 10)
	RecordHarvest("metrics-test", total, big.NewInt(7), new(big.Int), 1_704_067_200)

	assert.Equal(t, 1.0, testutil.ToFloat64(DefaultMetrics.HarvestsTotal.WithLabelValues("metrics-test")))
	assert.InDelta(t, 2.5e21, testutil.ToFloat64(DefaultMetrics.ReportedTotalAssets.WithLabelValues("metrics-test")), 1e6)
	assert.Equal(t, 7.0, testutil.ToFloat64(DefaultMetrics.ReportedProfit.WithLabelValues("metrics-test")))
	assert.Equal(t, 0.0, testutil.ToFloat64(DefaultMetrics.ReportedLoss.WithLabelValues("metrics-test")))
}

func TestRecordOperation(t *testing.T) {
	RecordOperation("metrics-test", "DEPOSIT", "OK")
	RecordOperation("metrics-test", "DEPOSIT", "OK")
	RecordOperation("metrics-test", "DEPOSIT", "REVERTED")

	assert.Equal(t, 2.0, testutil.ToFloat64(DefaultMetrics.OperationsTotal.WithLabelValues("metrics-test", "DEPOSIT", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DefaultMetrics.OperationsTotal.WithLabelValues("metrics-test", "DEPOSIT", "REVERTED")))
}

func TestHandler(t *testing.T) {
	RecordKeeperHead(19_000_001)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "yield_adapter_lab_keeper_highest_block_seen"))
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, 0.0, toFloat(nil))
	assert.Equal(t, 42.0, toFloat(big.NewInt(42)))
}
