package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders harvest history as CSV string.
func RenderCSV(rows []HarvestRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("adapter,sequence,block_number,timestamp,")
	sb.WriteString("idle_deployed,staked,total_assets,prev_total,profit,loss,rewards\n")

	// Rows
	for _, h := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%s,%s,%s,%s,%s,%s,%s\n",
			h.Adapter,
			h.Sequence,
			h.Block,
			h.Timestamp,
			h.IdleDeployed,
			h.Staked,
			h.TotalAssets,
			h.PrevTotal,
			h.Profit,
			h.Loss,
			h.Rewards,
		))
	}

	return sb.String()
}

// RenderRevertedCSV renders reverted operations as CSV string.
// Reasons are quoted with embedded quotes doubled.
func RenderRevertedCSV(rows []RevertedRow) string {
	var sb strings.Builder

	sb.WriteString("op_index,adapter,op,caller,block_number,revert_reason\n")
	for _, op := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%d,\"%s\"\n",
			op.Index,
			op.Adapter,
			op.Op,
			op.Caller,
			op.Block,
			strings.ReplaceAll(op.Reason, `"`, `""`),
		))
	}

	return sb.String()
}
