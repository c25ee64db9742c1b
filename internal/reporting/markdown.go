package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Harvest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.Scenario != "" {
		sb.WriteString(fmt.Sprintf("Scenario: %s | Run: %s\n\n", r.Scenario, r.RunID))
	} else {
		sb.WriteString(fmt.Sprintf("Run: %s\n\n", r.RunID))
	}
	sb.WriteString(fmt.Sprintf("Harvests: %d | Operations: %d | Reverted: %d\n\n",
		len(r.Harvests), r.OperationCount, len(r.Reverted)))

	// Adapters
	sb.WriteString("## Adapters\n\n")
	if len(r.Adapters) > 0 {
		sb.WriteString("| Adapter | Kind | Asset | Harvests | First Total | Last Total | Profit | Loss | Rewards | Ops | Reverted |\n")
		sb.WriteString("|---------|------|-------|----------|-------------|------------|--------|------|---------|-----|----------|\n")
		for _, a := range r.Adapters {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s | %s | %s | %s | %s | %d | %d |\n",
				a.Name, dash(a.Kind), dash(a.Asset), a.Harvests,
				a.FirstTotal, a.LastTotal, a.TotalProfit, a.TotalLoss,
				dash(a.Rewards), a.Operations, a.Reverted))
		}
	} else {
		sb.WriteString("No adapters available.\n")
	}
	sb.WriteString("\n")

	// Harvest history
	sb.WriteString("## Harvest History\n\n")
	if len(r.Harvests) > 0 {
		sb.WriteString("| Adapter | # | Block | Time | Idle Deployed | Staked | Total Assets | Prev Total | Profit | Loss | Rewards |\n")
		sb.WriteString("|---------|---|-------|------|---------------|--------|--------------|------------|--------|------|---------|\n")
		for _, h := range r.Harvests {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				h.Adapter, h.Sequence, h.Block,
				time.Unix(h.Timestamp, 0).UTC().Format(time.RFC3339),
				h.IdleDeployed, h.Staked, h.TotalAssets, h.PrevTotal,
				h.Profit, h.Loss, dash(h.Rewards)))
		}
	} else {
		sb.WriteString("No harvest reports available.\n")
	}
	sb.WriteString("\n")

	// Reverted operations
	sb.WriteString("## Reverted Operations\n\n")
	if len(r.Reverted) > 0 {
		sb.WriteString("| # | Adapter | Op | Caller | Block | Reason |\n")
		sb.WriteString("|---|---------|----|--------|-------|--------|\n")
		for _, op := range r.Reverted {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %d | %s |\n",
				op.Index, op.Adapter, op.Op, op.Caller, op.Block, escapeCell(op.Reason)))
		}
	} else {
		sb.WriteString("No reverted operations.\n")
	}

	return sb.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// escapeCell keeps a revert reason inside one table cell.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
