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
	sb.WriteString("# Reconciliation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: %s | Mode: %s\n\n", r.RunID, r.Mode))
	sb.WriteString(fmt.Sprintf("Fingerprint: `%s`\n\n", r.Fingerprint))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Transactions | %d |\n", r.Summary.Transactions))
	sb.WriteString(fmt.Sprintf("| Simple Transfers | %d |\n", r.Summary.Simple))
	sb.WriteString(fmt.Sprintf("| Complex Transfers | %d |\n", r.Summary.Complex))
	sb.WriteString(fmt.Sprintf("| Skipped | %d |\n", r.Summary.Skipped))
	sb.WriteString(fmt.Sprintf("| Balance Deltas | %d |\n", r.Summary.Deltas))
	sb.WriteString("\n")

	// Change types
	sb.WriteString("## Change Types\n\n")
	if len(r.ChangeTypes) > 0 {
		sb.WriteString("| Change Type | Count |\n")
		sb.WriteString("|-------------|-------|\n")
		for _, c := range r.ChangeTypes {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", c.ChangeType, c.Count))
		}
	} else {
		sb.WriteString("No balance deltas.\n")
	}
	sb.WriteString("\n")

	// Mints
	sb.WriteString("## Mints\n\n")
	if len(r.Mints) > 0 {
		sb.WriteString("| Mint | Accounts | Increases | Decreases | Net |\n")
		sb.WriteString("|------|----------|-----------|-----------|-----|\n")
		for _, m := range r.Mints {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
				m.Mint, m.Accounts, m.Increases, m.Decreases, m.Net))
		}
	} else {
		sb.WriteString("No mints touched.\n")
	}
	sb.WriteString("\n")

	// Owners
	sb.WriteString("## Owners\n\n")
	sb.WriteString("| Kind | Count |\n")
	sb.WriteString("|------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Wallet | %d |\n", r.OwnerKinds.Wallet))
	sb.WriteString(fmt.Sprintf("| Program Derived | %d |\n", r.OwnerKinds.ProgramDerived))
	sb.WriteString(fmt.Sprintf("| Unknown | %d |\n", r.OwnerKinds.Unknown))
	sb.WriteString("\n")

	return sb.String()
}
