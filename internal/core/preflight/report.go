package preflight

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cluster2600/ALBATOR/internal/shared/types"
)

// FormatReport renders a summary as the human-readable report printed by the
// preflight and doctor commands.
func FormatReport(summary *types.PreflightSummary) string {
	var b strings.Builder
	b.WriteString("Albator preflight report\n")
	fmt.Fprintf(&b, "Root: %s\n", summary.RootDir)
	fmt.Fprintf(&b, "Require sudo: %t, require rules: %t\n", summary.RequireSudo, summary.RequireRules)
	b.WriteString("\n")
	for _, check := range summary.Checks {
		fmt.Fprintf(&b, "[%s] %s: %s\n", check.Status, check.Name, check.Message)
	}
	b.WriteString("\n")
	verdict := "PASS"
	if !summary.Passed {
		verdict = "FAIL"
	}
	fmt.Fprintf(&b, "Result: %s (required failures: %d, warnings: %d)\n",
		verdict, summary.FailedRequiredCount, summary.WarningCount)
	return b.String()
}

// ToJSON renders a summary as indented JSON for --json-output consumers.
func ToJSON(summary *types.PreflightSummary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode preflight summary: %w", err)
	}
	return string(data), nil
}
