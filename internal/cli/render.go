// Package cli renders control-plane responses for the CLI wrapper
// (cmd/evoforgectl) in the teacher's terminal-styling idiom: bordered
// banners and colored status lines built with lipgloss rather than bare
// fmt.Println (the teacher reserves lipgloss for its TUI channel; this
// reuses the same library for the one piece of the chat client spec.md
// keeps in scope, the non-interactive run summary).
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("86")).
			Padding(0, 2)
)

// Banner renders the one-shot "run created" box printed when evoforgectl
// submits a mandate.
func Banner(runID, server string) string {
	body := fmt.Sprintf("%s\n%s %s\n%s %s",
		titleStyle.Render("EvoForge run started"),
		dimStyle.Render("run id:"), runID,
		dimStyle.Render("server:"), server,
	)
	return boxStyle.Render(body)
}

// IterationLine renders one iteration_started / phase_done / consensus_update
// line as it streams off the event feed.
func IterationLine(kind string, fields map[string]any) string {
	switch kind {
	case "iteration_started":
		return dimStyle.Render(fmt.Sprintf("── iteration %v ──", fields["iteration"]))
	case "phase_done":
		return fmt.Sprintf("  %s %v (%v)", dimStyle.Render("phase done:"), fields["phase"], fields["count"])
	case "consensus_update":
		return fmt.Sprintf("  %s %.2f", dimStyle.Render("consensus:"), fields["value"])
	case "agent_spawned":
		if skipped, _ := fields["skipped"].(bool); skipped {
			return "  " + warnStyle.Render(fmt.Sprintf("spawn skipped: %v (%v)", fields["capability"], fields["reason"]))
		}
		return "  " + okStyle.Render(fmt.Sprintf("agent spawned: %v (gen %v)", fields["id"], fields["generation"]))
	case "warning":
		return "  " + warnStyle.Render(fmt.Sprintf("warning: %v", fields["message"]))
	default:
		return dimStyle.Render(kind)
	}
}

// Outcome renders the final run_completed/run_failed line and returns the
// exit code it implies (spec §6: 0 normal, 2 oracle unavailable for a
// failed run, 1 otherwise).
func Outcome(kind string, fields map[string]any) (string, int) {
	switch kind {
	case "run_completed":
		reason, _ := fields["reason"].(string)
		return okStyle.Render(fmt.Sprintf("run completed: %s", reason)), 0
	case "run_failed":
		errMsg, _ := fields["error"].(string)
		code := 1
		if strings.Contains(strings.ToLower(errMsg), "oracle") {
			code = 2
		}
		return failStyle.Render(fmt.Sprintf("run failed: %s", errMsg)), code
	default:
		return dimStyle.Render(kind), 1
	}
}
