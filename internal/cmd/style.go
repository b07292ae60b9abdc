package cmd

import "github.com/charmbracelet/lipgloss"

// Shared terminal styles for command output.
var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// approvalBadge renders an approval status with its conventional color.
func approvalBadge(status string) string {
	switch status {
	case "approved":
		return okStyle.Render(status)
	case "revoked":
		return failStyle.Render(status)
	default:
		return warnStyle.Render(status)
	}
}
