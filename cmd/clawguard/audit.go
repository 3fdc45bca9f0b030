package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"clawguard/internal/audit"
	"clawguard/internal/clawguard"
	"clawguard/internal/sysexec"
)

var (
	okStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	recommendedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	highStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	criticalStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	headerStyle      = lipgloss.NewStyle().Bold(true)
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run the read-only security audit",
	Long:  "Runs nine read-only exposure checks and prints a prioritized action list.\nNever modifies system state; safe to run unattended. Always exits 0.",
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, _ []string) error {
	pol, err := loadPolicy()
	if err != nil {
		return err
	}

	auditor := audit.New(sysexec.New(debugMode), pol)
	results := auditor.Run(cmd.Context())

	fmt.Println(headerStyle.Render("clawguard audit"))
	fmt.Println()
	for _, r := range results {
		fmt.Printf("%s  %-22s %s\n", severityStyle(r.Severity).Render(fmt.Sprintf("%-11s", r.Severity)), r.Category, r.Detail)
		if r.Remediation != "" && r.Severity > clawguard.SeverityOK {
			fmt.Printf("             %s\n", dimStyle.Render("fix: "+r.Remediation))
		}
	}

	actions := clawguard.ActionList(results)
	fmt.Println()
	if len(actions) == 0 {
		fmt.Println(okStyle.Render("No findings. Host exposure looks tight."))
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Action list (%d findings, worst first)", len(actions))))
	for i, a := range actions {
		fmt.Printf("%2d. %s %s - %s\n", i+1, severityStyle(a.Severity).Render(a.Severity.String()), a.Category, a.Detail)
	}

	// Findings are reported in output, not via exit code.
	return nil
}

func severityStyle(s clawguard.Severity) lipgloss.Style {
	switch s {
	case clawguard.SeverityCritical:
		return criticalStyle
	case clawguard.SeverityHigh:
		return highStyle
	case clawguard.SeverityRecommended:
		return recommendedStyle
	default:
		return okStyle
	}
}
