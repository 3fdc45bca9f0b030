package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"clawguard/internal/harden"
	"clawguard/internal/policy"
	"clawguard/internal/prompt"
	"clawguard/internal/sysexec"
)

// defaultSSHPort is used when SSH_PORT is not set.
const defaultSSHPort = 2222

var hardenCmd = &cobra.Command{
	Use:   "harden",
	Short: "Apply firewall, SSH, fail2ban and overlay hardening",
	Long: "Runs four remediation stages in order: firewall, SSH, fail2ban, overlay.\n" +
		"Every risky step is gated behind an explicit yes/no prompt and each stage\n" +
		"can be declined independently. The new SSH port comes from SSH_PORT\n" +
		"(default 2222). Must be run as root.",
	RunE: runHarden,
}

func runHarden(cmd *cobra.Command, _ []string) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("harden must run with elevated privileges (try: sudo clawguard harden)")
	}

	pol, err := loadPolicy()
	if err != nil {
		return err
	}

	newPort := defaultSSHPort
	if raw := os.Getenv("SSH_PORT"); raw != "" {
		newPort, err = strconv.Atoi(raw)
		if err != nil || newPort < 1 || newPort > 65535 {
			return fmt.Errorf("invalid SSH_PORT %q: must be a port number between 1 and 65535", raw)
		}
	}

	cfg := harden.Config{
		SSHPortOld:         harden.CurrentSSHPort(pol.SSH.ConfigPath),
		SSHPortNew:         newPort,
		SSHConfigPath:      pol.SSH.ConfigPath,
		AuthorizedKeysPath: filepath.Join(policy.OperatorHome(), ".ssh", "authorized_keys"),
	}

	fmt.Println(headerStyle.Render("clawguard harden"))
	fmt.Printf("Current SSH port: %d -> target port: %d\n\n", cfg.SSHPortOld, cfg.SSHPortNew)

	h := harden.New(cfg, pol, sysexec.New(debugMode), prompt.NewTerminal())
	results := h.Run(cmd.Context())

	fmt.Println()
	fmt.Println(headerStyle.Render("Summary"))
	for _, r := range results {
		fmt.Printf("%s  %-10s %s\n", outcomeStyle(r).Render(fmt.Sprintf("%-9s", string(r.Outcome))), r.Stage, r.Detail)
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Next steps"))
	fmt.Printf("  1. From a SECOND terminal, verify SSH on the new port: ssh -p %d <user>@<host>\n", cfg.SSHPortNew)
	fmt.Printf("  2. Only after that works, remove the old port rule: ufw delete allow %d/tcp\n", cfg.SSHPortOld)
	fmt.Println("  3. Re-run `clawguard audit` to confirm the new posture.")

	// Declined stages are skips, not failures; exit 0 regardless.
	return nil
}

func outcomeStyle(r harden.StageResult) lipgloss.Style {
	switch r.Outcome {
	case harden.OutcomeApplied:
		return okStyle
	case harden.OutcomeFailed:
		return criticalStyle
	case harden.OutcomeDeclined:
		return recommendedStyle
	default:
		return dimStyle
	}
}
