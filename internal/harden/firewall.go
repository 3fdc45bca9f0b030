package harden

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// RuleSet returns the ports the firewall stage will allow before enabling.
// The currently active SSH port always comes first: whatever else this run
// changes, the operator's existing session path stays open. This is the
// anti-lockout invariant and it must hold at the moment ufw is enabled.
func (h *Hardener) RuleSet() []int {
	ports := []int{h.cfg.SSHPortOld}
	seen := map[int]bool{h.cfg.SSHPortOld: true}
	for _, p := range append([]int{h.cfg.SSHPortNew}, h.policy.FirewallExtraPorts...) {
		if p > 0 && !seen[p] {
			ports = append(ports, p)
			seen[p] = true
		}
	}
	return ports
}

// firewallStage installs ufw if needed, stages the allow rules, and enables
// default-deny-incoming behind the confirmation gate.
func (h *Hardener) firewallStage(ctx context.Context) StageResult {
	result := StageResult{Stage: "firewall"}

	if !h.runner.Available("ufw") {
		if !h.confirm.Confirm("ufw is not installed. Install it now?") {
			result.Outcome = OutcomeDeclined
			result.Detail = "ufw not installed; firewall left unconfigured"
			return result
		}
		if err := installPackage(ctx, h.runner, "ufw"); err != nil {
			result.Outcome = OutcomeFailed
			result.Detail = err.Error()
			return result
		}
	}

	rules := h.RuleSet()
	var ruleDesc []string
	for _, port := range rules {
		ruleDesc = append(ruleDesc, fmt.Sprintf("allow %d/tcp", port))
	}
	question := fmt.Sprintf(
		"Enable ufw with default deny incoming / allow outgoing and rules: %s. "+
			"Port %d (your current SSH port) stays open. Proceed?",
		strings.Join(ruleDesc, ", "), h.cfg.SSHPortOld)
	if !h.confirm.Confirm(question) {
		result.Outcome = OutcomeDeclined
		result.Detail = fmt.Sprintf("rules staged but not enabled (%s)", strings.Join(ruleDesc, ", "))
		return result
	}

	// Allow rules go in before the default-deny flip and before enable, so
	// there is no window where the current SSH port is blocked.
	commands := [][]string{
		{"ufw", "default", "deny", "incoming"},
		{"ufw", "default", "allow", "outgoing"},
	}
	for _, port := range rules {
		commands = append(commands, []string{"ufw", "allow", fmt.Sprintf("%d/tcp", port)})
	}
	commands = append(commands, []string{"ufw", "--force", "enable"})

	for _, cmd := range commands {
		res := h.runner.RunArgs(ctx, cmd[0], cmd[1:]...)
		if !res.Ok() {
			result.Outcome = OutcomeFailed
			result.Detail = fmt.Sprintf("%s failed (exit %d): %s", strings.Join(cmd, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
			return result
		}
	}

	if status := h.runner.RunArgs(ctx, "ufw", "status", "verbose"); status.Ok() {
		log.Printf("[INFO] Firewall status:\n%s", strings.TrimSpace(status.Stdout))
	}

	result.Outcome = OutcomeApplied
	result.Detail = fmt.Sprintf("ufw enabled, default deny incoming, %s", strings.Join(ruleDesc, ", "))
	return result
}
