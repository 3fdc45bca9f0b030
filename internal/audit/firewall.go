package audit

import (
	"context"
	"fmt"
	"strings"

	"clawguard/internal/clawguard"
)

// checkFirewall distinguishes three states: not installed, installed but
// inactive, and installed and active.
func (a *Auditor) checkFirewall(ctx context.Context) clawguard.CheckResult {
	if !a.runner.Available("ufw") {
		return clawguard.CheckResult{
			Category:    clawguard.CategoryFirewall,
			Severity:    clawguard.SeverityHigh,
			Detail:      "ufw is not installed; no host firewall is managing inbound traffic",
			Remediation: "clawguard harden (firewall stage)",
		}
	}

	res := a.runner.RunArgs(ctx, "ufw", "status")
	output := strings.ToLower(res.Stdout + res.Stderr)
	switch {
	case strings.Contains(output, "status: active"):
		return clawguard.CheckResult{
			Category: clawguard.CategoryFirewall,
			Severity: clawguard.SeverityOK,
			Detail:   "ufw is installed and active",
		}
	case strings.Contains(output, "status: inactive"):
		return clawguard.CheckResult{
			Category:    clawguard.CategoryFirewall,
			Severity:    clawguard.SeverityHigh,
			Detail:      "ufw is installed but inactive; configured rules are not being enforced",
			Remediation: "clawguard harden (firewall stage)",
		}
	default:
		return clawguard.CheckResult{
			Category: clawguard.CategoryFirewall,
			Severity: clawguard.SeverityRecommended,
			Detail:   fmt.Sprintf("Could not determine ufw status (exit %d); run as root for firewall state", res.ExitCode),
		}
	}
}

// checkFail2ban verifies the intrusion-prevention service is present and has
// an active SSH jail.
func (a *Auditor) checkFail2ban(ctx context.Context) clawguard.CheckResult {
	if !a.runner.Available("fail2ban-client") {
		return clawguard.CheckResult{
			Category:    clawguard.CategoryFail2ban,
			Severity:    clawguard.SeverityRecommended,
			Detail:      "fail2ban is not installed; repeated auth failures are not being banned",
			Remediation: "clawguard harden (fail2ban stage)",
		}
	}

	res := a.runner.RunArgs(ctx, "fail2ban-client", "status", "sshd")
	if res.Ok() {
		return clawguard.CheckResult{
			Category: clawguard.CategoryFail2ban,
			Severity: clawguard.SeverityOK,
			Detail:   "fail2ban is installed with an active sshd jail",
		}
	}
	return clawguard.CheckResult{
		Category:    clawguard.CategoryFail2ban,
		Severity:    clawguard.SeverityHigh,
		Detail:      "fail2ban is installed but no sshd jail is active",
		Remediation: "clawguard harden (fail2ban stage)",
	}
}
