package harden

import (
	"context"
	"fmt"
	"os"
)

// jailFilePerm matches fail2ban's own packaging for jail.local.
const jailFilePerm = 0o644

// fail2banStage installs fail2ban if needed and regenerates the SSH jail
// from the target port. The jail file is small and fully owned by this tool,
// so it is overwritten wholesale each run instead of patched.
func (h *Hardener) fail2banStage(ctx context.Context) StageResult {
	result := StageResult{Stage: "fail2ban"}

	if !h.runner.Available("fail2ban-client") {
		if !h.confirm.Confirm("fail2ban is not installed. Install it now?") {
			result.Outcome = OutcomeDeclined
			result.Detail = "fail2ban not installed; brute-force attempts will not be banned"
			return result
		}
		if err := installPackage(ctx, h.runner, "fail2ban"); err != nil {
			result.Outcome = OutcomeFailed
			result.Detail = err.Error()
			return result
		}
	}

	jail := h.renderJail()
	if err := os.WriteFile(h.policy.Fail2ban.JailPath, []byte(jail), jailFilePerm); err != nil {
		result.Outcome = OutcomeFailed
		result.Detail = fmt.Sprintf("failed to write %s: %v", h.policy.Fail2ban.JailPath, err)
		return result
	}

	enableService(ctx, h.runner, "fail2ban")
	if err := restartService(ctx, h.runner, "fail2ban"); err != nil {
		result.Outcome = OutcomeFailed
		result.Detail = fmt.Sprintf("jail written to %s but the service did not restart: %v", h.policy.Fail2ban.JailPath, err)
		return result
	}

	result.Outcome = OutcomeApplied
	result.Detail = fmt.Sprintf("sshd jail active on port %d (maxretry %d, bantime %ds)",
		h.cfg.SSHPortNew, h.policy.Fail2ban.MaxRetry, h.policy.Fail2ban.BanTime.Seconds())
	return result
}

// renderJail produces the complete jail.local content for the target SSH
// port.
func (h *Hardener) renderJail() string {
	f2b := h.policy.Fail2ban
	return fmt.Sprintf(`# Managed by clawguard. Regenerated on every hardening run; do not edit.
[sshd]
enabled = true
port = %d
maxretry = %d
findtime = %d
bantime = %d
`, h.cfg.SSHPortNew, f2b.MaxRetry, f2b.FindTime.Seconds(), f2b.BanTime.Seconds())
}
