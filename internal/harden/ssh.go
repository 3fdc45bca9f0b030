package harden

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"clawguard/internal/confedit"
)

// sshStage hardens the SSH daemon config: new port, key-only auth, no root
// login. The config is backed up before any edit, validated with sshd -t
// after, and restored verbatim if validation fails. The daemon restart is
// gated, and the stage refuses to disable password auth when no authorized
// key exists for the operator.
func (h *Hardener) sshStage(ctx context.Context) StageResult {
	result := StageResult{Stage: "ssh"}

	// Precondition: without a public key, disabling password auth locks
	// the operator out on next connect.
	info, err := os.Stat(h.cfg.AuthorizedKeysPath)
	if err != nil || info.Size() == 0 {
		result.Outcome = OutcomeFailed
		result.Detail = fmt.Sprintf(
			"no SSH public key found at %s - install one first (from your workstation: "+
				"ssh-copy-id -p %d <user>@<host>), then re-run; password auth was NOT disabled",
			h.cfg.AuthorizedKeysPath, h.cfg.SSHPortOld)
		return result
	}

	backupPath, err := h.backups.Backup(h.cfg.SSHConfigPath)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Detail = fmt.Sprintf("refusing to edit %s without a backup: %v", h.cfg.SSHConfigPath, err)
		return result
	}

	changed, err := h.applyDirectives()
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Detail = err.Error()
		h.restoreConfig(backupPath)
		return result
	}

	if err := h.validateConfig(ctx); err != nil {
		h.restoreConfig(backupPath)
		result.Outcome = OutcomeFailed
		result.Detail = fmt.Sprintf("sshd rejected the new config, restored backup: %v", err)
		return result
	}

	if !changed {
		log.Printf("[INFO] SSH config already matches the target policy")
	}

	verify := fmt.Sprintf("ssh -p %d <user>@<host>", h.cfg.SSHPortNew)
	if !h.confirm.Confirm(fmt.Sprintf("SSH config validated (port %d, key-only auth). Restart sshd now?", h.cfg.SSHPortNew)) {
		result.Outcome = OutcomeApplied
		result.Detail = fmt.Sprintf("config applied and validated; restart deferred - run: systemctl restart sshd, then verify with %s", verify)
		return result
	}

	if err := restartService(ctx, h.runner, "sshd", "ssh"); err != nil {
		result.Outcome = OutcomeFailed
		result.Detail = fmt.Sprintf("restart failed: %v - config is valid but the old daemon may still be serving", err)
		return result
	}

	log.Printf("[INFO] sshd restarted on port %d", h.cfg.SSHPortNew)
	log.Printf("[INFO] IMPORTANT: from a SECOND terminal, verify you can connect: %s", verify)
	log.Printf("[INFO] Keep this session open until that works. Only then remove the old rule: ufw delete allow %d/tcp", h.cfg.SSHPortOld)

	result.Outcome = OutcomeApplied
	result.Detail = fmt.Sprintf("sshd hardened and restarted on port %d; verify from a second session (%s) before removing the old port rule", h.cfg.SSHPortNew, verify)
	return result
}

// applyDirectives upserts the port and the policy directive set. Directives
// are applied in sorted order so repeated runs touch the file identically.
func (h *Hardener) applyDirectives() (bool, error) {
	changed, err := confedit.SetDirective(h.cfg.SSHConfigPath, "Port", strconv.Itoa(h.cfg.SSHPortNew))
	if err != nil {
		return false, fmt.Errorf("failed to set Port: %w", err)
	}

	keys := make([]string, 0, len(h.policy.SSH.Directives))
	for key := range h.policy.SSH.Directives {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		c, err := confedit.SetDirective(h.cfg.SSHConfigPath, key, h.policy.SSH.Directives[key])
		if err != nil {
			return false, fmt.Errorf("failed to set %s: %w", key, err)
		}
		changed = changed || c
	}
	return changed, nil
}

// validateConfig runs the daemon's own config test. If no sshd binary can
// be found the config cannot be proven valid, which counts as failure: an
// unvalidated config must never go live.
func (h *Hardener) validateConfig(ctx context.Context) error {
	candidates := []string{"sshd", "/usr/sbin/sshd", "/usr/local/sbin/sshd"}
	for _, bin := range candidates {
		if !strings.Contains(bin, "/") && !h.runner.Available(bin) {
			continue
		}
		res := h.runner.RunArgs(ctx, bin, "-t", "-f", h.cfg.SSHConfigPath)
		if res.Ok() {
			return nil
		}
		// Exit -1 means the binary itself could not run; try the next.
		if res.ExitCode == -1 {
			continue
		}
		return fmt.Errorf("%s -t failed: %s", bin, strings.TrimSpace(res.Stderr))
	}
	return fmt.Errorf("no sshd binary found to validate the config")
}

func (h *Hardener) restoreConfig(backupPath string) {
	if err := h.backups.Restore(h.cfg.SSHConfigPath, backupPath); err != nil {
		// Both the edit and the rollback failed; the operator must fix
		// this by hand before the daemon reloads.
		log.Printf("[ERROR] Rollback of %s failed: %v - restore manually from %s before sshd restarts",
			h.cfg.SSHConfigPath, err, backupPath)
	}
}
