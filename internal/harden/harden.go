// Package harden applies the bounded remediation set: firewall rules, SSH
// policy, fail2ban, and the mesh overlay.
//
// Four stages run in a fixed order because later stages depend on earlier
// invariants (the firewall must allow the current SSH port before SSH policy
// changes are worth making). Each stage is independently skippable and a
// failure in one never blocks the rest. Every mutation is idempotent or
// backup-guarded, so re-running after an aborted run converges instead of
// compounding.
package harden

import (
	"context"
	"fmt"
	"log"
	"os"

	"clawguard/internal/backup"
	"clawguard/internal/confedit"
	"clawguard/internal/policy"
	"clawguard/internal/prompt"
	"clawguard/internal/sysexec"
)

// Outcome classifies how a stage ended.
type Outcome string

const (
	// OutcomeApplied means the stage's changes landed.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped means the stage had nothing to do.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDeclined means the operator answered no at the gate.
	OutcomeDeclined Outcome = "declined"
	// OutcomeFailed means the stage aborted; any partial mutation was
	// rolled back before returning.
	OutcomeFailed Outcome = "failed"
)

// StageResult reports one stage's outcome for the final summary.
type StageResult struct {
	Stage   string
	Outcome Outcome
	Detail  string
}

// Config carries the per-run hardening parameters as an explicit value
// object so stages are testable without ambient environment lookups.
type Config struct {
	// SSHPortOld is the port sshd is serving right now. The firewall
	// stage must allow it before enabling, whatever else changes.
	SSHPortOld int
	// SSHPortNew is the target SSH port (SSH_PORT env, default 2222).
	SSHPortNew int
	// SSHConfigPath is the sshd config file to harden.
	SSHConfigPath string
	// AuthorizedKeysPath is the operator's authorized_keys file; password
	// auth is only disabled when it is present and non-empty.
	AuthorizedKeysPath string
}

// Hardener orchestrates the remediation stages.
type Hardener struct {
	cfg     Config
	policy  *policy.Policy
	runner  sysexec.Runner
	confirm prompt.Confirmer
	backups *backup.Manager
}

// New returns a Hardener.
func New(cfg Config, pol *policy.Policy, runner sysexec.Runner, confirm prompt.Confirmer) *Hardener {
	return &Hardener{
		cfg:     cfg,
		policy:  pol,
		runner:  runner,
		confirm: confirm,
		backups: backup.New(),
	}
}

// Run executes the four stages in order and returns their results. Declines
// and failures are contained to their stage.
func (h *Hardener) Run(ctx context.Context) []StageResult {
	stages := []struct {
		name string
		fn   func(context.Context) StageResult
	}{
		{"firewall", h.firewallStage},
		{"ssh", h.sshStage},
		{"fail2ban", h.fail2banStage},
		{"overlay", h.overlayStage},
	}

	results := make([]StageResult, 0, len(stages))
	for _, stage := range stages {
		log.Printf("[INFO] Running %s stage", stage.name)
		res := stage.fn(ctx)
		log.Printf("[INFO] Stage %s: %s - %s", res.Stage, res.Outcome, res.Detail)
		results = append(results, res)
	}
	return results
}

// CurrentSSHPort reads the port sshd is configured to serve from its config
// file. An absent Port directive means the daemon default, 22.
func CurrentSSHPort(configPath string) int {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return 22
	}
	value, ok := confedit.Lookup(string(data), "Port")
	if !ok {
		return 22
	}
	var port int
	if _, err := fmt.Sscanf(value, "%d", &port); err != nil || port < 1 || port > 65535 {
		return 22
	}
	return port
}
