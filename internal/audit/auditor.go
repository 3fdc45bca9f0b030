// Package audit implements the read-only host exposure audit.
//
// The auditor runs nine independent checks in a fixed order and reports one
// CheckResult per check. It never mutates system state and never fails the
// run: a missing tool or unreadable file is itself a finding, not an error.
package audit

import (
	"context"
	"log"
	"time"

	"clawguard/internal/clawguard"
	"clawguard/internal/policy"
	"clawguard/internal/sysexec"
)

// Auditor runs the read-only exposure checks.
type Auditor struct {
	runner  sysexec.Runner
	policy  *policy.Policy
	sshPath string
	// now is overridable for tests that feed canned log timestamps.
	now func() time.Time
}

// New returns an Auditor using the given runner and policy. The sshd config
// path comes from the policy.
func New(runner sysexec.Runner, pol *policy.Policy) *Auditor {
	return &Auditor{
		runner:  runner,
		policy:  pol,
		sshPath: pol.SSH.ConfigPath,
		now:     time.Now,
	}
}

// Run executes every check in order and returns their results. The slice
// always has one entry per check, in check order.
func (a *Auditor) Run(ctx context.Context) []clawguard.CheckResult {
	start := time.Now()

	// The socket table feeds three checks; enumerate it once.
	sockets, socketsErr := a.listeningSockets(ctx)

	results := []clawguard.CheckResult{
		a.checkOpenPorts(sockets, socketsErr),
		a.checkSSHConfig(),
		a.checkFirewall(ctx),
		a.checkFailedLogins(),
		a.checkFail2ban(ctx),
		a.checkGatewayBinding(sockets, socketsErr),
		a.checkOverlay(ctx),
		a.checkCredentialStorage(),
		a.checkBrowserControlPort(sockets, socketsErr),
	}

	log.Printf("[INFO] Completed %d checks in %v", len(results), time.Since(start))
	return results
}
