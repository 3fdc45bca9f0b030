package audit

import (
	"fmt"
	"strings"

	"clawguard/internal/clawguard"
)

// checkOpenPorts surfaces every listening socket bound to a non-loopback
// address. The auditor makes no judgment about which ports are acceptable;
// exposure is reported for operator review.
func (a *Auditor) checkOpenPorts(sockets []socket, socketsErr error) clawguard.CheckResult {
	if socketsErr != nil {
		return clawguard.CheckResult{
			Category: clawguard.CategoryOpenPorts,
			Severity: clawguard.SeverityRecommended,
			Detail:   fmt.Sprintf("Could not enumerate listening sockets: %v", socketsErr),
		}
	}

	var exposed []string
	for _, s := range sockets {
		if !s.Loopback() {
			exposed = append(exposed, s.String())
		}
	}

	if len(exposed) == 0 {
		return clawguard.CheckResult{
			Category: clawguard.CategoryOpenPorts,
			Severity: clawguard.SeverityOK,
			Detail:   fmt.Sprintf("All %d listening sockets are loopback-only", len(sockets)),
		}
	}
	return clawguard.CheckResult{
		Category:    clawguard.CategoryOpenPorts,
		Severity:    clawguard.SeverityRecommended,
		Detail:      fmt.Sprintf("%d sockets listen on non-loopback addresses: %s", len(exposed), strings.Join(exposed, ", ")),
		Remediation: "review each exposed port; clawguard harden (firewall stage) restricts inbound access",
	}
}

// checkBrowserControlPort looks for the browser automation control port on a
// non-loopback interface. That port grants full control of the agent's
// browser session and must never face the network.
func (a *Auditor) checkBrowserControlPort(sockets []socket, socketsErr error) clawguard.CheckResult {
	if socketsErr != nil {
		return clawguard.CheckResult{
			Category: clawguard.CategoryBrowserControlPort,
			Severity: clawguard.SeverityRecommended,
			Detail:   fmt.Sprintf("Could not inspect socket table: %v", socketsErr),
		}
	}

	// Every socket on the port is inspected: a loopback bind does not clear
	// the check while a wildcard bind on the same port exists.
	port := a.policy.BrowserControlPort
	listening := false
	for _, s := range sockets {
		if s.Port != port {
			continue
		}
		listening = true
		if !s.Loopback() {
			return clawguard.CheckResult{
				Category:    clawguard.CategoryBrowserControlPort,
				Severity:    clawguard.SeverityCritical,
				Detail:      fmt.Sprintf("Browser control port %d is listening on %s", port, s.Addr),
				Remediation: "bind the browser control server to 127.0.0.1, then clawguard harden (firewall stage)",
			}
		}
	}
	if listening {
		return clawguard.CheckResult{
			Category: clawguard.CategoryBrowserControlPort,
			Severity: clawguard.SeverityOK,
			Detail:   fmt.Sprintf("Browser control port %d is loopback-only", port),
		}
	}
	return clawguard.CheckResult{
		Category: clawguard.CategoryBrowserControlPort,
		Severity: clawguard.SeverityOK,
		Detail:   fmt.Sprintf("Browser control port %d is not listening", port),
	}
}
