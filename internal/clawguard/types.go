// Package clawguard defines shared data structures for the clawguard toolkit.
package clawguard

import "sort"

// Category identifies which audit check produced a result.
type Category string

// Audit check categories, in the order the auditor runs them.
const (
	CategoryOpenPorts           Category = "open_ports"
	CategorySSHConfig           Category = "ssh_config"
	CategoryFirewall            Category = "firewall"
	CategoryFailedLogins        Category = "failed_logins"
	CategoryFail2ban            Category = "fail2ban"
	CategoryGatewayBinding      Category = "gateway_binding"
	CategoryRemoteAccessOverlay Category = "remote_access_overlay"
	CategoryCredentialStorage   Category = "credential_storage"
	CategoryBrowserControlPort  Category = "browser_control_port"
)

// Severity grades an audit finding. Higher values are worse.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityRecommended
	SeverityHigh
	SeverityCritical
)

// String returns the human-readable severity label.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityRecommended:
		return "RECOMMENDED"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult is a single audit finding. Results are created fresh on every
// run and never persisted.
type CheckResult struct {
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Detail      string   `json:"detail"`
	Remediation string   `json:"remediation,omitempty"` // Hardener stage or command that addresses it
}

// ActionList filters out OK results and orders the rest worst-first. The
// sort is stable so findings within a severity keep check order.
func ActionList(results []CheckResult) []CheckResult {
	actions := make([]CheckResult, 0, len(results))
	for _, r := range results {
		if r.Severity > SeverityOK {
			actions = append(actions, r)
		}
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Severity > actions[j].Severity
	})
	return actions
}
