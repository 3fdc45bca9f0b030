package audit

import (
	"fmt"
	"os"
	"strings"

	"clawguard/internal/clawguard"
	"clawguard/internal/confedit"
)

// sshdDefaults are the documented sshd defaults for the directives the
// audit cares about. A directive absent from the config file is in effect
// at its default value; it must be reported as such, never as empty or as
// the secure setting.
var sshdDefaults = map[string]string{
	"Port":                   "22",
	"PasswordAuthentication": "yes",
	"PermitRootLogin":        "prohibit-password",
	"PubkeyAuthentication":   "yes",
}

// effectiveDirective returns the directive value, falling back to the
// documented daemon default, and whether the value was explicit.
func effectiveDirective(content, key string) (value string, explicit bool) {
	if v, ok := confedit.Lookup(content, key); ok {
		return v, true
	}
	return sshdDefaults[key], false
}

// checkSSHConfig reads the effective SSH daemon policy from its config file.
func (a *Auditor) checkSSHConfig() clawguard.CheckResult {
	data, err := os.ReadFile(a.sshPath)
	if err != nil {
		return clawguard.CheckResult{
			Category: clawguard.CategorySSHConfig,
			Severity: clawguard.SeverityRecommended,
			Detail:   fmt.Sprintf("Could not read %s: %v (SSH policy unknown)", a.sshPath, err),
		}
	}
	content := string(data)

	var findings []string
	severity := clawguard.SeverityOK

	raise := func(s clawguard.Severity) {
		if s > severity {
			severity = s
		}
	}
	describe := func(key, value string, explicit bool) string {
		if explicit {
			return fmt.Sprintf("%s %s", key, value)
		}
		return fmt.Sprintf("%s %s (daemon default, directive absent)", key, value)
	}

	if value, explicit := effectiveDirective(content, "PasswordAuthentication"); strings.EqualFold(value, "yes") {
		findings = append(findings, describe("PasswordAuthentication", value, explicit)+" - password logins are brute-forceable")
		raise(clawguard.SeverityHigh)
	}

	if value, explicit := effectiveDirective(content, "PermitRootLogin"); strings.EqualFold(value, "yes") {
		findings = append(findings, describe("PermitRootLogin", value, explicit)+" - direct root login enabled")
		raise(clawguard.SeverityCritical)
	} else if strings.EqualFold(value, "prohibit-password") {
		findings = append(findings, describe("PermitRootLogin", value, explicit)+" - consider PermitRootLogin no")
		raise(clawguard.SeverityRecommended)
	}

	if value, explicit := effectiveDirective(content, "PubkeyAuthentication"); strings.EqualFold(value, "no") {
		findings = append(findings, describe("PubkeyAuthentication", value, explicit)+" - key auth disabled")
		raise(clawguard.SeverityHigh)
	}

	if value, explicit := effectiveDirective(content, "Port"); value == "22" {
		findings = append(findings, describe("Port", value, explicit)+" - default port attracts scanners")
		raise(clawguard.SeverityRecommended)
	}

	if len(findings) == 0 {
		return clawguard.CheckResult{
			Category: clawguard.CategorySSHConfig,
			Severity: clawguard.SeverityOK,
			Detail:   "SSH daemon policy looks hardened (key-only auth, no root login, non-default port)",
		}
	}
	return clawguard.CheckResult{
		Category:    clawguard.CategorySSHConfig,
		Severity:    severity,
		Detail:      strings.Join(findings, "; "),
		Remediation: "clawguard harden (SSH stage)",
	}
}
