package audit

import (
	"fmt"
	"os"
	"strings"

	"clawguard/internal/clawguard"
)

// checkCredentialStorage looks for two exposure classes: credential files
// readable by other users, and secret-looking tokens sitting in files whose
// mode lets anyone read them. Session log directories are checked for
// world-readable modes because agent transcripts routinely contain tokens.
func (a *Auditor) checkCredentialStorage() clawguard.CheckResult {
	var findings []string
	severity := clawguard.SeverityOK
	raise := func(s clawguard.Severity) {
		if s > severity {
			severity = s
		}
	}

	checked := 0
	for _, path := range a.policy.CredentialPaths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			continue
		}
		checked++
		perm := info.Mode().Perm()
		if perm&0o077 != 0 {
			findings = append(findings, fmt.Sprintf("%s has mode %04o (expected 0600)", path, perm))
			raise(clawguard.SeverityHigh)
		}
		if perm&0o004 != 0 && a.containsSecret(path) {
			findings = append(findings, fmt.Sprintf("%s is world-readable and contains secret-like tokens", path))
			raise(clawguard.SeverityCritical)
		}
	}

	for _, dir := range a.policy.SessionLogDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		checked++
		perm := info.Mode().Perm()
		if perm&0o007 != 0 {
			findings = append(findings, fmt.Sprintf("session log directory %s is world-accessible (mode %04o)", dir, perm))
			raise(clawguard.SeverityHigh)
		}
	}

	if len(findings) == 0 {
		detail := fmt.Sprintf("Checked %d credential paths; permissions look tight", checked)
		if checked == 0 {
			detail = "No credential files or session log directories found at known paths"
		}
		return clawguard.CheckResult{
			Category: clawguard.CategoryCredentialStorage,
			Severity: clawguard.SeverityOK,
			Detail:   detail,
		}
	}
	return clawguard.CheckResult{
		Category:    clawguard.CategoryCredentialStorage,
		Severity:    severity,
		Detail:      strings.Join(findings, "; "),
		Remediation: "chmod 600 the listed files and chmod 700 session log directories",
	}
}

// containsSecret scans a file for the policy's secret markers.
func (a *Auditor) containsSecret(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	content := strings.ToLower(string(data))
	for _, marker := range a.policy.SecretMarkers {
		if strings.Contains(content, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
