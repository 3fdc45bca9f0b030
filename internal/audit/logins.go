package audit

import (
	"fmt"
	"os"
	"strings"
	"time"

	"clawguard/internal/clawguard"
)

// failedLoginWindow is how far back the auth log is scanned.
const failedLoginWindow = 24 * time.Hour

// checkFailedLogins counts authentication failures in the last 24 hours.
// An unreadable log is reported as unknown, never silently as zero.
func (a *Auditor) checkFailedLogins() clawguard.CheckResult {
	var content string
	var logPath string
	var lastErr error
	for _, path := range a.policy.AuthLogPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		content = string(data)
		logPath = path
		break
	}
	if logPath == "" {
		detail := "No auth log found"
		if lastErr != nil {
			detail = fmt.Sprintf("Could not read auth log: %v (failed login count unknown)", lastErr)
		}
		return clawguard.CheckResult{
			Category: clawguard.CategoryFailedLogins,
			Severity: clawguard.SeverityRecommended,
			Detail:   detail,
		}
	}

	count := countRecentFailures(content, a.now())

	switch {
	case count > a.policy.FailedLoginThreshold:
		return clawguard.CheckResult{
			Category:    clawguard.CategoryFailedLogins,
			Severity:    clawguard.SeverityHigh,
			Detail:      fmt.Sprintf("%d failed login attempts in the last 24h (%s) - host is under active brute force", count, logPath),
			Remediation: "clawguard harden (fail2ban stage, SSH stage)",
		}
	case count > 0:
		return clawguard.CheckResult{
			Category:    clawguard.CategoryFailedLogins,
			Severity:    clawguard.SeverityRecommended,
			Detail:      fmt.Sprintf("%d failed login attempts in the last 24h (%s)", count, logPath),
			Remediation: "clawguard harden (fail2ban stage)",
		}
	default:
		return clawguard.CheckResult{
			Category: clawguard.CategoryFailedLogins,
			Severity: clawguard.SeverityOK,
			Detail:   fmt.Sprintf("No failed login attempts in the last 24h (%s)", logPath),
		}
	}
}

// countRecentFailures counts auth-failure lines whose timestamp falls inside
// the window. Lines with an unparseable timestamp are counted anyway: over-
// reporting is safer than dropping evidence of a brute force.
func countRecentFailures(content string, now time.Time) int {
	cutoff := now.Add(-failedLoginWindow)
	count := 0
	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(line, "Failed password") && !strings.Contains(line, "authentication failure") {
			continue
		}
		if ts, ok := parseLogTime(line, now); ok && ts.Before(cutoff) {
			continue
		}
		count++
	}
	return count
}

// parseLogTime extracts the timestamp from a syslog or ISO-8601 prefixed
// log line. Traditional syslog timestamps carry no year; the year is taken
// from "now", stepping back one year if that would place the entry in the
// future (log lines from late December read in early January).
func parseLogTime(line string, now time.Time) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return time.Time{}, false
	}

	// ISO-8601 (rsyslog RFC 3339 format, journald exports).
	if ts, err := time.Parse(time.RFC3339, fields[0]); err == nil {
		return ts, true
	}

	// Traditional syslog: "Jan  2 15:04:05".
	if len(fields) >= 3 {
		raw := fmt.Sprintf("%s %s %s %d", fields[0], fields[1], fields[2], now.Year())
		if ts, err := time.ParseInLocation("Jan 2 15:04:05 2006", raw, now.Location()); err == nil {
			if ts.After(now.Add(failedLoginWindow)) {
				ts = ts.AddDate(-1, 0, 0)
			}
			return ts, true
		}
	}
	return time.Time{}, false
}
