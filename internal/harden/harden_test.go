package harden

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clawguard/internal/policy"
	"clawguard/internal/prompt"
	"clawguard/internal/sysexec"
)

// fakeRunner serves canned results keyed by the rendered command line and
// records every invocation in order.
type fakeRunner struct {
	available   map[string]bool
	results     map[string]sysexec.Result
	defaultExit int
	commands    []string
	timeouts    []time.Duration
}

func (f *fakeRunner) RunArgs(_ context.Context, name string, args ...string) sysexec.Result {
	return f.lookup(strings.Join(append([]string{name}, args...), " "))
}

func (f *fakeRunner) RunArgsTimeout(ctx context.Context, timeout time.Duration, name string, args ...string) sysexec.Result {
	f.timeouts = append(f.timeouts, timeout)
	return f.RunArgs(ctx, name, args...)
}

func (f *fakeRunner) Available(name string) bool {
	return f.available[name]
}

func (f *fakeRunner) lookup(key string) sysexec.Result {
	f.commands = append(f.commands, key)
	if r, ok := f.results[key]; ok {
		r.Command = key
		return r
	}
	return sysexec.Result{Command: key, ExitCode: f.defaultExit}
}

func (f *fakeRunner) ran(command string) bool {
	for _, c := range f.commands {
		if c == command {
			return true
		}
	}
	return false
}

func (f *fakeRunner) indexOf(command string) int {
	for i, c := range f.commands {
		if c == command {
			return i
		}
	}
	return -1
}

// testHardener builds a Hardener whose file targets all live in a temp dir.
func testHardener(t *testing.T, runner *fakeRunner, confirm *prompt.Scripted) (*Hardener, string) {
	t.Helper()
	dir := t.TempDir()

	pol, err := policy.Load()
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	pol.SSH.ConfigPath = filepath.Join(dir, "sshd_config")
	pol.Fail2ban.JailPath = filepath.Join(dir, "jail.local")

	keysPath := filepath.Join(dir, "authorized_keys")
	if err := os.WriteFile(keysPath, []byte("ssh-ed25519 AAAA operator@workstation\n"), 0o600); err != nil {
		t.Fatalf("Failed to write authorized_keys: %v", err)
	}
	if err := os.WriteFile(pol.SSH.ConfigPath, []byte("Port 22\n#PasswordAuthentication yes\n"), 0o600); err != nil {
		t.Fatalf("Failed to write sshd_config: %v", err)
	}

	cfg := Config{
		SSHPortOld:         22,
		SSHPortNew:         2222,
		SSHConfigPath:      pol.SSH.ConfigPath,
		AuthorizedKeysPath: keysPath,
	}
	return New(cfg, pol, runner, confirm), dir
}

func sshValidateKey(h *Hardener) string {
	return "sshd -t -f " + h.cfg.SSHConfigPath
}

func TestRuleSetIncludesCurrentPortFirst(t *testing.T) {
	h, _ := testHardener(t, &fakeRunner{available: map[string]bool{}}, &prompt.Scripted{})

	rules := h.RuleSet()
	if len(rules) == 0 || rules[0] != 22 {
		t.Fatalf("RuleSet = %v, want the pre-run SSH port 22 first", rules)
	}
	found := false
	for _, p := range rules {
		if p == 2222 {
			found = true
		}
	}
	if !found {
		t.Errorf("RuleSet = %v, want it to include the new port 2222", rules)
	}
}

func TestRuleSetDeduplicatesWhenPortUnchanged(t *testing.T) {
	h, _ := testHardener(t, &fakeRunner{available: map[string]bool{}}, &prompt.Scripted{})
	h.cfg.SSHPortNew = 22

	rules := h.RuleSet()
	if len(rules) != 1 || rules[0] != 22 {
		t.Errorf("RuleSet = %v, want exactly [22]", rules)
	}
}

func TestFirewallStageAllowsBeforeEnable(t *testing.T) {
	runner := &fakeRunner{available: map[string]bool{"ufw": true}}
	h, _ := testHardener(t, runner, &prompt.Scripted{Answers: []bool{true}})

	res := h.firewallStage(context.Background())
	if res.Outcome != OutcomeApplied {
		t.Fatalf("Outcome = %s, want applied; detail: %s", res.Outcome, res.Detail)
	}

	allowIdx := runner.indexOf("ufw allow 22/tcp")
	enableIdx := runner.indexOf("ufw --force enable")
	if allowIdx < 0 || enableIdx < 0 {
		t.Fatalf("Expected allow and enable commands, got %v", runner.commands)
	}
	if allowIdx > enableIdx {
		t.Errorf("Current SSH port allowed after enable (anti-lockout violation): %v", runner.commands)
	}
	if !runner.ran("ufw default deny incoming") {
		t.Errorf("Missing default deny incoming: %v", runner.commands)
	}
}

func TestFirewallStageDeclinedLeavesStateUntouched(t *testing.T) {
	runner := &fakeRunner{available: map[string]bool{"ufw": true}}
	h, _ := testHardener(t, runner, &prompt.Scripted{Answers: []bool{false}})

	res := h.firewallStage(context.Background())
	if res.Outcome != OutcomeDeclined {
		t.Fatalf("Outcome = %s, want declined", res.Outcome)
	}
	if !strings.Contains(res.Detail, "staged but not enabled") {
		t.Errorf("Detail = %q, want staged-but-not-enabled wording", res.Detail)
	}
	if runner.ran("ufw --force enable") {
		t.Errorf("Firewall was enabled despite decline: %v", runner.commands)
	}
}

func TestSSHStageRefusesWithoutAuthorizedKey(t *testing.T) {
	runner := &fakeRunner{available: map[string]bool{}}
	h, _ := testHardener(t, runner, &prompt.Scripted{})
	h.cfg.AuthorizedKeysPath = filepath.Join(t.TempDir(), "missing")

	before, err := os.ReadFile(h.cfg.SSHConfigPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}

	res := h.sshStage(context.Background())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %s, want failed", res.Outcome)
	}
	if !strings.Contains(res.Detail, "ssh-copy-id") {
		t.Errorf("Detail = %q, want key-install instructions", res.Detail)
	}

	after, err := os.ReadFile(h.cfg.SSHConfigPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if string(before) != string(after) {
		t.Error("Config was modified despite the missing-key hard stop")
	}
}

func TestSSHStageRollsBackOnValidationFailure(t *testing.T) {
	runner := &fakeRunner{
		available:   map[string]bool{"sshd": true},
		defaultExit: -1,
	}
	h, _ := testHardener(t, runner, &prompt.Scripted{Answers: []bool{true}})
	runner.results = map[string]sysexec.Result{
		sshValidateKey(h): {ExitCode: 1, Stderr: "sshd_config: line 2: Bad configuration option"},
	}

	before, err := os.ReadFile(h.cfg.SSHConfigPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}

	res := h.sshStage(context.Background())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %s, want failed; detail: %s", res.Outcome, res.Detail)
	}

	after, err := os.ReadFile(h.cfg.SSHConfigPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("Config not rolled back:\nbefore: %q\nafter:  %q", before, after)
	}
	if runner.ran("systemctl restart sshd") {
		t.Error("sshd was restarted after a failed validation (hard invariant violated)")
	}
}

func TestSSHStageAppliesAndDefersRestartOnDecline(t *testing.T) {
	runner := &fakeRunner{
		available:   map[string]bool{"sshd": true},
		defaultExit: -1,
	}
	h, _ := testHardener(t, runner, &prompt.Scripted{Answers: []bool{false}})
	runner.results = map[string]sysexec.Result{
		sshValidateKey(h): {ExitCode: 0},
	}

	res := h.sshStage(context.Background())
	if res.Outcome != OutcomeApplied {
		t.Fatalf("Outcome = %s, want applied; detail: %s", res.Outcome, res.Detail)
	}
	if !strings.Contains(res.Detail, "restart deferred") {
		t.Errorf("Detail = %q, want restart-deferred wording", res.Detail)
	}
	if runner.ran("systemctl restart sshd") {
		t.Error("sshd restarted despite decline")
	}

	data, err := os.ReadFile(h.cfg.SSHConfigPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	content := string(data)
	for _, want := range []string{"Port 2222", "PasswordAuthentication no", "PermitRootLogin no", "MaxAuthTries 3"} {
		if !strings.Contains(content, want) {
			t.Errorf("Config missing %q:\n%s", want, content)
		}
	}
}

func TestSSHStageRestartsWhenApproved(t *testing.T) {
	runner := &fakeRunner{
		available:   map[string]bool{"sshd": true},
		defaultExit: -1,
	}
	h, _ := testHardener(t, runner, &prompt.Scripted{Answers: []bool{true}})
	runner.results = map[string]sysexec.Result{
		sshValidateKey(h):        {ExitCode: 0},
		"systemctl restart sshd": {ExitCode: 0},
	}

	res := h.sshStage(context.Background())
	if res.Outcome != OutcomeApplied {
		t.Fatalf("Outcome = %s, want applied; detail: %s", res.Outcome, res.Detail)
	}
	if !runner.ran("systemctl restart sshd") {
		t.Errorf("Expected sshd restart, got %v", runner.commands)
	}
	if !strings.Contains(res.Detail, "second session") {
		t.Errorf("Detail = %q, want second-session verification instructions", res.Detail)
	}
}

func TestSSHStageIsIdempotentAcrossRuns(t *testing.T) {
	runner := &fakeRunner{
		available:   map[string]bool{"sshd": true},
		defaultExit: -1,
	}
	h, _ := testHardener(t, runner, &prompt.Scripted{Answers: []bool{false, false}})
	runner.results = map[string]sysexec.Result{
		sshValidateKey(h): {ExitCode: 0},
	}

	if res := h.sshStage(context.Background()); res.Outcome != OutcomeApplied {
		t.Fatalf("First run outcome = %s, want applied", res.Outcome)
	}
	first, err := os.ReadFile(h.cfg.SSHConfigPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}

	if res := h.sshStage(context.Background()); res.Outcome != OutcomeApplied {
		t.Fatalf("Second run outcome = %s, want applied", res.Outcome)
	}
	second, err := os.ReadFile(h.cfg.SSHConfigPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("Re-run changed the config:\nfirst:  %q\nsecond: %q", first, second)
	}
}

func TestFail2banStageRegeneratesJail(t *testing.T) {
	runner := &fakeRunner{
		available: map[string]bool{"fail2ban-client": true},
		results: map[string]sysexec.Result{
			"systemctl restart fail2ban": {ExitCode: 0},
			"systemctl enable fail2ban":  {ExitCode: 0},
		},
		defaultExit: -1,
	}
	h, _ := testHardener(t, runner, &prompt.Scripted{})

	res := h.fail2banStage(context.Background())
	if res.Outcome != OutcomeApplied {
		t.Fatalf("Outcome = %s, want applied; detail: %s", res.Outcome, res.Detail)
	}

	data, err := os.ReadFile(h.policy.Fail2ban.JailPath)
	if err != nil {
		t.Fatalf("Jail file not written: %v", err)
	}
	content := string(data)
	for _, want := range []string{"[sshd]", "port = 2222", "enabled = true", "Managed by clawguard"} {
		if !strings.Contains(content, want) {
			t.Errorf("Jail missing %q:\n%s", want, content)
		}
	}

	// Re-run: pure overwrite, identical result.
	if res := h.fail2banStage(context.Background()); res.Outcome != OutcomeApplied {
		t.Fatalf("Re-run outcome = %s, want applied", res.Outcome)
	}
	again, err := os.ReadFile(h.policy.Fail2ban.JailPath)
	if err != nil {
		t.Fatalf("Jail file not readable after re-run: %v", err)
	}
	if string(again) != content {
		t.Errorf("Jail changed on re-run:\nfirst:  %q\nsecond: %q", content, again)
	}
}

func TestFail2banStageDeclinedInstall(t *testing.T) {
	runner := &fakeRunner{available: map[string]bool{}}
	h, _ := testHardener(t, runner, &prompt.Scripted{Answers: []bool{false}})

	res := h.fail2banStage(context.Background())
	if res.Outcome != OutcomeDeclined {
		t.Errorf("Outcome = %s, want declined", res.Outcome)
	}
}

func TestOverlayStageAlreadyConnected(t *testing.T) {
	runner := &fakeRunner{
		available: map[string]bool{"tailscale": true},
		results: map[string]sysexec.Result{
			"tailscale status": {ExitCode: 0, Stdout: "100.64.1.2 clawhost operator@ linux -"},
		},
		defaultExit: -1,
	}
	h, _ := testHardener(t, runner, &prompt.Scripted{})

	res := h.overlayStage(context.Background())
	if res.Outcome != OutcomeSkipped {
		t.Errorf("Outcome = %s, want skipped; detail: %s", res.Outcome, res.Detail)
	}
}

func TestOverlayStageNeverTouchesFirewallOrSSH(t *testing.T) {
	runner := &fakeRunner{
		available: map[string]bool{"tailscale": true},
		results: map[string]sysexec.Result{
			"tailscale status": {ExitCode: 1, Stderr: "Logged out."},
		},
		defaultExit: -1,
	}
	h, _ := testHardener(t, runner, &prompt.Scripted{})

	h.overlayStage(context.Background())
	for _, c := range runner.commands {
		if strings.HasPrefix(c, "ufw") || strings.Contains(c, "sshd") {
			t.Errorf("Overlay stage ran %q; it must be purely additive", c)
		}
	}
}

func TestRunDeclinedFirewallStillHardensSSHAndFail2ban(t *testing.T) {
	runner := &fakeRunner{
		available: map[string]bool{
			"ufw":             true,
			"sshd":            true,
			"fail2ban-client": true,
			"tailscale":       true,
		},
		defaultExit: -1,
	}
	// Answers: decline firewall enable, decline sshd restart.
	confirm := &prompt.Scripted{Answers: []bool{false, false}}
	h, _ := testHardener(t, runner, confirm)
	runner.results = map[string]sysexec.Result{
		sshValidateKey(h):            {ExitCode: 0},
		"systemctl restart fail2ban": {ExitCode: 0},
		"systemctl enable fail2ban":  {ExitCode: 0},
		"tailscale status":           {ExitCode: 0, Stdout: "100.64.1.2 clawhost"},
	}

	results := h.Run(context.Background())
	if len(results) != 4 {
		t.Fatalf("Run returned %d results, want 4", len(results))
	}
	if results[0].Outcome != OutcomeDeclined {
		t.Errorf("firewall outcome = %s, want declined", results[0].Outcome)
	}
	if results[1].Outcome != OutcomeApplied {
		t.Errorf("ssh outcome = %s, want applied; detail: %s", results[1].Outcome, results[1].Detail)
	}
	if results[2].Outcome != OutcomeApplied {
		t.Errorf("fail2ban outcome = %s, want applied; detail: %s", results[2].Outcome, results[2].Detail)
	}
	if results[3].Outcome != OutcomeSkipped {
		t.Errorf("overlay outcome = %s, want skipped", results[3].Outcome)
	}
}

func TestRunMissingKeyOnlyStopsSSHStage(t *testing.T) {
	runner := &fakeRunner{
		available: map[string]bool{
			"ufw":             true,
			"fail2ban-client": true,
			"tailscale":       true,
		},
		defaultExit: 0,
	}
	// Approve the firewall; no further prompts fire.
	confirm := &prompt.Scripted{Answers: []bool{true}}
	h, _ := testHardener(t, runner, confirm)
	h.cfg.AuthorizedKeysPath = filepath.Join(t.TempDir(), "missing")

	results := h.Run(context.Background())
	if results[0].Outcome != OutcomeApplied {
		t.Errorf("firewall outcome = %s, want applied; detail: %s", results[0].Outcome, results[0].Detail)
	}
	if results[1].Outcome != OutcomeFailed {
		t.Errorf("ssh outcome = %s, want failed", results[1].Outcome)
	}
	if results[2].Outcome != OutcomeApplied {
		t.Errorf("fail2ban outcome = %s, want applied; detail: %s", results[2].Outcome, results[2].Detail)
	}
}

func TestInstallAndRestartUseGenerousTimeouts(t *testing.T) {
	runner := &fakeRunner{
		available: map[string]bool{"apt-get": true},
		results: map[string]sysexec.Result{
			"apt-get install -y ufw": {ExitCode: 0},
			"systemctl restart sshd": {ExitCode: 0},
		},
		defaultExit: -1,
	}

	if err := installPackage(context.Background(), runner, "ufw"); err != nil {
		t.Fatalf("installPackage failed: %v", err)
	}
	if err := restartService(context.Background(), runner, "sshd"); err != nil {
		t.Fatalf("restartService failed: %v", err)
	}

	if len(runner.timeouts) != 2 {
		t.Fatalf("Recorded %d timeouts, want 2 (install + restart): %v", len(runner.timeouts), runner.timeouts)
	}
	// Package installs download and unpack; the quick-check default deadline
	// would kill a healthy apt-get run.
	if runner.timeouts[0] < time.Minute {
		t.Errorf("Install timeout = %v, want at least a minute", runner.timeouts[0])
	}
	if runner.timeouts[1] < time.Minute {
		t.Errorf("Restart timeout = %v, want at least a minute", runner.timeouts[1])
	}
}

func TestCurrentSSHPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sshd_config")

	// Missing file: daemon default.
	if got := CurrentSSHPort(path); got != 22 {
		t.Errorf("CurrentSSHPort(missing) = %d, want 22", got)
	}

	if err := os.WriteFile(path, []byte("#Port 22\nPort 2200\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if got := CurrentSSHPort(path); got != 2200 {
		t.Errorf("CurrentSSHPort = %d, want 2200", got)
	}

	if err := os.WriteFile(path, []byte("Port banana\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if got := CurrentSSHPort(path); got != 22 {
		t.Errorf("CurrentSSHPort(garbage) = %d, want 22", got)
	}
}
