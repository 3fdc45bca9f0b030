package harden

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"clawguard/internal/sysexec"
)

const (
	// Retry configuration for package installs and service restarts;
	// package managers lose races against unattended-upgrades locks.
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second

	// Package installs download and unpack; minutes, not the runner's
	// quick-check default.
	installTimeout = 5 * time.Minute
	// Service restarts wait on systemd job completion.
	restartTimeout = 2 * time.Minute
)

// pkgManager abstracts the host's package manager so the tool is not
// welded to Debian. Detection happens at run time.
type pkgManager struct {
	bin         string
	installArgs []string
}

var pkgManagers = []pkgManager{
	{bin: "apt-get", installArgs: []string{"install", "-y"}},
	{bin: "dnf", installArgs: []string{"install", "-y"}},
	{bin: "yum", installArgs: []string{"install", "-y"}},
}

// detectPackageManager returns the first available package manager.
func detectPackageManager(runner sysexec.Runner) (pkgManager, bool) {
	for _, mgr := range pkgManagers {
		if runner.Available(mgr.bin) {
			return mgr, true
		}
	}
	return pkgManager{}, false
}

// installPackage installs a package with retries.
func installPackage(ctx context.Context, runner sysexec.Runner, name string) error {
	mgr, ok := detectPackageManager(runner)
	if !ok {
		return fmt.Errorf("no supported package manager found (tried apt-get, dnf, yum)")
	}

	log.Printf("[INFO] Installing %s via %s", name, mgr.bin)
	args := append(append([]string{}, mgr.installArgs...), name)
	err := retry.Do(func() error {
		res := runner.RunArgsTimeout(ctx, installTimeout, mgr.bin, args...)
		if !res.Ok() {
			return fmt.Errorf("%s install %s failed (exit %d): %s", mgr.bin, name, res.ExitCode, res.Stderr)
		}
		return nil
	}, retry.Attempts(maxRetries), retry.Delay(initialBackoff), retry.MaxDelay(maxBackoff))
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", name, err)
	}
	return nil
}

// restartService restarts a systemd unit with retries, falling back to the
// service wrapper and to alternate unit names (Debian ships "ssh", Red Hat
// "sshd").
func restartService(ctx context.Context, runner sysexec.Runner, names ...string) error {
	return retry.Do(func() error {
		var lastErr error
		for _, name := range names {
			res := runner.RunArgsTimeout(ctx, restartTimeout, "systemctl", "restart", name)
			if res.Ok() {
				return nil
			}
			lastErr = fmt.Errorf("systemctl restart %s failed (exit %d): %s", name, res.ExitCode, res.Stderr)
			if fallback := runner.RunArgsTimeout(ctx, restartTimeout, "service", name, "restart"); fallback.Ok() {
				return nil
			}
		}
		return lastErr
	}, retry.Attempts(maxRetries), retry.Delay(initialBackoff), retry.MaxDelay(maxBackoff))
}

// enableService enables a systemd unit at boot. Best effort; restart is the
// operation that matters for the current session.
func enableService(ctx context.Context, runner sysexec.Runner, name string) {
	if res := runner.RunArgs(ctx, "systemctl", "enable", name); !res.Ok() {
		log.Printf("[WARN] Could not enable %s at boot (exit %d)", name, res.ExitCode)
	}
}
