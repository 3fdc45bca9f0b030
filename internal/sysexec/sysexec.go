// Package sysexec runs external commands on behalf of the audit checks and
// hardening stages. Everything that shells out goes through the Runner
// interface so tests can substitute canned output for real tools.
package sysexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

const (
	// Default execution timeout, sized for quick read-only checks.
	// Long-running operations (package installs, service restarts) pass
	// their own timeout via RunArgsTimeout.
	commandTimeout = 10 * time.Second
	// Maximum output size to prevent memory exhaustion.
	maxOutputSize = 64 * 1024 // 64KB limit
	// Maximum log output length for readability.
	maxLogLength = 200
)

// Result holds the outcome of a single command execution.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports whether the command ran and exited zero.
func (r Result) Ok() bool {
	return r.ExitCode == 0
}

// Runner executes external commands.
type Runner interface {
	// RunArgs executes a program directly with the given arguments and the
	// default timeout.
	RunArgs(ctx context.Context, name string, args ...string) Result
	// RunArgsTimeout is RunArgs with an explicit deadline, for commands
	// that legitimately run long.
	RunArgsTimeout(ctx context.Context, timeout time.Duration, name string, args ...string) Result
	// Available reports whether a program can be found on PATH.
	Available(name string) bool
}

// execRunner is the production Runner backed by os/exec.
type execRunner struct {
	debug bool
}

// New returns a Runner backed by os/exec.
func New(debug bool) Runner {
	return &execRunner{debug: debug}
}

func (r *execRunner) RunArgs(ctx context.Context, name string, args ...string) Result {
	return r.RunArgsTimeout(ctx, commandTimeout, name, args...)
}

func (r *execRunner) RunArgsTimeout(ctx context.Context, timeout time.Duration, name string, args ...string) Result {
	display := name
	if len(args) > 0 {
		display += " " + strings.Join(args, " ")
	}
	return r.execute(ctx, timeout, display, name, args...)
}

func (*execRunner) Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func (r *execRunner) execute(ctx context.Context, timeout time.Duration, display, name string, args ...string) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if r.debug {
		log.Printf("[DEBUG] Executing command: %s", display)
	}

	cmd := exec.CommandContext(ctx, name, args...)

	var stdoutBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	duration := time.Since(start)

	stdout := limitOutput(stdoutBuf.Bytes(), maxOutputSize)
	stderr := limitOutput(stderrBuf.Bytes(), maxOutputSize)

	exitCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Printf("[WARN] Command timed out after %v: %s", duration, display)
			stderr = "Command timed out after " + duration.String()
			exitCode = -1
		} else {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
				stderr += fmt.Sprintf("\nCommand error: %v", err)
			}
		}
	}

	if r.debug {
		log.Printf("[DEBUG] Command completed in %v (exit: %d, stdout: %d bytes, stderr: %d bytes): %s",
			duration, exitCode, len(stdout), len(stderr), display)
		if trimmed := strings.TrimSpace(stderr); trimmed != "" {
			if len(trimmed) > maxLogLength {
				trimmed = trimmed[:maxLogLength] + "..."
			}
			log.Printf("[DEBUG] stderr: %s", trimmed)
		}
	}

	return Result{
		Command:  display,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
	}
}

// limitOutput truncates output if it exceeds maxSize.
func limitOutput(data []byte, maxSize int) string {
	if len(data) > maxSize {
		return string(data[:maxSize]) + "\n[Output truncated]..."
	}
	return string(data)
}
