// Package main implements the clawguard CLI: a two-command audit and
// hardening toolkit for a host running the OpenClaw agent/gateway.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"clawguard/internal/policy"
)

// version is overridden at build time via -ldflags when building releases.
var version = "dev"

var (
	debugMode  bool
	policyPath string
)

var rootCmd = &cobra.Command{
	Use:           "clawguard",
	Short:         "Audit and harden an OpenClaw gateway host",
	Long:          "clawguard inspects a single Linux host's exposure (audit) and applies\na bounded, confirmable set of remediations (harden) without ever locking\nthe operator out of their session.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "path to a policy override file (YAML)")
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(hardenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadPolicy returns the embedded policy or the --policy override, with
// home-relative paths expanded for the invoking operator.
func loadPolicy() (*policy.Policy, error) {
	var pol *policy.Policy
	var err error
	if policyPath != "" {
		pol, err = policy.LoadFile(policyPath)
	} else {
		pol, err = policy.Load()
	}
	if err != nil {
		return nil, err
	}
	home := policy.OperatorHome()
	pol.ExpandPaths(home)
	if debugMode {
		log.Printf("[DEBUG] Policy loaded, operator home: %s", home)
	}
	return pol, nil
}
