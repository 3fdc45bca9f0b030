// Package policy defines the audit and hardening policy for clawguard.
//
// The built-in policy is embedded at compile time and can be overridden per
// run with an external YAML file. It carries the host-specific knowledge the
// checks and stages need: where the OpenClaw gateway keeps its config, which
// ports it listens on, which files hold credentials, and the SSH directive
// set the hardener enforces.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Policy is the complete checks and hardening configuration.
type Policy struct {
	FailedLoginThreshold int      `yaml:"failed_login_threshold"`
	AuthLogPaths         []string `yaml:"auth_log_paths"`
	Gateway              Gateway  `yaml:"gateway"`
	BrowserControlPort   int      `yaml:"browser_control_port"`
	CredentialPaths      []string `yaml:"credential_paths"`
	SessionLogDirs       []string `yaml:"session_log_dirs"`
	SecretMarkers        []string `yaml:"secret_markers"`
	SSH                  SSH      `yaml:"ssh"`
	Fail2ban             Fail2ban `yaml:"fail2ban"`
	FirewallExtraPorts   []int    `yaml:"firewall_extra_ports"`
}

// Gateway describes where the agent/gateway process lives on this host.
type Gateway struct {
	ConfigPaths []string `yaml:"config_paths"`
	Ports       []int    `yaml:"ports"`
}

// SSH holds the daemon config path and the directive set to enforce.
// The Port directive is handled separately because it comes from the
// operator (SSH_PORT), not from policy.
type SSH struct {
	ConfigPath string            `yaml:"config_path"`
	Directives map[string]string `yaml:"directives"`
}

// Fail2ban holds the jail file parameters. The jail is regenerated wholesale
// on every hardening run.
type Fail2ban struct {
	JailPath string   `yaml:"jail_path"`
	MaxRetry int      `yaml:"max_retry"`
	BanTime  Duration `yaml:"ban_time"`
	FindTime Duration `yaml:"find_time"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Seconds returns the duration as whole seconds, the unit fail2ban expects.
func (d Duration) Seconds() int {
	return int(time.Duration(d) / time.Second)
}

// Load parses the embedded default policy.
func Load() (*Policy, error) {
	return parse(defaultPolicy)
}

// LoadFile parses a policy override from disk.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if p.FailedLoginThreshold <= 0 {
		return nil, fmt.Errorf("failed_login_threshold must be positive, got %d", p.FailedLoginThreshold)
	}
	if p.SSH.ConfigPath == "" {
		return nil, fmt.Errorf("ssh.config_path is required")
	}
	if p.Fail2ban.JailPath == "" {
		return nil, fmt.Errorf("fail2ban.jail_path is required")
	}
	return &p, nil
}

// ExpandPaths rewrites every ~/-prefixed path in the policy against home.
// When run under sudo, home should be the invoking user's home directory,
// not root's, so the gateway config and credential checks look at the files
// the operator actually uses.
func (p *Policy) ExpandPaths(home string) {
	expand := func(paths []string) {
		for i, path := range paths {
			if strings.HasPrefix(path, "~/") {
				paths[i] = filepath.Join(home, path[2:])
			}
		}
	}
	expand(p.Gateway.ConfigPaths)
	expand(p.CredentialPaths)
	expand(p.SessionLogDirs)
	expand(p.AuthLogPaths)
}

// OperatorHome returns the home directory of the operator running the tool.
// Under sudo this is the invoking user's home, looked up from /etc/passwd
// via the SUDO_USER environment variable.
func OperatorHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && sudoUser != "root" {
		if home := passwdHome(sudoUser); home != "" {
			return home
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "/root"
}

func passwdHome(user string) string {
	data, err := os.ReadFile("/etc/passwd")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) >= 6 && fields[0] == user {
			return fields[5]
		}
	}
	return ""
}
