// Package backup creates timestamped copies of files before they are
// mutated, and restores them when a mutation has to be rolled back.
package backup

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"time"
)

// Timestamp layout for backup suffixes. Includes time-of-day down to the
// second so repeated runs within a minute do not collide.
const timestampLayout = "20060102-150405Z"

// Backup file mode when the original's mode cannot be determined.
const defaultPerm = 0o600

// Manager snapshots files before mutation. Backups are never deleted by the
// tool; retention is up to the operator.
type Manager struct {
	// now is overridable for tests.
	now func() time.Time
}

// New returns a backup Manager.
func New() *Manager {
	return &Manager{now: time.Now}
}

// Backup copies path to a sibling file suffixed with a UTC timestamp and
// verifies the copy is readable and complete before returning. A mutation
// must not proceed unless Backup succeeded.
func (m *Manager) Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	mode := os.FileMode(defaultPerm)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	backupPath := fmt.Sprintf("%s.clawguard-%s", path, m.now().UTC().Format(timestampLayout))
	if err := os.WriteFile(backupPath, data, mode); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", backupPath, err)
	}

	// Verify the backup is readable and byte-identical before anyone
	// trusts it as a rollback point.
	written, err := os.ReadFile(backupPath)
	if err != nil {
		return "", fmt.Errorf("backup %s is not readable: %w", backupPath, err)
	}
	if !bytes.Equal(data, written) {
		return "", fmt.Errorf("backup %s does not match original %s", backupPath, path)
	}

	log.Printf("[INFO] Backed up %s to %s", path, backupPath)
	return backupPath, nil
}

// Restore overwrites path with the backup verbatim.
func (m *Manager) Restore(path, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", backupPath, err)
	}

	mode := os.FileMode(defaultPerm)
	if info, statErr := os.Stat(backupPath); statErr == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to restore %s from %s: %w", path, backupPath, err)
	}
	log.Printf("[INFO] Restored %s from %s", path, backupPath)
	return nil
}
