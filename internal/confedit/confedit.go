// Package confedit edits line-oriented config files such as sshd_config.
//
// The only mutation primitive is SetDirective, an idempotent key/value
// upsert: applying the same directive twice leaves the file byte-identical
// after the first call. Lookup is the matching read-side parser, used by the
// auditor so "directive absent" is distinguished from "directive set to X"
// instead of being swallowed by a grep pipeline.
package confedit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default mode for config files created from scratch.
const newFilePerm = 0o600

// Lookup returns the effective value of a directive in the given file
// content. Matching is case-insensitive on the key, which is how sshd
// treats its directives. When the directive appears multiple times the
// first active occurrence wins (sshd semantics). The second return value
// is false when no uncommented line sets the directive.
func Lookup(content, key string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		k, v, ok := splitDirective(trimmed)
		if ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// splitDirective splits "Key value" or "Key=value" into its parts.
func splitDirective(line string) (key, value string, ok bool) {
	sep := strings.IndexAny(line, " \t=")
	if sep < 0 {
		return line, "", true
	}
	return line[:sep], strings.TrimSpace(strings.TrimLeft(line[sep:], " \t=")), true
}

// SetDirective upserts "key value" into the file at path:
//
//   - the first line matching the key, commented out or not, is replaced in
//     place with the active form
//   - any later active duplicates are dropped so the effective value is
//     unambiguous
//   - if no line matches, the directive is appended
//
// The write goes through a temp file in the same directory followed by a
// rename, so a crash mid-write never leaves a truncated config. The caller
// is expected to have backed the file up first; SetDirective itself does not
// manage backups.
//
// The returned bool reports whether the file content changed. Calling again
// with the same arguments returns false and performs no write.
func SetDirective(path, key, value string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	original := string(data)
	updated := upsert(original, key, value)
	if updated == original {
		return false, nil
	}

	mode := os.FileMode(newFilePerm)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.WriteString(updated); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return true, nil
}

// upsert rewrites content so that exactly one active "key value" line
// remains for the directive.
func upsert(content, key, value string) string {
	directive := key + " " + value

	trailingNewline := strings.HasSuffix(content, "\n")
	var lines []string
	if content != "" {
		lines = strings.Split(content, "\n")
		if trailingNewline {
			lines = lines[:len(lines)-1]
		}
	}

	replaced := false
	out := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		if !matchesKey(line, key) {
			out = append(out, line)
			continue
		}
		if !replaced {
			out = append(out, directive)
			replaced = true
			continue
		}
		// Later duplicate: keep it only if it is already a comment.
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			out = append(out, line)
		}
	}
	if !replaced {
		out = append(out, directive)
	}

	result := strings.Join(out, "\n")
	if trailingNewline || content == "" {
		result += "\n"
	}
	return result
}

// matchesKey reports whether a line sets (or comments out) the directive.
// A commented line only matches when the comment is a disabled directive
// ("#PasswordAuthentication yes"), not prose mentioning the key.
func matchesKey(line, key string) bool {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimLeft(trimmed, "#")
	trimmed = strings.TrimSpace(trimmed)
	k, _, ok := splitDirective(trimmed)
	return ok && strings.EqualFold(k, key)
}
