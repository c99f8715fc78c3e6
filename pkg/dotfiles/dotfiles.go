// Package dotfiles patches .bashrc aliases and .vimrc settings in place,
// idempotently: a line already in its desired form is left alone, a stale
// variant is replaced, a missing one is appended. Unmanaged content is
// never touched.
package dotfiles

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Action describes what happened to a managed line.
type Action string

const (
	ActionAdded     Action = "added"
	ActionReplaced  Action = "replaced"
	ActionUnchanged Action = "unchanged"
)

// Entry is one managed line.
type Entry struct {
	// Match identifies existing variants of the line. A file line matches
	// when, after trimming, it equals Match or continues it with '=',
	// space or tab.
	Match string
	// Line is the desired content.
	Line string
}

// Change records the outcome for one managed line.
type Change struct {
	File   string
	Line   string
	Action Action
}

// Options control how files are patched.
type Options struct {
	DryRun bool
	// BackupSuffix, when non-empty, copies an existing file to
	// path+BackupSuffix before the first modification of a run.
	BackupSuffix string
}

const defaultFileMode = os.FileMode(0644)

// EnsureLines patches path so that every entry appears exactly once in its
// desired form. A missing file is created. The file is written only when
// something actually changed.
func EnsureLines(path string, entries []Entry, opts Options) ([]Change, error) {
	original, existed, mode, err := readFile(path)
	if err != nil {
		return nil, err
	}

	lines := splitLines(original)
	changes := make([]Change, 0, len(entries))
	modified := false

	for _, entry := range entries {
		var result Action
		lines, result = ensureLine(lines, entry)
		if result != ActionUnchanged {
			modified = true
		}
		changes = append(changes, Change{File: path, Line: entry.Line, Action: result})
	}

	if !modified || opts.DryRun {
		return changes, nil
	}

	if existed && opts.BackupSuffix != "" {
		backupPath := path + opts.BackupSuffix
		if err := os.WriteFile(backupPath, []byte(original), mode); err != nil {
			return nil, errors.Wrapf(err, "failed to write backup %s", backupPath)
		}
		log.Debugf("backed up %s to %s", path, backupPath)
	}

	if !existed {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory for %s", path)
		}
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", path)
	}
	log.Debugf("updated %s", path)
	return changes, nil
}

// ensureLine applies a single entry to the line set. The first matching
// line is rewritten in place and later duplicates are dropped; with no
// match the line is appended.
func ensureLine(lines []string, entry Entry) ([]string, Action) {
	matchIdx := -1
	out := lines[:0:0]
	dropped := false
	for _, line := range lines {
		if matchesEntry(line, entry.Match) {
			if matchIdx == -1 {
				matchIdx = len(out)
				out = append(out, line)
				continue
			}
			dropped = true
			continue
		}
		out = append(out, line)
	}

	if matchIdx == -1 {
		return append(out, entry.Line), ActionAdded
	}
	if normalize(out[matchIdx]) == normalize(entry.Line) && !dropped {
		return out, ActionUnchanged
	}
	indent := out[matchIdx][:len(out[matchIdx])-len(strings.TrimLeft(out[matchIdx], " \t"))]
	out[matchIdx] = indent + entry.Line
	return out, ActionReplaced
}

// matchesEntry reports whether a file line is a variant of the managed
// line identified by match.
func matchesEntry(line, match string) bool {
	trimmed := normalize(line)
	if !strings.HasPrefix(trimmed, match) {
		return false
	}
	if len(trimmed) == len(match) || strings.HasSuffix(match, "=") {
		return true
	}
	switch trimmed[len(match)] {
	case ' ', '\t', '=':
		return true
	}
	return false
}

// normalize trims surrounding whitespace and a trailing CR so comparisons
// tolerate CRLF files and stray spaces.
func normalize(line string) string {
	return strings.TrimSpace(strings.TrimSuffix(line, "\r"))
}

func readFile(path string) (content string, existed bool, mode os.FileMode, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", false, defaultFileMode, nil
		}
		return "", false, 0, errors.Wrapf(statErr, "failed to stat %s", path)
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return "", false, 0, errors.Wrapf(readErr, "failed to read %s", path)
	}
	return string(data), true, info.Mode().Perm(), nil
}

// splitLines splits file content without producing a phantom empty line
// for the trailing newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}
