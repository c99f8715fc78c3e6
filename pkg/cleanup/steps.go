// Package cleanup frees disk space by running the usual maintenance
// chores in sequence: package caches, journals, docker leftovers, stale
// temp files. Steps are independent, a failing step never stops the run.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
	"github.com/homelab-tools/labops/pkg/hooks"
)

// Step is one cleanup chore.
type Step struct {
	Name    string
	Summary string
	// Gate is the binary whose presence enables the step; the step is
	// skipped when it is not installed. Empty means always runnable.
	Gate      string
	NeedsRoot bool
	// Run performs the step and returns a human-readable detail line.
	Run func(ctx context.Context, runner execx.Runner) (string, error)
}

// Steps builds the built-in step list in execution order, bound to the
// config's vacuum and age settings.
func Steps(cfg *config.CleanupConfig) []Step {
	tmpAge := strconv.Itoa(config.IntValue(cfg.TmpAgeDays))
	steps := []Step{
		commandStep("apt-clean", "clear the apt package cache", "apt-get", true,
			"clean"),
		commandStep("apt-autoclean", "drop obsolete packages from the apt cache", "apt-get", true,
			"autoclean", "-y"),
		commandStep("apt-autoremove", "remove packages no longer needed", "apt-get", true,
			"autoremove", "--purge", "-y"),
		commandStep("journal-vacuum", "vacuum the systemd journal", "journalctl", true,
			"--vacuum-time="+cfg.JournalVacuum),
		commandStep("docker-prune", "prune unused docker data", "docker", false,
			"system", "prune", "-af"),
		commandStep("docker-volumes", "prune unused docker volumes", "docker", false,
			"volume", "prune", "-f"),
		snapOldRevisionsStep(),
		commandStep("flatpak-unused", "uninstall unused flatpak runtimes", "flatpak", false,
			"uninstall", "--unused", "-y"),
		commandStep("pip-cache", "purge the pip download cache", "pip3", false,
			"cache", "purge"),
		commandStep("npm-cache", "clear the npm cache", "npm", false,
			"cache", "clean", "--force"),
		commandStep("tmp-files", "delete old files under /tmp", "find", true,
			"/tmp", "-xdev", "-type", "f", "-atime", "+"+tmpAge, "-delete"),
		thumbnailCacheStep(),
		commandStep("fstrim", "trim all mounted filesystems", "fstrim", true,
			"-av"),
		oldLogsStep(),
	}

	for _, extra := range cfg.Extra {
		steps = append(steps, extraStep(extra))
	}
	return steps
}

// commandStep wraps a single external command invocation.
func commandStep(name, summary, bin string, needsRoot bool, args ...string) Step {
	return Step{
		Name:      name,
		Summary:   summary,
		Gate:      bin,
		NeedsRoot: needsRoot,
		Run: func(ctx context.Context, runner execx.Runner) (string, error) {
			return runCommand(ctx, runner, bin, args...)
		},
	}
}

func runCommand(ctx context.Context, runner execx.Runner, bin string, args ...string) (string, error) {
	result, err := runner.Run(ctx, execx.Command(bin, args...))
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		detail := lastNonEmptyLine(result.Stderr)
		if detail == "" {
			detail = lastNonEmptyLine(result.Stdout)
		}
		return "", errors.Errorf("%s exited with status %d: %s", bin, result.ExitCode, detail)
	}
	return lastNonEmptyLine(result.Stdout), nil
}

// snapOldRevisionsStep removes disabled snap revisions kept around after
// updates, the `snap list --all | awk` dance from the original script.
func snapOldRevisionsStep() Step {
	return Step{
		Name:      "snap-old-revisions",
		Summary:   "remove disabled snap revisions",
		Gate:      "snap",
		NeedsRoot: true,
		Run: func(ctx context.Context, runner execx.Runner) (string, error) {
			result, err := runner.Run(ctx, execx.Command("snap", "list", "--all"))
			if err != nil {
				return "", err
			}
			if result.ExitCode != 0 {
				return "", errors.Errorf("snap list exited with status %d", result.ExitCode)
			}

			removed := 0
			for _, rev := range ParseDisabledSnaps(result.Stdout) {
				res, err := runner.Run(ctx, execx.Command("snap", "remove", rev.Name, "--revision="+rev.Revision))
				if err != nil {
					return "", err
				}
				if res.ExitCode != 0 {
					return "", errors.Errorf("snap remove %s --revision=%s exited with status %d",
						rev.Name, rev.Revision, res.ExitCode)
				}
				removed++
			}
			if removed == 0 {
				return "no disabled revisions", nil
			}
			return fmt.Sprintf("removed %d disabled revision(s)", removed), nil
		},
	}
}

// SnapRevision identifies one disabled snap revision.
type SnapRevision struct {
	Name     string
	Revision string
}

// ParseDisabledSnaps extracts disabled revisions from `snap list --all`
// output.
func ParseDisabledSnaps(output string) []SnapRevision {
	var revisions []SnapRevision
	for i, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 6 {
			continue
		}
		// Notes column; disabled revisions carry the "disabled" note.
		if !strings.Contains(fields[5], "disabled") {
			continue
		}
		revisions = append(revisions, SnapRevision{Name: fields[0], Revision: fields[2]})
	}
	return revisions
}

// thumbnailCacheStep empties ~/.cache/thumbnails without shelling out.
func thumbnailCacheStep() Step {
	return Step{
		Name:    "thumbnail-cache",
		Summary: "empty the thumbnail cache",
		Run: func(_ context.Context, _ execx.Runner) (string, error) {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", errors.Wrap(err, "failed to determine home directory")
			}
			dir := filepath.Join(home, ".cache", "thumbnails")
			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					return "no thumbnail cache", nil
				}
				return "", errors.Wrapf(err, "failed to read %s", dir)
			}
			for _, entry := range entries {
				if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
					return "", errors.Wrapf(err, "failed to remove %s", entry.Name())
				}
			}
			return fmt.Sprintf("removed %d entries", len(entries)), nil
		},
	}
}

// oldLogsStep deletes rotated logs that logrotate already compressed or
// aged out.
func oldLogsStep() Step {
	return Step{
		Name:      "old-logs",
		Summary:   "delete rotated logs older than 30 days",
		Gate:      "find",
		NeedsRoot: true,
		Run: func(ctx context.Context, runner execx.Runner) (string, error) {
			for _, pattern := range []string{"*.gz", "*.1"} {
				if _, err := runCommand(ctx, runner, "find",
					"/var/log", "-name", pattern, "-type", "f", "-mtime", "+30", "-delete"); err != nil {
					return "", err
				}
			}
			return "", nil
		},
	}
}

// extraStep runs a user-configured shell snippet with the embedded
// interpreter.
func extraStep(cfg config.ExtraStep) Step {
	return Step{
		Name:    cfg.Name,
		Summary: "extra step from config",
		Run: func(ctx context.Context, _ execx.Runner) (string, error) {
			result, err := hooks.Run(ctx, cfg.Name, cfg.Script, nil)
			if err != nil {
				return "", err
			}
			if result.ExitCode != 0 {
				return "", errors.Errorf("%s exited with status %d: %s",
					cfg.Name, result.ExitCode, lastNonEmptyLine(result.Stderr))
			}
			return lastNonEmptyLine(result.Stdout), nil
		},
	}
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
