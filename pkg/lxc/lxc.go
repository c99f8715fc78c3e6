// Package lxc wraps the Proxmox pct and LVM lvs tools for container
// filesystem trimming and thin volume usage checks.
package lxc

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
)

// Container is one row of `pct list`.
type Container struct {
	VMID   int
	Status string
	Lock   string
	Name   string
}

// Running reports whether the container is up.
func (c Container) Running() bool {
	return c.Status == "running"
}

// List returns the containers known to the host.
func List(ctx context.Context, runner execx.Runner, pct string) ([]Container, error) {
	if _, err := runner.LookPath(pct); err != nil {
		return nil, errors.Wrap(err, "pct is required, run this on the Proxmox host")
	}

	result, err := runner.Run(ctx, execx.Command(pct, "list"))
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, errors.Errorf("pct list exited with status %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return ParseList(result.Stdout), nil
}

// ParseList parses `pct list` output. The Lock column is frequently empty,
// so rows are read as VMID, Status, [Lock,] Name.
func ParseList(output string) []Container {
	var containers []Container
	for i, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if i == 0 && strings.EqualFold(fields[0], "VMID") {
			continue
		}
		vmid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		c := Container{VMID: vmid, Status: fields[1]}
		switch len(fields) {
		case 2:
		case 3:
			c.Name = fields[2]
		default:
			c.Lock = fields[2]
			c.Name = fields[3]
		}
		containers = append(containers, c)
	}
	return containers
}

var trimmedBytesPattern = regexp.MustCompile(`\((\d+) bytes\) trimmed`)

// ParseTrimmedBytes sums the byte counts reported by fstrim output lines
// like "/: 1.5 GiB (1610612736 bytes) trimmed".
func ParseTrimmedBytes(output string) uint64 {
	var total uint64
	for _, m := range trimmedBytesPattern.FindAllStringSubmatch(output, -1) {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

// Trim runs `pct fstrim` for every running container, continuing past
// per-container failures.
func Trim(ctx context.Context, runner execx.Runner, cfg *config.LXCConfig) (*TrimReport, error) {
	containers, err := List(ctx, runner, cfg.PCT)
	if err != nil {
		return nil, err
	}

	report := &TrimReport{}
	for _, c := range containers {
		if !c.Running() {
			log.Debugf("skipping %d (%s): %s", c.VMID, c.Name, c.Status)
			report.Skipped = append(report.Skipped, c)
			continue
		}

		result, runErr := runner.Run(ctx, execx.Command(cfg.PCT, "fstrim", strconv.Itoa(c.VMID)))
		tr := TrimResult{Container: c}
		switch {
		case runErr != nil:
			return nil, runErr
		case result.ExitCode != 0:
			tr.FailReason = lastLine(result.Stderr)
			if tr.FailReason == "" {
				tr.FailReason = "exit status " + strconv.Itoa(result.ExitCode)
			}
			log.Warnf("fstrim failed for %d (%s): %s", c.VMID, c.Name, tr.FailReason)
		default:
			tr.TrimmedBytes = ParseTrimmedBytes(result.Stdout)
			log.Infof("trimmed %d (%s)", c.VMID, c.Name)
		}
		report.Results = append(report.Results, tr)
	}

	if len(report.Results) > 0 && len(report.Succeeded()) == 0 {
		return report, errors.New("fstrim failed for every running container")
	}
	return report, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
