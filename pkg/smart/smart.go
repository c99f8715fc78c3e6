// Package smart scans disks with smartctl and reports their health
// status, replacing the smartctl-to-mail cron check.
package smart

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
)

// Status is the health verdict for one device.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusUnknown Status = "UNKNOWN"
)

// Device identifies a disk and the smartctl device type needed to talk
// to it.
type Device struct {
	Path string
	Type string
}

// Result is the health outcome for one device.
type Result struct {
	Device Device
	Status Status
	Detail string
}

// Report is the outcome of a SMART scan.
type Report struct {
	Results []Result
}

// Failures returns the devices whose health check failed.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// AllUnknown reports whether not a single device could be read.
func (r *Report) AllUnknown() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if res.Status != StatusUnknown {
			return false
		}
	}
	return true
}

// Table renders the report, terminal and mail alike.
func (r *Report) Table() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tTYPE\tSTATUS\tDETAIL")
	for _, res := range r.Results {
		glyph := "✓"
		switch res.Status {
		case StatusFailed:
			glyph = "✗"
		case StatusUnknown:
			glyph = "?"
		}
		typ := res.Device.Type
		if typ == "" {
			typ = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\n", res.Device.Path, typ, glyph, res.Status, res.Detail)
	}
	w.Flush()
	return sb.String()
}

// smartctl exit status bits, per smartctl(8).
const (
	exitOpenFailed  = 1 << 1
	exitDiskFailing = 1 << 3
)

// Check discovers devices and runs a health check on each.
func Check(ctx context.Context, runner execx.Runner, cfg *config.SmartConfig) (*Report, error) {
	if _, err := runner.LookPath(cfg.Smartctl); err != nil {
		return nil, errors.Wrap(err, "smartctl is required, install smartmontools")
	}

	var devices []Device
	if len(cfg.Devices) > 0 {
		for _, path := range cfg.Devices {
			devices = append(devices, Device{Path: path})
		}
	} else {
		var err error
		devices, err = Scan(ctx, runner, cfg.Smartctl)
		if err != nil {
			return nil, err
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("no SMART capable devices found")
	}

	report := &Report{}
	for _, dev := range devices {
		args := []string{"-H"}
		if dev.Type != "" {
			args = append(args, "-d", dev.Type)
		}
		args = append(args, dev.Path)

		result, err := runner.Run(ctx, execx.Command(cfg.Smartctl, args...))
		if err != nil {
			return nil, err
		}
		status, detail := parseHealth(result.Stdout, result.ExitCode)
		if status == StatusFailed {
			log.Warnf("%s: %s", dev.Path, detail)
		} else {
			log.Debugf("%s: %s", dev.Path, status)
		}
		report.Results = append(report.Results, Result{Device: dev, Status: status, Detail: detail})
	}
	return report, nil
}

// Scan lists devices via `smartctl --scan`.
func Scan(ctx context.Context, runner execx.Runner, smartctl string) ([]Device, error) {
	result, err := runner.Run(ctx, execx.Command(smartctl, "--scan"))
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, errors.Errorf("smartctl --scan exited with status %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return ParseScan(result.Stdout), nil
}

// ParseScan parses `smartctl --scan` output lines of the form
//
//	/dev/sda -d sat # /dev/sda [SAT], ATA device
func ParseScan(output string) []Device {
	var devices []Device
	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		dev := Device{Path: fields[0]}
		for i := 1; i < len(fields)-1; i++ {
			if fields[i] == "-d" {
				dev.Type = fields[i+1]
				break
			}
		}
		devices = append(devices, dev)
	}
	return devices
}

// parseHealth interprets `smartctl -H` output. The failing-disk exit bit
// wins over the text; ATA/NVMe and SCSI phrasings are both understood.
func parseHealth(output string, exitCode int) (Status, string) {
	if exitCode&exitDiskFailing != 0 {
		return StatusFailed, "smartctl reports failing disk"
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := cutPrefix(line, "SMART overall-health self-assessment test result:"); ok {
			if strings.EqualFold(rest, "PASSED") {
				return StatusPassed, line
			}
			return StatusFailed, line
		}
		if rest, ok := cutPrefix(line, "SMART Health Status:"); ok {
			if strings.EqualFold(rest, "OK") {
				return StatusPassed, line
			}
			return StatusFailed, line
		}
	}

	if exitCode&exitOpenFailed != 0 {
		return StatusUnknown, "device could not be opened"
	}
	return StatusUnknown, "no health status in smartctl output"
}

func cutPrefix(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}
