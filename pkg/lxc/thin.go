package lxc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/internal/bytefmt"
	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
)

// lvsFields is the lvs column set the disk check parses.
const lvsFields = "lv_name,vg_name,lv_size,data_percent,metadata_percent"

// Volume is one logical volume as reported by lvs. DataPercent and
// MetaPercent are negative for volumes that are not thin.
type Volume struct {
	Name        string
	VG          string
	SizeBytes   uint64
	DataPercent float64
	MetaPercent float64
	Breach      bool
}

// Thin reports whether the volume carries thin usage data.
func (v Volume) Thin() bool {
	return v.DataPercent >= 0 || v.MetaPercent >= 0
}

// VolumeReport is the outcome of a thin volume usage check.
type VolumeReport struct {
	Threshold int
	Volumes   []Volume
}

// Breaches returns the volumes at or over the threshold.
func (r *VolumeReport) Breaches() []Volume {
	var out []Volume
	for _, v := range r.Volumes {
		if v.Breach {
			out = append(out, v)
		}
	}
	return out
}

// Table renders the volume report, terminal and mail alike.
func (r *VolumeReport) Table() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LV\tVG\tSIZE\tDATA%\tMETA%\tSTATUS")
	for _, v := range r.Volumes {
		status := "✓ ok"
		if v.Breach {
			status = fmt.Sprintf("✗ over %d%%", r.Threshold)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Name, v.VG, bytefmt.Format(v.SizeBytes),
			formatPercent(v.DataPercent), formatPercent(v.MetaPercent), status)
	}
	w.Flush()
	return sb.String()
}

func formatPercent(p float64) string {
	if p < 0 {
		return "-"
	}
	return strconv.FormatFloat(p, 'f', 2, 64)
}

// DiskCheck inspects LVM thin volume usage via lvs and marks threshold
// breaches, the lvs-to-mail cron check for the container storage pool.
func DiskCheck(ctx context.Context, runner execx.Runner, cfg *config.LXCConfig) (*VolumeReport, error) {
	if _, err := runner.LookPath(cfg.LVS); err != nil {
		return nil, errors.Wrap(err, "lvs is required, run this on the LVM host")
	}

	result, err := runner.Run(ctx, execx.Command(cfg.LVS,
		"--noheadings", "--separator", ",", "--units", "b", "--nosuffix",
		"-o", lvsFields))
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, errors.Errorf("lvs exited with status %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	volumes, err := ParseLVS(result.Stdout)
	if err != nil {
		return nil, err
	}
	return EvaluateVolumes(volumes, config.IntValue(cfg.Threshold)), nil
}

// ParseLVS parses lvs output produced with --noheadings --separator ,
// --units b --nosuffix. Empty percent columns mark non-thin volumes.
func ParseLVS(output string) ([]Volume, error) {
	var volumes []Volume
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 5 {
			return nil, errors.Errorf("unexpected lvs line %q, want 5 fields", line)
		}

		size, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad lv_size in lvs line %q", line)
		}
		data, err := parseOptionalPercent(fields[3])
		if err != nil {
			return nil, errors.Wrapf(err, "bad data_percent in lvs line %q", line)
		}
		meta, err := parseOptionalPercent(fields[4])
		if err != nil {
			return nil, errors.Wrapf(err, "bad metadata_percent in lvs line %q", line)
		}

		volumes = append(volumes, Volume{
			Name:        strings.TrimSpace(fields[0]),
			VG:          strings.TrimSpace(fields[1]),
			SizeBytes:   uint64(size),
			DataPercent: data,
			MetaPercent: meta,
		})
	}
	return volumes, nil
}

func parseOptionalPercent(field string) (float64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return -1, nil
	}
	return strconv.ParseFloat(field, 64)
}

// EvaluateVolumes keeps thin volumes and marks threshold breaches.
func EvaluateVolumes(volumes []Volume, threshold int) *VolumeReport {
	report := &VolumeReport{Threshold: threshold}
	for _, v := range volumes {
		if !v.Thin() {
			continue
		}
		v.Breach = v.DataPercent >= float64(threshold) || v.MetaPercent >= float64(threshold)
		report.Volumes = append(report.Volumes, v)
	}
	return report
}
