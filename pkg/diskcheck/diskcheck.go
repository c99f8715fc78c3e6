// Package diskcheck reports filesystem usage against a threshold, the
// df-to-mail cron check rebuilt on live partition data.
package diskcheck

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/homelab-tools/labops/internal/bytefmt"
	"github.com/homelab-tools/labops/pkg/config"
)

// Mount is the usage of one mounted filesystem.
type Mount struct {
	Mountpoint  string
	Device      string
	FSType      string
	Total       uint64
	Used        uint64
	Free        uint64
	UsedPercent int
	Breach      bool
}

// Report is the outcome of a disk check.
type Report struct {
	Threshold int
	Mounts    []Mount
}

// Breaches returns the mounts at or over the threshold.
func (r *Report) Breaches() []Mount {
	var out []Mount
	for _, m := range r.Mounts {
		if m.Breach {
			out = append(out, m)
		}
	}
	return out
}

// Table renders the report in df-like columns. The same text goes to the
// terminal and into alert mail.
func (r *Report) Table() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MOUNT\tDEVICE\tSIZE\tUSED\tAVAIL\tUSE%\tSTATUS")
	for _, m := range r.Mounts {
		status := "✓ ok"
		if m.Breach {
			status = fmt.Sprintf("✗ over %d%%", r.Threshold)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d%%\t%s\n",
			m.Mountpoint, m.Device,
			bytefmt.Format(m.Total), bytefmt.Format(m.Used), bytefmt.Format(m.Free),
			m.UsedPercent, status)
	}
	w.Flush()
	return sb.String()
}

// Check gathers mounted filesystems and evaluates them against the config.
func Check(ctx context.Context, cfg *config.DiskConfig) (*Report, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list partitions")
	}

	var mounts []Mount
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			log.WithError(err).Debugf("skipping %s", p.Mountpoint)
			continue
		}
		if usage.Total == 0 {
			continue
		}
		mounts = append(mounts, Mount{
			Mountpoint:  p.Mountpoint,
			Device:      p.Device,
			FSType:      p.Fstype,
			Total:       usage.Total,
			Used:        usage.Used,
			Free:        usage.Free,
			UsedPercent: int(math.Ceil(usage.UsedPercent)),
		})
	}

	return Evaluate(mounts, cfg), nil
}

// Evaluate filters excluded filesystems, deduplicates bind mounts and marks
// threshold breaches.
func Evaluate(mounts []Mount, cfg *config.DiskConfig) *Report {
	threshold := config.IntValue(cfg.Threshold)

	excludeFS := make(map[string]bool, len(cfg.ExcludeFSTypes))
	for _, fs := range cfg.ExcludeFSTypes {
		excludeFS[strings.ToLower(fs)] = true
	}
	excludeMount := make(map[string]bool, len(cfg.ExcludeMounts))
	for _, m := range cfg.ExcludeMounts {
		excludeMount[m] = true
	}

	seen := make(map[string]bool, len(mounts))
	report := &Report{Threshold: threshold}
	for _, m := range mounts {
		if excludeFS[strings.ToLower(m.FSType)] || excludeMount[m.Mountpoint] {
			continue
		}
		if seen[m.Mountpoint] {
			continue
		}
		seen[m.Mountpoint] = true
		m.Breach = m.UsedPercent >= threshold
		report.Mounts = append(report.Mounts, m)
	}

	sort.Slice(report.Mounts, func(i, j int) bool {
		return report.Mounts[i].Mountpoint < report.Mounts[j].Mountpoint
	})
	return report
}
