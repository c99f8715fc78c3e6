package lxc

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/homelab-tools/labops/internal/bytefmt"
)

// TrimResult is the outcome of `pct fstrim` for one container.
type TrimResult struct {
	Container    Container
	TrimmedBytes uint64
	// FailReason is empty on success.
	FailReason string
}

// TrimReport is the outcome of a trim run.
type TrimReport struct {
	Results []TrimResult
	Skipped []Container
}

// Succeeded returns the containers that were trimmed without error.
func (r *TrimReport) Succeeded() []TrimResult {
	var out []TrimResult
	for _, tr := range r.Results {
		if tr.FailReason == "" {
			out = append(out, tr)
		}
	}
	return out
}

// TotalTrimmed sums the bytes trimmed across all containers.
func (r *TrimReport) TotalTrimmed() uint64 {
	var total uint64
	for _, tr := range r.Results {
		total += tr.TrimmedBytes
	}
	return total
}

// Table renders the trim run summary.
func (r *TrimReport) Table() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VMID\tNAME\tTRIMMED\tSTATUS")
	for _, tr := range r.Results {
		status := "✓ done"
		trimmed := bytefmt.Format(tr.TrimmedBytes)
		if tr.FailReason != "" {
			status = "✗ " + tr.FailReason
			trimmed = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", tr.Container.VMID, tr.Container.Name, trimmed, status)
	}
	for _, c := range r.Skipped {
		fmt.Fprintf(w, "%d\t%s\t-\t- %s\n", c.VMID, c.Name, c.Status)
	}
	w.Flush()
	return sb.String()
}
