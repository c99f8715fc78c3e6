// Package images checks whether the container images running on the
// host are behind their registries, the manual "is there an update"
// round over every stack as one command.
package images

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/compose"
	"github.com/homelab-tools/labops/pkg/config"
	"github.com/homelab-tools/labops/pkg/dockercli"
	"github.com/homelab-tools/labops/pkg/imageref"
	"github.com/homelab-tools/labops/pkg/registry"
)

// Status classifies the check outcome for one image.
type Status string

const (
	StatusUpToDate     Status = "up-to-date"
	StatusUpdate       Status = "update"
	StatusPinned       Status = "pinned"
	StatusAuthRequired Status = "auth-required"
	StatusUnknown      Status = "unknown"
)

// Check is the outcome for one container or compose service.
type Check struct {
	// Container is "-" for compose services that are not running.
	Container string
	Stack     string
	Image     string
	Status    Status
	// Reason explains unknown and auth-required results.
	Reason string
	Local  string
	Remote string
}

// Report is the outcome of an image update check.
type Report struct {
	Checks []Check
}

// Updates returns the images with a newer digest in their registry.
func (r *Report) Updates() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Status == StatusUpdate {
			out = append(out, c)
		}
	}
	return out
}

// Table renders the per-image results.
func (r *Report) Table() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTAINER\tSTACK\tIMAGE\tSTATUS")
	for _, c := range r.Checks {
		status := statusGlyph(c.Status) + " " + string(c.Status)
		if c.Reason != "" {
			status += " (" + c.Reason + ")"
		}
		stack := c.Stack
		if stack == "" {
			stack = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Container, stack, c.Image, status)
	}
	w.Flush()
	return sb.String()
}

// Summary renders the one-line closing count.
func (r *Report) Summary() string {
	counts := map[Status]int{}
	for _, c := range r.Checks {
		counts[c.Status]++
	}
	return fmt.Sprintf("%d checked: %d update(s) available, %d up to date, %d pinned, %d unchecked",
		len(r.Checks), counts[StatusUpdate], counts[StatusUpToDate], counts[StatusPinned],
		counts[StatusAuthRequired]+counts[StatusUnknown])
}

func statusGlyph(s Status) string {
	switch s {
	case StatusUpdate:
		return "↑"
	case StatusUpToDate:
		return "✓"
	case StatusPinned:
		return "·"
	default:
		return "?"
	}
}

// DigestClient resolves the remote digest of an image reference.
type DigestClient interface {
	Digest(ctx context.Context, ref imageref.Ref) (string, error)
}

// Run scans compose files and running containers and compares local
// image digests against the registries.
func Run(ctx context.Context, runner execx.Runner, client DigestClient, cfg *config.ImagesConfig) (*Report, error) {
	services, err := compose.Discover(cfg.ComposeDir)
	if err != nil {
		// A host without a stacks directory still has containers worth
		// checking.
		log.WithError(err).Warn("compose scan skipped")
	}
	log.Debugf("found %d compose service(s)", len(services))

	containers, err := dockercli.ListContainers(ctx, runner, cfg.IncludeStopped)
	if err != nil {
		return nil, err
	}

	stackByImage := make(map[string]string, len(services))
	for _, svc := range services {
		stackByImage[svc.Image] = svc.Stack
	}

	type subject struct {
		container string
		stack     string
		image     string
	}
	var subjects []subject
	seen := map[string]bool{}
	for _, c := range containers {
		subjects = append(subjects, subject{container: c.Name, stack: stackByImage[c.Image], image: c.Image})
		seen[c.Image] = true
	}
	// Compose services whose image is not running are checked too.
	for _, svc := range services {
		if seen[svc.Image] {
			continue
		}
		seen[svc.Image] = true
		subjects = append(subjects, subject{container: "-", stack: svc.Stack, image: svc.Image})
	}
	sort.SliceStable(subjects, func(i, j int) bool { return subjects[i].container < subjects[j].container })

	// One registry lookup per distinct image.
	remoteCache := map[string]checkOutcome{}
	report := &Report{}
	for _, sub := range subjects {
		check := Check{Container: sub.container, Stack: sub.stack, Image: sub.image}
		outcome, ok := remoteCache[sub.image]
		if !ok {
			outcome = checkImage(ctx, runner, client, sub.image)
			remoteCache[sub.image] = outcome
		}
		check.Status = outcome.status
		check.Reason = outcome.reason
		check.Local = outcome.local
		check.Remote = outcome.remote
		report.Checks = append(report.Checks, check)
	}
	return report, nil
}

type checkOutcome struct {
	status Status
	reason string
	local  string
	remote string
}

func checkImage(ctx context.Context, runner execx.Runner, client DigestClient, image string) checkOutcome {
	ref := imageref.Parse(image)
	if ref.Pinned() {
		return checkOutcome{status: StatusPinned}
	}

	local, err := dockercli.LocalDigest(ctx, runner, image)
	if err != nil {
		return checkOutcome{status: StatusUnknown, reason: err.Error()}
	}
	if local == "" {
		return checkOutcome{status: StatusUnknown, reason: "no local digest"}
	}

	remote, err := client.Digest(ctx, ref)
	if err != nil {
		if errors.Is(err, registry.ErrAuthRequired) {
			return checkOutcome{status: StatusAuthRequired, reason: ref.Registry, local: local}
		}
		log.WithError(err).Debugf("remote digest lookup failed for %s", image)
		return checkOutcome{status: StatusUnknown, reason: "cannot reach " + ref.Registry, local: local}
	}
	if remote == "" {
		return checkOutcome{status: StatusUnknown, reason: "registry returned no digest", local: local}
	}

	outcome := checkOutcome{local: local, remote: remote, status: StatusUpToDate}
	if local != remote {
		outcome.status = StatusUpdate
	}
	return outcome
}
