// Package dockercli reads container and image state from the docker CLI.
// Only read-only subcommands are used; nothing here mutates the daemon.
package dockercli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/internal/execx"
)

// Container is one row of `docker ps`.
type Container struct {
	ID      string `json:"ID"`
	Name    string `json:"Names"`
	Image   string `json:"Image"`
	State   string `json:"State"`
	Created string `json:"CreatedAt"`
}

// ListContainers returns the containers known to the daemon, running
// only unless includeStopped is set.
func ListContainers(ctx context.Context, runner execx.Runner, includeStopped bool) ([]Container, error) {
	if _, err := runner.LookPath("docker"); err != nil {
		return nil, errors.Wrap(err, "docker is required for the image check")
	}

	args := []string{"ps", "--format", "{{json .}}"}
	if includeStopped {
		args = append(args, "-a")
	}
	result, err := runner.Run(ctx, execx.Command("docker", args...))
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, errors.Errorf("docker ps exited with status %d: %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return ParseContainers(result.Stdout)
}

// ParseContainers parses `docker ps --format '{{json .}}'` output, one
// JSON object per line.
func ParseContainers(output string) ([]Container, error) {
	var containers []Container
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var c Container
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, errors.Wrapf(err, "bad docker ps line %q", line)
		}
		containers = append(containers, c)
	}
	return containers, nil
}

// LocalDigest returns the digest the local copy of image was pulled by.
// RepoDigests is preferred; image builds without one fall back to the
// image ID. An empty result means the image is not present locally.
func LocalDigest(ctx context.Context, runner execx.Runner, image string) (string, error) {
	result, err := runner.Run(ctx, execx.Command("docker", "image", "inspect", image,
		"--format", "{{json .RepoDigests}}"))
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		log.Debugf("no local image for %s", image)
		return "", nil
	}

	var repoDigests []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(result.Stdout)), &repoDigests); err == nil {
		for _, rd := range repoDigests {
			if at := strings.Index(rd, "@sha256:"); at >= 0 {
				return rd[at+1:], nil
			}
		}
	}

	result, err = runner.Run(ctx, execx.Command("docker", "image", "inspect", image,
		"--format", "{{.Id}}"))
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", nil
	}
	id := strings.TrimSpace(result.Stdout)
	if strings.HasPrefix(id, "sha256:") {
		return id, nil
	}
	return "", nil
}
