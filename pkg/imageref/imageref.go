// Package imageref parses docker image references into registry,
// repository and tag, following docker's own shortening rules.
package imageref

import "strings"

// DefaultRegistry is assumed for references without a registry host.
const DefaultRegistry = "docker.io"

// Ref is a parsed image reference.
type Ref struct {
	// Registry is the registry host, docker.io when the reference
	// carries none.
	Registry string
	// Repository is the full repository path, with the implicit
	// `library/` prefix applied for official docker.io images.
	Repository string
	Tag        string
	// Digest is set for digest-pinned references (image@sha256:...).
	Digest string
}

// Pinned reports whether the reference names an exact digest.
func (r Ref) Pinned() bool {
	return r.Digest != ""
}

// String renders the reference in its canonical long form.
func (r Ref) String() string {
	if r.Pinned() {
		return r.Registry + "/" + r.Repository + "@" + r.Digest
	}
	return r.Registry + "/" + r.Repository + ":" + r.Tag
}

// Parse splits an image reference like `ghcr.io/owner/app:v1`,
// `grafana/grafana` or `nginx` into its parts. The first path segment is
// treated as a registry host only when it contains a dot or colon or is
// `localhost`.
func Parse(image string) Ref {
	ref := Ref{Registry: DefaultRegistry, Tag: "latest"}

	rest := image
	if at := strings.Index(rest, "@"); at >= 0 {
		ref.Digest = rest[at+1:]
		rest = rest[:at]
	}

	if idx := strings.Index(rest, "/"); idx >= 0 {
		first := rest[:idx]
		if strings.ContainsAny(first, ".:") || first == "localhost" {
			ref.Registry = first
			rest = rest[idx+1:]
		}
	}

	// The tag separator is the last colon after the final slash, so
	// registry ports never split here.
	if idx := strings.LastIndex(rest, ":"); idx >= 0 && !strings.Contains(rest[idx:], "/") {
		if !ref.Pinned() {
			ref.Tag = rest[idx+1:]
		}
		rest = rest[:idx]
	}
	if ref.Pinned() {
		ref.Tag = ""
	}

	ref.Repository = rest
	if ref.Registry == DefaultRegistry && !strings.Contains(ref.Repository, "/") {
		ref.Repository = "library/" + ref.Repository
	}
	return ref
}
