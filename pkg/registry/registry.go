// Package registry fetches image manifest digests from container
// registries over their public HTTP APIs. Docker Hub and GHCR have
// dedicated token flows, anything else is treated as a generic OCI
// registry with anonymous auth.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/pkg/imageref"
)

// ErrAuthRequired marks registries that refuse anonymous access. The
// image is reported as unverifiable, not as an error.
var ErrAuthRequired = errors.New("registry requires authentication")

// acceptManifests lists the manifest media types the digest lookup
// understands, multi-arch index types included.
const acceptManifests = "application/vnd.docker.distribution.manifest.v2+json," +
	"application/vnd.oci.image.manifest.v1+json," +
	"application/vnd.oci.image.index.v1+json," +
	"application/vnd.docker.distribution.manifest.list.v2+json"

const userAgent = "labops"

// Client looks up manifest digests.
type Client struct {
	httpClient *http.Client

	// registryBase and authBase override endpoint URLs per registry
	// host; tests point them at local servers.
	registryBase map[string]string
	authBase     map[string]string
}

// NewClient returns a Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &manifestTransport{
				Base: http.DefaultTransport,
			},
		},
	}
}

// manifestTransport adds the manifest Accept header and user agent to
// every request.
type manifestTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface.
func (t *manifestTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Accept", acceptManifests)
	req2.Header.Set("User-Agent", userAgent)
	return t.Base.RoundTrip(req2)
}

// Digest returns the current manifest digest for ref, as published by
// its registry.
func (c *Client) Digest(ctx context.Context, ref imageref.Ref) (string, error) {
	switch ref.Registry {
	case "docker.io":
		return c.dockerHubDigest(ctx, ref)
	case "ghcr.io":
		return c.ghcrDigest(ctx, ref)
	default:
		return c.genericDigest(ctx, ref)
	}
}

// dockerHubDigest follows the Docker Hub flow: anonymous pull token,
// then a HEAD on the manifest.
func (c *Client) dockerHubDigest(ctx context.Context, ref imageref.Ref) (string, error) {
	tokenURL := c.authEndpoint("docker.io", "https://auth.docker.io") +
		"/token?service=registry.docker.io&scope=repository:" + ref.Repository + ":pull"
	token, err := c.fetchToken(ctx, tokenURL)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.Errorf("docker hub issued no pull token for %s", ref.Repository)
	}

	base := c.registryEndpoint("docker.io", "https://registry-1.docker.io")
	return c.manifestDigest(ctx, http.MethodHead, base, ref, token)
}

// ghcrDigest follows the GHCR flow: optional anonymous token, HEAD
// first, GET with a body hash fallback.
func (c *Client) ghcrDigest(ctx context.Context, ref imageref.Ref) (string, error) {
	tokenURL := c.authEndpoint("ghcr.io", "https://ghcr.io") +
		"/token?scope=repository:" + ref.Repository + ":pull"
	token, err := c.fetchToken(ctx, tokenURL)
	if err != nil {
		log.WithError(err).Debugf("ghcr token fetch failed for %s", ref.Repository)
	}

	base := c.registryEndpoint("ghcr.io", "https://ghcr.io")
	digest, err := c.manifestDigest(ctx, http.MethodHead, base, ref, token)
	if err == nil && digest != "" {
		return digest, nil
	}
	return c.manifestDigest(ctx, http.MethodGet, base, ref, token)
}

// genericDigest treats the registry as a plain OCI registry: try the
// two common anonymous token endpoints, then GET the manifest.
func (c *Client) genericDigest(ctx context.Context, ref imageref.Ref) (string, error) {
	var token string
	if override, ok := c.authBase[ref.Registry]; ok {
		token, _ = c.fetchToken(ctx, override+"/token?scope=repository:"+ref.Repository+":pull")
	} else {
		for _, authBase := range []string{"https://" + ref.Registry, "https://auth." + ref.Registry} {
			t, err := c.fetchToken(ctx, authBase+"/token?scope=repository:"+ref.Repository+":pull")
			if err == nil && t != "" {
				token = t
				break
			}
		}
	}

	base := c.registryEndpoint(ref.Registry, "https://"+ref.Registry)
	return c.manifestDigest(ctx, http.MethodGet, base, ref, token)
}

// manifestDigest requests the manifest and extracts its digest, from
// the Docker-Content-Digest header or by hashing the GET body.
func (c *Client) manifestDigest(ctx context.Context, method, base string, ref imageref.Ref, token string) (string, error) {
	url := base + "/v2/" + ref.Repository + "/manifests/" + ref.Tag
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build manifest request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "cannot reach %s", ref.Registry)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", errors.Wrapf(ErrAuthRequired, "%s", ref.Registry)
	case resp.StatusCode != http.StatusOK:
		return "", errors.Errorf("%s returned status %d for %s:%s",
			ref.Registry, resp.StatusCode, ref.Repository, ref.Tag)
	}

	if digest := resp.Header.Get("Docker-Content-Digest"); digest != "" {
		return digest, nil
	}
	if method == http.MethodHead {
		return "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read manifest body")
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// fetchToken requests an anonymous pull token. A non-200 response is an
// error, a 200 without a token field returns "".
func (c *Client) fetchToken(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build token request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "failed to decode token response")
	}
	return payload.Token, nil
}

func (c *Client) registryEndpoint(host, fallback string) string {
	if override, ok := c.registryBase[host]; ok {
		return override
	}
	return fallback
}

func (c *Client) authEndpoint(host, fallback string) string {
	if override, ok := c.authBase[host]; ok {
		return override
	}
	return fallback
}
