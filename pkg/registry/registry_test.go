package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab-tools/labops/pkg/imageref"
)

func testClient(registryBase, authBase map[string]string) *Client {
	c := NewClient(5 * time.Second)
	c.registryBase = registryBase
	c.authBase = authBase
	return c
}

func TestDockerHubDigest(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "registry.docker.io", r.URL.Query().Get("service"))
		assert.Equal(t, "repository:library/nginx:pull", r.URL.Query().Get("scope"))
		w.Write([]byte(`{"token":"hub-token"}`))
	}))
	defer auth.Close()

	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/v2/library/nginx/manifests/latest", r.URL.Path)
		assert.Equal(t, "Bearer hub-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Accept"), "manifest.v2+json")
		w.Header().Set("Docker-Content-Digest", "sha256:remote111")
		w.WriteHeader(http.StatusOK)
	}))
	defer reg.Close()

	client := testClient(
		map[string]string{"docker.io": reg.URL},
		map[string]string{"docker.io": auth.URL},
	)

	digest, err := client.Digest(context.Background(), imageref.Parse("nginx"))
	require.NoError(t, err)
	assert.Equal(t, "sha256:remote111", digest)
}

func TestGHCRDigestFallsBackToBodyHash(t *testing.T) {
	manifest := []byte(`{"schemaVersion":2}`)
	sum := sha256.Sum256(manifest)

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"ghcr-token"}`))
	}))
	defer auth.Close()

	// No Docker-Content-Digest header at all: HEAD yields nothing, GET
	// body is hashed.
	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghcr-token", r.Header.Get("Authorization"))
		if r.Method == http.MethodGet {
			w.Write(manifest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer reg.Close()

	client := testClient(
		map[string]string{"ghcr.io": reg.URL},
		map[string]string{"ghcr.io": auth.URL},
	)

	digest, err := client.Digest(context.Background(), imageref.Parse("ghcr.io/owner/app:v1"))
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+hex.EncodeToString(sum[:]), digest)
}

func TestGHCRDigestFromHeadHeader(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"t"}`))
	}))
	defer auth.Close()

	var gets int
	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets++
		}
		w.Header().Set("Docker-Content-Digest", "sha256:fromhead")
		w.WriteHeader(http.StatusOK)
	}))
	defer reg.Close()

	client := testClient(
		map[string]string{"ghcr.io": reg.URL},
		map[string]string{"ghcr.io": auth.URL},
	)

	digest, err := client.Digest(context.Background(), imageref.Parse("ghcr.io/owner/app"))
	require.NoError(t, err)
	assert.Equal(t, "sha256:fromhead", digest)
	assert.Zero(t, gets, "HEAD header should make the GET unnecessary")
}

func TestGenericRegistryDigest(t *testing.T) {
	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Write([]byte(`{"token":"generic-token"}`))
		case "/v2/n8nio/n8n/manifests/latest":
			assert.Equal(t, "Bearer generic-token", r.Header.Get("Authorization"))
			w.Header().Set("Docker-Content-Digest", "sha256:generic222")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer reg.Close()

	client := testClient(
		map[string]string{"docker.n8n.io": reg.URL},
		map[string]string{"docker.n8n.io": reg.URL},
	)

	digest, err := client.Digest(context.Background(), imageref.Parse("docker.n8n.io/n8nio/n8n"))
	require.NoError(t, err)
	assert.Equal(t, "sha256:generic222", digest)
}

func TestGenericRegistryAuthRequired(t *testing.T) {
	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer reg.Close()

	client := testClient(
		map[string]string{"registry.example.net": reg.URL},
		map[string]string{"registry.example.net": reg.URL},
	)

	_, err := client.Digest(context.Background(), imageref.Parse("registry.example.net/private/app"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthRequired))
}

func TestManifestNotFound(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"t"}`))
	}))
	defer auth.Close()

	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer reg.Close()

	client := testClient(
		map[string]string{"docker.io": reg.URL},
		map[string]string{"docker.io": auth.URL},
	)

	_, err := client.Digest(context.Background(), imageref.Parse("nginx:no-such-tag"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
