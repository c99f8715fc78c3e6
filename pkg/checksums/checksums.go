// Package checksums computes and verifies the .sha256 sidecar files
// written next to backup archives. Sidecars use the coreutils
// `sha256sum` format so they can be checked by hand with
// `sha256sum -c`.
package checksums

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// SidecarSuffix is appended to the archive filename to form its
// checksum sidecar.
const SidecarSuffix = ".sha256"

// ComputeHash calculates the hash of a file using the specified algorithm.
func ComputeHash(path string, algorithm string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	var h hash.Hash
	switch strings.ToLower(algorithm) {
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return "", errors.Errorf("unsupported hash algorithm: %s", algorithm)
	}

	if _, err := io.Copy(h, file); err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteSidecar computes the sha256 of archivePath and writes it to
// archivePath + SidecarSuffix. It returns the hex digest.
func WriteSidecar(archivePath string) (string, error) {
	digest, err := ComputeHash(archivePath, "sha256")
	if err != nil {
		return "", err
	}

	sidecarPath := archivePath + SidecarSuffix
	line := fmt.Sprintf("%s  %s\n", digest, filepath.Base(archivePath))
	if err := os.WriteFile(sidecarPath, []byte(line), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", sidecarPath)
	}
	log.Debugf("wrote checksum sidecar %s", sidecarPath)
	return digest, nil
}

// ParseSidecar reads a coreutils-format checksum file and returns the
// digest recorded for filename.
func ParseSidecar(sidecarPath, filename string) (string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", sidecarPath)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		// sha256sum marks binary mode with a leading '*'.
		name := strings.TrimPrefix(fields[1], "*")
		if name == filename {
			return strings.ToLower(fields[0]), nil
		}
	}
	return "", errors.Errorf("no checksum for %s in %s", filename, sidecarPath)
}

// VerifyFile checks archivePath against the digest in its sidecar. A
// missing sidecar is reported as os.ErrNotExist so callers can treat it
// as "nothing to verify".
func VerifyFile(archivePath string) error {
	sidecarPath := archivePath + SidecarSuffix
	expected, err := ParseSidecar(sidecarPath, filepath.Base(archivePath))
	if err != nil {
		return err
	}

	actual, err := ComputeHash(archivePath, "sha256")
	if err != nil {
		return err
	}
	if actual != expected {
		return errors.Errorf("checksum mismatch for %s: expected %s, got %s",
			filepath.Base(archivePath), expected, actual)
	}
	log.Debugf("checksum verified for %s", archivePath)
	return nil
}

// HasSidecar reports whether a checksum sidecar exists for archivePath.
func HasSidecar(archivePath string) bool {
	_, err := os.Stat(archivePath + SidecarSuffix)
	return err == nil
}
