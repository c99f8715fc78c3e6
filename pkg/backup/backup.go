// Package backup archives the configured system files to a timestamped
// tar.gz, the nightly config backup script as one command. Archives are
// written atomically and verified restores go through the same package.
package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/buildkite/interpolate"
	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/pkg/archive"
	"github.com/homelab-tools/labops/pkg/checksums"
	"github.com/homelab-tools/labops/pkg/config"
	"github.com/homelab-tools/labops/pkg/hooks"
)

// dateLayout is the ${DATE} timestamp format in archive names.
const dateLayout = "20060102-150405"

// Report is the outcome of a backup run.
type Report struct {
	ArchivePath string
	SizeBytes   uint64
	SHA256      string
	Duration    time.Duration
	// Archived are the sources that made it into the archive.
	Archived []string
	// Missing are configured sources that did not exist.
	Missing []string
	// Pruned are old archives removed by retention.
	Pruned []string
}

// ArchiveName renders the configured name template for the given host
// and time.
func ArchiveName(template, host string, now time.Time) (string, error) {
	env := interpolate.NewMapEnv(map[string]string{
		"HOST": host,
		"DATE": now.Format(dateLayout),
		"UNIX": strconv.FormatInt(now.Unix(), 10),
	})
	name, err := interpolate.Interpolate(env, template)
	if err != nil {
		return "", errors.Wrapf(err, "failed to interpolate name template %q", template)
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.Errorf("name template %q produced an empty name", template)
	}
	return name, nil
}

// Run performs a full backup: pre hook, archive, checksum sidecar,
// retention, post hook.
func Run(ctx context.Context, cfg *config.BackupConfig, host string) (*Report, error) {
	start := time.Now()

	if cfg.Hooks != nil && cfg.Hooks.Pre != "" {
		if err := runHook(ctx, "pre", cfg.Hooks.Pre); err != nil {
			return nil, err
		}
	}

	report := &Report{}
	for _, source := range cfg.Sources {
		if _, err := os.Lstat(source); err != nil {
			log.Warnf("skipping missing source %s", source)
			report.Missing = append(report.Missing, source)
			continue
		}
		report.Archived = append(report.Archived, source)
	}
	if len(report.Archived) == 0 {
		return nil, errors.New("no backup sources exist")
	}

	name, err := ArchiveName(cfg.NameTemplate, host, start)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dest, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create backup directory %s", cfg.Dest)
	}
	archivePath := filepath.Join(cfg.Dest, name)
	if err := writeArchive(archivePath, report.Archived); err != nil {
		return nil, err
	}
	report.ArchivePath = archivePath

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", archivePath)
	}
	report.SizeBytes = uint64(info.Size())

	if config.BoolValue(cfg.Checksum) {
		digest, err := checksums.WriteSidecar(archivePath)
		if err != nil {
			return nil, err
		}
		report.SHA256 = digest
	}

	pruned, err := Prune(cfg.Dest, config.IntValue(cfg.Keep), archivePath)
	if err != nil {
		log.WithError(err).Warn("retention pruning failed")
	}
	report.Pruned = pruned

	if cfg.Hooks != nil && cfg.Hooks.Post != "" {
		// A failing post hook does not fail the backup, the archive is
		// already safe on disk.
		if err := runHook(ctx, "post", cfg.Hooks.Post); err != nil {
			log.WithError(err).Warn("post hook failed")
		}
	}

	report.Duration = time.Since(start)
	log.Infof("backup written to %s", archivePath)
	return report, nil
}

// writeArchive creates the tar.gz under a temporary name in the
// destination directory and renames it into place.
func writeArchive(archivePath string, sources []string) error {
	dir := filepath.Dir(archivePath)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(archivePath)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary archive")
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := archive.Create(tmpFile, sources); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary archive")
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return errors.Wrapf(err, "failed to move archive to %s", archivePath)
	}
	success = true
	return nil
}

func runHook(ctx context.Context, name, script string) error {
	log.Debugf("running %s hook", name)
	result, err := hooks.Run(ctx, name+" hook", script, nil)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		detail := strings.TrimSpace(result.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(result.Stdout)
		}
		return errors.Errorf("%s hook exited with status %d: %s", name, result.ExitCode, detail)
	}
	return nil
}

// Prune removes the oldest archives beyond keep from dir, along with
// their checksum sidecars. keep <= 0 keeps everything; current is never
// removed.
func Prune(dir string, keep int, current string) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read backup directory %s", dir)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var archives []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, candidate{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	if len(archives) <= keep {
		return nil, nil
	}

	// Newest first; everything past keep goes.
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].modTime.After(archives[j].modTime)
	})

	var pruned []string
	for _, old := range archives[keep:] {
		if old.path == current {
			continue
		}
		if err := os.Remove(old.path); err != nil {
			log.WithError(err).Warnf("failed to remove old archive %s", old.path)
			continue
		}
		if err := os.Remove(old.path + checksums.SidecarSuffix); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("failed to remove sidecar for %s", old.path)
		}
		log.Debugf("pruned old archive %s", old.path)
		pruned = append(pruned, old.path)
	}
	return pruned, nil
}

// Restore verifies and extracts a backup archive into destDir.
func Restore(archivePath, destDir string, opts archive.ExtractOptions) error {
	if checksums.HasSidecar(archivePath) {
		if err := checksums.VerifyFile(archivePath); err != nil {
			return err
		}
		log.Infof("checksum verified for %s", filepath.Base(archivePath))
	} else {
		log.Warnf("no checksum sidecar for %s, extracting unverified", filepath.Base(archivePath))
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create restore directory %s", destDir)
	}
	return archive.Extract(archivePath, destDir, opts)
}
