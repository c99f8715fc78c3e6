package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab-tools/labops/pkg/archive"
	"github.com/homelab-tools/labops/pkg/checksums"
	"github.com/homelab-tools/labops/pkg/config"
)

func testConfig(t *testing.T, sources []string) *config.BackupConfig {
	t.Helper()
	return &config.BackupConfig{
		Sources:      sources,
		Dest:         t.TempDir(),
		NameTemplate: "config-${HOST}-${DATE}.tar.gz",
		Keep:         config.IntPtr(0),
		Checksum:     config.BoolPtr(true),
		Hooks:        &config.HooksConfig{},
	}
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestArchiveName(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 5, 0, time.UTC)

	tests := []struct {
		name     string
		template string
		want     string
		wantErr  string
	}{
		{
			name:     "host and date",
			template: "config-${HOST}-${DATE}.tar.gz",
			want:     "config-pve1-20260830-120005.tar.gz",
		},
		{
			name:     "unix timestamp",
			template: "backup-${UNIX}.tar.gz",
			want:     "backup-" + "1788091205" + ".tar.gz",
		},
		{
			name:     "no variables",
			template: "static.tar.gz",
			want:     "static.tar.gz",
		},
		{
			name:     "empty result",
			template: "${UNSET:-}",
			wantErr:  "empty name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ArchiveName(tt.template, "pve1", now)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun(t *testing.T) {
	hosts := writeSource(t, "hosts", "127.0.0.1 localhost\n")
	fstab := writeSource(t, "fstab", "/dev/pve/root / ext4 defaults 0 1\n")
	cfg := testConfig(t, []string{hosts, fstab, "/does/not/exist"})

	report, err := Run(context.Background(), cfg, "pve1")
	require.NoError(t, err)

	assert.Equal(t, []string{hosts, fstab}, report.Archived)
	assert.Equal(t, []string{"/does/not/exist"}, report.Missing)
	assert.FileExists(t, report.ArchivePath)
	assert.FileExists(t, report.ArchivePath+checksums.SidecarSuffix)
	assert.NotEmpty(t, report.SHA256)
	assert.Greater(t, report.SizeBytes, uint64(0))
	require.NoError(t, checksums.VerifyFile(report.ArchivePath))

	// No stray temp files left in the destination.
	entries, err := os.ReadDir(cfg.Dest)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Round trip through restore.
	destDir := t.TempDir()
	require.NoError(t, Restore(report.ArchivePath, destDir, archive.ExtractOptions{}))
	assert.FileExists(t, filepath.Join(destDir, hosts[1:]))
}

func TestRunAllSourcesMissing(t *testing.T) {
	cfg := testConfig(t, []string{"/does/not/exist", "/also/missing"})

	_, err := Run(context.Background(), cfg, "pve1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no backup sources exist")
}

func TestRunChecksumDisabled(t *testing.T) {
	hosts := writeSource(t, "hosts", "127.0.0.1 localhost\n")
	cfg := testConfig(t, []string{hosts})
	cfg.Checksum = config.BoolPtr(false)

	report, err := Run(context.Background(), cfg, "pve1")
	require.NoError(t, err)
	assert.Empty(t, report.SHA256)
	assert.NoFileExists(t, report.ArchivePath+checksums.SidecarSuffix)
}

func TestRunPreHookFailureAborts(t *testing.T) {
	hosts := writeSource(t, "hosts", "x\n")
	cfg := testConfig(t, []string{hosts})
	cfg.Hooks.Pre = "echo refusing >&2; exit 7"

	_, err := Run(context.Background(), cfg, "pve1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre hook exited with status 7")

	entries, err := os.ReadDir(cfg.Dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunPostHookFailureIsNotFatal(t *testing.T) {
	hosts := writeSource(t, "hosts", "x\n")
	cfg := testConfig(t, []string{hosts})
	cfg.Hooks.Post = "exit 1"

	report, err := Run(context.Background(), cfg, "pve1")
	require.NoError(t, err)
	assert.FileExists(t, report.ArchivePath)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		path := filepath.Join(dir, "config-"+string(rune('a'+i))+".tar.gz")
		require.NoError(t, os.WriteFile(path, []byte("archive"), 0644))
		require.NoError(t, os.WriteFile(path+checksums.SidecarSuffix, []byte("digest"), 0644))
		mtime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		paths = append(paths, path)
	}
	// Unrelated files are never touched.
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("keep me"), 0644))

	pruned, err := Prune(dir, 2, paths[3])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{paths[0], paths[1]}, pruned)

	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[0]+checksums.SidecarSuffix)
	assert.FileExists(t, paths[2])
	assert.FileExists(t, paths[3])
	assert.FileExists(t, other)
}

func TestPruneKeepAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("archive"), 0644))

	pruned, err := Prune(dir, 0, path)
	require.NoError(t, err)
	assert.Empty(t, pruned)
	assert.FileExists(t, path)
}

func TestRestoreChecksumMismatch(t *testing.T) {
	hosts := writeSource(t, "hosts", "x\n")
	cfg := testConfig(t, []string{hosts})

	report, err := Run(context.Background(), cfg, "pve1")
	require.NoError(t, err)

	// Corrupt the archive after the sidecar was written.
	require.NoError(t, os.WriteFile(report.ArchivePath, []byte("corrupt"), 0644))

	err = Restore(report.ArchivePath, t.TempDir(), archive.ExtractOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}
