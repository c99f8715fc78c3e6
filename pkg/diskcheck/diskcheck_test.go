package diskcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab-tools/labops/pkg/config"
)

func diskConfig(threshold int) *config.DiskConfig {
	cfg := &config.Config{Disk: &config.DiskConfig{Threshold: config.IntPtr(threshold)}}
	cfg.SetDefaults()
	return cfg.Disk
}

func TestEvaluate(t *testing.T) {
	mounts := []Mount{
		{Mountpoint: "/", Device: "/dev/mapper/pve-root", FSType: "ext4", Total: 100 << 30, Used: 85 << 30, Free: 15 << 30, UsedPercent: 85},
		{Mountpoint: "/mnt/tank", Device: "/dev/sdb1", FSType: "ext4", Total: 4 << 40, Used: 1 << 40, Free: 3 << 40, UsedPercent: 25},
		{Mountpoint: "/dev/shm", Device: "tmpfs", FSType: "tmpfs", Total: 8 << 30, Used: 0, Free: 8 << 30, UsedPercent: 0},
	}

	report := Evaluate(mounts, diskConfig(80))

	require.Len(t, report.Mounts, 2, "tmpfs excluded")
	require.Len(t, report.Breaches(), 1)
	assert.Equal(t, "/", report.Breaches()[0].Mountpoint)
	assert.True(t, report.Mounts[0].Breach)
	assert.False(t, report.Mounts[1].Breach)
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	mounts := []Mount{
		{Mountpoint: "/", FSType: "ext4", UsedPercent: 80, Total: 1},
		{Mountpoint: "/data", FSType: "ext4", UsedPercent: 79, Total: 1},
	}

	report := Evaluate(mounts, diskConfig(80))

	require.Len(t, report.Breaches(), 1, "threshold itself counts as breach")
	assert.Equal(t, "/", report.Breaches()[0].Mountpoint)
}

func TestEvaluateExcludeMounts(t *testing.T) {
	cfg := diskConfig(80)
	cfg.ExcludeMounts = []string{"/media/usb0"}

	mounts := []Mount{
		{Mountpoint: "/", FSType: "ext4", UsedPercent: 10},
		{Mountpoint: "/media/usb0", FSType: "vfat", UsedPercent: 99},
	}

	report := Evaluate(mounts, cfg)
	require.Len(t, report.Mounts, 1)
	assert.Empty(t, report.Breaches())
}

func TestEvaluateDeduplicatesBindMounts(t *testing.T) {
	mounts := []Mount{
		{Mountpoint: "/srv", Device: "/dev/sda1", FSType: "ext4", UsedPercent: 50},
		{Mountpoint: "/srv", Device: "/dev/sda1", FSType: "ext4", UsedPercent: 50},
	}

	report := Evaluate(mounts, diskConfig(80))
	assert.Len(t, report.Mounts, 1)
}

func TestEvaluateSortsByMountpoint(t *testing.T) {
	mounts := []Mount{
		{Mountpoint: "/var", FSType: "ext4"},
		{Mountpoint: "/", FSType: "ext4"},
		{Mountpoint: "/boot", FSType: "ext4"},
	}

	report := Evaluate(mounts, diskConfig(80))
	require.Len(t, report.Mounts, 3)
	assert.Equal(t, "/", report.Mounts[0].Mountpoint)
	assert.Equal(t, "/boot", report.Mounts[1].Mountpoint)
	assert.Equal(t, "/var", report.Mounts[2].Mountpoint)
}

func TestTable(t *testing.T) {
	report := Evaluate([]Mount{
		{Mountpoint: "/", Device: "/dev/sda1", FSType: "ext4", Total: 100 << 30, Used: 85 << 30, Free: 15 << 30, UsedPercent: 85},
	}, diskConfig(80))

	table := report.Table()
	assert.Contains(t, table, "MOUNT")
	assert.Contains(t, table, "/dev/sda1")
	assert.Contains(t, table, "85%")
	assert.Contains(t, table, "✗ over 80%")
	assert.Contains(t, table, "100.0G")
}
