package lxc

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
)

type fakeRunner struct {
	lookPathErr error
	results     map[string]execx.Result
	calls       []string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookPathErr != nil {
		return "", f.lookPathErr
	}
	return "/usr/sbin/" + name, nil
}

func (f *fakeRunner) Run(_ context.Context, cmd execx.Cmd) (execx.Result, error) {
	key := cmd.String()
	f.calls = append(f.calls, key)
	if res, ok := f.results[key]; ok {
		return res, nil
	}
	return execx.Result{}, nil
}

const pctListOutput = `VMID       Status     Lock         Name
100        running                 pihole
101        stopped                 testbox
102        running    backup       nextcloud
`

func TestParseList(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []Container
	}{
		{
			name:   "typical pct list",
			output: pctListOutput,
			want: []Container{
				{VMID: 100, Status: "running", Name: "pihole"},
				{VMID: 101, Status: "stopped", Name: "testbox"},
				{VMID: 102, Status: "running", Lock: "backup", Name: "nextcloud"},
			},
		},
		{
			name:   "empty output",
			output: "",
			want:   nil,
		},
		{
			name:   "header only",
			output: "VMID Status Lock Name\n",
			want:   nil,
		},
		{
			name:   "row without name",
			output: "VMID Status Lock Name\n103 stopped\n",
			want:   []Container{{VMID: 103, Status: "stopped"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseList(tt.output))
		})
	}
}

func TestParseTrimmedBytes(t *testing.T) {
	output := `/: 1.5 GiB (1610612736 bytes) trimmed
/boot: 100 MiB (104857600 bytes) trimmed
`
	assert.Equal(t, uint64(1610612736+104857600), ParseTrimmedBytes(output))
	assert.Equal(t, uint64(0), ParseTrimmedBytes("nothing to do"))
}

func TestTrim(t *testing.T) {
	cfg := &config.LXCConfig{}
	cfg.PCT = "pct"
	cfg.Threshold = config.IntPtr(80)

	t.Run("trims running containers only", func(t *testing.T) {
		runner := &fakeRunner{results: map[string]execx.Result{
			"pct list":       {Stdout: pctListOutput},
			"pct fstrim 100": {Stdout: "/: 1.0 GiB (1073741824 bytes) trimmed\n"},
			"pct fstrim 102": {Stdout: "/: 2.0 GiB (2147483648 bytes) trimmed\n"},
		}}

		report, err := Trim(context.Background(), runner, cfg)
		require.NoError(t, err)
		require.Len(t, report.Results, 2)
		assert.Equal(t, uint64(1073741824), report.Results[0].TrimmedBytes)
		assert.Equal(t, uint64(2147483648), report.Results[1].TrimmedBytes)
		require.Len(t, report.Skipped, 1)
		assert.Equal(t, 101, report.Skipped[0].VMID)
		assert.NotContains(t, runner.calls, "pct fstrim 101")
	})

	t.Run("continues past one failing container", func(t *testing.T) {
		runner := &fakeRunner{results: map[string]execx.Result{
			"pct list":       {Stdout: pctListOutput},
			"pct fstrim 100": {ExitCode: 1, Stderr: "CT 100 not mounted\n"},
			"pct fstrim 102": {Stdout: "/: 512 MiB (536870912 bytes) trimmed\n"},
		}}

		report, err := Trim(context.Background(), runner, cfg)
		require.NoError(t, err)
		require.Len(t, report.Results, 2)
		assert.Equal(t, "CT 100 not mounted", report.Results[0].FailReason)
		assert.Empty(t, report.Results[1].FailReason)
		assert.Len(t, report.Succeeded(), 1)
	})

	t.Run("all trims failing is an error", func(t *testing.T) {
		runner := &fakeRunner{results: map[string]execx.Result{
			"pct list":       {Stdout: "100 running pihole\n102 running nextcloud\n"},
			"pct fstrim 100": {ExitCode: 1},
			"pct fstrim 102": {ExitCode: 1},
		}}

		_, err := Trim(context.Background(), runner, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "every running container")
	})

	t.Run("missing pct", func(t *testing.T) {
		runner := &fakeRunner{lookPathErr: errors.New("not found")}
		_, err := Trim(context.Background(), runner, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Proxmox host")
	})
}

const lvsOutput = `  data,pve,86973087744,91.23,4.01
  root,pve,29360128000,,
  swap,pve,8589934592,,
  vm-100-disk-0,pve,8589934592,42.17,
  vm-102-disk-0,pve,34359738368,85.00,
`

func TestParseLVS(t *testing.T) {
	volumes, err := ParseLVS(lvsOutput)
	require.NoError(t, err)
	require.Len(t, volumes, 5)

	assert.Equal(t, "data", volumes[0].Name)
	assert.Equal(t, "pve", volumes[0].VG)
	assert.Equal(t, uint64(86973087744), volumes[0].SizeBytes)
	assert.InDelta(t, 91.23, volumes[0].DataPercent, 0.001)
	assert.InDelta(t, 4.01, volumes[0].MetaPercent, 0.001)
	assert.True(t, volumes[0].Thin())

	assert.False(t, volumes[1].Thin())
	assert.True(t, volumes[3].Thin())
	assert.InDelta(t, -1, volumes[3].MetaPercent, 0.001)
}

func TestParseLVSBadLine(t *testing.T) {
	_, err := ParseLVS("data,pve\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 5 fields")

	_, err = ParseLVS("data,pve,huge,90,5\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad lv_size")
}

func TestEvaluateVolumes(t *testing.T) {
	volumes, err := ParseLVS(lvsOutput)
	require.NoError(t, err)

	report := EvaluateVolumes(volumes, 85)
	// Non-thin root and swap are dropped.
	require.Len(t, report.Volumes, 3)

	breaches := report.Breaches()
	require.Len(t, breaches, 2)
	assert.Equal(t, "data", breaches[0].Name)
	assert.Equal(t, "vm-102-disk-0", breaches[1].Name)
}

func TestDiskCheck(t *testing.T) {
	cfg := &config.LXCConfig{LVS: "lvs", Threshold: config.IntPtr(90)}
	runner := &fakeRunner{results: map[string]execx.Result{
		"lvs --noheadings --separator , --units b --nosuffix -o " + lvsFields: {Stdout: lvsOutput},
	}}

	report, err := DiskCheck(context.Background(), runner, cfg)
	require.NoError(t, err)
	require.Len(t, report.Breaches(), 1)
	assert.Equal(t, "data", report.Breaches()[0].Name)

	table := report.Table()
	assert.Contains(t, table, "LV")
	assert.Contains(t, table, "✗ over 90%")
	assert.Contains(t, table, "✓ ok")
}

func TestTrimReportTable(t *testing.T) {
	report := &TrimReport{
		Results: []TrimResult{
			{Container: Container{VMID: 100, Name: "pihole"}, TrimmedBytes: 1 << 30},
			{Container: Container{VMID: 102, Name: "nextcloud"}, FailReason: "not mounted"},
		},
		Skipped: []Container{{VMID: 101, Name: "testbox", Status: "stopped"}},
	}

	table := report.Table()
	assert.Contains(t, table, "✓ done")
	assert.Contains(t, table, "✗ not mounted")
	assert.Contains(t, table, "stopped")
	assert.Equal(t, uint64(1<<30), report.TotalTrimmed())
	assert.True(t, strings.HasPrefix(table, "VMID"))
}
