package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/homelab-tools/labops/pkg/backup"
	"github.com/homelab-tools/labops/pkg/dotfiles"
)

func TestCommandRegistration(t *testing.T) {
	wantGroups := map[string]string{
		"dotfiles": "maintenance",
		"backup":   "maintenance",
		"restore":  "maintenance",
		"cleanup":  "maintenance",
		"lxc":      "maintenance",
		"disk":     "monitoring",
		"smart":    "monitoring",
		"images":   "monitoring",
		"init":     "utility",
	}

	found := map[string]string{}
	for _, sub := range RootCmd.Commands() {
		found[sub.Name()] = sub.GroupID
	}
	for name, group := range wantGroups {
		got, ok := found[name]
		if !ok {
			t.Errorf("command %q not registered", name)
			continue
		}
		if got != group {
			t.Errorf("command %q in group %q, want %q", name, got, group)
		}
	}
}

func TestLXCSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range LXCCommand.Commands() {
		names[sub.Name()] = true
	}
	if !names["trim"] || !names["disk"] {
		t.Errorf("lxc subcommands = %v, want trim and disk", names)
	}
}

func TestPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "quiet"} {
		if RootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag %q not defined", name)
		}
	}
}

func TestMonitoringNoFailFlags(t *testing.T) {
	if DiskCommand.Flags().Lookup("no-fail") == nil {
		t.Error("disk command missing --no-fail")
	}
	if SmartCommand.Flags().Lookup("no-fail") == nil {
		t.Error("smart command missing --no-fail")
	}
	if ImagesCommand.Flags().Lookup("no-fail") == nil {
		t.Error("images command missing --no-fail")
	}
	if LXCDiskCommand.Flags().Lookup("no-fail") == nil {
		t.Error("lxc disk command missing --no-fail")
	}
}

func writeScript(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script %s: %v", path, err)
	}
}

func TestSmartAllUnknownAlertsAndNoFail(t *testing.T) {
	dir := t.TempDir()

	// smartctl that cannot open any device: exit bit 1 set, no health line.
	smartctl := filepath.Join(dir, "smartctl")
	writeScript(t, smartctl, "#!/bin/sh\necho 'Smartctl open device: /dev/sda failed: Permission denied'\nexit 2\n")

	captureBody := filepath.Join(dir, "mail-body")
	captureArgs := filepath.Join(dir, "mail-args")
	mailCmd := filepath.Join(dir, "mail")
	writeScript(t, mailCmd, "#!/bin/sh\nprintf '%s\\n' \"$*\" > "+captureArgs+"\ncat > "+captureBody+"\n")

	configPath := filepath.Join(dir, "labops.yml")
	cfgYAML := `hostname: pve1
mail:
  enabled: true
  transport: command
  command: ` + mailCmd + `
  to:
    - root
smart:
  smartctl: ` + smartctl + `
  devices:
    - /dev/sda
`
	if err := os.WriteFile(configPath, []byte(cfgYAML), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	RootCmd.SetArgs([]string{"smart", "-c", configPath})
	if err := RootCmd.Execute(); err == nil {
		t.Fatal("smart should fail when no device can be read")
	}

	args, err := os.ReadFile(captureArgs)
	if err != nil {
		t.Fatalf("no alert mail was sent: %v", err)
	}
	if !strings.Contains(string(args), "SMART check unreadable on pve1") {
		t.Errorf("mail subject args = %q, want unreadable alert", args)
	}
	body, err := os.ReadFile(captureBody)
	if err != nil {
		t.Fatalf("alert mail has no body: %v", err)
	}
	for _, want := range []string{"/dev/sda", "UNKNOWN", "smartctl permissions"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("mail body missing %q:\n%s", want, body)
		}
	}

	// --no-fail downgrades the exit but the alert still goes out.
	if err := os.Remove(captureArgs); err != nil {
		t.Fatal(err)
	}
	RootCmd.SetArgs([]string{"smart", "-c", configPath, "--no-fail"})
	if err := RootCmd.Execute(); err != nil {
		t.Fatalf("smart --no-fail should exit clean: %v", err)
	}
	if _, err := os.Stat(captureArgs); err != nil {
		t.Errorf("alert mail not sent with --no-fail: %v", err)
	}
}

func TestChangesTable(t *testing.T) {
	changes := []dotfiles.Change{
		{File: "/root/.bashrc", Line: "alias ll='ls -lah'", Action: dotfiles.ActionAdded},
		{File: "/root/.bashrc", Line: "alias df='df -h'", Action: dotfiles.ActionUnchanged},
		{File: "/root/.vimrc", Line: "set number", Action: dotfiles.ActionReplaced},
	}

	table := changesTable(changes)
	for _, want := range []string{"+", "=", "~", "alias ll='ls -lah'", "set number"} {
		if !strings.Contains(table, want) {
			t.Errorf("changes table missing %q:\n%s", want, table)
		}
	}
}

func TestBackupMailBody(t *testing.T) {
	report := &backup.Report{
		ArchivePath: "/var/backups/labops/config-pve1-20260830-020000.tar.gz",
		SizeBytes:   2048,
		SHA256:      "abc123",
		Missing:     []string{"/etc/network/interfaces"},
		Pruned:      []string{"/var/backups/labops/config-pve1-20260816-020000.tar.gz"},
	}

	body := backupMailBody("pve1", report)
	for _, want := range []string{
		"config backup on pve1 succeeded",
		"config-pve1-20260830-020000.tar.gz",
		"sha256:   abc123",
		"skipped missing sources",
		"/etc/network/interfaces",
		"pruned old archives",
		"config-pve1-20260816-020000.tar.gz",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("mail body missing %q:\n%s", want, body)
		}
	}
}
