// Package config defines the labops configuration file format and its
// defaults. Every command runs with built-in defaults when no config file
// is present, so a bare `labops <command>` behaves like the original cron
// scripts with their constants baked in.
package config

import "os"

// Config is the root of the labops YAML config.
type Config struct {
	// Hostname overrides the system hostname in reports and mail.
	Hostname string `yaml:"hostname,omitempty"`

	Mail     *MailConfig     `yaml:"mail,omitempty"`
	Dotfiles *DotfilesConfig `yaml:"dotfiles,omitempty"`
	Disk     *DiskConfig     `yaml:"disk,omitempty"`
	Smart    *SmartConfig    `yaml:"smart,omitempty"`
	LXC      *LXCConfig      `yaml:"lxc,omitempty"`
	Backup   *BackupConfig   `yaml:"backup,omitempty"`
	Cleanup  *CleanupConfig  `yaml:"cleanup,omitempty"`
	Images   *ImagesConfig   `yaml:"images,omitempty"`
}

// MailConfig controls how alert and report mail is delivered.
type MailConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	// Transport is "command" (pipe the body to mail(1)) or "smtp".
	Transport     string      `yaml:"transport,omitempty"`
	Command       string      `yaml:"command,omitempty"`
	To            []string    `yaml:"to,omitempty"`
	From          string      `yaml:"from,omitempty"`
	SubjectPrefix string      `yaml:"subject_prefix,omitempty"`
	SMTP          *SMTPConfig `yaml:"smtp,omitempty"`
}

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	StartTLS *bool  `yaml:"starttls,omitempty"`
}

// DotfilesConfig customizes the managed .bashrc aliases and .vimrc
// settings. Entries merge over the built-in defaults.
type DotfilesConfig struct {
	Home         string            `yaml:"home,omitempty"`
	BackupSuffix string            `yaml:"backup_suffix,omitempty"`
	Aliases      map[string]string `yaml:"aliases,omitempty"`
	VimSettings  []string          `yaml:"vim_settings,omitempty"`
}

// DiskConfig controls the filesystem usage check.
type DiskConfig struct {
	// Threshold is the used-percent at or above which a mount is reported.
	Threshold      *int     `yaml:"threshold,omitempty"`
	ExcludeFSTypes []string `yaml:"exclude_fstypes,omitempty"`
	ExcludeMounts  []string `yaml:"exclude_mounts,omitempty"`
}

// SmartConfig controls the SMART health scan.
type SmartConfig struct {
	Smartctl string `yaml:"smartctl,omitempty"`
	// Devices overrides discovery via `smartctl --scan`.
	Devices []string `yaml:"devices,omitempty"`
}

// LXCConfig controls the Proxmox container commands.
type LXCConfig struct {
	PCT       string `yaml:"pct,omitempty"`
	LVS       string `yaml:"lvs,omitempty"`
	Threshold *int   `yaml:"threshold,omitempty"`
}

// BackupConfig controls the config backup archive.
type BackupConfig struct {
	Sources      []string `yaml:"sources,omitempty"`
	Dest         string   `yaml:"dest,omitempty"`
	NameTemplate string   `yaml:"name_template,omitempty"`
	// Keep is the number of newest archives retained after a successful
	// run; 0 keeps everything.
	Keep     *int         `yaml:"keep,omitempty"`
	Checksum *bool        `yaml:"checksum,omitempty"`
	Hooks    *HooksConfig `yaml:"hooks,omitempty"`
}

// HooksConfig holds shell snippets run around a backup.
type HooksConfig struct {
	Pre  string `yaml:"pre,omitempty"`
	Post string `yaml:"post,omitempty"`
}

// CleanupConfig controls the cleanup steps.
type CleanupConfig struct {
	DryRun        bool        `yaml:"dry_run,omitempty"`
	Skip          []string    `yaml:"skip,omitempty"`
	Only          []string    `yaml:"only,omitempty"`
	JournalVacuum string      `yaml:"journal_vacuum,omitempty"`
	TmpAgeDays    *int        `yaml:"tmp_age_days,omitempty"`
	Extra         []ExtraStep `yaml:"extra,omitempty"`
}

// ExtraStep is a user-provided cleanup step run by the embedded shell
// interpreter.
type ExtraStep struct {
	Name   string `yaml:"name"`
	Script string `yaml:"script"`
}

// ImagesConfig controls the container image update check.
type ImagesConfig struct {
	ComposeDir     string `yaml:"compose_dir,omitempty"`
	IncludeStopped bool   `yaml:"include_stopped,omitempty"`
	TimeoutSeconds *int   `yaml:"timeout_seconds,omitempty"`
	MailOnUpdates  bool   `yaml:"mail_on_updates,omitempty"`
}

// DefaultExcludeFSTypes lists pseudo and read-only filesystems skipped by
// the disk check.
var DefaultExcludeFSTypes = []string{
	"tmpfs", "devtmpfs", "devfs", "overlay", "squashfs", "ramfs",
	"proc", "sysfs", "cgroup", "cgroup2", "fuse.lxcfs", "iso9660",
}

// DefaultBackupSources is the file set archived when the config names none.
var DefaultBackupSources = []string{
	"/etc/hostname",
	"/etc/hosts",
	"/etc/fstab",
	"/etc/network/interfaces",
	"/etc/resolv.conf",
}

// SetDefaults fills every unset field with its built-in default.
func (c *Config) SetDefaults() {
	if c.Mail == nil {
		c.Mail = &MailConfig{}
	}
	if c.Mail.Enabled == nil {
		c.Mail.Enabled = BoolPtr(true)
	}
	if c.Mail.Transport == "" {
		c.Mail.Transport = "command"
	}
	if c.Mail.Command == "" {
		c.Mail.Command = "mail"
	}
	if len(c.Mail.To) == 0 {
		c.Mail.To = []string{"root"}
	}
	if c.Mail.SubjectPrefix == "" {
		c.Mail.SubjectPrefix = "[labops]"
	}
	if c.Mail.SMTP == nil {
		c.Mail.SMTP = &SMTPConfig{}
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Mail.SMTP.StartTLS == nil {
		c.Mail.SMTP.StartTLS = BoolPtr(true)
	}

	if c.Dotfiles == nil {
		c.Dotfiles = &DotfilesConfig{}
	}
	if c.Dotfiles.BackupSuffix == "" {
		c.Dotfiles.BackupSuffix = ".bak"
	}

	if c.Disk == nil {
		c.Disk = &DiskConfig{}
	}
	if c.Disk.Threshold == nil {
		c.Disk.Threshold = IntPtr(80)
	}
	if len(c.Disk.ExcludeFSTypes) == 0 {
		c.Disk.ExcludeFSTypes = append([]string{}, DefaultExcludeFSTypes...)
	}

	if c.Smart == nil {
		c.Smart = &SmartConfig{}
	}
	if c.Smart.Smartctl == "" {
		c.Smart.Smartctl = "smartctl"
	}

	if c.LXC == nil {
		c.LXC = &LXCConfig{}
	}
	if c.LXC.PCT == "" {
		c.LXC.PCT = "pct"
	}
	if c.LXC.LVS == "" {
		c.LXC.LVS = "lvs"
	}
	if c.LXC.Threshold == nil {
		c.LXC.Threshold = IntPtr(80)
	}

	if c.Backup == nil {
		c.Backup = &BackupConfig{}
	}
	if len(c.Backup.Sources) == 0 {
		c.Backup.Sources = append([]string{}, DefaultBackupSources...)
	}
	if c.Backup.Dest == "" {
		c.Backup.Dest = "/var/backups/labops"
	}
	if c.Backup.NameTemplate == "" {
		c.Backup.NameTemplate = "config-${HOST}-${DATE}.tar.gz"
	}
	if c.Backup.Keep == nil {
		c.Backup.Keep = IntPtr(14)
	}
	if c.Backup.Checksum == nil {
		c.Backup.Checksum = BoolPtr(true)
	}
	if c.Backup.Hooks == nil {
		c.Backup.Hooks = &HooksConfig{}
	}

	if c.Cleanup == nil {
		c.Cleanup = &CleanupConfig{}
	}
	if c.Cleanup.JournalVacuum == "" {
		c.Cleanup.JournalVacuum = "14d"
	}
	if c.Cleanup.TmpAgeDays == nil {
		c.Cleanup.TmpAgeDays = IntPtr(7)
	}

	if c.Images == nil {
		c.Images = &ImagesConfig{}
	}
	if c.Images.ComposeDir == "" {
		c.Images.ComposeDir = "/opt/stacks"
	}
	if c.Images.TimeoutSeconds == nil {
		c.Images.TimeoutSeconds = IntPtr(10)
	}
}

// Host returns the configured hostname, falling back to the system one.
func (c *Config) Host() string {
	if c.Hostname != "" {
		return c.Hostname
	}
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

// MailEnabled reports whether alert mail should be sent.
func (c *Config) MailEnabled() bool {
	return c.Mail != nil && BoolValue(c.Mail.Enabled)
}

// Helper functions for pointer conversion

// BoolPtr returns a pointer to the bool
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue safely dereferences a bool pointer
func BoolValue(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

// IntPtr returns a pointer to the int
func IntPtr(i int) *int {
	return &i
}

// IntValue safely dereferences an int pointer
func IntValue(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
