package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/homelab-tools/labops/internal/bytefmt"
	"github.com/homelab-tools/labops/pkg/backup"
)

// BackupCommand represents the backup command
var BackupCommand = &cobra.Command{
	Use:   "backup",
	Short: "Archive the configured system files to a timestamped tar.gz",
	Long: `Creates a tar.gz of the configured source files in the backup
destination, with a sha256 sidecar for later verification. Old archives
beyond the retention count are pruned after a successful run. The outcome
is mailed either way.`,
	Example: `  # Nightly cron backup
  labops backup

  # With a custom config
  labops backup -c /etc/labops/labops.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m := newMailer(cfg)

		report, err := backup.Run(cmd.Context(), cfg.Backup, cfg.Host())
		if err != nil {
			sendAlert(cmd.Context(), m, fmt.Sprintf("backup FAILED on %s", cfg.Host()),
				fmt.Sprintf("config backup on %s failed:\n\n%s\n", cfg.Host(), err))
			return err
		}

		log.Infof("archived %d source(s) into %s (%s) in %s",
			len(report.Archived), filepath.Base(report.ArchivePath),
			bytefmt.Format(report.SizeBytes), report.Duration.Round(10 * time.Millisecond))

		subject := fmt.Sprintf("backup OK on %s", cfg.Host())
		sendAlert(cmd.Context(), m, subject, backupMailBody(cfg.Host(), report))
		return nil
	},
}

func backupMailBody(host string, report *backup.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "config backup on %s succeeded.\n\n", host)
	fmt.Fprintf(&sb, "archive:  %s\n", report.ArchivePath)
	fmt.Fprintf(&sb, "size:     %s\n", bytefmt.Format(report.SizeBytes))
	if report.SHA256 != "" {
		fmt.Fprintf(&sb, "sha256:   %s\n", report.SHA256)
	}
	fmt.Fprintf(&sb, "duration: %s\n", report.Duration.Round(10 * time.Millisecond))
	if len(report.Missing) > 0 {
		fmt.Fprintf(&sb, "\nskipped missing sources:\n")
		for _, source := range report.Missing {
			fmt.Fprintf(&sb, "  %s\n", source)
		}
	}
	if len(report.Pruned) > 0 {
		fmt.Fprintf(&sb, "\npruned old archives:\n")
		for _, path := range report.Pruned {
			fmt.Fprintf(&sb, "  %s\n", filepath.Base(path))
		}
	}
	return sb.String()
}
