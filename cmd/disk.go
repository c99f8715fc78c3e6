package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/homelab-tools/labops/pkg/diskcheck"
)

var diskNoFail bool

// DiskCommand represents the disk command
var DiskCommand = &cobra.Command{
	Use:   "disk",
	Short: "Check filesystem usage against the alert threshold",
	Long: `Checks every real mounted filesystem against the configured usage
threshold. Breaches are mailed to the configured recipients, and the command
exits non-zero so cron marks the run, unless --no-fail is given.`,
	Example: `  # Cron-style check, mails and fails on breaches
  labops disk

  # Interactive look at current usage
  labops disk --no-fail`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		report, err := diskcheck.Check(cmd.Context(), cfg.Disk)
		if err != nil {
			return err
		}
		fmt.Print(report.Table())

		breaches := report.Breaches()
		if len(breaches) == 0 {
			return nil
		}

		subject := fmt.Sprintf("disk usage alert on %s", cfg.Host())
		body := fmt.Sprintf("%d filesystem(s) at or over %d%% usage on %s:\n\n%s",
			len(breaches), report.Threshold, cfg.Host(), report.Table())
		sendAlert(cmd.Context(), newMailer(cfg), subject, body)

		if diskNoFail {
			return nil
		}
		return errors.Errorf("%d filesystem(s) at or over %d%% usage", len(breaches), report.Threshold)
	},
}

func init() {
	DiskCommand.Flags().BoolVar(&diskNoFail, "no-fail", false, "Exit zero even when thresholds are breached")
}
