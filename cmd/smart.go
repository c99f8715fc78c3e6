package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/smart"
)

var smartNoFail bool

// SmartCommand represents the smart command
var SmartCommand = &cobra.Command{
	Use:   "smart",
	Short: "Scan disk SMART health with smartctl",
	Long: `Discovers disks via smartctl --scan (or the configured device list) and
runs a health check on each. Failing disks are mailed and the command exits
non-zero, unless --no-fail is given. Unreadable devices are reported but do
not count as failures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		report, err := smart.Check(cmd.Context(), execx.System(), cfg.Smart)
		if err != nil {
			return err
		}
		fmt.Print(report.Table())

		if report.AllUnknown() {
			subject := fmt.Sprintf("SMART check unreadable on %s", cfg.Host())
			body := fmt.Sprintf("no disk on %s could be read, check smartctl permissions:\n\n%s",
				cfg.Host(), report.Table())
			sendAlert(cmd.Context(), newMailer(cfg), subject, body)

			if smartNoFail {
				return nil
			}
			return errors.New("no device could be read, check smartctl permissions")
		}

		failures := report.Failures()
		if len(failures) == 0 {
			return nil
		}

		subject := fmt.Sprintf("SMART failure on %s", cfg.Host())
		body := fmt.Sprintf("%d disk(s) failing their SMART health check on %s:\n\n%s",
			len(failures), cfg.Host(), report.Table())
		sendAlert(cmd.Context(), newMailer(cfg), subject, body)

		if smartNoFail {
			return nil
		}
		return errors.Errorf("%d disk(s) failing SMART health", len(failures))
	},
}

func init() {
	SmartCommand.Flags().BoolVar(&smartNoFail, "no-fail", false, "Exit zero even when disks are failing")
}
