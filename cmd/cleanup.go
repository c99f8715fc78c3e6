package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/cleanup"
)

var (
	cleanupDryRun bool
	cleanupOnly   []string
	cleanupSkip   []string
)

// CleanupCommand represents the cleanup command
var CleanupCommand = &cobra.Command{
	Use:   "cleanup",
	Short: "Free disk space by clearing caches and old files",
	Long: `Runs the cleanup steps in order: apt caches, the systemd journal,
docker leftovers, old snap revisions, unused flatpaks, language tool
caches, stale temp files, rotated logs, and an fstrim. Steps whose tool is
not installed are skipped; a failing step never stops the rest.`,
	Example: `  # See what would run on this host
  labops cleanup --dry-run

  # Everything except docker pruning
  labops cleanup --skip docker-prune --skip docker-volumes

  # Just the apt steps
  labops cleanup --only apt-clean --only apt-autoclean --only apt-autoremove`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		opts := cleanup.Options{
			DryRun: cleanupDryRun || cfg.Cleanup.DryRun,
			Only:   cleanupOnly,
			Skip:   cleanupSkip,
		}
		if len(opts.Only) == 0 {
			opts.Only = cfg.Cleanup.Only
		}
		if len(opts.Skip) == 0 {
			opts.Skip = cfg.Cleanup.Skip
		}

		report, err := cleanup.Run(cmd.Context(), execx.System(), cfg.Cleanup, opts)
		if err != nil {
			return err
		}
		fmt.Print(report.Table())

		if failed := report.Failed(); len(failed) > 0 {
			log.Warnf("%d step(s) failed", len(failed))
		}
		return nil
	},
}

func init() {
	CleanupCommand.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show the plan without running anything")
	CleanupCommand.Flags().StringSliceVar(&cleanupOnly, "only", nil, "Run only the named steps")
	CleanupCommand.Flags().StringSliceVar(&cleanupSkip, "skip", nil, "Skip the named steps")
}
