package cmd

import (
	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/homelab-tools/labops/pkg/archive"
	"github.com/homelab-tools/labops/pkg/backup"
)

var (
	restoreDest      string
	restoreStrip     int
	restoreOverwrite bool
)

// RestoreCommand represents the restore command
var RestoreCommand = &cobra.Command{
	Use:   "restore ARCHIVE",
	Short: "Verify and extract a backup archive",
	Long: `Extracts a backup archive created by labops backup. The sha256 sidecar
is verified first when present. Extraction refuses to overwrite existing
files unless --overwrite is given, and --dest is always explicit: nothing
is ever written straight into /.`,
	Example: `  # Inspect a backup in a scratch directory
  labops restore /var/backups/labops/config-pve1-20260830-020000.tar.gz --dest /tmp/restored

  # Put files back in place (archives store paths without the leading /)
  labops restore config-pve1-20260830-020000.tar.gz --dest / --overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := archive.ExtractOptions{
			StripComponents: restoreStrip,
			Overwrite:       restoreOverwrite,
		}
		if err := backup.Restore(args[0], restoreDest, opts); err != nil {
			return err
		}
		log.Infof("restored %s into %s", args[0], restoreDest)
		return nil
	},
}

func init() {
	RestoreCommand.Flags().StringVar(&restoreDest, "dest", "", "Directory to extract into (required)")
	RestoreCommand.Flags().IntVar(&restoreStrip, "strip", 0, "Strip this many leading path components")
	RestoreCommand.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "Replace existing files")
	_ = RestoreCommand.MarkFlagRequired("dest")
}
