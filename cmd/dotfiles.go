package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/homelab-tools/labops/pkg/dotfiles"
)

var dotfilesDryRun bool

// DotfilesCommand represents the dotfiles command
var DotfilesCommand = &cobra.Command{
	Use:   "dotfiles",
	Short: "Idempotently patch .bashrc aliases and .vimrc settings",
	Long: `Ensures the managed shell aliases and vim settings are present in
.bashrc and .vimrc. Lines already in their desired form are left alone,
stale variants are replaced in place, missing lines are appended. Unmanaged
content is never touched, so running this twice is a no-op.`,
	Example: `  # Apply the built-in aliases and vim settings
  labops dotfiles

  # See what would change without writing
  labops dotfiles --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		changes, err := dotfiles.Apply(cfg.Dotfiles, dotfilesDryRun)
		if err != nil {
			return err
		}

		fmt.Print(changesTable(changes))
		modified := 0
		for _, change := range changes {
			if change.Action != dotfiles.ActionUnchanged {
				modified++
			}
		}
		if dotfilesDryRun {
			log.Infof("dry run: %d line(s) would change", modified)
		} else if modified == 0 {
			log.Info("everything already in place")
		} else {
			log.Infof("%d line(s) updated", modified)
		}
		return nil
	},
}

func changesTable(changes []dotfiles.Change) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	for _, change := range changes {
		glyph := "="
		switch change.Action {
		case dotfiles.ActionAdded:
			glyph = "+"
		case dotfiles.ActionReplaced:
			glyph = "~"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", glyph, change.File, change.Line)
	}
	w.Flush()
	return sb.String()
}

func init() {
	DotfilesCommand.Flags().BoolVar(&dotfilesDryRun, "dry-run", false, "Show the plan without writing files")
}
