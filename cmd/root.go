package cmd

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
	quiet      bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "labops",
	Short: "Homelab host maintenance toolbox",
	Long: `labops bundles the usual homelab/Proxmox maintenance chores into one
binary: dotfile setup, config backups, cache cleanup, container trims, and
disk/SMART/image monitoring with mail alerts.

Every command reads live system state, does its job, and exits; cron owns
the scheduling. Without a config file each command runs with sensible
built-in defaults.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetHandler(cli.Default)
		if verbose {
			log.SetLevel(log.DebugLevel)
			log.Debugf("Verbose logging enabled")
		} else if quiet {
			log.SetLevel(log.ErrorLevel) // ErrorLevel still allows failure output.
		} else {
			log.SetLevel(log.InfoLevel)
		}
	},
}

func init() {
	// Disable automatic command sorting to maintain semantic order
	cobra.EnableCommandSorting = false

	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to labops config file (default: auto-detect, '-' for stdin)")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Increase log verbosity")
	RootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress progress output")

	RootCmd.AddGroup(&cobra.Group{
		ID:    "maintenance",
		Title: "Maintenance Commands:",
	})
	RootCmd.AddGroup(&cobra.Group{
		ID:    "monitoring",
		Title: "Monitoring Commands:",
	})
	RootCmd.AddGroup(&cobra.Group{
		ID:    "utility",
		Title: "Utility Commands:",
	})

	RootCmd.SetHelpCommandGroupID("utility")
	RootCmd.SetCompletionCommandGroupID("utility")

	DotfilesCommand.GroupID = "maintenance"
	BackupCommand.GroupID = "maintenance"
	RestoreCommand.GroupID = "maintenance"
	CleanupCommand.GroupID = "maintenance"
	LXCCommand.GroupID = "maintenance"
	DiskCommand.GroupID = "monitoring"
	SmartCommand.GroupID = "monitoring"
	ImagesCommand.GroupID = "monitoring"
	InitCommand.GroupID = "utility"

	RootCmd.AddCommand(DotfilesCommand)
	RootCmd.AddCommand(BackupCommand)
	RootCmd.AddCommand(RestoreCommand)
	RootCmd.AddCommand(CleanupCommand)
	RootCmd.AddCommand(LXCCommand)
	RootCmd.AddCommand(DiskCommand)
	RootCmd.AddCommand(SmartCommand)
	RootCmd.AddCommand(ImagesCommand)
	RootCmd.AddCommand(InitCommand)
}
