package cmd

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
	"github.com/homelab-tools/labops/pkg/images"
	"github.com/homelab-tools/labops/pkg/registry"
)

var imagesNoFail bool

// ImagesCommand represents the images command
var ImagesCommand = &cobra.Command{
	Use:   "images",
	Short: "Check running container images for registry updates",
	Long: `Scans the compose stacks directory and the running containers, then
compares each image's local digest against its registry. Docker Hub and
GHCR are queried with their anonymous token flows; other registries are
treated as generic OCI registries. Digest-pinned images are reported as
pinned and left alone.`,
	Example: `  # Check everything under /opt/stacks plus ad-hoc containers
  labops images

  # Include stopped containers, don't fail the run on available updates
  labops images --no-fail`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		timeout := time.Duration(config.IntValue(cfg.Images.TimeoutSeconds)) * time.Second
		client := registry.NewClient(timeout)

		report, err := images.Run(cmd.Context(), execx.System(), client, cfg.Images)
		if err != nil {
			return err
		}
		fmt.Print(report.Table())
		fmt.Println(report.Summary())

		updates := report.Updates()
		if len(updates) == 0 {
			return nil
		}

		if cfg.Images.MailOnUpdates {
			subject := fmt.Sprintf("%d image update(s) available on %s", len(updates), cfg.Host())
			body := fmt.Sprintf("image updates available on %s:\n\n%s\n%s",
				cfg.Host(), report.Table(), report.Summary())
			sendAlert(cmd.Context(), newMailer(cfg), subject, body)
		}

		if imagesNoFail {
			return nil
		}
		return errors.Errorf("%d image update(s) available", len(updates))
	},
}

func init() {
	ImagesCommand.Flags().BoolVar(&imagesNoFail, "no-fail", false, "Exit zero even when updates are available")
}
