package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/homelab-tools/labops/pkg/config"
)

var (
	initOutputFile string
	initForce      bool
)

// promptForConfirmation prompts the user for confirmation and returns true if they confirm
func promptForConfirmation(message string) bool {
	fmt.Printf("%s (y/N): ", message)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// InitCommand represents the init command
var InitCommand = &cobra.Command{
	Use:   "init",
	Short: "Write a commented starter config file",
	Long: `Writes the commented sample configuration to labops.yml (or the path
given with -o). Every setting in the sample is optional; labops runs with
built-in defaults until you change something.`,
	Example: `  # Starter config in the current directory
  labops init

  # System-wide config
  labops init -o /etc/labops/labops.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output := initOutputFile
		if output == "-" {
			fmt.Print(string(config.SampleConfig()))
			return nil
		}

		if _, err := os.Stat(output); err == nil {
			if !initForce {
				if !promptForConfirmation(fmt.Sprintf("File %s already exists. Overwrite?", output)) {
					log.Info("operation cancelled")
					return fmt.Errorf("operation cancelled: file %s already exists", output)
				}
			}
			log.Infof("overwriting existing file: %s", output)
		}

		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(output, config.SampleConfig(), 0644); err != nil {
			return fmt.Errorf("failed to write config to %s: %w", output, err)
		}
		log.Infof("config written to %s", output)
		return nil
	},
}

func init() {
	InitCommand.Flags().StringVarP(&initOutputFile, "output", "o", "labops.yml", "Write the config to this path ('-' for stdout)")
	InitCommand.Flags().BoolVar(&initForce, "force", false, "Skip confirmation when overwriting existing files")
}
