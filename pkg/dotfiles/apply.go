package dotfiles

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/pkg/config"
)

// Apply patches .bashrc and .vimrc under the configured home directory and
// returns what happened to every managed line.
func Apply(cfg *config.DotfilesConfig, dryRun bool) ([]Change, error) {
	home := cfg.Home
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to determine home directory")
		}
	}

	opts := Options{DryRun: dryRun, BackupSuffix: cfg.BackupSuffix}

	var bashEntries []Entry
	for _, alias := range MergeAliases(cfg.Aliases) {
		bashEntries = append(bashEntries, AliasEntry(alias))
	}
	changes, err := EnsureLines(filepath.Join(home, ".bashrc"), bashEntries, opts)
	if err != nil {
		return nil, err
	}

	var vimEntries []Entry
	for _, setting := range MergeVimSettings(cfg.VimSettings) {
		vimEntries = append(vimEntries, VimEntry(setting))
	}
	vimChanges, err := EnsureLines(filepath.Join(home, ".vimrc"), vimEntries, opts)
	if err != nil {
		return nil, err
	}

	return append(changes, vimChanges...), nil
}
