package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// EnvConfigPath names the environment variable consulted when --config is
// not given.
const EnvConfigPath = "LABOPS_CONFIG"

// Load reads and parses a labops config file. "-" reads from stdin.
// Defaults are applied before returning.
func Load(path string) (*Config, error) {
	log.Debugf("reading config from: %s", path)

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config from stdin")
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file: %s", path)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file: %s", path)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// Resolve determines the config file path to use. An explicit path wins,
// then $LABOPS_CONFIG, then the default candidates. An empty result with a
// nil error means no config file exists and built-in defaults apply.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}

	candidates := []string{
		"labops.yml",
		filepath.Join(".config", "labops.yml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "labops.yml"))
	}
	candidates = append(candidates, filepath.Join("/etc", "labops", "labops.yml"))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// LoadOrDefault resolves and loads the config, returning built-in defaults
// when no config file exists. The second result is the path actually used,
// empty for defaults.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Resolve(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		log.Debug("no config file found, using built-in defaults")
		cfg := &Config{}
		cfg.SetDefaults()
		return cfg, "", nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", errors.Wrapf(err, "invalid config: %s", path)
	}
	return cfg, path, nil
}
