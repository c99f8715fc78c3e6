// Package compose discovers docker compose files under the stacks
// directory and extracts the images their services run.
package compose

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// filenames are the compose file names recognized during discovery.
var filenames = map[string]bool{
	"docker-compose.yml":  true,
	"docker-compose.yaml": true,
	"compose.yml":         true,
	"compose.yaml":        true,
}

// Service is one image reference found in a compose file.
type Service struct {
	// Stack is the name of the directory holding the compose file.
	Stack string
	Name  string
	Image string
}

// file is the subset of the compose format the scanner reads.
type file struct {
	Services map[string]struct {
		Image string `yaml:"image"`
	} `yaml:"services"`
}

// Discover walks baseDir for compose files and returns every service
// with an image line. Unparseable files are logged and skipped.
func Discover(baseDir string) ([]Service, error) {
	if _, err := os.Stat(baseDir); err != nil {
		return nil, errors.Wrapf(err, "compose directory %s does not exist", baseDir)
	}

	var services []Service
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !filenames[d.Name()] {
			return nil
		}

		found, parseErr := ParseFile(path)
		if parseErr != nil {
			log.WithError(parseErr).Warnf("could not parse %s", path)
			return nil
		}
		services = append(services, found...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", baseDir)
	}
	return services, nil
}

// ParseFile extracts the services with image lines from one compose
// file. The stack name is the parent directory.
func ParseFile(path string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	var parsed file
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	stack := filepath.Base(filepath.Dir(path))
	var services []Service
	for name, svc := range parsed.Services {
		if svc.Image == "" {
			continue
		}
		services = append(services, Service{Stack: stack, Name: name, Image: svc.Image})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}
