package registrar

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/facchinm/aktualizr-lite/pkg/ociref"
)

// composeFile is the subset of a docker-compose.yml this core reads: just
// enough to enumerate each service's pinned image reference.
type composeFile struct {
	Services map[string]struct {
		Image string `yaml:"image"`
	} `yaml:"services"`
}

// ParseComposeImages reads the docker-compose.yml at path and returns the
// pinned image reference of every service that names an image, in no
// particular order.
func ParseComposeImages(path string) ([]ociref.Uri, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var compose composeFile
	if err := yaml.Unmarshal(content, &compose); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// yaml.v3 decodes mapping keys in file order only through a Node walk;
	// composeFile's plain map loses that order, which is fine here since
	// the registrar treats every service independently.
	uris := make([]ociref.Uri, 0, len(compose.Services))
	for name, svc := range compose.Services {
		if svc.Image == "" {
			continue
		}
		u, err := ociref.ParseUri(svc.Image, false)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		uris = append(uris, u)
	}

	return uris, nil
}
