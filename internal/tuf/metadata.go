// Package tuf reads the signed targets role out of a bundle's tuf/ metadata
// directory and projects it into domain.Target values. It deliberately
// stops short of verifying signatures: offline target selection trusts the
// bundle's contents by construction (the bundle itself is the update
// medium), and the full verification chain needs a root-of-trust this core
// has no use for.
package tuf

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/theupdateframework/go-tuf/v2/metadata"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

// customTargetMeta is the subset of a target's "custom" JSON object this
// core reads: hardware id list, the free-form version string used for
// selection ordering, and the pinned compose app references.
type customTargetMeta struct {
	HardwareIDs       []string `json:"hardwareIds"`
	Version           string   `json:"version"`
	DockerComposeApps map[string]struct {
		URI string `json:"uri"`
	} `json:"docker_compose_apps"`
}

// LoadTargets reads tuf/<version>.targets.json from bundle and returns every
// signed target it names, in stable filename order.
func LoadTargets(bundle domain.BundleLayout, version int) ([]domain.Target, error) {
	path := bundle.TufRoleFile(version, "targets")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %s", domain.ErrTufPullFailed, path, err)
	}

	md := &metadata.Metadata[metadata.TargetsType]{}
	if _, err := md.FromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %s", domain.ErrTufInvalidOffline, path, err)
	}

	targets := make([]domain.Target, 0, len(md.Signed.Targets))
	for filename, tf := range md.Signed.Targets {
		target, err := toDomainTarget(filename, tf)
		if err != nil {
			return nil, fmt.Errorf("%w: target %q in %s: %s", domain.ErrTufInvalidOffline, filename, path, err)
		}
		targets = append(targets, target)
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Filename < targets[j].Filename })
	return targets, nil
}

func toDomainTarget(filename string, tf *metadata.TargetFiles) (domain.Target, error) {
	sha256Hash, ok := tf.Hashes["sha256"]
	if !ok {
		return domain.Target{}, fmt.Errorf("missing sha256 hash")
	}

	var custom customTargetMeta
	if tf.Custom != nil {
		if err := json.Unmarshal(*tf.Custom, &custom); err != nil {
			return domain.Target{}, fmt.Errorf("decoding custom metadata: %w", err)
		}
	}

	apps := make([]domain.AppRef, 0, len(custom.DockerComposeApps))
	names := make([]string, 0, len(custom.DockerComposeApps))
	for name := range custom.DockerComposeApps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		apps = append(apps, domain.AppRef{Name: name, URI: custom.DockerComposeApps[name].URI})
	}

	return domain.Target{
		Filename:      filename,
		Sha256:        sha256Hash.String(),
		HardwareIDs:   custom.HardwareIDs,
		CustomVersion: custom.Version,
		Apps:          apps,
	}, nil
}
