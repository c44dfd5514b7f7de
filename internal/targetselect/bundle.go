package targetselect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

// ScanBundleApps walks bundle.AppsDir()'s two-level app/digest directory
// structure and returns the set of pinned URIs recorded in each app's uri
// file, matched against a target's app map by value rather than by
// directory name.
func ScanBundleApps(bundle domain.BundleLayout) (map[string]struct{}, error) {
	found := map[string]struct{}{}

	appEntries, err := os.ReadDir(bundle.AppsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return found, nil
		}
		return nil, fmt.Errorf("scanning bundle apps: %w", err)
	}

	for _, appEntry := range appEntries {
		if !appEntry.IsDir() {
			continue
		}

		digestDir := filepath.Join(bundle.AppsDir(), appEntry.Name())
		digestEntries, err := os.ReadDir(digestDir)
		if err != nil {
			return nil, fmt.Errorf("scanning app %s: %w", appEntry.Name(), err)
		}

		for _, digestEntry := range digestEntries {
			if !digestEntry.IsDir() {
				continue
			}

			uriPath := bundle.AppURIFile(appEntry.Name(), digestEntry.Name())
			content, err := os.ReadFile(uriPath)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("reading %s: %w", uriPath, err)
			}

			found[strings.TrimSpace(string(content))] = struct{}{}
		}
	}

	return found, nil
}
