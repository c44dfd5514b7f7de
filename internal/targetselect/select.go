// Package targetselect implements offline target selection: matching the
// signed target list against the actual contents of a bundle, and
// shortlisting the apps a target carries to those the bundle can satisfy.
package targetselect

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

// SelectNamed bypasses the version/ostree/app matching algorithm entirely
// and returns the target named name, or ok=false if none matches. Kept as
// a distinct code path from Select, mirroring how an explicit target name
// takes precedence over discovery everywhere else this core touches
// target resolution.
func SelectNamed(targets []domain.Target, name string) (domain.Target, bool) {
	for _, t := range targets {
		if t.Filename == name {
			return t, true
		}
	}
	return domain.Target{}, false
}

// Select implements the general offline selection algorithm: candidates
// are filtered to those whose single hardware id matches hwID, sorted by
// custom_version descending, and walked highest-version-first until one is
// found whose ostree commit is present in ostreeCommits and whose apps
// account for every uri in bundleApps. Target apps absent from bundleApps
// are tolerated and dropped (shortlisting); a bundle uri that no target app
// names rejects the target. The winning target's app map is replaced by
// the shortlist before it is returned.
func Select(targets []domain.Target, hwID string, ostreeCommits map[string]struct{}, bundleApps map[string]struct{}) (domain.Target, bool) {
	candidates := make([]domain.Target, 0, len(targets))
	for _, t := range targets {
		if len(t.HardwareIDs) != 1 || t.HardwareIDs[0] != hwID {
			log.Warn().Str("target", t.Filename).Strs("hardware_ids", t.HardwareIDs).Msg("skipping target: hardware id does not match device")
			continue
		}
		candidates = append(candidates, t)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return compareVersions(candidates[i].CustomVersion, candidates[j].CustomVersion) > 0
	})

	for _, t := range candidates {
		if _, ok := ostreeCommits[t.Sha256]; !ok {
			continue
		}

		pending := make(map[string]struct{}, len(bundleApps))
		for uri := range bundleApps {
			pending[uri] = struct{}{}
		}

		keep := make(map[string]struct{}, len(t.Apps))
		for _, app := range t.Apps {
			if _, present := bundleApps[app.URI]; !present {
				continue
			}
			keep[app.Name] = struct{}{}
			delete(pending, app.URI)
		}

		if len(pending) == 0 {
			return t.Shortlist(keep), true
		}
	}

	return domain.Target{}, false
}

// SelectFromBundle is the convenience entry point the install/run driver
// uses: it scans bundle for ostree refs and app uris, then delegates to
// Select.
func SelectFromBundle(targets []domain.Target, hwID string, ostreeRefs map[string]string, bundle domain.BundleLayout) (domain.Target, error) {
	commits := make(map[string]struct{}, len(ostreeRefs))
	for _, commit := range ostreeRefs {
		commits[commit] = struct{}{}
	}

	bundleApps, err := ScanBundleApps(bundle)
	if err != nil {
		return domain.Target{}, fmt.Errorf("selecting target: %w", err)
	}

	target, ok := Select(targets, hwID, commits, bundleApps)
	if !ok {
		return domain.Target{}, fmt.Errorf("%w: device hardware id %q", domain.ErrNoMatchingTarget, hwID)
	}
	return target, nil
}
