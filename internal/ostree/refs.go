// Package ostree reads the subset of a bare OSTree repository's on-disk
// layout the offline update core needs: the ref-name to commit-hex mapping.
// No OSTree binding exists in the wider Go ecosystem this core draws from,
// so this is a deliberately thin filesystem walk rather than a wrapped
// library.
package ostree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Refs walks <repoDir>/refs/heads and returns a map of ref name (the
// slash-joined path relative to refs/heads) to the commit hex stored in
// that file.
func Refs(repoDir string) (map[string]string, error) {
	headsDir := filepath.Join(repoDir, "refs", "heads")

	refs := map[string]string{}
	err := filepath.WalkDir(headsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == headsDir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(headsDir, path)
		if relErr != nil {
			return relErr
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}

		refs[filepath.ToSlash(rel)] = strings.TrimSpace(string(content))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading ostree refs under %s: %w", repoDir, err)
	}

	return refs, nil
}

// CommitSet returns the set of distinct commit hexes named by refs, as
// produced by Refs.
func CommitSet(refs map[string]string) map[string]struct{} {
	set := make(map[string]struct{}, len(refs))
	for _, commit := range refs {
		set[commit] = struct{}{}
	}
	return set
}
