// Package registrar implements the image registrar: injecting bundled image
// references into the container runtime's private repositories index, so
// the runtime can start a container whose image was never pulled over the
// network.
package registrar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog/log"

	"github.com/facchinm/aktualizr-lite/internal/domain"
	"github.com/facchinm/aktualizr-lite/pkg/ociref"
)

// RegisterApps splices every app in target into the repositories index
// found at repositoriesFile (created fresh if absent), reading compose
// files and image indexes from bundle, and persists the result atomically.
func RegisterApps(bundle domain.BundleLayout, target domain.Target, repositoriesFile string) error {
	index, err := loadRepositoriesIndex(repositoriesFile)
	if err != nil {
		return fmt.Errorf("registering apps: %w", err)
	}

	for _, app := range target.Apps {
		if err := registerApp(bundle, app, index); err != nil {
			return fmt.Errorf("registering app %s: %w", app.Name, err)
		}
	}

	if err := saveRepositoriesIndex(repositoriesFile, index); err != nil {
		return fmt.Errorf("registering apps: %w", err)
	}
	return nil
}

func registerApp(bundle domain.BundleLayout, app domain.AppRef, index *domain.RepositoriesIndex) error {
	appURI, err := ociref.ParseUri(app.URI, false)
	if err != nil {
		return err
	}
	appDigestHex := appURI.Digest.Hex()

	composePath := bundle.AppComposeFile(app.Name, appDigestHex)
	if _, err := os.Stat(composePath); os.IsNotExist(err) {
		log.Debug().Str("app", app.Name).Msg("skipping app: not materialized on bundle (shortlisted)")
		return nil
	}

	images, err := ParseComposeImages(composePath)
	if err != nil {
		return err
	}

	for _, img := range images {
		configDigestHex, err := resolveConfigDigest(bundle, app.Name, appDigestHex, img)
		if err != nil {
			return fmt.Errorf("image %s: %w", img, err)
		}

		repo := img.RegistryHost + "/" + img.Repo
		index.Set(repo, img.String(), "sha256:"+configDigestHex)
	}

	return nil
}

// resolveConfigDigest reads images/<host>/<repo>/<img-digest>/index.json to
// find the first manifest's digest, then reads that manifest blob to find
// its config digest.
func resolveConfigDigest(bundle domain.BundleLayout, appName, appDigestHex string, img ociref.Uri) (string, error) {
	indexPath := bundle.ImageIndexFile(appName, appDigestHex, img.RegistryHost, img.Repo, img.Digest.Hex())
	indexBytes, err := os.ReadFile(indexPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", indexPath, err)
	}

	var imgIndex v1.Index
	if err := json.Unmarshal(indexBytes, &imgIndex); err != nil {
		return "", fmt.Errorf("parsing %s: %w", indexPath, err)
	}
	if len(imgIndex.Manifests) == 0 {
		return "", fmt.Errorf("%s has no manifests", indexPath)
	}

	// Only the first manifest is honored; multi-arch indexes are not
	// otherwise handled.
	manifestDigest, err := ociref.ParseDigest(string(imgIndex.Manifests[0].Digest))
	if err != nil {
		return "", fmt.Errorf("manifest digest in %s: %w", indexPath, err)
	}

	manifestPath := bundle.BlobFile(manifestDigest.Hex())
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", manifestPath, err)
	}

	var manifest v1.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return "", fmt.Errorf("parsing %s: %w", manifestPath, err)
	}

	configDigest, err := ociref.ParseDigest(string(manifest.Config.Digest))
	if err != nil {
		return "", fmt.Errorf("config digest in %s: %w", manifestPath, err)
	}

	return configDigest.Hex(), nil
}

func loadRepositoriesIndex(path string) (*domain.RepositoriesIndex, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewRepositoriesIndex(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var index domain.RepositoriesIndex
	if err := json.Unmarshal(content, &index); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrRepositoriesCorrupt, path, err)
	}
	if index.Repositories == nil {
		index.Repositories = map[string]map[string]string{}
	}
	return &index, nil
}

// saveRepositoriesIndex writes index to path through a temp-file-and-rename
// sequence, so a crash mid-write never leaves a truncated index.
func saveRepositoriesIndex(path string, index *domain.RepositoriesIndex) error {
	content, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encoding repositories index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installing %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("repositories index updated")
	return nil
}
