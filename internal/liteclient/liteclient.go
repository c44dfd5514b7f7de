// Package liteclient is the composition root for the offline update core:
// it wires an offline registry client, a TUF metadata reader, an app
// engine, and an OSTree installer into the install() and run() drivers.
package liteclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog/log"

	"github.com/facchinm/aktualizr-lite/internal/appengine"
	"github.com/facchinm/aktualizr-lite/internal/config"
	"github.com/facchinm/aktualizr-lite/internal/domain"
	"github.com/facchinm/aktualizr-lite/internal/ostree"
	"github.com/facchinm/aktualizr-lite/internal/pseudoregistry"
	"github.com/facchinm/aktualizr-lite/internal/registrar"
	"github.com/facchinm/aktualizr-lite/internal/registryclient"
	"github.com/facchinm/aktualizr-lite/internal/targetselect"
	"github.com/facchinm/aktualizr-lite/internal/tuf"
	"github.com/facchinm/aktualizr-lite/pkg/docker"
	"github.com/facchinm/aktualizr-lite/pkg/ociref"
)

// InstallResult is the exit-action enum install() returns: the caller must
// either bounce the container runtime or reboot the device before the
// update takes effect.
type InstallResult int

const (
	// NeedDockerRestart: the repositories index changed but the device was
	// already booted on the target commit, so only the runtime needs a
	// restart.
	NeedDockerRestart InstallResult = iota
	// NeedReboot: a new OSTree deployment was staged and needs a reboot.
	NeedReboot
)

func (r InstallResult) String() string {
	switch r {
	case NeedDockerRestart:
		return "NeedDockerRestart"
	case NeedReboot:
		return "NeedReboot"
	default:
		return "unknown"
	}
}

// UpdateSource names the on-disk bundle to install or run from, and
// optionally an explicit target filename bypassing selection.
type UpdateSource struct {
	BundleDir  string
	TargetName string
}

// LiteClient is the offline update core composed around one bundle.
type LiteClient struct {
	bundle     domain.BundleLayout
	hardwareID string
	tufVersion int

	registryClient *registryclient.Client
	repoLocator    repositoriesLocator
	engine         *appengine.Engine
	installer      ostree.Installer

	// bootedRef is the device-local ostree ref the driver compares against
	// a target's sha256, resolved against bundle.OstreeDir() — standing in
	// for a full deployment/admin-status query, which needs OSTree bindings
	// this core does not have.
	bootedRef string

	targets []domain.Target
}

// repositoriesLocator resolves the container runtime's repositories index
// path, the one piece of docker.Client's surface the driver needs. Kept as
// a narrow interface, mirroring how storage contracts elsewhere in this
// codebase are split from their concrete backend, so tests don't need a
// live daemon.
type repositoriesLocator interface {
	RepositoriesIndexPath(ctx context.Context) (string, error)
}

// New composes a LiteClient rooted at src.BundleDir: an offline registry
// client backed by the bundle's blobs (the pseudoregistry, playing the role
// of both the "registry" and "daemon" transports since there is no real
// credential negotiation without a network), an app engine configured with
// --src-shared-blob-dir, and the installer the caller provides.
func New(cfg *config.Config, src UpdateSource, hardwareID, bootedRef string, installer ostree.Installer) (*LiteClient, error) {
	bundle := domain.NewBundleLayout(src.BundleDir)

	registry := pseudoregistry.New(bundle, "daemon://credentials")
	factory := registry.Factory()

	registryClient := &registryclient.Client{
		Registry:       factory,
		Daemon:         factory,
		CredentialsURL: "daemon://credentials",
	}

	dockerClient, err := docker.New(cfg.Docker.Host)
	if err != nil {
		return nil, fmt.Errorf("composing offline client: %w", err)
	}

	engine := appengine.New(bundle, cfg.Pacman.SkopeoBin, cfg.Pacman.ComposeBin, cfg.Docker.Host)

	return &LiteClient{
		bundle:         bundle,
		hardwareID:     hardwareID,
		tufVersion:     1,
		registryClient: registryClient,
		repoLocator:    dockerClient,
		engine:         engine,
		installer:      installer,
		bootedRef:      bootedRef,
	}, nil
}

// updateImageMeta loads and caches the bundle's signed targets list.
func (lc *LiteClient) updateImageMeta() error {
	targets, err := tuf.LoadTargets(lc.bundle, lc.tufVersion)
	if err != nil {
		return err
	}
	lc.targets = targets
	return nil
}

// checkImageMetaOffline is updateImageMeta's run()-side counterpart: same
// read, different name to match the two call sites the source keeps
// distinct.
func (lc *LiteClient) checkImageMetaOffline() error {
	return lc.updateImageMeta()
}

// getTarget resolves src to one signed target: an explicit TargetName
// bypasses selection entirely (SelectNamed), otherwise the general
// hardware-id/version/content selector runs against the bundle's own
// ostree refs and materialized apps.
func (lc *LiteClient) getTarget(src UpdateSource) (domain.Target, error) {
	if src.TargetName != "" {
		target, ok := targetselect.SelectNamed(lc.targets, src.TargetName)
		if !ok {
			return domain.Target{}, fmt.Errorf("%w: %q", domain.ErrTargetNotFound, src.TargetName)
		}
		return target, nil
	}

	ostreeRefs, err := ostree.Refs(lc.bundle.OstreeDir())
	if err != nil {
		return domain.Target{}, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, err)
	}

	target, err := targetselect.SelectFromBundle(lc.targets, lc.hardwareID, ostreeRefs, lc.bundle)
	if err != nil {
		return domain.Target{}, err
	}
	return target, nil
}

// bootedCommit resolves the device's currently running commit by reading
// bootedRef out of the bundle's own ostree repo refs, since the repo being
// pulled from is already the device's local repo once installed.
func (lc *LiteClient) bootedCommit() (string, error) {
	refs, err := ostree.Refs(lc.bundle.OstreeDir())
	if err != nil {
		return "", err
	}
	commit, ok := refs[lc.bootedRef]
	if !ok {
		return "", fmt.Errorf("booted ref %q not found in ostree repo", lc.bootedRef)
	}
	return commit, nil
}

// download materializes target: for every compose app it verifies each
// referenced image's manifest, config, and layer blobs through the registry
// client against the offline pseudo-registry, then hands the verified image
// to the app engine to pull into the container runtime's store. The OSTree
// commit itself needs no separate pull step, since the bundle's ostree/
// directory already is the source-of-truth repo the driver reads from in
// place.
func (lc *LiteClient) download(ctx context.Context, target domain.Target) error {
	for _, app := range target.Apps {
		if err := lc.downloadApp(ctx, app); err != nil {
			return fmt.Errorf("downloading app %s: %w", app.Name, err)
		}
	}
	return nil
}

func (lc *LiteClient) downloadApp(ctx context.Context, app domain.AppRef) error {
	appURI, err := ociref.ParseUri(app.URI, false)
	if err != nil {
		return err
	}
	appDigestHex := appURI.Digest.Hex()

	composePath := lc.bundle.AppComposeFile(app.Name, appDigestHex)
	images, err := registrar.ParseComposeImages(composePath)
	if err != nil {
		return err
	}

	for _, img := range images {
		if err := lc.fetchImageBlobs(ctx, app.Name, appDigestHex, img); err != nil {
			return fmt.Errorf("fetching blobs for %s: %w", img, err)
		}
		if err := lc.engine.PullImage(ctx, app.Name, appDigestHex, img); err != nil {
			return err
		}
	}
	return nil
}

// fetchImageBlobs pulls one image's manifest, config, and every layer
// through the registry client against the offline pseudo-registry, the same
// code path a real network update would use. This re-verifies every blob the
// selected target references (size and digest) before the image ever
// reaches skopeo, catching a corrupt or incomplete bundle with a precise
// error instead of a confusing skopeo failure.
func (lc *LiteClient) fetchImageBlobs(ctx context.Context, appName, appDigestHex string, img ociref.Uri) error {
	indexPath := lc.bundle.ImageIndexFile(appName, appDigestHex, img.RegistryHost, img.Repo, img.Digest.Hex())
	indexBytes, err := os.ReadFile(indexPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", indexPath, err)
	}

	var imgIndex v1.Index
	if err := json.Unmarshal(indexBytes, &imgIndex); err != nil {
		return fmt.Errorf("parsing %s: %w", indexPath, err)
	}
	if len(imgIndex.Manifests) == 0 {
		return fmt.Errorf("%s has no manifests", indexPath)
	}

	// Only the first manifest is honored; multi-arch indexes are not
	// otherwise handled.
	manifestDesc := imgIndex.Manifests[0]
	manifestDigest, err := ociref.ParseDigest(string(manifestDesc.Digest))
	if err != nil {
		return fmt.Errorf("manifest digest in %s: %w", indexPath, err)
	}

	manifestURI := img.Rehash(manifestDigest)
	if err := lc.registryClient.DownloadBlob(ctx, manifestURI, lc.bundle.BlobFile(manifestDigest.Hex()), manifestDesc.Size); err != nil {
		return err
	}

	manifestBytes, err := os.ReadFile(lc.bundle.BlobFile(manifestDigest.Hex()))
	if err != nil {
		return fmt.Errorf("reading manifest %s: %w", manifestDigest.Hex(), err)
	}

	var manifest v1.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return fmt.Errorf("parsing manifest %s: %w", manifestDigest.Hex(), err)
	}

	configDigest, err := ociref.ParseDigest(string(manifest.Config.Digest))
	if err != nil {
		return fmt.Errorf("config digest in manifest %s: %w", manifestDigest.Hex(), err)
	}
	if err := lc.registryClient.DownloadBlob(ctx, img.Rehash(configDigest), lc.bundle.BlobFile(configDigest.Hex()), manifest.Config.Size); err != nil {
		return err
	}

	for _, layer := range manifest.Layers {
		layerDigest, err := ociref.ParseDigest(string(layer.Digest))
		if err != nil {
			return fmt.Errorf("layer digest in manifest %s: %w", manifestDigest.Hex(), err)
		}
		if err := lc.registryClient.DownloadBlob(ctx, img.Rehash(layerDigest), lc.bundle.BlobFile(layerDigest.Hex()), layer.Size); err != nil {
			return err
		}
	}

	return nil
}

// registerApps splices target's apps into the container runtime's
// repositories index.
func (lc *LiteClient) registerApps(ctx context.Context, target domain.Target) error {
	repositoriesFile, err := lc.repoLocator.RepositoriesIndexPath(ctx)
	if err != nil {
		return fmt.Errorf("locating repositories index: %w", err)
	}
	return registrar.RegisterApps(lc.bundle, target, repositoriesFile)
}

// composeUpApps brings every one of target's apps online via the app
// engine, once the device is actually booted on target's commit. Install()
// never calls this: materializing apps and registering their images must
// not start containers before the matching OSTree deployment is active.
func (lc *LiteClient) composeUpApps(ctx context.Context, target domain.Target) error {
	for _, app := range target.Apps {
		appURI, err := ociref.ParseUri(app.URI, false)
		if err != nil {
			return err
		}
		appDir := lc.bundle.AppDir(app.Name, appURI.Digest.Hex())
		if err := lc.engine.ComposeUp(ctx, appDir); err != nil {
			return fmt.Errorf("bringing up app %s: %w", app.Name, err)
		}
	}
	return nil
}

// isTargetActive reports whether the device is currently booted on
// target's commit. It does not inspect target's apps: neither the
// repositories index entries nor the running compose services are checked.
func (lc *LiteClient) isTargetActive(ctx context.Context, target domain.Target) (bool, error) {
	booted, err := lc.bootedCommit()
	if err != nil {
		return false, err
	}
	if booted != target.Sha256 {
		return false, nil
	}
	return true, nil
}

// Install pulls, verifies, and registers target's apps, then stages an
// OSTree deployment if the device isn't already booted on it.
func (lc *LiteClient) Install(ctx context.Context, src UpdateSource) (InstallResult, error) {
	if err := lc.updateImageMeta(); err != nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrTufPullFailed, err)
	}

	target, err := lc.getTarget(src)
	if err != nil {
		return 0, err
	}

	if err := lc.download(ctx, target); err != nil {
		return 0, err
	}

	if err := lc.registerApps(ctx, target); err != nil {
		return 0, err
	}

	booted, err := lc.bootedCommit()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrInstallFailed, err)
	}

	if booted == target.Sha256 {
		log.Info().Str("target", target.Filename).Msg("device already on target commit, runtime restart required")
		return NeedDockerRestart, nil
	}

	result, err := lc.installer.Install(ctx, target.Sha256)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrInstallFailed, err)
	}
	if result != ostree.ResultNeedCompletion {
		return 0, fmt.Errorf("%w: installer returned %q, want %q", domain.ErrInstallFailed, result, ostree.ResultNeedCompletion)
	}

	log.Info().Str("target", target.Filename).Msg("new ostree deployment staged, reboot required")
	return NeedReboot, nil
}

// Run completes an update once a reboot has (or hasn't yet) landed on
// target: if the booted commit doesn't match target yet, it finalizes the
// staged OSTree deployment; otherwise it re-downloads and re-installs
// target's apps, to recover from a known idempotence gap in the app
// manager's state. Either way it brings target's apps online and confirms
// the target became active.
func (lc *LiteClient) Run(ctx context.Context, src UpdateSource) error {
	if err := lc.checkImageMetaOffline(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrTufPullFailed, err)
	}

	target, err := lc.getTarget(src)
	if err != nil {
		return err
	}

	booted, err := lc.bootedCommit()
	if err != nil {
		return err
	}

	if booted != target.Sha256 {
		result, err := lc.installer.FinalizeInstall(ctx)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrInstallFailed, err)
		}
		if result != ostree.ResultNeedCompletion {
			return fmt.Errorf("%w: finalize returned %q, want %q", domain.ErrInstallFailed, result, ostree.ResultNeedCompletion)
		}
	} else {
		log.Info().Str("target", target.Filename).Msg("already on target commit, re-installing apps to recover from app manager state")
		if err := lc.download(ctx, target); err != nil {
			return err
		}
		if err := lc.registerApps(ctx, target); err != nil {
			return err
		}
	}

	if err := lc.composeUpApps(ctx, target); err != nil {
		return err
	}

	active, err := lc.isTargetActive(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInstallFailed, err)
	}
	if !active {
		return fmt.Errorf("%w: target %s did not become active", domain.ErrInstallFailed, target.Filename)
	}
	return nil
}
