// Package appengine materializes one app's OCI image layers from the
// bundle's shared blob store onto the container runtime's storage, and
// brings the app's compose services up, by shelling out to skopeo and the
// compose binary.
package appengine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/facchinm/aktualizr-lite/internal/domain"
	"github.com/facchinm/aktualizr-lite/pkg/ociref"
)

// defSubprocessTimeout bounds a single skopeo or compose invocation.
const defSubprocessTimeout = 5 * time.Minute

// Engine drives skopeo and compose against one bundle's materialized app
// directories.
type Engine struct {
	Bundle     domain.BundleLayout
	SkopeoBin  string
	ComposeBin string
	DockerHost string
	Timeout    time.Duration
}

// New returns an Engine rooted at bundle, invoking skopeoBin/composeBin
// with DOCKER_HOST set to dockerHost.
func New(bundle domain.BundleLayout, skopeoBin, composeBin, dockerHost string) *Engine {
	return &Engine{
		Bundle:     bundle,
		SkopeoBin:  skopeoBin,
		ComposeBin: composeBin,
		DockerHost: dockerHost,
		Timeout:    defSubprocessTimeout,
	}
}

// ociArgsFor builds the image-reference-to-oci-path arguments skopeo is
// invoked with: the bundle's shared blob directory and the path of one
// image's already-extracted OCI layout inside an app's materialized
// directory. This is the precise contract skopeo expects.
func ociArgsFor(bundle domain.BundleLayout, appName, appDigestHex string, img ociref.Uri) []string {
	ociPath := filepath.Join(bundle.AppDir(appName, appDigestHex), "images", img.RegistryHost, img.Repo, img.Digest.Hex())
	return []string{
		"--src-shared-blob-dir", bundle.BlobsRoot(),
		"oci:" + ociPath,
	}
}

// PullImage copies one image's layers out of the bundle and into the
// container runtime's image store via skopeo copy, so a container pinned
// to img can later be started with no registry pull.
func (e *Engine) PullImage(ctx context.Context, appName, appDigestHex string, img ociref.Uri) error {
	args := append([]string{"copy"}, ociArgsFor(e.Bundle, appName, appDigestHex, img)...)
	args = append(args, "docker-daemon:"+img.String())

	env := []string{"DOCKER_HOST=" + e.DockerHost}
	if err := e.run(ctx, e.SkopeoBin, args, env); err != nil {
		return fmt.Errorf("pulling image %s for app %s: %w", img, appName, err)
	}
	return nil
}

// ComposeUp starts appDir's compose services, bringing a finalized app
// online after its images are present in the runtime's store.
func (e *Engine) ComposeUp(ctx context.Context, appDir string) error {
	env := []string{"DOCKER_HOST=" + e.DockerHost}
	if err := e.run(ctx, e.ComposeBin, []string{"-f", filepath.Join(appDir, "docker-compose.yml"), "up", "-d"}, env); err != nil {
		return fmt.Errorf("starting compose app at %s: %w", appDir, err)
	}
	return nil
}

// run executes name with args, bounded by e.Timeout, and folds stderr into
// the returned error on failure.
func (e *Engine) run(ctx context.Context, name string, args []string, extraEnv []string) error {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	// #nosec G204 - name/args are built from configured binary paths and
	// bundle-derived paths, not untrusted user input.
	cmd := exec.CommandContext(ctx, name, args...)
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), extraEnv...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().Str("bin", name).Strs("args", args).Msg("running subprocess")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, stderr.String())
	}
	return nil
}
