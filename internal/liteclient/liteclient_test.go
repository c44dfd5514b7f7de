package liteclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	godigest "github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facchinm/aktualizr-lite/internal/appengine"
	"github.com/facchinm/aktualizr-lite/internal/domain"
	"github.com/facchinm/aktualizr-lite/internal/ostree"
	"github.com/facchinm/aktualizr-lite/internal/pseudoregistry"
	"github.com/facchinm/aktualizr-lite/internal/registryclient"
)

const (
	bootedRefName  = "booted"
	hardwareID     = "testhw"
	tufTargetsTmpl = `{
  "signed": {
    "_type": "targets",
    "spec_version": "1.0.0",
    "version": 1,
    "expires": "2099-01-01T00:00:00Z",
    "targets": {
      "%s": {
        "length": 0,
        "hashes": {"sha256": "%s"},
        "custom": {
          "hardwareIds": ["testhw"],
          "version": "1",
          "docker_compose_apps": {
            "shellhttpd": {"uri": "hub.foundries.io/myfactory/shellhttpd@sha256:%s"}
          }
        }
      }
    }
  },
  "signatures": []
}`
)

func hex64(b byte) string {
	s := make([]byte, 64)
	for i := range s {
		s[i] = b
	}
	return string(s)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// fakeInstaller records what the driver asked it to do and always reports
// completion. onFinalize, if set, lets a test simulate the device-local
// booted ref catching up with the deployment a real reboot would have
// already performed before FinalizeInstall runs.
type fakeInstaller struct {
	installedCommit string
	finalizeCalled  bool
	onFinalize      func()
}

func (f *fakeInstaller) Install(_ context.Context, commitHex string) (string, error) {
	f.installedCommit = commitHex
	return ostree.ResultNeedCompletion, nil
}

func (f *fakeInstaller) FinalizeInstall(_ context.Context) (string, error) {
	f.finalizeCalled = true
	if f.onFinalize != nil {
		f.onFinalize()
	}
	return ostree.ResultNeedCompletion, nil
}

// fakeRepoLocator hands back a fixed repositories index path with no daemon
// involved.
type fakeRepoLocator struct{ path string }

func (f fakeRepoLocator) RepositoriesIndexPath(context.Context) (string, error) {
	return f.path, nil
}

func writeRef(t *testing.T, bundle domain.BundleLayout, ref, commitHex string) {
	t.Helper()
	path := filepath.Join(bundle.OstreeDir(), "refs", "heads", ref)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(commitHex+"\n"), 0o644))
}

// fixture wires a full bundle containing one signed target ("fioctl-test")
// pinning one app ("shellhttpd") with one image, whose manifest/config/layer
// blobs are real, digest-verifiable content — so registryClient.DownloadBlob
// succeeds against the pseudo-registry the same way it would over a network.
type fixture struct {
	bundle       domain.BundleLayout
	targetCommit string
	appDigestHex string
}

func setupFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	bundle := domain.NewBundleLayout(root)

	targetCommit := hex64('2')
	appDigestHex := hex64('3')
	imgDigestHex := hex64('4')

	composePath := bundle.AppComposeFile("shellhttpd", appDigestHex)
	require.NoError(t, os.MkdirAll(filepath.Dir(composePath), 0o755))
	compose := fmt.Sprintf("services:\n  web:\n    image: hub.foundries.io/myfactory/shellhttpd@sha256:%s\n", imgDigestHex)
	require.NoError(t, os.WriteFile(composePath, []byte(compose), 0o644))

	configBytes := []byte("config-content")
	configHex := sha256Hex(configBytes)
	layerBytes := []byte("layer-content")
	layerHex := sha256Hex(layerBytes)

	manifestBytes, err := json.Marshal(v1.Manifest{
		Config: v1.Descriptor{Digest: godigest.NewDigestFromEncoded(godigest.SHA256, configHex), Size: int64(len(configBytes))},
		Layers: []v1.Descriptor{{Digest: godigest.NewDigestFromEncoded(godigest.SHA256, layerHex), Size: int64(len(layerBytes))}},
	})
	require.NoError(t, err)
	manifestHex := sha256Hex(manifestBytes)

	require.NoError(t, os.MkdirAll(bundle.BlobsDir(), 0o755))
	require.NoError(t, os.WriteFile(bundle.BlobFile(manifestHex), manifestBytes, 0o644))
	require.NoError(t, os.WriteFile(bundle.BlobFile(configHex), configBytes, 0o644))
	require.NoError(t, os.WriteFile(bundle.BlobFile(layerHex), layerBytes, 0o644))

	indexPath := bundle.ImageIndexFile("shellhttpd", appDigestHex, "hub.foundries.io", "myfactory/shellhttpd", imgDigestHex)
	indexBytes, err := json.Marshal(v1.Index{
		Manifests: []v1.Descriptor{{Digest: godigest.NewDigestFromEncoded(godigest.SHA256, manifestHex), Size: int64(len(manifestBytes))}},
	})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(indexPath), 0o755))
	require.NoError(t, os.WriteFile(indexPath, indexBytes, 0o644))

	body := fmt.Sprintf(tufTargetsTmpl, "fioctl-test", targetCommit, appDigestHex)
	targetsPath := bundle.TufRoleFile(1, "targets")
	require.NoError(t, os.MkdirAll(filepath.Dir(targetsPath), 0o755))
	require.NoError(t, os.WriteFile(targetsPath, []byte(body), 0o644))

	return fixture{bundle: bundle, targetCommit: targetCommit, appDigestHex: appDigestHex}
}

func writeFakeBin(t *testing.T, dir, name, recordFile string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\necho \"$@\" >> " + recordFile + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestClient(t *testing.T, fx fixture, bootedCommit string, installer ostree.Installer, recordFile string) (*LiteClient, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix shell scripts standing in for skopeo/compose")
	}

	binDir := t.TempDir()
	fakeSkopeo := writeFakeBin(t, binDir, "skopeo", recordFile)
	fakeCompose := writeFakeBin(t, binDir, "docker-compose", recordFile)

	registry := pseudoregistry.New(fx.bundle, "daemon://credentials")
	factory := registry.Factory()
	rc := &registryclient.Client{Registry: factory, Daemon: factory, CredentialsURL: "daemon://credentials"}

	writeRef(t, fx.bundle, bootedRefName, bootedCommit)

	repositoriesFile := filepath.Join(t.TempDir(), "repositories.json")

	lc := &LiteClient{
		bundle:         fx.bundle,
		hardwareID:     hardwareID,
		tufVersion:     1,
		registryClient: rc,
		repoLocator:    fakeRepoLocator{path: repositoriesFile},
		engine:         appengine.New(fx.bundle, fakeSkopeo, fakeCompose, "unix:///var/run/docker.sock"),
		installer:      installer,
		bootedRef:      bootedRefName,
	}
	return lc, repositoriesFile
}

func TestInstall_StagesDeploymentWhenNotBooted(t *testing.T) {
	fx := setupFixture(t)
	recordFile := filepath.Join(t.TempDir(), "invoked.txt")
	installer := &fakeInstaller{}
	lc, repositoriesFile := newTestClient(t, fx, hex64('9'), installer, recordFile)

	result, err := lc.Install(context.Background(), UpdateSource{BundleDir: fx.bundle.Root, TargetName: "fioctl-test"})
	require.NoError(t, err)
	assert.Equal(t, NeedReboot, result)
	assert.Equal(t, fx.targetCommit, installer.installedCommit)

	recorded, err := os.ReadFile(recordFile)
	require.NoError(t, err)
	assert.Contains(t, string(recorded), "copy --src-shared-blob-dir")

	_, err = os.Stat(repositoriesFile)
	require.NoError(t, err)
}

func TestInstall_ReturnsNeedDockerRestartWhenAlreadyBooted(t *testing.T) {
	fx := setupFixture(t)
	recordFile := filepath.Join(t.TempDir(), "invoked.txt")
	installer := &fakeInstaller{}
	lc, _ := newTestClient(t, fx, fx.targetCommit, installer, recordFile)

	result, err := lc.Install(context.Background(), UpdateSource{BundleDir: fx.bundle.Root, TargetName: "fioctl-test"})
	require.NoError(t, err)
	assert.Equal(t, NeedDockerRestart, result)
	assert.Empty(t, installer.installedCommit)
}

func TestRun_NotYetBooted_FinalizesDeploymentAndComposesApps(t *testing.T) {
	fx := setupFixture(t)
	recordFile := filepath.Join(t.TempDir(), "invoked.txt")

	bundle := fx.bundle
	installer := &fakeInstaller{}
	lc, _ := newTestClient(t, fx, hex64('9'), installer, recordFile)
	// FinalizeInstall completes the deployment swap a real reboot would
	// already have performed; simulate the booted ref catching up with it.
	installer.onFinalize = func() { writeRef(t, bundle, bootedRefName, fx.targetCommit) }

	err := lc.Run(context.Background(), UpdateSource{BundleDir: fx.bundle.Root, TargetName: "fioctl-test"})
	require.NoError(t, err)
	assert.True(t, installer.finalizeCalled)

	recorded, err := os.ReadFile(recordFile)
	require.NoError(t, err)
	assert.Contains(t, string(recorded), "up -d")
}

func TestRun_AlreadyBooted_ReinstallsAppsWithoutFinalizing(t *testing.T) {
	fx := setupFixture(t)
	recordFile := filepath.Join(t.TempDir(), "invoked.txt")
	installer := &fakeInstaller{}
	// Run() finds the device already on the target commit: the known
	// idempotence gap in the app manager state means apps get re-downloaded
	// and re-installed rather than finalized.
	lc, _ := newTestClient(t, fx, fx.targetCommit, installer, recordFile)

	err := lc.Run(context.Background(), UpdateSource{BundleDir: fx.bundle.Root, TargetName: "fioctl-test"})
	require.NoError(t, err)
	assert.False(t, installer.finalizeCalled)

	recorded, err := os.ReadFile(recordFile)
	require.NoError(t, err)
	assert.Contains(t, string(recorded), "copy --src-shared-blob-dir")
	assert.Contains(t, string(recorded), "up -d")
}

func TestInstall_UnknownTargetNameFails(t *testing.T) {
	fx := setupFixture(t)
	recordFile := filepath.Join(t.TempDir(), "invoked.txt")
	lc, _ := newTestClient(t, fx, hex64('9'), &fakeInstaller{}, recordFile)

	_, err := lc.Install(context.Background(), UpdateSource{BundleDir: fx.bundle.Root, TargetName: "does-not-exist"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}
