package tuf

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

func writeTargetsFile(t *testing.T, bundle domain.BundleLayout, version int, body string) {
	t.Helper()
	path := bundle.TufRoleFile(version, "targets")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

const targetsTemplate = `{
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
          "hardwareIds": ["raspberrypi4-64"],
          "version": "%s",
          "docker_compose_apps": {
            "shellhttpd": {"uri": "hub.foundries.io/myfactory/shellhttpd@sha256:%s"}
          }
        }
      }
    }
  },
  "signatures": []
}`

func TestLoadTargets_ParsesCustomMetadata(t *testing.T) {
	root := t.TempDir()
	bundle := domain.NewBundleLayout(root)

	commitHex := hexOf('a')
	appDigestHex := hexOf('b')
	body := fmt.Sprintf(targetsTemplate, "factory-raspberrypi4-64-42", commitHex, "42", appDigestHex)
	writeTargetsFile(t, bundle, 1, body)

	targets, err := LoadTargets(bundle, 1)
	require.NoError(t, err)
	require.Len(t, targets, 1)

	target := targets[0]
	assert.Equal(t, "factory-raspberrypi4-64-42", target.Filename)
	assert.Equal(t, commitHex, target.Sha256)
	assert.Equal(t, []string{"raspberrypi4-64"}, target.HardwareIDs)
	assert.Equal(t, "42", target.CustomVersion)
	require.Len(t, target.Apps, 1)
	assert.Equal(t, "shellhttpd", target.Apps[0].Name)
	assert.Contains(t, target.Apps[0].URI, appDigestHex)
}

func TestLoadTargets_MissingFileRaisesTufPullFailed(t *testing.T) {
	bundle := domain.NewBundleLayout(t.TempDir())
	_, err := LoadTargets(bundle, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTufPullFailed)
}

func TestLoadTargets_CorruptJSONRaisesTufInvalidOffline(t *testing.T) {
	bundle := domain.NewBundleLayout(t.TempDir())
	writeTargetsFile(t, bundle, 1, "{not json")

	_, err := LoadTargets(bundle, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTufInvalidOffline)
}

func hexOf(b byte) string {
	s := make([]byte, 64)
	for i := range s {
		s[i] = b
	}
	return string(s)
}
