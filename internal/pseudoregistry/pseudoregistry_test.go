package pseudoregistry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

func newTestBundle(t *testing.T, blobs map[string][]byte) domain.BundleLayout {
	t.Helper()
	root := t.TempDir()
	bundle := domain.NewBundleLayout(root)
	require.NoError(t, os.MkdirAll(bundle.BlobsDir(), 0o755))
	for hex, content := range blobs {
		require.NoError(t, os.WriteFile(bundle.BlobFile(hex), content, 0o644))
	}
	return bundle
}

func TestRegistry_Get_ServesBlobByDigest(t *testing.T) {
	body := []byte(`{"schemaVersion":2}`)
	digest := fmt.Sprintf("%x", sha256.Sum256(body))
	bundle := newTestBundle(t, map[string][]byte{digest: body})

	r := New(bundle, "http://localhost/token")
	url := fmt.Sprintf("https://registry.example.com/v2/myfactory/app/manifests/sha256:%s", digest)

	resp, err := r.Get(context.Background(), url, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, body, resp.Body)
}

func TestRegistry_Get_TokenEndpoint(t *testing.T) {
	bundle := newTestBundle(t, nil)
	r := New(bundle, "http://localhost/token")

	resp, err := r.Get(context.Background(), "http://localhost/token", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"token":"token"}`, string(resp.Body))
}

func TestRegistry_Get_MissingBlob(t *testing.T) {
	bundle := newTestBundle(t, nil)
	r := New(bundle, "http://localhost/token")
	url := "https://registry.example.com/v2/x/blobs/sha256:" + fmt.Sprintf("%064d", 0)

	_, err := r.Get(context.Background(), url, nil, 0)
	assert.Error(t, err)
}

func TestRegistry_Get_RejectsPathTraversal(t *testing.T) {
	bundle := newTestBundle(t, nil)
	r := New(bundle, "http://localhost/token")
	url := "https://registry.example.com/v2/x/blobs/sha256:" + "../../../etc/passwd0000000000000000000000000000000000000000"

	_, err := r.Get(context.Background(), url, nil, 0)
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(bundle.BlobsDir(), "..", "..", "..", "etc", "passwd"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRegistry_Download_StreamsBlob(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 10*1024+7)
	digest := fmt.Sprintf("%x", sha256.Sum256(body))
	bundle := newTestBundle(t, map[string][]byte{digest: body})

	r := New(bundle, "http://localhost/token")
	url := fmt.Sprintf("https://registry.example.com/v2/myfactory/app/blobs/sha256:%s", digest)

	var buf bytes.Buffer
	resp, err := r.Download(context.Background(), url, nil, &buf)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, body, buf.Bytes())
}

func TestRegistry_Factory_WrapsGet(t *testing.T) {
	body := []byte("hello")
	digest := fmt.Sprintf("%x", sha256.Sum256(body))
	bundle := newTestBundle(t, map[string][]byte{digest: body})

	r := New(bundle, "http://localhost/token")
	transport := r.Factory()(nil, nil)

	url := fmt.Sprintf("https://registry.example.com/v2/x/blobs/sha256:%s", digest)
	resp, err := transport.Get(context.Background(), url, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, body, resp.Body)
}
