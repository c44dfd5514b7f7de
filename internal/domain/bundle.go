package domain

import (
	"path/filepath"
	"strconv"
)

// BundleLayout resolves paths within the on-disk update medium shipped
// alongside a device update. Root is the bundle's top-level directory.
type BundleLayout struct {
	Root string
}

// NewBundleLayout returns a BundleLayout rooted at root.
func NewBundleLayout(root string) BundleLayout {
	return BundleLayout{Root: root}
}

// OstreeDir is the bare OSTree repository shipped with the bundle.
func (b BundleLayout) OstreeDir() string {
	return filepath.Join(b.Root, "ostree")
}

// AppsDir is the root of the per-app materialized directories.
func (b BundleLayout) AppsDir() string {
	return filepath.Join(b.Root, "apps")
}

// AppDir is apps/<app-name>/<app-digest-hex>/.
func (b BundleLayout) AppDir(appName, appDigestHex string) string {
	return filepath.Join(b.AppsDir(), appName, appDigestHex)
}

// AppURIFile is the file holding the canonical pinned reference for one
// materialized app directory.
func (b BundleLayout) AppURIFile(appName, appDigestHex string) string {
	return filepath.Join(b.AppDir(appName, appDigestHex), "uri")
}

// AppComposeFile is the docker-compose.yml for one materialized app.
func (b BundleLayout) AppComposeFile(appName, appDigestHex string) string {
	return filepath.Join(b.AppDir(appName, appDigestHex), "docker-compose.yml")
}

// ImageIndexFile is images/<host>/<repo>/<img-digest-hex>/index.json under
// one app's directory.
func (b BundleLayout) ImageIndexFile(appName, appDigestHex, host, repo, imgDigestHex string) string {
	return filepath.Join(b.AppDir(appName, appDigestHex), "images", host, repo, imgDigestHex, "index.json")
}

// BlobsRoot is the parent of the per-algorithm content-addressed object
// store (blobs/sha256, ...), the form --src-shared-blob-dir expects.
func (b BundleLayout) BlobsRoot() string {
	return filepath.Join(b.Root, "blobs")
}

// BlobsDir is the shared content-addressed object store.
func (b BundleLayout) BlobsDir() string {
	return filepath.Join(b.BlobsRoot(), "sha256")
}

// BlobFile is the path of the blob named by hex within the bundle.
func (b BundleLayout) BlobFile(hex string) string {
	return filepath.Join(b.BlobsDir(), hex)
}

// TufDir holds the signed TUF metadata role files.
func (b BundleLayout) TufDir() string {
	return filepath.Join(b.Root, "tuf")
}

// TufRoleFile is tuf/<version>.<role>.json.
func (b BundleLayout) TufRoleFile(version int, role string) string {
	return filepath.Join(b.TufDir(), strconv.Itoa(version)+"."+role+".json")
}

// RepositoriesIndex is the container runtime's persisted repo map,
// keyed repo -> (tag-or-pinned-ref -> config digest).
type RepositoriesIndex struct {
	Repositories map[string]map[string]string `json:"Repositories"`
}

// NewRepositoriesIndex returns an empty index, matching the
// {"Repositories":{}} the registrar initializes a missing file to.
func NewRepositoriesIndex() *RepositoriesIndex {
	return &RepositoriesIndex{Repositories: map[string]map[string]string{}}
}

// Set records repo["pinnedRef"] = configDigest, creating the repo's inner
// map if this is its first entry.
func (r *RepositoriesIndex) Set(repo, pinnedRef, configDigest string) {
	if r.Repositories == nil {
		r.Repositories = map[string]map[string]string{}
	}
	inner, ok := r.Repositories[repo]
	if !ok {
		inner = map[string]string{}
		r.Repositories[repo] = inner
	}
	inner[pinnedRef] = configDigest
}
