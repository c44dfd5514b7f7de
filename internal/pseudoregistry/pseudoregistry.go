// Package pseudoregistry implements an offline stand-in for an OCI registry:
// it serves content-addressed artifacts from an on-disk bundle behind the
// same Transport contract the registry client consumes, so the update core
// can apply an update with no network access at all.
package pseudoregistry

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/facchinm/aktualizr-lite/internal/domain"
	"github.com/facchinm/aktualizr-lite/internal/registryclient"
)

// chunkSize bounds how much of a blob is read into memory per Download
// iteration.
const chunkSize = 4 * 1024

// tokenBody is the literal response the offline token endpoint always
// returns; there is no real auth to negotiate without a network.
const tokenBody = `{"token":"token"}`

// Registry serves a BundleLayout's blobs as if it were a registry's
// manifest and blob endpoints. It implements registryclient.Transport.
type Registry struct {
	Bundle   domain.BundleLayout
	TokenURL string
}

// New returns a Registry rooted at bundle, whose token endpoint is
// reachable at tokenURL.
func New(bundle domain.BundleLayout, tokenURL string) *Registry {
	return &Registry{Bundle: bundle, TokenURL: tokenURL}
}

// Factory returns a registryclient.Factory that always hands back r,
// suitable for wiring directly into registryclient.Client.
func (r *Registry) Factory() registryclient.Factory {
	return func(http.Header, []string) registryclient.Transport { return r }
}

// Get serves url by locating a "sha256:<hex>" substring in it and returning
// the matching blob's contents, or the fixed token response when url is the
// configured token endpoint.
func (r *Registry) Get(_ context.Context, url string, _ http.Header, maxSize int64) (*registryclient.Response, error) {
	if url == r.TokenURL {
		return &registryclient.Response{Status: http.StatusOK, Body: []byte(tokenBody), Headers: http.Header{}}, nil
	}

	digestHex, err := extractDigestHex(url)
	if err != nil {
		return nil, err
	}

	path := r.Bundle.BlobFile(digestHex)
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, digestHex)
		}
		return nil, fmt.Errorf("reading blob %s: %w", digestHex, err)
	}

	if maxSize > 0 && int64(len(body)) > maxSize {
		return nil, fmt.Errorf("%w: blob %s is %d bytes, cap is %d", domain.ErrSizeMismatch, digestHex, len(body), maxSize)
	}

	return &registryclient.Response{Status: http.StatusOK, Body: body, Headers: http.Header{}}, nil
}

// Download serves url the same way Get does, but streams the blob into w
// in fixed-size chunks rather than buffering it whole.
func (r *Registry) Download(_ context.Context, url string, _ http.Header, w io.Writer) (*registryclient.Response, error) {
	digestHex, err := extractDigestHex(url)
	if err != nil {
		return nil, err
	}

	path := r.Bundle.BlobFile(digestHex)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, digestHex)
		}
		return nil, fmt.Errorf("opening blob %s: %w", digestHex, err)
	}
	defer f.Close()

	// The struct wrappers hide WriteTo/ReadFrom so CopyBuffer really copies
	// through buf, one chunkSize read at a time.
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(struct{ io.Writer }{w}, struct{ io.Reader }{f}, buf); err != nil {
		return nil, fmt.Errorf("streaming blob %s: %w", digestHex, err)
	}

	log.Debug().Str("digest", digestHex).Msg("served blob from bundle")
	return &registryclient.Response{Status: http.StatusOK, Headers: http.Header{}}, nil
}

// extractDigestHex finds the last "sha256:" occurrence in url and returns
// the 64 hex characters that follow it, refusing anything that is not
// exactly 64 lowercase hex characters so the result can never be used to
// escape the bundle's blob directory.
func extractDigestHex(url string) (string, error) {
	const marker = "sha256:"
	idx := strings.LastIndex(url, marker)
	if idx < 0 {
		return "", fmt.Errorf("%w: %q has no sha256: reference", domain.ErrBadURI, url)
	}

	rest := url[idx+len(marker):]
	if len(rest) < 64 {
		return "", fmt.Errorf("%w: %q digest is truncated", domain.ErrBadHashLength, url)
	}
	candidate := rest[:64]

	if _, err := hex.DecodeString(candidate); err != nil {
		return "", fmt.Errorf("%w: %q is not valid hex: %s", domain.ErrPathTraversal, candidate, err)
	}
	if strings.ToLower(candidate) != candidate {
		return "", fmt.Errorf("%w: %q is not lowercase hex", domain.ErrPathTraversal, candidate)
	}

	return candidate, nil
}
