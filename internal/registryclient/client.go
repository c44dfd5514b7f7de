package registryclient

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/facchinm/aktualizr-lite/internal/domain"
	"github.com/facchinm/aktualizr-lite/pkg/blobsink"
	"github.com/facchinm/aktualizr-lite/pkg/ociref"
)

// defManifestMaxSize bounds how much of a manifest response body the client
// will buffer before giving up. Manifests
// are small JSON documents; this cap leaves generous headroom for them.
const defManifestMaxSize = 8 * 1024 * 1024

// Client implements the registry client: manifest fetch and blob download
// with Bearer-token auth, driven entirely through the Transport capability
// so the same code works against a real HTTPS registry or an offline
// pseudo-registry.
type Client struct {
	// Registry builds the transport used for /v2/... registry requests.
	Registry Factory
	// Daemon builds the transport used to fetch device credentials and
	// exchange them for bearer tokens, kept distinct from Registry so a
	// credential leak can't be mistaken for a registry response.
	Daemon Factory
	// CredentialsURL is the device-local endpoint that returns
	// {"Username":..., "Secret":...} for basic auth bootstrapping.
	CredentialsURL string
}

// GetAppManifest fetches the manifest (or image index) referenced by uri,
// retrying exactly once after a 401 challenge with a freshly negotiated
// bearer token. expectedSize, if greater than zero, both bounds the fetch
// and must equal the body's length exactly; otherwise the fetch is bounded
// by defManifestMaxSize with no exact-size check. Either way the body's
// SHA-256 must equal uri.Digest.Hex(), or the call fails with
// domain.ErrDigestMismatch.
func (c *Client) GetAppManifest(ctx context.Context, uri ociref.Uri, acceptFormat string, expectedSize int64) ([]byte, error) {
	url := fmt.Sprintf("https://%s/v2/%s/manifests/%s", uri.RegistryHost, uri.Repo, uri.Digest.Canonical())

	headers := http.Header{}
	headers.Set("accept", acceptFormat)

	maxSize := int64(defManifestMaxSize)
	if expectedSize > 0 {
		maxSize = expectedSize
	}

	body, err := c.getWithRetry(ctx, url, headers, maxSize)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest %s: %w", uri, err)
	}

	if expectedSize > 0 && int64(len(body)) != expectedSize {
		return nil, fmt.Errorf("fetching manifest %s: %w: got %d bytes, want %d", uri, domain.ErrSizeMismatch, len(body), expectedSize)
	}
	if expectedSize <= 0 && int64(len(body)) > maxSize {
		return nil, fmt.Errorf("fetching manifest %s: %w: got %d bytes, cap is %d", uri, domain.ErrSizeMismatch, len(body), maxSize)
	}

	gotHex := fmt.Sprintf("%x", sha256.Sum256(body))
	if gotHex != uri.Digest.Hex() {
		return nil, fmt.Errorf("fetching manifest %s: %w: computed %s", uri, domain.ErrDigestMismatch, gotHex)
	}

	return body, nil
}

// DownloadBlob streams the blob referenced by uri into path, verifying size
// and digest before returning.
func (c *Client) DownloadBlob(ctx context.Context, uri ociref.Uri, path string, expectedSize int64) error {
	url := fmt.Sprintf("https://%s/v2/%s/blobs/%s", uri.RegistryHost, uri.Repo, uri.Digest.Canonical())

	sink, err := blobsink.New(path, expectedSize)
	if err != nil {
		return fmt.Errorf("downloading blob %s: %w", uri, err)
	}

	headers := http.Header{}
	transport := c.Registry(headers, []string{"www-authenticate"})

	resp, err := transport.Download(ctx, url, headers, sink)
	if err != nil {
		sink.Abort()
		return fmt.Errorf("%w: %s: %s", domain.ErrTransport, uri, err)
	}

	if resp.Status == http.StatusUnauthorized {
		if rerr := sink.Reset(); rerr != nil {
			sink.Abort()
			return fmt.Errorf("downloading blob %s: %w", uri, rerr)
		}

		authedHeaders, aerr := c.authenticate(ctx, resp.Headers.Get("www-authenticate"))
		if aerr != nil {
			sink.Abort()
			return fmt.Errorf("downloading blob %s: %w", uri, aerr)
		}

		transport = c.Registry(authedHeaders, nil)
		resp, err = transport.Download(ctx, url, authedHeaders, sink)
		if err != nil {
			sink.Abort()
			return fmt.Errorf("%w: %s: %s", domain.ErrTransport, uri, err)
		}
	}

	if resp.Status < 200 || resp.Status >= 300 {
		sink.Abort()
		return fmt.Errorf("%w: %s returned status %d", domain.ErrTransport, uri, resp.Status)
	}

	if err := sink.Verify(uri.Digest.Hex()); err != nil {
		return fmt.Errorf("downloading blob %s: %w", uri, err)
	}

	log.Debug().Str("uri", uri.String()).Int64("size", expectedSize).Msg("blob downloaded")
	return nil
}

// getWithRetry performs a GET, retrying exactly once with bearer auth if
// the first attempt is challenged with a 401.
func (c *Client) getWithRetry(ctx context.Context, url string, headers http.Header, maxSize int64) ([]byte, error) {
	transport := c.Registry(headers, []string{"www-authenticate"})

	resp, err := transport.Get(ctx, url, headers, maxSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransport, err)
	}

	if resp.Status == http.StatusUnauthorized {
		authedHeaders, aerr := c.authenticate(ctx, resp.Headers.Get("www-authenticate"))
		if aerr != nil {
			return nil, aerr
		}
		for k, v := range headers {
			if _, ok := authedHeaders[k]; !ok {
				authedHeaders[k] = v
			}
		}

		transport = c.Registry(authedHeaders, nil)
		resp, err = transport.Get(ctx, url, authedHeaders, maxSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrTransport, err)
		}
	}

	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrTransport, resp.Status)
	}
	return resp.Body, nil
}

// authenticate runs the full basic-then-bearer exchange and returns headers
// carrying the resulting bearer token.
func (c *Client) authenticate(ctx context.Context, wwwAuthenticate string) (http.Header, error) {
	if wwwAuthenticate == "" {
		return nil, fmt.Errorf("%w: 401 response carried no www-authenticate header", domain.ErrAuthFailed)
	}

	challenge, err := ParseBearerChallenge(wwwAuthenticate)
	if err != nil {
		return nil, err
	}

	daemon := c.Daemon(nil, nil)

	basic, err := basicAuthHeader(ctx, daemon, c.CredentialsURL)
	if err != nil {
		return nil, err
	}

	bearer, err := bearerAuthHeader(ctx, daemon, basic, challenge)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("authorization", bearer)
	return headers, nil
}
