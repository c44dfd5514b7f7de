// Package domain holds the shared types and error taxonomy the offline
// update core builds on.
package domain

import "errors"

// Sentinel errors shared across layers, grouped by the concern that
// raises them. Call sites wrap these with
// fmt.Errorf("...: %w", Err...) to attach the offending URI or digest.
var (
	// URI & digest model
	ErrBadURI          = errors.New("malformed pinned reference")
	ErrUnsupportedHash = errors.New("unsupported hash algorithm")
	ErrBadHashLength   = errors.New("hash has the wrong length")

	// Streaming download pipeline & registry client
	ErrSizeMismatch       = errors.New("received size does not match expected size")
	ErrDigestMismatch     = errors.New("computed digest does not match pinned digest")
	ErrBadBearerChallenge = errors.New("malformed bearer challenge")
	ErrAuthFailed         = errors.New("authentication failed")
	ErrTransport          = errors.New("registry transport error")

	// Offline pseudo-registry
	ErrPathTraversal = errors.New("path escapes bundle root")
	ErrBlobNotFound  = errors.New("no blob in the bundle matches the requested digest")

	// Target selection
	ErrNoMatchingTarget = errors.New("no bundle target satisfies the selection criteria")

	// Image registrar
	ErrRepositoriesCorrupt = errors.New("repositories index is not valid json")

	// Install/run driver
	ErrTufPullFailed     = errors.New("failed to pull tuf metadata")
	ErrTufInvalidOffline = errors.New("local tuf metadata is invalid")
	ErrTargetNotFound    = errors.New("no target matches the bundle contents")
	ErrInstallFailed     = errors.New("underlying installer returned an unexpected result")
)
