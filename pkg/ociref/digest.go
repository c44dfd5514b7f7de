// Package ociref implements the pinned-reference and content-digest model:
// HashedDigest and Uri.
package ociref

import (
	"fmt"
	"strings"

	godigest "github.com/opencontainers/go-digest"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

// HashedDigest is a canonical content digest, fixed to SHA-256 in this
// version. It is immutable after construction.
type HashedDigest struct {
	hex string
}

// ParseDigest validates s against the sha256:<64-hex> form and normalizes
// the hex portion to lowercase. The algorithm prefix check is
// case-insensitive, and the hex portion is accepted in either case.
func ParseDigest(s string) (HashedDigest, error) {
	const prefix = "sha256:"
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return HashedDigest{}, fmt.Errorf("%w: %q has no sha256: prefix", domain.ErrUnsupportedHash, s)
	}
	hex := strings.ToLower(s[len(prefix):])
	if len(hex) != 64 {
		return HashedDigest{}, fmt.Errorf("%w: %q is %d hex chars, want 64", domain.ErrBadHashLength, s, len(hex))
	}
	d := godigest.NewDigestFromEncoded(godigest.SHA256, hex)
	if err := d.Validate(); err != nil {
		return HashedDigest{}, fmt.Errorf("%w: %q: %s", domain.ErrBadHashLength, s, err)
	}
	return HashedDigest{hex: hex}, nil
}

// Hex returns the lowercase 64-character hex digest.
func (d HashedDigest) Hex() string { return d.hex }

// Short returns the first 7 hex characters, as used in log lines.
func (d HashedDigest) Short() string {
	if len(d.hex) < 7 {
		return d.hex
	}
	return d.hex[:7]
}

// Canonical returns the "sha256:<hex>" form.
func (d HashedDigest) Canonical() string { return "sha256:" + d.hex }

// Algorithm always returns "sha256" in this version.
func (d HashedDigest) Algorithm() string { return "sha256" }

// IsZero reports whether d was never successfully parsed.
func (d HashedDigest) IsZero() bool { return d.hex == "" }

func (d HashedDigest) String() string { return d.Canonical() }
