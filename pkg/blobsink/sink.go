// Package blobsink implements the streaming download pipeline: a write
// destination that hashes every observed byte while enforcing an expected
// byte count, fail-fast.
//
// Some registry clients express this as a curl write callback that signals
// abort by returning a byte count different from what it was handed, a
// concession to the underlying C transport. Sink is a plain io.Writer
// instead; a short write (or the returned error) already makes io.Copy
// abort the transfer, so no invented return-value protocol is needed.
package blobsink

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

// Sink writes a blob to disk while hashing every byte it observes and
// refusing to exceed expectedSize. Bytes land in a uniquely-named temp file
// alongside the final path, so two concurrent driver invocations downloading
// the same blob never corrupt each other's partial writes; Verify renames
// the temp file into place only once the post-conditions hold.
type Sink struct {
	finalPath    string
	tmpPath      string
	file         *os.File
	hasher       hash.Hash
	expectedSize int64
	written      int64
}

// New creates a temp file next to path and returns a Sink bounded to
// expectedSize bytes, positioned at 0.
func New(path string, expectedSize int64) (*Sink, error) {
	tmpPath := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening blob sink %s: %w", tmpPath, err)
	}
	return &Sink{
		finalPath:    path,
		tmpPath:      tmpPath,
		file:         f,
		hasher:       sha256.New(),
		expectedSize: expectedSize,
	}, nil
}

// Write implements io.Writer. Bytes that would push written beyond
// expectedSize are rejected outright, causing the caller's transport to
// abort. Every input byte is hashed even when the underlying file only
// accepts a short write, and written only advances by what was actually
// persisted.
func (s *Sink) Write(p []byte) (int, error) {
	if s.written+int64(len(p)) > s.expectedSize {
		return 0, fmt.Errorf("%w: writing %d bytes at offset %d would exceed expected size %d",
			domain.ErrSizeMismatch, len(p), s.written, s.expectedSize)
	}

	n, err := s.file.Write(p)
	s.hasher.Write(p)
	s.written += int64(n)
	return n, err
}

// Written returns the number of bytes persisted to disk so far.
func (s *Sink) Written() int64 { return s.written }

// Reset rewinds the sink to position 0, resets the hasher, and zeros
// counters. Invoked exactly when the transport must be retried after
// authentication.
func (s *Sink) Reset() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("resetting blob sink %s: %w", s.tmpPath, err)
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating blob sink %s: %w", s.tmpPath, err)
	}
	s.hasher = sha256.New()
	s.written = 0
	return nil
}

// Verify checks the post-conditions assigned to the caller: written ==
// expectedSize and the computed digest matches wantHex. On success the temp
// file is closed and renamed into its final path. On failure the temp file
// is closed and removed; the final path is never created.
func (s *Sink) Verify(wantHex string) error {
	closeErr := s.file.Close()

	if s.written != s.expectedSize {
		s.remove()
		return fmt.Errorf("%w: wrote %d bytes, want %d", domain.ErrSizeMismatch, s.written, s.expectedSize)
	}

	gotHex := fmt.Sprintf("%x", s.hasher.Sum(nil))
	if gotHex != wantHex {
		s.remove()
		return fmt.Errorf("%w: computed %s, want %s", domain.ErrDigestMismatch, gotHex, wantHex)
	}

	if closeErr != nil {
		s.remove()
		return fmt.Errorf("closing blob sink %s: %w", s.tmpPath, closeErr)
	}

	if err := os.Rename(s.tmpPath, s.finalPath); err != nil {
		s.remove()
		return fmt.Errorf("installing blob %s: %w", s.finalPath, err)
	}
	return nil
}

// Abort closes the sink and removes the temp file, for use on transport
// failure paths that never reach Verify.
func (s *Sink) Abort() {
	s.file.Close()
	s.remove()
}

func (s *Sink) remove() {
	os.Remove(s.tmpPath)
}
