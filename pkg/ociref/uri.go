package ociref

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

// Uri is a pinned OCI reference of the form HOST/REPO@sha256:HEX.
type Uri struct {
	RegistryHost string
	Repo         string
	Factory      string // empty when Repo has no leading factory segment
	App          string
	Digest       HashedDigest
}

// ParseUri parses s into a Uri. When factoryMode is true, Repo must have
// exactly two slash-delimited segments (factory/app); otherwise any
// non-empty Repo is accepted. Repo is split on its last '/': App is the
// part after it and Factory the part before it, empty when Repo has no '/'.
func ParseUri(s string, factoryMode bool) (Uri, error) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return Uri{}, fmt.Errorf("%w: %q has no registry host separator", domain.ErrBadURI, s)
	}

	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return Uri{}, fmt.Errorf("%w: %q is not pinned with @sha256:...", domain.ErrBadURI, s)
	}
	if at <= slash {
		return Uri{}, fmt.Errorf("%w: %q has @ before or at the registry host separator", domain.ErrBadURI, s)
	}

	host := s[:slash]
	repo := s[slash+1 : at]
	digestStr := s[at+1:]

	if repo == "" {
		return Uri{}, fmt.Errorf("%w: %q has an empty repo", domain.ErrBadURI, s)
	}

	digest, err := ParseDigest(digestStr)
	if err != nil {
		return Uri{}, fmt.Errorf("%w: %q: %s", domain.ErrBadURI, s, err)
	}

	segments := strings.Split(repo, "/")
	if factoryMode && len(segments) != 2 {
		return Uri{}, fmt.Errorf("%w: %q repo %q must have exactly one '/' in factory mode", domain.ErrBadURI, s, repo)
	}

	var factory, app string
	if len(segments) > 1 {
		factory = strings.Join(segments[:len(segments)-1], "/")
		app = segments[len(segments)-1]
	} else {
		app = segments[0]
	}

	// Defence-in-depth: the repo path must also satisfy the OCI distribution
	// spec's naming grammar, beyond this package's own slash-splitting rule.
	if _, err := reference.ParseNormalizedNamed(host + "/" + repo); err != nil {
		return Uri{}, fmt.Errorf("%w: %q has an invalid repo name: %s", domain.ErrBadURI, s, err)
	}

	return Uri{
		RegistryHost: host,
		Repo:         repo,
		Factory:      factory,
		App:          app,
		Digest:       digest,
	}, nil
}

// Rehash returns a copy of u with Digest replaced by newDigest.
func (u Uri) Rehash(newDigest HashedDigest) Uri {
	u.Digest = newDigest
	return u
}

// String renders u back into its HOST/REPO@sha256:HEX form.
func (u Uri) String() string {
	return fmt.Sprintf("%s/%s@%s", u.RegistryHost, u.Repo, u.Digest.Canonical())
}
