package ociref

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDigestStr() string {
	return "sha256:" + strings.Repeat("cd", 32)
}

func TestParseUri_FactoryMode(t *testing.T) {
	s := "hub.foundries.io/myfactory/app-name@" + validDigestStr()
	u, err := ParseUri(s, true)
	require.NoError(t, err)
	assert.Equal(t, "hub.foundries.io", u.RegistryHost)
	assert.Equal(t, "myfactory/app-name", u.Repo)
	assert.Equal(t, "myfactory", u.Factory)
	assert.Equal(t, "app-name", u.App)
	assert.Equal(t, validDigestStr(), u.Digest.Canonical())
}

func TestParseUri_FactoryModeRejectsExtraSegments(t *testing.T) {
	s := "hub.foundries.io/a/b/c@" + validDigestStr()
	_, err := ParseUri(s, true)
	assert.Error(t, err)
}

func TestParseUri_NonFactoryModeAllowsSingleSegment(t *testing.T) {
	s := "registry.example.com/app@" + validDigestStr()
	u, err := ParseUri(s, false)
	require.NoError(t, err)
	assert.Equal(t, "app", u.App)
	assert.Empty(t, u.Factory)
}

func TestParseUri_RejectsMissingDigest(t *testing.T) {
	_, err := ParseUri("registry.example.com/app", false)
	assert.Error(t, err)
}

func TestParseUri_RejectsAtBeforeHostSeparator(t *testing.T) {
	_, err := ParseUri("registry.example.com@sha256:aa/app", false)
	assert.Error(t, err)
}

func TestParseUri_RoundTrip(t *testing.T) {
	s := "registry.example.com/myfactory/app@" + validDigestStr()
	u1, err := ParseUri(s, true)
	require.NoError(t, err)

	u2, err := ParseUri(u1.String(), true)
	require.NoError(t, err)
	assert.Equal(t, u1, u2)
}

func TestUri_Rehash(t *testing.T) {
	s := "registry.example.com/myfactory/app@" + validDigestStr()
	u, err := ParseUri(s, true)
	require.NoError(t, err)

	newDigest, err := ParseDigest("sha256:" + strings.Repeat("11", 32))
	require.NoError(t, err)

	rehashed := u.Rehash(newDigest)
	assert.Equal(t, newDigest, rehashed.Digest)
	assert.Equal(t, u.RegistryHost, rehashed.RegistryHost)
	assert.Equal(t, u.Repo, rehashed.Repo)
}
