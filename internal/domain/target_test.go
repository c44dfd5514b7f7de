package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTarget_Shortlist(t *testing.T) {
	target := Target{
		Sha256: "abc123",
		Apps: []AppRef{
			{Name: "A", URI: "host/factory/A@sha256:aa"},
			{Name: "B", URI: "host/factory/B@sha256:bb"},
		},
	}

	keep := map[string]struct{}{"A": {}}
	shortlisted := target.Shortlist(keep)

	assert.Len(t, shortlisted.Apps, 1)
	assert.Equal(t, "A", shortlisted.Apps[0].Name)
	assert.Equal(t, "abc123", shortlisted.Sha256, "shortlisting must not touch other fields")
}

func TestTarget_AppByName(t *testing.T) {
	target := Target{Apps: []AppRef{{Name: "A", URI: "u1"}}}

	a, ok := target.AppByName("A")
	assert.True(t, ok)
	assert.Equal(t, "u1", a.URI)

	_, ok = target.AppByName("missing")
	assert.False(t, ok)
}

func TestTarget_HasHardwareID(t *testing.T) {
	target := Target{HardwareIDs: []string{"raspberrypi4-64"}}
	assert.True(t, target.HasHardwareID("raspberrypi4-64"))
	assert.False(t, target.HasHardwareID("qemux86-64"))
}
