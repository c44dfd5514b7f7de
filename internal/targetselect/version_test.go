package targetselect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions_Semver(t *testing.T) {
	assert.Equal(t, -1, compareVersions("1.0.0", "1.2.0"))
	assert.Equal(t, 1, compareVersions("2.0.0", "1.9.9"))
	assert.Equal(t, 0, compareVersions("1.0.0", "1.0.0"))
}

func TestCompareVersions_NonSemverDigitRuns(t *testing.T) {
	assert.Equal(t, -1, compareVersions("9", "10"))
	assert.Equal(t, 1, compareVersions("10", "9"))
	assert.Equal(t, -1, compareVersions("build-9", "build-10"))
}

func TestCompareDigitRuns_LeadingZeros(t *testing.T) {
	assert.Equal(t, 0, compareDigitRuns("007", "7"))
}

func TestCompareDigitRuns_Prefix(t *testing.T) {
	assert.Equal(t, -1, compareDigitRuns("v1", "v1.1"))
}
