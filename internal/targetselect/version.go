package targetselect

import (
	"unicode"

	"github.com/Masterminds/semver/v3"
)

// compareVersions orders two custom_version strings, higher first when
// used as a "less" function with sort.Slice's typical ascending contract
// inverted by the caller. It tries semantic-version comparison first, since
// most targets do carry valid semver; targets are not guaranteed to, so it
// falls back to a version-aware string comparison that compares digit runs
// numerically, the way naive date- or build-number-style custom_versions
// are typically compared.
func compareVersions(a, b string) int {
	va, aErr := semver.NewVersion(a)
	vb, bErr := semver.NewVersion(b)
	if aErr == nil && bErr == nil {
		return va.Compare(vb)
	}
	return compareDigitRuns(a, b)
}

// compareDigitRuns compares a and b by walking both strings in lockstep,
// treating maximal runs of digits as numbers and everything else as
// ordinary characters. This mirrors the "strverscmp" family of comparisons
// and tolerates version strings that are not valid semver (date stamps,
// bare build numbers, and the like).
func compareDigitRuns(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ra, rb := rune(a[i]), rune(b[j])

		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			starti, startj := i, j
			for i < len(a) && unicode.IsDigit(rune(a[i])) {
				i++
			}
			for j < len(b) && unicode.IsDigit(rune(b[j])) {
				j++
			}
			numA := trimLeadingZeros(a[starti:i])
			numB := trimLeadingZeros(b[startj:j])
			if len(numA) != len(numB) {
				if len(numA) < len(numB) {
					return -1
				}
				return 1
			}
			if numA != numB {
				if numA < numB {
					return -1
				}
				return 1
			}
			continue
		}

		if ra != rb {
			if ra < rb {
				return -1
			}
			return 1
		}
		i++
		j++
	}

	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	default:
		return 0
	}
}

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}
