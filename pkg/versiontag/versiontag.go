package versiontag

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var tagExpr = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[0-9A-Za-z.\-]+)?$`)

// IsValid reports whether tag is an ingestible version tag of the form
// v?MAJOR.MINOR.PATCH with an optional pre-release suffix.
func IsValid(tag string) bool {
	return tagExpr.MatchString(tag)
}

// IsPrerelease reports whether tag carries a pre-release suffix.
func IsPrerelease(tag string) bool {
	return strings.Contains(tag, "-")
}

func parse(tag string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(tag, "v"))
}

// Compare orders two valid tags. It compares the numeric triple first, then
// pre-release precedence (a pre-release sorts before the same version without
// one). Tags that differ only in the "v" prefix tie-break on the prefix so
// ordering stays total.
func Compare(a, b string) int {
	va, errA := parse(a)
	vb, errB := parse(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	if result := va.Compare(vb); result != 0 {
		return result
	}
	return strings.Compare(prefixOf(a), prefixOf(b))
}

func prefixOf(tag string) string {
	if strings.HasPrefix(tag, "v") {
		return "v"
	}
	return ""
}

// Sort sorts tags ascending in place.
func Sort(tags []string) {
	sort.Slice(tags, func(i, j int) bool {
		return Compare(tags[i], tags[j]) < 0
	})
}

var xRangeExpr = regexp.MustCompile(`^(\d+)(?:\.(\d+|[xX*]))?(?:\.([xX*]))?$`)

// Match reports whether version satisfies spec. "*" and "master" always
// match. X-ranges ("1.x", "1.2.x", "1.x.x") desugar to the corresponding
// tilde range. Everything else is delegated to semver range matching.
// Malformed specs never panic or error; they simply do not match.
func Match(version, spec string) bool {
	if spec == "*" || spec == "master" {
		return true
	}

	v, err := parse(version)
	if err != nil {
		return false
	}

	if m := xRangeExpr.FindStringSubmatch(spec); m != nil && (isX(m[2]) || isX(m[3])) {
		if isX(m[2]) {
			spec = "~" + m[1]
		} else {
			spec = "~" + m[1] + "." + m[2]
		}
	}

	constraint, err := semver.NewConstraint(spec)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}

func isX(s string) bool {
	return s == "x" || s == "X" || s == "*"
}

// DefaultVersion returns the version users should see by default from an
// ascending sorted list: the latest stable version, falling back to the
// latest pre-release, or "" for an empty list.
func DefaultVersion(sorted []string) string {
	for i := len(sorted) - 1; i >= 0; i-- {
		if !IsPrerelease(sorted[i]) {
			return sorted[i]
		}
	}
	if len(sorted) > 0 {
		return sorted[len(sorted)-1]
	}
	return ""
}

// Release categories returned by Categorize.
const (
	CategoryUnknown    = "unknown"
	CategoryPrerelease = "pre-release"
	CategoryMajor      = "major"
	CategoryMinor      = "minor"
	CategoryPatch      = "patch"
)

// Categorize describes candidate relative to the versions already ingested:
// which part of the version advanced past the largest existing tag strictly
// below the candidate.
func Categorize(candidate string, existing []string) string {
	if len(existing) == 0 || !IsValid(candidate) {
		return CategoryUnknown
	}
	if IsPrerelease(candidate) {
		return CategoryPrerelease
	}

	var base string
	for _, tag := range existing {
		if !IsValid(tag) || Compare(tag, candidate) >= 0 {
			continue
		}
		if base == "" || Compare(tag, base) > 0 {
			base = tag
		}
	}
	if base == "" {
		return CategoryUnknown
	}

	from, _ := parse(base)
	to, _ := parse(candidate)
	switch {
	case to.Major() != from.Major():
		return CategoryMajor
	case to.Minor() != from.Minor():
		return CategoryMinor
	default:
		return CategoryPatch
	}
}
