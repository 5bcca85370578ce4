// Package semver implements Semantic Versioning 2.0.0 parsing, ordering
// and constraint matching for plugin manifests and their declared
// dependencies.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a failure to parse a version or constraint string.
type ParseError struct {
	Input    string
	Offset   int
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("semver: invalid %q at offset %d: expected %s", e.Input, e.Offset, e.Expected)
}

var versionPattern = regexp.MustCompile(
	`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
		`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`,
)

// Version is an immutable semantic version triple with optional
// prerelease and build metadata.
type Version struct {
	Major, Minor, Patch int
	Prerelease          string
	Build                string
}

// Parse parses a SemVer 2.0.0 version string. A leading "v" is tolerated.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "v")
	m := versionPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Version{}, &ParseError{Input: s, Offset: 0, Expected: "major.minor.patch[-prerelease][+build]"}
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{Major: major, Minor: minor, Patch: patch, Prerelease: m[4], Build: m[5]}, nil
}

// MustParse parses s or panics. Intended for constants in tests and examples.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsPrerelease reports whether v carries a prerelease component.
func (v Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// String renders the version in canonical SemVer form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater
// than other. Build metadata is ignored, per SemVer precedence rules.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return cmpInt(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return cmpInt(v.Minor, other.Minor)
	}
	if v.Patch != other.Patch {
		return cmpInt(v.Patch, other.Patch)
	}
	if v.Prerelease == other.Prerelease {
		return 0
	}
	// A version without a prerelease has higher precedence.
	if v.Prerelease == "" {
		return 1
	}
	if other.Prerelease == "" {
		return -1
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

func (v Version) LessThan(other Version) bool    { return v.Compare(other) < 0 }
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }
func (v Version) Equal(other Version) bool       { return v.Compare(other) == 0 }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// comparePrerelease compares dot-separated prerelease identifiers,
// numeric fields compared as numbers and the rest lexicographically,
// per SemVer 2.0.0 §11.
func comparePrerelease(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")
	for i := 0; i < len(partsA) && i < len(partsB); i++ {
		pa, pb := partsA[i], partsB[i]
		na, errA := strconv.Atoi(pa)
		nb, errB := strconv.Atoi(pb)
		if errA == nil && errB == nil {
			if na != nb {
				return cmpInt(na, nb)
			}
			continue
		}
		if pa != pb {
			if pa < pb {
				return -1
			}
			return 1
		}
	}
	return cmpInt(len(partsA), len(partsB))
}
