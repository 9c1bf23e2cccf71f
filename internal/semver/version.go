// Package semver implements semantic version parsing, ordering, and
// constraint matching following the semver 2.0.0 precedence rules.
// Build metadata is parsed and rendered but never participates in
// ordering.
package semver

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Version is a parsed semantic version.
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease string
	Build      string
}

// ParseError reports a version string that does not conform to the
// semantic-version grammar.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// versionRe is the semver.org reference grammar: strict numeric
// components without leading zeros, dot-separated prerelease and build
// identifiers. No leading "v" and no surrounding whitespace.
var versionRe = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
	`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// Parse parses a strict semantic version string.
func Parse(text string) (Version, error) {
	if text == "" {
		return Version{}, &ParseError{Input: text, Reason: "empty string"}
	}
	if strings.TrimSpace(text) != text {
		return Version{}, &ParseError{Input: text, Reason: "leading or trailing whitespace"}
	}

	m := versionRe.FindStringSubmatch(text)
	if m == nil {
		return Version{}, &ParseError{Input: text, Reason: "does not match major.minor.patch[-prerelease][+build]"}
	}

	major, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return Version{}, &ParseError{Input: text, Reason: "major component out of range"}
	}
	minor, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return Version{}, &ParseError{Input: text, Reason: "minor component out of range"}
	}
	patch, err := strconv.ParseUint(m[3], 10, 64)
	if err != nil {
		return Version{}, &ParseError{Input: text, Reason: "patch component out of range"}
	}

	return Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: m[4],
		Build:      m[5],
	}, nil
}

// MustParse parses a version string and panics on failure.
// Intended for tests and compile-time constants.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the canonical form of the version.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// IsPrerelease reports whether the version carries a pre-release tag.
func (v Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater
// than other under semver precedence. Build metadata is ignored, so
// versions differing only in build compare equal.
func (v Version) Compare(other Version) int {
	if c := compareUint(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareUint(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareUint(v.Patch, other.Patch); c != 0 {
		return c
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

// Compare is the package-level form of Version.Compare.
func Compare(a, b Version) int {
	return a.Compare(b)
}

// Sort orders versions ascending in place by precedence.
// Versions that compare equal keep their relative order.
func Sort(versions []Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) < 0
	})
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// comparePrerelease orders pre-release tags: an absent tag sorts above
// any present tag, otherwise identifiers compare dot-segment by
// dot-segment with numeric segments below alphanumeric ones.
func comparePrerelease(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}

	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	// All shared segments equal: the longer tag has higher precedence.
	return compareUint(uint64(len(as)), uint64(len(bs)))
}

func compareIdentifier(a, b string) int {
	an, aNum := parseNumericIdentifier(a)
	bn, bNum := parseNumericIdentifier(b)
	switch {
	case aNum && bNum:
		return compareUint(an, bn)
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func parseNumericIdentifier(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
