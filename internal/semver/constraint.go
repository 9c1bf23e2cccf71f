package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Constraint is a parsed version requirement: a comma-separated
// conjunction of comparators such as "^1.2", ">=1.0, <2.0" or "*".
// Constraints are stateless values; they are parsed from request
// strings and never persisted.
type Constraint struct {
	comparators []comparator
	original    string
}

// ConstraintError reports a requirement string that does not conform
// to the constraint grammar.
type ConstraintError struct {
	Input  string
	Reason string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("invalid constraint %q: %s", e.Input, e.Reason)
}

type op int

const (
	opCaret op = iota // ^ and bare versions
	opTilde
	opExact
	opLess
	opLessEq
	opGreater
	opGreaterEq
	opWildcard // *
)

// comparator is one requirement term. Minor and patch are nil when the
// term names a partial version ("1", "1.2"); unspecified components
// range over all values for that position.
type comparator struct {
	op         op
	major      uint64
	minor      *uint64
	patch      *uint64
	prerelease string
}

// comparatorRe matches one term: an optional operator followed by a
// full, partial, or wildcard version. Pre-release tags require the
// full major.minor.patch triple.
var comparatorRe = regexp.MustCompile(`^(>=|<=|>|<|=|\^|~)?\s*` +
	`(?:(\*)|(0|[1-9]\d*)(?:\.(0|[1-9]\d*))?(?:\.(0|[1-9]\d*))?` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?)$`)

// ParseConstraint parses a requirement string. Terms are separated by
// commas and combined as a conjunction. A bare version is shorthand
// for a caret range, matching the range grammar of the registries this
// index interoperates with.
func ParseConstraint(text string) (Constraint, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Constraint{}, &ConstraintError{Input: text, Reason: "empty string"}
	}

	parts := strings.Split(trimmed, ",")
	comparators := make([]comparator, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Constraint{}, &ConstraintError{Input: text, Reason: "empty term in conjunction"}
		}
		cmp, err := parseComparator(part)
		if err != nil {
			return Constraint{}, &ConstraintError{Input: text, Reason: err.Error()}
		}
		comparators = append(comparators, cmp)
	}

	return Constraint{comparators: comparators, original: trimmed}, nil
}

// MustParseConstraint parses a requirement string and panics on
// failure. Intended for tests.
func MustParseConstraint(text string) Constraint {
	c, err := ParseConstraint(text)
	if err != nil {
		panic(err)
	}
	return c
}

// AnyVersion matches every release version. Pre-releases remain
// opt-in and never satisfy it.
func AnyVersion() Constraint {
	return Constraint{comparators: []comparator{{op: opWildcard}}, original: "*"}
}

// String returns the original requirement text.
func (c Constraint) String() string {
	return c.original
}

func parseComparator(term string) (comparator, error) {
	m := comparatorRe.FindStringSubmatch(term)
	if m == nil {
		return comparator{}, fmt.Errorf("malformed term %q", term)
	}

	var cmp comparator
	switch m[1] {
	case "", "^":
		cmp.op = opCaret
	case "~":
		cmp.op = opTilde
	case "=":
		cmp.op = opExact
	case "<":
		cmp.op = opLess
	case "<=":
		cmp.op = opLessEq
	case ">":
		cmp.op = opGreater
	case ">=":
		cmp.op = opGreaterEq
	}

	if m[2] == "*" {
		if m[1] != "" {
			return comparator{}, fmt.Errorf("wildcard cannot follow an operator in %q", term)
		}
		cmp.op = opWildcard
		return cmp, nil
	}

	major, err := strconv.ParseUint(m[3], 10, 64)
	if err != nil {
		return comparator{}, fmt.Errorf("major component out of range in %q", term)
	}
	cmp.major = major

	if m[4] != "" {
		minor, err := strconv.ParseUint(m[4], 10, 64)
		if err != nil {
			return comparator{}, fmt.Errorf("minor component out of range in %q", term)
		}
		cmp.minor = &minor
	}
	if m[5] != "" {
		patch, err := strconv.ParseUint(m[5], 10, 64)
		if err != nil {
			return comparator{}, fmt.Errorf("patch component out of range in %q", term)
		}
		cmp.patch = &patch
	}

	cmp.prerelease = m[6]
	if cmp.prerelease != "" && (cmp.minor == nil || cmp.patch == nil) {
		return comparator{}, fmt.Errorf("pre-release requires a full version in %q", term)
	}

	return cmp, nil
}

// Matches reports whether v satisfies the constraint. A pre-release
// version satisfies the constraint only when some term names the same
// major.minor.patch triple and itself carries a pre-release tag; this
// keeps pre-releases opt-in for range queries.
func (c Constraint) Matches(v Version) bool {
	for _, cmp := range c.comparators {
		if !cmp.matches(v) {
			return false
		}
	}
	if v.Prerelease == "" {
		return true
	}
	for _, cmp := range c.comparators {
		if cmp.allowsPrerelease(v) {
			return true
		}
	}
	return false
}

func (cmp comparator) allowsPrerelease(v Version) bool {
	return cmp.prerelease != "" &&
		cmp.minor != nil && cmp.patch != nil &&
		cmp.major == v.Major && *cmp.minor == v.Minor && *cmp.patch == v.Patch
}

func (cmp comparator) matches(v Version) bool {
	switch cmp.op {
	case opWildcard:
		return true
	case opCaret:
		return cmp.caretMatches(v)
	case opTilde:
		return cmp.tildeMatches(v)
	case opExact:
		return cmp.relate(v) == 0
	case opLess:
		return cmp.relate(v) < 0
	case opLessEq:
		return cmp.relate(v) <= 0
	case opGreater:
		return cmp.relate(v) > 0
	case opGreaterEq:
		return cmp.relate(v) >= 0
	default:
		return false
	}
}

// relate compares v against the term's version over the specified
// components only, so partial terms treat their unspecified positions
// as matching any value. Fully specified terms use full precedence.
func (cmp comparator) relate(v Version) int {
	if c := compareUint(v.Major, cmp.major); c != 0 {
		return c
	}
	if cmp.minor == nil {
		return 0
	}
	if c := compareUint(v.Minor, *cmp.minor); c != 0 {
		return c
	}
	if cmp.patch == nil {
		return 0
	}
	if c := compareUint(v.Patch, *cmp.patch); c != 0 {
		return c
	}
	return comparePrerelease(v.Prerelease, cmp.prerelease)
}

// lowerBound fills unspecified components with zero.
func (cmp comparator) lowerBound() Version {
	v := Version{Major: cmp.major, Prerelease: cmp.prerelease}
	if cmp.minor != nil {
		v.Minor = *cmp.minor
	}
	if cmp.patch != nil {
		v.Patch = *cmp.patch
	}
	return v
}

// caretMatches implements compatible-within-major ranges, narrowing to
// within-minor when major is zero and within-patch when major and
// minor are both zero.
func (cmp comparator) caretMatches(v Version) bool {
	lower := cmp.lowerBound()
	if v.Compare(lower) < 0 {
		return false
	}

	var upper Version
	switch {
	case cmp.major > 0:
		upper = Version{Major: cmp.major + 1}
	case cmp.minor == nil:
		// ^0 ranges over all of 0.x.y.
		upper = Version{Major: 1}
	case *cmp.minor > 0:
		upper = Version{Minor: *cmp.minor + 1}
	case cmp.patch == nil:
		// ^0.0 ranges over 0.0.x.
		upper = Version{Minor: 1}
	default:
		// ^0.0.p admits exactly 0.0.p.
		upper = Version{Patch: *cmp.patch + 1}
	}
	return coreBelow(v, upper)
}

// tildeMatches implements compatible-within-minor ranges; a bare major
// ("~1") widens to the whole major series.
func (cmp comparator) tildeMatches(v Version) bool {
	lower := cmp.lowerBound()
	if v.Compare(lower) < 0 {
		return false
	}

	var upper Version
	if cmp.minor != nil {
		upper = Version{Major: cmp.major, Minor: *cmp.minor + 1}
	} else {
		upper = Version{Major: cmp.major + 1}
	}
	return coreBelow(v, upper)
}

// coreBelow reports whether v's numeric triple is below the exclusive
// upper bound. Pre-release tags on v are deliberately ignored here;
// the opt-in rule in Matches governs them.
func coreBelow(v, upper Version) bool {
	if c := compareUint(v.Major, upper.Major); c != 0 {
		return c < 0
	}
	if c := compareUint(v.Minor, upper.Minor); c != 0 {
		return c < 0
	}
	return v.Patch < upper.Patch
}
