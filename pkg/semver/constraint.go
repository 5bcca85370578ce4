package semver

import (
	"regexp"
	"strconv"
	"strings"
)

// comparator is a single operator+version term. A Constraint is the AND
// of all its comparators.
type comparator struct {
	op      string
	version Version
}

// Constraint is a parsed version constraint expression: exact, caret,
// tilde, comparison, range, or wildcard.
type Constraint struct {
	original    string
	comparators []comparator
	// prerelease is true when the constraint's own operand carries a
	// prerelease component, which relaxes the strict prerelease rule
	// in Satisfies.
	prerelease bool
}

func (c Constraint) String() string { return c.original }

var wildcardDigits = regexp.MustCompile(`^(\d+|\*)(?:\.(\d+|\*))?(?:\.(\d+|\*))?$`)

// ParseConstraint parses a version constraint string.
//
// Accepted forms: exact ("1.2.3"), comparison (">=1.2.3", "<2.0.0", "=1.0.0"),
// space-separated ranges (">=1.0.0 <2.0.0"), caret ("^1.2.3"), tilde
// ("~1.2.3"), and wildcards ("*", "1.*", "1.2.*").
func ParseConstraint(s string) (Constraint, error) {
	original := strings.TrimSpace(s)
	if original == "" {
		return Constraint{}, &ParseError{Input: s, Offset: 0, Expected: "non-empty constraint"}
	}
	c := Constraint{original: original}
	terms := strings.Fields(original)
	for _, term := range terms {
		if err := c.parseTerm(term); err != nil {
			return Constraint{}, err
		}
	}
	if len(c.comparators) == 0 {
		return Constraint{}, &ParseError{Input: s, Offset: 0, Expected: "at least one comparator"}
	}
	return c, nil
}

func (c *Constraint) parseTerm(term string) error {
	switch {
	case term == "*":
		c.comparators = append(c.comparators, comparator{op: ">=", version: Version{}})
		return nil
	case strings.Contains(term, "*"):
		return c.parseWildcard(term)
	case strings.HasPrefix(term, "^"):
		return c.parseCaret(term[1:])
	case strings.HasPrefix(term, "~"):
		return c.parseTilde(term[1:])
	default:
		op, rest := splitOperator(term)
		v, err := Parse(rest)
		if err != nil {
			return err
		}
		if v.IsPrerelease() {
			c.prerelease = true
		}
		c.comparators = append(c.comparators, comparator{op: op, version: v})
		return nil
	}
}

func splitOperator(term string) (op, rest string) {
	for _, candidate := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(term, candidate) {
			return candidate, term[len(candidate):]
		}
	}
	return "=", term
}

// parseCaret implements: ^1.2.3 -> >=1.2.3 <2.0.0; ^0.2.3 -> >=0.2.3
// <0.3.0; ^0.0.3 -> >=0.0.3 <0.0.4. This is the stricter of the two
// interpretations seen in the source material (see DESIGN.md).
func (c *Constraint) parseCaret(rest string) error {
	v, err := Parse(rest)
	if err != nil {
		return err
	}
	if v.IsPrerelease() {
		c.prerelease = true
	}
	c.comparators = append(c.comparators, comparator{op: ">=", version: v})
	var upper Version
	switch {
	case v.Major > 0:
		upper = Version{Major: v.Major + 1}
	case v.Minor > 0:
		upper = Version{Minor: v.Minor + 1}
	default:
		upper = Version{Patch: v.Patch + 1}
	}
	c.comparators = append(c.comparators, comparator{op: "<", version: upper})
	return nil
}

// parseTilde implements: ~1.2.3 -> >=1.2.3 <1.3.0. The operand must be
// a full major.minor.patch version; partial forms such as ~1.2 or ~1
// are rejected with a ParseError.
func (c *Constraint) parseTilde(rest string) error {
	v, err := Parse(rest)
	if err != nil {
		return err
	}
	if v.IsPrerelease() {
		c.prerelease = true
	}
	c.comparators = append(c.comparators, comparator{op: ">=", version: v})
	c.comparators = append(c.comparators, comparator{op: "<", version: Version{Major: v.Major, Minor: v.Minor + 1}})
	return nil
}

func (c *Constraint) parseWildcard(term string) error {
	m := wildcardDigits.FindStringSubmatch(term)
	if m == nil {
		return &ParseError{Input: term, Offset: 0, Expected: "wildcard like 1.*, 1.2.*, or *"}
	}
	majorStr, minorStr := m[1], m[2]
	if majorStr == "*" || majorStr == "" {
		c.comparators = append(c.comparators, comparator{op: ">=", version: Version{}})
		return nil
	}
	major, _ := strconv.Atoi(majorStr)
	if minorStr == "" || minorStr == "*" {
		c.comparators = append(c.comparators, comparator{op: ">=", version: Version{Major: major}})
		c.comparators = append(c.comparators, comparator{op: "<", version: Version{Major: major + 1}})
		return nil
	}
	minor, _ := strconv.Atoi(minorStr)
	c.comparators = append(c.comparators, comparator{op: ">=", version: Version{Major: major, Minor: minor}})
	c.comparators = append(c.comparators, comparator{op: "<", version: Version{Major: major, Minor: minor + 1}})
	return nil
}

// Satisfies reports whether v satisfies c. A prerelease version only
// satisfies a constraint whose own operand is itself a prerelease, or
// whose operator is exact equality — this is stricter than plain
// numeric ordering and matches spec semantics for dependency gating.
func (c Constraint) Satisfies(v Version) bool {
	if v.IsPrerelease() && !c.prerelease {
		allowExact := false
		for _, cmp := range c.comparators {
			if cmp.op == "=" {
				allowExact = true
			}
		}
		if !allowExact {
			return false
		}
	}
	for _, cmp := range c.comparators {
		if !checkOperator(v, cmp.op, cmp.version) {
			return false
		}
	}
	return true
}

func checkOperator(v Version, op string, operand Version) bool {
	switch op {
	case "=":
		return v.Equal(operand)
	case ">":
		return v.GreaterThan(operand)
	case "<":
		return v.LessThan(operand)
	case ">=":
		return !v.LessThan(operand)
	case "<=":
		return !v.GreaterThan(operand)
	default:
		return false
	}
}

// Satisfies is a package-level convenience wrapping Parse + ParseConstraint.
func Satisfies(version, constraint string) (bool, error) {
	v, err := Parse(version)
	if err != nil {
		return false, err
	}
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false, err
	}
	return c.Satisfies(v), nil
}
