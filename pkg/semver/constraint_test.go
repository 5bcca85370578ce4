package semver

import "testing"

func TestCaretStandard(t *testing.T) {
	c, err := ParseConstraint("^1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Satisfies(MustParse("1.2.3")) || !c.Satisfies(MustParse("1.9.9")) {
		t.Error("expected 1.2.3 and 1.9.9 to satisfy ^1.2.3")
	}
	if c.Satisfies(MustParse("2.0.0")) {
		t.Error("expected 2.0.0 to violate ^1.2.3")
	}
}

func TestCaretZeroMinor(t *testing.T) {
	c, err := ParseConstraint("^0.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Satisfies(MustParse("0.2.9")) {
		t.Error("expected 0.2.9 to satisfy ^0.2.3")
	}
	if c.Satisfies(MustParse("0.3.0")) {
		t.Error("expected 0.3.0 to violate ^0.2.3")
	}
}

func TestCaretZeroMinorZeroPatch(t *testing.T) {
	c, err := ParseConstraint("^0.0.3")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Satisfies(MustParse("0.0.3")) {
		t.Error("expected 0.0.3 to satisfy ^0.0.3")
	}
	if c.Satisfies(MustParse("0.0.4")) {
		t.Error("expected 0.0.4 to violate ^0.0.3 (stricter rule, see DESIGN.md)")
	}
}

func TestTilde(t *testing.T) {
	c, err := ParseConstraint("~1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Satisfies(MustParse("1.2.9")) {
		t.Error("expected 1.2.9 to satisfy ~1.2.3")
	}
	if c.Satisfies(MustParse("1.3.0")) {
		t.Error("expected 1.3.0 to violate ~1.2.3")
	}
}

func TestWildcard(t *testing.T) {
	cases := map[string][2]string{
		"*":     {"0.0.1", "99.99.99"},
		"1.*":   {"1.0.0", "1.99.0"},
		"1.2.*": {"1.2.0", "1.2.99"},
	}
	for constraint, bounds := range cases {
		c, err := ParseConstraint(constraint)
		if err != nil {
			t.Fatal(err)
		}
		if !c.Satisfies(MustParse(bounds[0])) || !c.Satisfies(MustParse(bounds[1])) {
			t.Errorf("expected %s to satisfy %s", bounds, constraint)
		}
	}
	c, _ := ParseConstraint("1.*")
	if c.Satisfies(MustParse("2.0.0")) {
		t.Error("expected 2.0.0 to violate 1.*")
	}
}

func TestRange(t *testing.T) {
	c, err := ParseConstraint(">=1.0.0 <2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Satisfies(MustParse("1.5.0")) {
		t.Error("expected 1.5.0 to satisfy range")
	}
	if c.Satisfies(MustParse("2.0.0")) || c.Satisfies(MustParse("0.9.0")) {
		t.Error("expected range to exclude 2.0.0 and 0.9.0")
	}
}

func TestPrereleaseStrictness(t *testing.T) {
	c, err := ParseConstraint(">=1.0.0-alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Satisfies(MustParse("1.0.0-alpha")) {
		t.Error("expected 1.0.0-alpha to satisfy >=1.0.0-alpha")
	}

	strict, err := ParseConstraint(">=1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if strict.Satisfies(MustParse("1.0.0-alpha")) {
		t.Error("expected a non-prerelease constraint to reject a prerelease version")
	}
	if !strict.Satisfies(MustParse("1.0.0")) {
		t.Error("expected 1.0.0 to satisfy >=1.0.0")
	}
}

func TestExactConstraint(t *testing.T) {
	c, err := ParseConstraint("1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Satisfies(MustParse("1.2.3")) {
		t.Error("expected exact match")
	}
	if c.Satisfies(MustParse("1.2.4")) {
		t.Error("expected exact mismatch to fail")
	}
}
