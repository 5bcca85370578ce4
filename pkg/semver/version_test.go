package semver

import "testing"

func TestParseValid(t *testing.T) {
	cases := []string{"1.2.3", "v1.2.3", "0.0.1", "2.0.0-alpha.1", "1.0.0+build.5", "1.0.0-alpha.1+build.5"}
	for _, c := range cases {
		if _, err := Parse(c); err != nil {
			t.Errorf("Parse(%q) returned error: %v", c, err)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{"", "1.2", "1.2.3.4", "a.b.c", "1.2.03"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", c)
		}
	}
}

func TestOrdering(t *testing.T) {
	less := [][2]string{
		{"1.0.0-alpha", "1.0.0"},
		{"1.0.0-alpha", "1.0.0-alpha.1"},
		{"1.0.0-alpha.1", "1.0.0-alpha.beta"},
		{"1.0.0-beta", "1.0.0-beta.2"},
		{"1.0.0-beta.2", "1.0.0-beta.11"},
		{"1.0.0-rc.1", "1.0.0"},
		{"1.0.0", "2.0.0"},
		{"1.9.0", "1.10.0"},
	}
	for _, pair := range less {
		a := MustParse(pair[0])
		b := MustParse(pair[1])
		if !a.LessThan(b) {
			t.Errorf("expected %s < %s", a, b)
		}
		if !b.GreaterThan(a) {
			t.Errorf("expected %s > %s", b, a)
		}
	}
}

func TestBuildMetadataIgnoredInOrdering(t *testing.T) {
	a := MustParse("1.0.0+build.1")
	b := MustParse("1.0.0+build.2")
	if a.Compare(b) != 0 {
		t.Errorf("expected build metadata to be ignored, got %s vs %s", a, b)
	}
}
