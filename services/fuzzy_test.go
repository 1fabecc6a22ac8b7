package services

import "testing"

func TestTokenSetRatioIdentical(t *testing.T) {
	if got := TokenSetRatio("Limitation Act 1980", "Limitation Act 1980"); got != 100 {
		t.Errorf("identical: got %d", got)
	}
}

func TestTokenSetRatioOrderInsensitive(t *testing.T) {
	if got := TokenSetRatio("Act Limitation 1980", "Limitation Act 1980"); got != 100 {
		t.Errorf("reordered: got %d", got)
	}
}

func TestTokenSetRatioCaseAndPunctuation(t *testing.T) {
	if got := TokenSetRatio("the landlord and tenant act, 1954", "The Landlord And Tenant Act 1954"); got != 100 {
		t.Errorf("case/punctuation: got %d", got)
	}
}

func TestTokenSetRatioSubset(t *testing.T) {
	// A chunk with surrounding boilerplate still scores highly against the
	// quote it contains.
	got := TokenSetRatio(
		"payment due within thirty days",
		"as set out in clause four payment due within thirty days of invoice")
	if got < 80 {
		t.Errorf("subset: got %d, want >= 80", got)
	}
}

func TestTokenSetRatioDisjoint(t *testing.T) {
	got := TokenSetRatio("lease termination notice", "quarterly financial statements")
	if got > 40 {
		t.Errorf("disjoint: got %d, want low", got)
	}
}

func TestTokenSetRatioEmpty(t *testing.T) {
	if got := TokenSetRatio("", ""); got != 100 {
		t.Errorf("both empty: got %d", got)
	}
	if got := TokenSetRatio("something", ""); got != 0 {
		t.Errorf("one empty: got %d", got)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"kitten", "sitting", 3},
		{"", "abc", 3},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
