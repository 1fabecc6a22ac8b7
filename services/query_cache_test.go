package services

import (
	"strings"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	cases := []struct{ in, want string }{
		{"What is the termination date?", "what is the termination date?"},
		{"  What   is the termination date?  ", "what is the termination date?"},
		{"WHAT IS THE TERMINATION DATE?", "what is the termination date?"},
		{"What is the termination date!", "what is the termination date"},
		{"What is the (final) termination date?!?", "what is the final termination date??"},
		{"What's the cut-off, per clause 4.2?", "what's the cut-off, per clause 4.2?"},
		{"deadline; penalties: [see §7]", "deadline penalties see 7"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeQuery(c.in); got != c.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCacheKeyEquivalentPhrasings(t *testing.T) {
	a := CacheKey("m1", "What is the rent?")
	b := CacheKey("m1", "  what IS the   rent?")
	if a != b {
		t.Errorf("equivalent queries produced different keys:\n%s\n%s", a, b)
	}
	c := CacheKey("m1", "What is the rent")
	d := CacheKey("m1", "what is the rent!")
	if c != d {
		t.Errorf("trailing exclamation changed the key:\n%s\n%s", c, d)
	}
}

func TestCacheKeyInsideInvalidationNamespace(t *testing.T) {
	prefix := strings.TrimSuffix(matterCachePattern("m1"), "*")
	if key := CacheKey("m1", "what is the rent?"); !strings.HasPrefix(key, prefix) {
		t.Errorf("key %q outside invalidation pattern %q", key, matterCachePattern("m1"))
	}
}

func TestCacheKeyScoping(t *testing.T) {
	a := CacheKey("m1", "what is the rent?")
	b := CacheKey("m2", "what is the rent?")
	if a == b {
		t.Error("keys for different matters must differ")
	}
	if !strings.HasPrefix(a, "cache:query:m1:") {
		t.Errorf("key missing matter namespace: %s", a)
	}
	c := CacheKey("m1", "what is the term?")
	if a == c {
		t.Error("different queries must produce different keys")
	}
}
