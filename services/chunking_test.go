package services

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty: got %d", got)
	}
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("8 chars: got %d, want 2", got)
	}
}

func TestSplitTextShortInput(t *testing.T) {
	out := SplitText("short paragraph", 100)
	if len(out) != 1 || out[0] != "short paragraph" {
		t.Errorf("got %q", out)
	}
	if out := SplitText("   \n\n  ", 100); out != nil {
		t.Errorf("whitespace-only input should produce nothing, got %q", out)
	}
}

func TestSplitTextPrefersParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 40) // ~50 tokens
	text := para + "\n\n" + para + "\n\n" + para

	segs := SplitText(text, 60)
	if len(segs) < 3 {
		t.Fatalf("expected at least 3 segments, got %d", len(segs))
	}
	for i, s := range segs {
		if EstimateTokens(s) > 60 {
			t.Errorf("segment %d over budget: %d tokens", i, EstimateTokens(s))
		}
	}
	// Separators are kept, so concatenation recovers the original.
	if joined := strings.Join(segs, ""); joined != text {
		t.Error("concatenated segments do not reproduce the input")
	}
}

func TestSplitTextHardCut(t *testing.T) {
	// No separators at all: the splitter falls back to fixed-size cuts.
	text := strings.Repeat("x", 1000)
	segs := SplitText(text, 50)
	for i, s := range segs {
		if len(s) > 200 {
			t.Errorf("segment %d longer than 200 chars: %d", i, len(s))
		}
	}
	if strings.Join(segs, "") != text {
		t.Error("hard cut lost characters")
	}
}

func TestSplitWithOverlap(t *testing.T) {
	sentence := strings.Repeat("alpha beta gamma delta. ", 30)

	segs := SplitWithOverlap(sentence, 50, 10)
	if len(segs) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segs))
	}
	// Every segment after the first repeats the tail of its predecessor's
	// base segment, so a fact straddling a boundary appears in both.
	for i := 1; i < len(segs); i++ {
		overlap := segs[i][:40] // 10 tokens * 4 chars
		if !strings.Contains(segs[i-1], overlap) {
			t.Errorf("segment %d does not overlap its predecessor", i)
		}
	}
}

func TestSplitWithOverlapSingleSegment(t *testing.T) {
	segs := SplitWithOverlap("tiny", 100, 10)
	if len(segs) != 1 || segs[0] != "tiny" {
		t.Errorf("got %q", segs)
	}
}
