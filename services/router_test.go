package services

import (
	"testing"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/utils"
)

func testRouteConfig() *config.Config {
	return &config.Config{
		MaxPDFPages:            500,
		PDFChunkThresholdPages: 25,
		PDFChunkSizePages:      25,
	}
}

func TestValidatePDF(t *testing.T) {
	if err := ValidatePDF(nil); utils.ErrorCodeOf(err) != utils.CodeEmptyFile {
		t.Errorf("empty file: got %v", err)
	}
	if err := ValidatePDF([]byte("hello world")); utils.ErrorCodeOf(err) != utils.CodeInvalidPDF {
		t.Errorf("non-pdf: got %v", err)
	}
	if err := ValidatePDF([]byte("%PDF-1.7\n...")); err != nil {
		t.Errorf("valid header rejected: %v", err)
	}
}

func TestDecideRouteLimits(t *testing.T) {
	cfg := testRouteConfig()

	if _, err := DecideRoute(0, cfg); utils.ErrorCodeOf(err) != utils.CodeEmptyDocument {
		t.Errorf("zero pages: got %v", err)
	}
	if _, err := DecideRoute(501, cfg); utils.ErrorCodeOf(err) != utils.CodeOversizePDF {
		t.Errorf("oversize: got %v", err)
	}
}

func TestDecideRouteThreshold(t *testing.T) {
	cfg := testRouteConfig()

	// At the threshold the document stays on the synchronous path.
	d, err := DecideRoute(25, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Chunked || d.Specs != nil {
		t.Errorf("25 pages should be sync, got chunked=%v", d.Chunked)
	}

	d, err = DecideRoute(26, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Chunked {
		t.Fatal("26 pages should fan out")
	}
	if len(d.Specs) != 2 {
		t.Errorf("expected 2 specs, got %d", len(d.Specs))
	}
}

func TestSplitSpecs(t *testing.T) {
	specs := SplitSpecs(75, 25)
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	want := []ChunkSpec{
		{Index: 0, PageStart: 1, PageEnd: 25},
		{Index: 1, PageStart: 26, PageEnd: 50},
		{Index: 2, PageStart: 51, PageEnd: 75},
	}
	for i, s := range specs {
		if s != want[i] {
			t.Errorf("spec %d: got %+v, want %+v", i, s, want[i])
		}
	}

	// Remainder ends up in a short final range.
	specs = SplitSpecs(80, 25)
	if len(specs) != 4 {
		t.Fatalf("expected 4 specs, got %d", len(specs))
	}
	last := specs[3]
	if last.PageStart != 76 || last.PageEnd != 80 {
		t.Errorf("last spec: got %+v", last)
	}
}

func TestSplitSpecsContiguous(t *testing.T) {
	for _, pages := range []int{1, 24, 25, 26, 49, 137, 500} {
		specs := SplitSpecs(pages, 25)
		expectedStart := 1
		for _, s := range specs {
			if s.PageStart != expectedStart {
				t.Fatalf("pages=%d: gap before chunk %d (start %d, want %d)",
					pages, s.Index, s.PageStart, expectedStart)
			}
			if s.PageEnd < s.PageStart {
				t.Fatalf("pages=%d: inverted range %+v", pages, s)
			}
			expectedStart = s.PageEnd + 1
		}
		if expectedStart != pages+1 {
			t.Fatalf("pages=%d: ranges stop at %d", pages, expectedStart-1)
		}
	}
}
