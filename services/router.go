package services

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/utils"
)

// RouteDecision is the outcome of the first pipeline stage: either the
// document runs synchronously through OCR as a whole, or it fans out into
// page-range chunks.
type RouteDecision struct {
	PageCount int
	Chunked   bool
	Specs     []ChunkSpec
}

// ChunkSpec is one contiguous page range assigned to a parallel OCR task.
type ChunkSpec struct {
	Index     int
	PageStart int
	PageEnd   int
}

var pdfMagic = []byte("%PDF-")

// ValidatePDF rejects empty and non-PDF uploads before any bytes hit the
// object store.
func ValidatePDF(data []byte) error {
	if len(data) == 0 {
		return utils.NewValidation(utils.CodeEmptyFile, "uploaded file is empty")
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return utils.NewValidation(utils.CodeInvalidPDF, "file does not start with a PDF header")
	}
	return nil
}

// CountPages parses the PDF structure and returns the page count.
func CountPages(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, utils.NewValidation(utils.CodeInvalidPDF, fmt.Sprintf("unreadable pdf: %v", err))
	}
	return reader.NumPage(), nil
}

// DecideRoute validates the page count against limits and picks sync vs.
// chunked processing. A document at exactly the threshold stays sync.
func DecideRoute(pageCount int, cfg *config.Config) (*RouteDecision, error) {
	if pageCount <= 0 {
		return nil, utils.NewValidation(utils.CodeEmptyDocument, "document has no pages")
	}
	if pageCount > cfg.MaxPDFPages {
		return nil, utils.NewValidation(utils.CodeOversizePDF,
			fmt.Sprintf("document has %d pages, limit is %d", pageCount, cfg.MaxPDFPages))
	}

	decision := &RouteDecision{PageCount: pageCount}
	if pageCount <= cfg.PDFChunkThresholdPages {
		return decision, nil
	}

	decision.Chunked = true
	decision.Specs = SplitSpecs(pageCount, cfg.PDFChunkSizePages)
	return decision, nil
}

// SplitSpecs partitions [1..pageCount] into consecutive ranges of at most
// chunkSize pages. Ranges are contiguous, non-overlapping, and indexed from
// zero; the last range holds the remainder.
func SplitSpecs(pageCount, chunkSize int) []ChunkSpec {
	if chunkSize < 1 {
		chunkSize = 1
	}
	var specs []ChunkSpec
	for start := 1; start <= pageCount; start += chunkSize {
		end := start + chunkSize - 1
		if end > pageCount {
			end = pageCount
		}
		specs = append(specs, ChunkSpec{
			Index:     len(specs),
			PageStart: start,
			PageEnd:   end,
		})
	}
	return specs
}
