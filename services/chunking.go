package services

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

// EstimateTokens approximates token count at 4 characters per token, the
// same heuristic the embedding provider documents for its tokenizer.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Separator hierarchy for semantic splitting, coarsest first. Splits prefer
// paragraph breaks, then lines, then sentences, then words.
var chunkSeparators = []string{"\n\n", "\n", ". ", " "}

// SplitText breaks text into segments of at most maxTokens, preferring the
// coarsest separator that fits. Segments keep their separators so the
// original text is recoverable by concatenation.
func SplitText(text string, maxTokens int) []string {
	return splitRecursive(text, maxTokens*4, chunkSeparators)
}

func splitRecursive(text string, maxChars int, seps []string) []string {
	if len(text) <= maxChars {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	if len(seps) == 0 {
		// No structure left to respect; hard cut.
		var out []string
		for start := 0; start < len(text); start += maxChars {
			end := start + maxChars
			if end > len(text) {
				end = len(text)
			}
			out = append(out, text[start:end])
		}
		return out
	}

	sep := seps[0]
	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, maxChars, seps[1:])
	}

	var out []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			seg := current.String()
			if len(seg) > maxChars {
				out = append(out, splitRecursive(seg, maxChars, seps[1:])...)
			} else if strings.TrimSpace(seg) != "" {
				out = append(out, seg)
			}
			current.Reset()
		}
	}
	for _, part := range parts {
		if current.Len()+len(part) > maxChars {
			flush()
		}
		current.WriteString(part)
	}
	flush()
	return out
}

// SplitWithOverlap splits text into segments of at most maxTokens where
// each segment after the first starts with the tail of its predecessor.
func SplitWithOverlap(text string, maxTokens, overlapTokens int) []string {
	base := SplitText(text, maxTokens-overlapTokens)
	if len(base) <= 1 || overlapTokens <= 0 {
		return base
	}
	overlapChars := overlapTokens * 4
	out := make([]string, 0, len(base))
	for i, seg := range base {
		if i == 0 {
			out = append(out, seg)
			continue
		}
		prev := base[i-1]
		tail := prev
		if len(prev) > overlapChars {
			tail = prev[len(prev)-overlapChars:]
		}
		out = append(out, tail+seg)
	}
	return out
}

// runChunkingStage splits the merged document text into parent chunks for
// LLM context and overlapping child chunks for retrieval. All rows insert
// in one transaction; existing chunks mean a replay and the stage skips.
func (p *Pipeline) runChunkingStage(ctx context.Context, job *models.Job, doc *models.Document) error {
	existing, err := p.store.Chunks().CountDocuments(ctx, bson.M{"document_id": doc.ID.Hex()})
	if err != nil {
		return fmt.Errorf("count existing chunks: %w", err)
	}
	if existing > 0 {
		p.logger.Info("chunks already exist, skipping chunking",
			"document_id", doc.ID.Hex(), "count", existing)
		return nil
	}

	text := doc.ExtractedText
	if strings.TrimSpace(text) == "" {
		fresh, err := p.loadDocument(ctx, doc.MatterID, doc.ID.Hex())
		if err != nil {
			return err
		}
		text = fresh.ExtractedText
	}
	if strings.TrimSpace(text) == "" {
		return utils.NewValidation(utils.CodeEmptyDocument, "no text extracted from document")
	}

	var rows []interface{}
	parents := SplitText(text, p.cfg.ChunkParentTokens)
	parentCount, childCount := 0, 0

	for pi, parentText := range parents {
		if EstimateTokens(parentText) < p.cfg.ChunkMinSizeTokens {
			continue
		}
		parentID := primitive.NewObjectID()
		parentHex := parentID.Hex()
		rows = append(rows, models.Chunk{
			ID:         parentID,
			MatterID:   doc.MatterID,
			DocumentID: doc.ID.Hex(),
			ChunkType:  models.ChunkTypeParent,
			ChunkIndex: pi,
			Content:    parentText,
			TokenCount: EstimateTokens(parentText),
		})
		parentCount++

		for ci, childText := range SplitWithOverlap(parentText, p.cfg.ChunkChildTokens, p.cfg.ChunkChildOverlap) {
			if EstimateTokens(childText) < p.cfg.ChunkMinSizeTokens {
				continue
			}
			rows = append(rows, models.Chunk{
				ID:            primitive.NewObjectID(),
				MatterID:      doc.MatterID,
				DocumentID:    doc.ID.Hex(),
				ParentChunkID: &parentHex,
				ChunkType:     models.ChunkTypeChild,
				ChunkIndex:    ci,
				Content:       childText,
				TokenCount:    EstimateTokens(childText),
			})
			childCount++
		}
	}

	if len(rows) == 0 {
		return utils.NewValidation(utils.CodeEmptyDocument, "document text produced no usable chunks")
	}

	err = p.store.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		_, err := p.store.Chunks().InsertMany(sessCtx, rows)
		return err
	})
	if err != nil {
		return utils.NewTransient("insert chunks", err)
	}

	p.logger.Info("document chunked",
		"document_id", doc.ID.Hex(), "parents", parentCount, "children", childCount)
	return nil
}
