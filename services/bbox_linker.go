package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"legal-intel-platform/models"
)

// runLinkingStage grounds child chunks in page geometry: each child gets
// the bounding boxes of the best-matching contiguous word window, found by
// sliding over the document's OCR words and scoring with the token set
// ratio. Chunks below the match threshold stay unlinked rather than pointing
// at the wrong page.
func (p *Pipeline) runLinkingStage(ctx context.Context, job *models.Job, doc *models.Document) error {
	boxes, err := p.loadOrderedBoxes(ctx, doc.ID.Hex())
	if err != nil {
		return err
	}
	if len(boxes) == 0 {
		p.logger.Warn("no bounding boxes to link", "document_id", doc.ID.Hex())
		return nil
	}

	cursor, err := p.store.Chunks().Find(ctx, bson.M{
		"document_id": doc.ID.Hex(),
		"chunk_type":  models.ChunkTypeChild,
	})
	if err != nil {
		return fmt.Errorf("load child chunks: %w", err)
	}
	var children []models.Chunk
	if err := cursor.All(ctx, &children); err != nil {
		return fmt.Errorf("decode child chunks: %w", err)
	}

	linked := 0
	for _, child := range children {
		if len(child.BBoxIDs) > 0 {
			continue // replay; already linked
		}
		ids, page, score := bestBoxWindow(boxes, child.Content, p.cfg.BBoxLinkThreshold)
		if ids == nil {
			p.logger.Debug("chunk below link threshold",
				"chunk_id", child.ID.Hex(), "best_score", score)
			continue
		}
		_, err := p.store.Chunks().UpdateOne(ctx,
			bson.M{"_id": child.ID},
			bson.M{"$set": bson.M{"bbox_ids": ids, "page_number": page}})
		if err != nil {
			return fmt.Errorf("link chunk %s: %w", child.ID.Hex(), err)
		}
		linked++
	}

	p.logger.Info("bounding boxes linked",
		"document_id", doc.ID.Hex(), "children", len(children), "linked", linked)
	return nil
}

// loadOrderedBoxes returns the document's boxes in reading order: by page,
// then top to bottom, then left to right.
func (p *Pipeline) loadOrderedBoxes(ctx context.Context, documentID string) ([]models.BoundingBox, error) {
	cursor, err := p.store.BoundingBoxes().Find(ctx,
		bson.M{"document_id": documentID},
		options.Find().SetSort(bson.D{{Key: "page_number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("load bounding boxes: %w", err)
	}
	var boxes []models.BoundingBox
	if err := cursor.All(ctx, &boxes); err != nil {
		return nil, fmt.Errorf("decode bounding boxes: %w", err)
	}
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].PageNumber != boxes[j].PageNumber {
			return boxes[i].PageNumber < boxes[j].PageNumber
		}
		if boxes[i].Y != boxes[j].Y {
			return boxes[i].Y < boxes[j].Y
		}
		return boxes[i].X < boxes[j].X
	})
	return boxes, nil
}

// bestBoxWindow slides a word window sized to the chunk over the document's
// boxes and returns the IDs and modal page of the best window at or above
// the threshold. Returns nil IDs when nothing clears the threshold.
func bestBoxWindow(boxes []models.BoundingBox, chunkText string, threshold int) ([]string, int, int) {
	windowSize := len(tokenize(chunkText))
	if windowSize == 0 {
		return nil, 0, 0
	}
	if windowSize > len(boxes) {
		windowSize = len(boxes)
	}

	step := windowSize / 4
	if step < 1 {
		step = 1
	}

	bestScore := -1
	bestStart := -1
	for start := 0; start+windowSize <= len(boxes); start += step {
		score := TokenSetRatio(windowText(boxes[start:start+windowSize]), chunkText)
		if score > bestScore {
			bestScore = score
			bestStart = start
		}
	}
	if bestScore < threshold || bestStart < 0 {
		return nil, 0, bestScore
	}

	window := boxes[bestStart : bestStart+windowSize]
	ids := make([]string, len(window))
	pageVotes := make(map[int]int)
	for i, b := range window {
		ids[i] = b.ID.Hex()
		pageVotes[b.PageNumber]++
	}
	page, votes := 0, 0
	for pg, n := range pageVotes {
		if n > votes || (n == votes && pg < page) {
			page, votes = pg, n
		}
	}
	return ids, page, bestScore
}

func windowText(boxes []models.BoundingBox) string {
	var b strings.Builder
	for i, box := range boxes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(box.Text)
	}
	return b.String()
}
