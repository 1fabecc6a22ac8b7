package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"legal-intel-platform/internal/ai"
	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

// ChunkBoundaryMarker separates chunk texts in the merged document so page
// ranges never fuse mid-word. Merged length is the sum of chunk texts plus
// one marker per boundary.
const ChunkBoundaryMarker = "\n\n"

// MergeOCRChunks assembles completed per-chunk OCR results into the
// document's full text and continues the pipeline. Safe to deliver more
// than once: a merge that already happened acks, a merge before all chunks
// completed acks and waits for the next trigger.
func (p *Pipeline) MergeOCRChunks(ctx context.Context, matterID, documentID, jobID string) error {
	log := p.logger.With("document_id", documentID, "job_id", jobID)

	job, err := p.ledger.Get(ctx, matterID, jobID)
	if err != nil {
		return err
	}
	if job == nil || job.Status != models.JobStatusProcessing {
		log.Debug("merge delivered for non-processing job, acking")
		return nil
	}
	for _, s := range job.CompletedStages {
		if s == models.StageMergeOCR {
			log.Debug("merge already completed, acking duplicate")
			return nil
		}
	}

	doc, err := p.loadDocument(ctx, matterID, documentID)
	if err != nil {
		return p.failJob(ctx, job, doc, err)
	}

	totalPages := 0
	if doc.PageCount != nil {
		totalPages = *doc.PageCount
	}
	merged, pages, confidence, err := p.assembleChunks(ctx, documentID, totalPages)
	if errors.Is(err, errMergeNotReady) {
		log.Debug("merge not ready, chunks still outstanding")
		return nil
	}
	if err != nil {
		return p.failJob(ctx, job, doc, err)
	}

	if err := p.persistOCROutput(ctx, job, doc, merged, confidence, pages); err != nil {
		return p.failJob(ctx, job, doc, err)
	}
	if err := p.ledger.AdvanceStage(ctx, job, models.StageMergeOCR, models.StageConfidence, pctMerged); err != nil {
		if errors.Is(err, ErrTransitionConflict) {
			return nil
		}
		return err
	}

	log.Info("ocr chunks merged", "text_len", len(merged), "confidence", confidence)
	return p.ContinueAfterOCR(ctx, job, doc)
}

// assembleChunks loads every chunk result in index order, verifies the plan
// covers the whole document and results are untampered, and concatenates
// them.
func (p *Pipeline) assembleChunks(ctx context.Context, documentID string, totalPages int) (string, []ai.OCRPage, float64, error) {
	cursor, err := p.store.OCRChunks().Find(ctx,
		bson.M{"document_id": documentID},
		options.Find().SetSort(bson.M{"chunk_index": 1}))
	if err != nil {
		return "", nil, 0, fmt.Errorf("load ocr chunks: %w", err)
	}
	var chunks []models.OCRChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return "", nil, 0, fmt.Errorf("decode ocr chunks: %w", err)
	}

	if err := verifyChunkPlan(chunks, totalPages); err != nil {
		return "", nil, 0, err
	}

	var texts []string
	var allPages []ai.OCRPage
	var confSum float64
	var confWords int

	for _, c := range chunks {
		compressed, err := p.objects.Get(ctx, c.ResultStoragePath)
		if err != nil {
			return "", nil, 0, utils.NewTransient(
				fmt.Sprintf("load chunk %d result", c.ChunkIndex), err)
		}
		if got := utils.Checksum(compressed); got != c.ResultChecksum {
			return "", nil, 0, utils.NewIntegrity(
				fmt.Sprintf("chunk %d result checksum mismatch", c.ChunkIndex))
		}
		raw, err := utils.GunzipBytes(compressed)
		if err != nil {
			return "", nil, 0, utils.NewIntegrity(
				fmt.Sprintf("chunk %d result corrupt: %v", c.ChunkIndex, err))
		}
		var result ai.OCRResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return "", nil, 0, utils.NewIntegrity(
				fmt.Sprintf("chunk %d result unparseable: %v", c.ChunkIndex, err))
		}

		texts = append(texts, result.Text())
		allPages = append(allPages, result.Pages...)
		for _, page := range result.Pages {
			for _, w := range page.Words {
				confSum += w.Confidence
				confWords++
			}
		}
	}

	confidence := 0.0
	if confWords > 0 {
		confidence = confSum / float64(confWords)
	}
	return strings.Join(texts, ChunkBoundaryMarker), allPages, confidence, nil
}

// verifyChunkPlan checks that the chunk set tiles pages 1..totalPages in
// index order with every chunk completed. A lost tail chunk or an index gap
// must fail the merge rather than produce a silently truncated document.
func verifyChunkPlan(chunks []models.OCRChunk, totalPages int) error {
	if len(chunks) == 0 {
		return utils.NewIntegrity("merge requested but no ocr chunks exist")
	}
	expectedStart := 1
	for i, c := range chunks {
		if c.Status != models.ChunkStatusCompleted {
			return errMergeNotReady
		}
		if c.ChunkIndex != i {
			return utils.NewIntegrity(
				fmt.Sprintf("chunk index gap: expected %d got %d", i, c.ChunkIndex))
		}
		if c.PageStart != expectedStart {
			return utils.NewIntegrity(
				fmt.Sprintf("page range gap at chunk %d: expected start %d got %d", i, expectedStart, c.PageStart))
		}
		expectedStart = c.PageEnd + 1
	}
	if totalPages > 0 {
		if last := chunks[len(chunks)-1]; last.PageEnd != totalPages {
			return utils.NewIntegrity(
				fmt.Sprintf("chunk plan ends at page %d, document has %d pages", last.PageEnd, totalPages))
		}
	}
	return nil
}
