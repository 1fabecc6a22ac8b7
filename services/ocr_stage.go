package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"legal-intel-platform/internal/storage"
	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

// ProcessOCRChunk runs OCR for one page range of a chunked document. The
// distributed lock keeps duplicate deliveries from working the same chunk
// at once; the completed check makes replays of finished chunks a no-op.
func (p *Pipeline) ProcessOCRChunk(ctx context.Context, matterID, documentID, jobID string, chunkIndex int) error {
	log := p.logger.With("document_id", documentID, "chunk_index", chunkIndex, "job_id", jobID)

	token, acquired, err := p.locker.Acquire(ctx, documentID, chunkIndex)
	if err != nil {
		return err
	}
	if !acquired {
		log.Debug("chunk lock held elsewhere, acking duplicate delivery")
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.locker.Release(releaseCtx, documentID, chunkIndex, token); err != nil {
			log.Warn("release chunk lock", "error", err)
		}
	}()

	chunk, err := p.claimOCRChunk(ctx, documentID, chunkIndex)
	if err != nil {
		return err
	}
	if chunk == nil {
		// Already completed, or claimed by a worker that died moments ago
		// and will be reset by the stale-chunk sweeper.
		return p.maybeTriggerMerge(ctx, matterID, documentID, jobID)
	}

	doc, err := p.loadDocument(ctx, matterID, documentID)
	if err != nil {
		return p.failChunk(ctx, chunk, err)
	}
	pdfData, err := p.objects.Get(ctx, doc.StoragePath)
	if err != nil {
		return p.failChunk(ctx, chunk, utils.NewTransient("load pdf from object store", err))
	}

	totalPages := 0
	if doc.PageCount != nil {
		totalPages = *doc.PageCount
	}
	sliced, err := SlicePages(ctx, pdfData, chunk.PageStart, chunk.PageEnd, totalPages)
	if err != nil {
		return p.failChunk(ctx, chunk, err)
	}

	// OCR on a full page range can outlive the lock TTL. Keep the lock and
	// the claim's liveness marker fresh while the call runs so the
	// stale-chunk sweeper cannot hand the chunk to a second worker mid-call.
	stopKeepAlive := keepAlive(ctx, time.Duration(p.cfg.ChunkLockTTLS)*time.Second/3, func() {
		if held, err := p.locker.Extend(ctx, documentID, chunkIndex, token); err != nil {
			log.Warn("extend chunk lock", "error", err)
		} else if !held {
			log.Warn("chunk lock expired before extension")
		}
		if _, err := p.store.OCRChunks().UpdateOne(ctx,
			bson.M{"_id": chunk.ID, "status": models.ChunkStatusProcessing},
			bson.M{"$set": bson.M{"processing_started_at": time.Now()}}); err != nil {
			log.Warn("refresh chunk claim", "error", err)
		}
	})

	started := time.Now()
	result, err := p.ocr.Recognize(ctx, sliced,
		fmt.Sprintf("%s.p%d-%d.pdf", doc.Filename, chunk.PageStart, chunk.PageEnd))
	stopKeepAlive()
	if err != nil {
		return p.failChunk(ctx, chunk, err)
	}
	p.metrics.ObserveOCR(ctx, time.Since(started), len(result.Pages))

	// The OCR service numbers pages relative to its input; shift to
	// document-absolute page numbers before storing.
	for i := range result.Pages {
		result.Pages[i].PageNumber += chunk.PageStart - 1
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return p.failChunk(ctx, chunk, fmt.Errorf("marshal ocr result: %w", err))
	}
	compressed, err := utils.GzipBytes(raw)
	if err != nil {
		return p.failChunk(ctx, chunk, fmt.Errorf("compress ocr result: %w", err))
	}

	key := storage.OCRChunkKey(matterID, documentID, chunkIndex)
	if err := p.objects.Put(ctx, key, compressed); err != nil {
		return p.failChunk(ctx, chunk, utils.NewTransient("store ocr result", err))
	}

	now := time.Now()
	res, err := p.store.OCRChunks().UpdateOne(ctx,
		bson.M{"_id": chunk.ID, "status": models.ChunkStatusProcessing},
		bson.M{"$set": bson.M{
			"status":                  models.ChunkStatusCompleted,
			"result_storage_path":     key,
			"result_checksum":         utils.Checksum(compressed),
			"processing_completed_at": now,
			"error_message":           "",
		}})
	if err != nil {
		return fmt.Errorf("complete ocr chunk: %w", err)
	}
	if res.MatchedCount == 0 {
		// Lost the race to a sweeper reset. The replacement attempt will
		// redo the work; our stored result is simply overwritten.
		log.Warn("chunk completion conflict, another attempt owns the chunk")
		return nil
	}

	log.Info("ocr chunk completed", "pages", chunk.PageCountOf())
	return p.maybeTriggerMerge(ctx, matterID, documentID, jobID)
}

// claimOCRChunk moves a pending or failed chunk to processing. Returns nil
// when the chunk is already completed or processing elsewhere.
func (p *Pipeline) claimOCRChunk(ctx context.Context, documentID string, chunkIndex int) (*models.OCRChunk, error) {
	now := time.Now()
	var chunk models.OCRChunk
	err := p.store.OCRChunks().FindOneAndUpdate(ctx,
		bson.M{
			"document_id": documentID,
			"chunk_index": chunkIndex,
			"status":      bson.M{"$in": []string{models.ChunkStatusPending, models.ChunkStatusFailed}},
		},
		bson.M{"$set": bson.M{
			"status":                models.ChunkStatusProcessing,
			"processing_started_at": now,
		}},
	).Decode(&chunk)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim ocr chunk: %w", err)
	}
	chunk.Status = models.ChunkStatusProcessing
	return &chunk, nil
}

// failChunk records a chunk failure. Retryable causes propagate so the
// broker redelivers the task; terminal causes stay failed until a
// redelivered document task reclaims them.
func (p *Pipeline) failChunk(ctx context.Context, chunk *models.OCRChunk, cause error) error {
	if utils.Classify(cause) == utils.KindCancelled {
		// Revert the claim so a later attempt starts clean.
		_, _ = p.store.OCRChunks().UpdateOne(ctx,
			bson.M{"_id": chunk.ID, "status": models.ChunkStatusProcessing},
			bson.M{"$set": bson.M{"status": models.ChunkStatusPending}})
		return nil
	}

	_, err := p.store.OCRChunks().UpdateOne(ctx,
		bson.M{"_id": chunk.ID, "status": models.ChunkStatusProcessing},
		bson.M{"$set": bson.M{
			"status":        models.ChunkStatusFailed,
			"error_message": cause.Error(),
		}})
	if err != nil {
		p.logger.Error("record chunk failure", "chunk_id", chunk.ID.Hex(), "error", err)
	}
	p.logger.Warn("ocr chunk failed",
		"document_id", chunk.DocumentID, "chunk_index", chunk.ChunkIndex, "error", cause)

	if utils.IsRetryable(cause) {
		return cause
	}
	// Terminal chunk failure. Ack the task; the chunk stays failed until
	// the stale-job sweep requeues the document task, whose redelivery
	// reclaims failed chunks, or the job exhausts its retry budget.
	return nil
}

// maybeTriggerMerge updates fan-out progress and enqueues the merge task
// when every chunk has completed. Racy double-enqueues are fine because the
// merge stage is idempotent.
func (p *Pipeline) maybeTriggerMerge(ctx context.Context, matterID, documentID, jobID string) error {
	total, err := p.store.OCRChunks().CountDocuments(ctx, bson.M{"document_id": documentID})
	if err != nil {
		return fmt.Errorf("count ocr chunks: %w", err)
	}
	completed, err := p.store.OCRChunks().CountDocuments(ctx, bson.M{
		"document_id": documentID,
		"status":      models.ChunkStatusCompleted,
	})
	if err != nil {
		return fmt.Errorf("count completed ocr chunks: %w", err)
	}

	job, err := p.ledger.Get(ctx, matterID, jobID)
	if err != nil || job == nil {
		return err
	}
	if job.Status == models.JobStatusProcessing && total > 0 {
		pct := pctRouted + int(float64(pctOCRDone-pctRouted)*float64(completed)/float64(total))
		if err := p.ledger.SetChunkProgress(ctx, job, int(total), int(completed), pct); err != nil {
			return err
		}
	}

	if total > 0 && completed == total {
		if _, err := p.enqueuer.EnqueueMerge(ctx, matterID, documentID, jobID); err != nil {
			// Not fatal; the pending-merge sweeper will enqueue it again.
			p.logger.Error("enqueue merge failed", "document_id", documentID, "error", err)
		}
	}
	return nil
}

var errMergeNotReady = errors.New("not all chunks completed")
