package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"legal-intel-platform/internal/ai"
	"legal-intel-platform/internal/config"
	"legal-intel-platform/internal/database"
	"legal-intel-platform/internal/storage"
	"legal-intel-platform/internal/telemetry"
	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

// TaskEnqueuer submits pipeline tasks to the broker. Implemented by the
// queue client; an interface here keeps services free of broker imports.
type TaskEnqueuer interface {
	EnqueueProcessDocument(ctx context.Context, matterID, documentID, jobID string) (string, error)
	EnqueueOCRChunk(ctx context.Context, matterID, documentID, jobID string, chunkIndex int) (string, error)
	EnqueueMerge(ctx context.Context, matterID, documentID, jobID string) (string, error)
}

// Progress percentages reported at stage boundaries.
const (
	pctRouted     = 5
	pctOCRDone    = 40
	pctMerged     = 50
	pctConfidence = 55
	pctChunked    = 65
	pctLinked     = 75
	pctEmbedded   = 85
	pctExtracted  = 95
)

// Pipeline drives a document from upload through OCR, semantic chunking,
// grounding, embedding, and extraction. Stages are idempotent per document
// so a redelivered task can replay from its last completed stage.
type Pipeline struct {
	cfg       *config.Config
	store     *database.Store
	objects   storage.ObjectStore
	ocr       *ai.OCRClient
	embedder  *ai.EmbeddingClient
	extractor *ai.Extractor
	ledger    *Ledger
	locker    *ChunkLocker
	cache     *QueryCache
	enqueuer  TaskEnqueuer
	metrics   *telemetry.PipelineMetrics
	logger    *slog.Logger
}

func NewPipeline(
	cfg *config.Config,
	store *database.Store,
	objects storage.ObjectStore,
	ocr *ai.OCRClient,
	embedder *ai.EmbeddingClient,
	extractor *ai.Extractor,
	ledger *Ledger,
	locker *ChunkLocker,
	cache *QueryCache,
	enqueuer TaskEnqueuer,
	metrics *telemetry.PipelineMetrics,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		objects:   objects,
		ocr:       ocr,
		embedder:  embedder,
		extractor: extractor,
		ledger:    ledger,
		locker:    locker,
		cache:     cache,
		enqueuer:  enqueuer,
		metrics:   metrics,
		logger:    logger,
	}
}

// ProcessDocument is the entry stage. It claims the job, decides the route,
// and either runs the synchronous path to completion or fans out chunk
// tasks and returns.
func (p *Pipeline) ProcessDocument(ctx context.Context, matterID, documentID, jobID string) error {
	log := p.logger.With("matter_id", matterID, "document_id", documentID, "job_id", jobID)

	jobOID, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return utils.NewValidation("invalid_job_id", "malformed job id in task payload")
	}

	job, err := p.claimOrResume(ctx, matterID, jobID, jobOID)
	if err != nil || job == nil {
		return err
	}

	doc, err := p.loadDocument(ctx, matterID, documentID)
	if err != nil {
		return p.failJob(ctx, job, doc, err)
	}

	if err := p.markDocumentProcessing(ctx, doc); err != nil {
		return p.failJob(ctx, job, doc, err)
	}

	pdfData, err := p.objects.Get(ctx, doc.StoragePath)
	if err != nil {
		return p.failJob(ctx, job, doc, utils.NewTransient("load pdf from object store", err))
	}

	pageCount := 0
	if doc.PageCount != nil {
		pageCount = *doc.PageCount
	} else {
		pageCount, err = CountPages(pdfData)
		if err != nil {
			return p.failJob(ctx, job, doc, err)
		}
		_, err = p.store.Documents().UpdateOne(ctx,
			bson.M{"_id": doc.ID},
			bson.M{"$set": bson.M{"page_count": pageCount}})
		if err != nil {
			return p.failJob(ctx, job, doc, fmt.Errorf("persist page count: %w", err))
		}
		doc.PageCount = &pageCount
	}

	decision, err := DecideRoute(pageCount, p.cfg)
	if err != nil {
		return p.failJob(ctx, job, doc, err)
	}

	if err := p.ledger.AdvanceStage(ctx, job, models.StageRouteDecision, models.StageOCR, pctRouted); err != nil {
		if errors.Is(err, ErrTransitionConflict) {
			return nil
		}
		return err
	}

	log.Info("route decided", "pages", pageCount, "chunked", decision.Chunked, "chunk_count", len(decision.Specs))

	if decision.Chunked {
		return p.fanOutChunks(ctx, job, doc, decision)
	}
	return p.processSync(ctx, job, doc, pdfData)
}

// claimOrResume claims a queued job, or resumes one already processing
// (broker redelivery after a transient failure). Terminal jobs ack silently.
func (p *Pipeline) claimOrResume(ctx context.Context, matterID, jobID string, jobOID primitive.ObjectID) (*models.Job, error) {
	job, err := p.ledger.Claim(ctx, jobOID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, ErrTransitionConflict) {
		return nil, err
	}

	job, err = p.ledger.Get(ctx, matterID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.Status != models.JobStatusProcessing {
		// Completed, cancelled, or failed beyond our reach. Ack the task.
		return nil, nil
	}
	p.logger.Info("resuming job after redelivery",
		"job_id", jobID, "completed_stages", job.CompletedStages)
	return job, nil
}

// processSync OCRs the whole document in one provider call, then runs the
// rest of the pipeline inline.
func (p *Pipeline) processSync(ctx context.Context, job *models.Job, doc *models.Document, pdfData []byte) error {
	started := time.Now()
	result, err := p.ocr.Recognize(ctx, pdfData, doc.Filename)
	if err != nil {
		return p.failJob(ctx, job, doc, err)
	}
	p.metrics.ObserveOCR(ctx, time.Since(started), len(result.Pages))

	if err := p.persistOCROutput(ctx, job, doc, result.Text(), result.MeanConfidence(), result.Pages); err != nil {
		return p.failJob(ctx, job, doc, err)
	}
	if err := p.ledger.AdvanceStage(ctx, job, models.StageOCR, models.StageConfidence, pctOCRDone); err != nil {
		if errors.Is(err, ErrTransitionConflict) {
			return nil
		}
		return err
	}
	return p.ContinueAfterOCR(ctx, job, doc)
}

// fanOutChunks records the page-range plan and enqueues one task per chunk.
// Chunk rows upsert on (document_id, chunk_index) so a redelivered fan-out
// cannot duplicate them.
func (p *Pipeline) fanOutChunks(ctx context.Context, job *models.Job, doc *models.Document, decision *RouteDecision) error {
	now := time.Now()
	for _, spec := range decision.Specs {
		filter := bson.M{"document_id": doc.ID.Hex(), "chunk_index": spec.Index}
		update := bson.M{
			"$setOnInsert": bson.M{
				"matter_id":   doc.MatterID,
				"document_id": doc.ID.Hex(),
				"chunk_index": spec.Index,
				"page_start":  spec.PageStart,
				"page_end":    spec.PageEnd,
				"status":      models.ChunkStatusPending,
				"created_at":  now,
			},
		}
		_, err := p.store.OCRChunks().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err != nil {
			return p.failJob(ctx, job, doc, fmt.Errorf("upsert ocr chunk: %w", err))
		}
	}

	if err := p.ledger.SetChunkProgress(ctx, job, len(decision.Specs), 0, pctRouted); err != nil {
		return err
	}

	for _, spec := range decision.Specs {
		_, err := p.enqueuer.EnqueueOCRChunk(ctx, doc.MatterID, doc.ID.Hex(), job.ID.Hex(), spec.Index)
		if err != nil {
			// The pending-merge sweeper re-enqueues chunks left pending, so
			// a partially failed fan-out heals without failing the job.
			p.logger.Error("enqueue ocr chunk failed",
				"document_id", doc.ID.Hex(), "chunk_index", spec.Index, "error", err)
		}
	}
	return nil
}

// ContinueAfterOCR runs the post-OCR stage chain. Both the sync path and the
// merge task land here; stages already in completed_stages are skipped.
func (p *Pipeline) ContinueAfterOCR(ctx context.Context, job *models.Job, doc *models.Document) error {
	type stage struct {
		name string
		next string
		pct  int
		run  func(context.Context, *models.Job, *models.Document) error
	}
	stages := []stage{
		{models.StageConfidence, models.StageChunk, pctConfidence, p.runConfidenceStage},
		{models.StageChunk, models.StageLinkBBoxes, pctChunked, p.runChunkingStage},
		{models.StageLinkBBoxes, models.StageEmbed, pctLinked, p.runLinkingStage},
		{models.StageEmbed, models.StageExtract, pctEmbedded, p.runEmbeddingStage},
		{models.StageExtract, models.StageFinalize, pctExtracted, p.runExtractionStage},
	}

	done := make(map[string]bool, len(job.CompletedStages))
	for _, s := range job.CompletedStages {
		done[s] = true
	}

	for _, s := range stages {
		if done[s.name] {
			continue
		}
		cancelled, err := p.ledger.IsCancelled(ctx, job.ID)
		if err != nil {
			return err
		}
		if cancelled {
			p.logger.Info("job cancelled, stopping at stage boundary",
				"job_id", job.ID.Hex(), "stage", s.name)
			return nil
		}

		started := time.Now()
		if err := s.run(ctx, job, doc); err != nil {
			p.metrics.ObserveStage(ctx, s.name, time.Since(started), false)
			return p.failJob(ctx, job, doc, err)
		}
		p.metrics.ObserveStage(ctx, s.name, time.Since(started), true)

		if err := p.ledger.AdvanceStage(ctx, job, s.name, s.next, s.pct); err != nil {
			if errors.Is(err, ErrTransitionConflict) {
				return nil
			}
			return err
		}
	}
	return p.finalize(ctx, job, doc)
}

// runConfidenceStage folds the OCR confidence into a quality bucket on the
// document. The numbers were computed when OCR output was persisted; this
// stage re-derives the bucket so recovery after a partial write heals it.
func (p *Pipeline) runConfidenceStage(ctx context.Context, job *models.Job, doc *models.Document) error {
	fresh, err := p.loadDocument(ctx, doc.MatterID, doc.ID.Hex())
	if err != nil {
		return err
	}
	quality := models.QualityForConfidence(fresh.OCRConfidence)
	_, err = p.store.Documents().UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{"ocr_quality_status": quality}})
	if err != nil {
		return fmt.Errorf("persist quality status: %w", err)
	}
	doc.OCRConfidence = fresh.OCRConfidence
	doc.OCRQualityStatus = quality
	doc.ExtractedText = fresh.ExtractedText
	if quality == models.OCRQualityPoor {
		p.logger.Warn("poor ocr quality",
			"document_id", doc.ID.Hex(), "confidence", fresh.OCRConfidence)
	}
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, job *models.Job, doc *models.Document) error {
	if err := p.setDocumentStatus(ctx, doc, models.DocStatusCompleted, ""); err != nil {
		return err
	}
	now := time.Now()
	_, err := p.store.Documents().UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{"processed_at": now}})
	if err != nil {
		return fmt.Errorf("persist processed_at: %w", err)
	}
	// New extractions change every answer for the matter. Drop the cached
	// ones; remaining stale entries age out at the TTL, so completion does
	// not fail on a cache error.
	if err := p.cache.InvalidateMatter(ctx, doc.MatterID); err != nil {
		p.logger.Warn("invalidate query cache after completion",
			"matter_id", doc.MatterID, "error", err)
	}
	if err := p.ledger.Complete(ctx, job); err != nil && !errors.Is(err, ErrTransitionConflict) {
		return err
	}
	p.ledger.NotifyDocumentReady(ctx, doc.MatterID, doc.ID.Hex())
	p.metrics.IncDocumentsCompleted(ctx)
	p.logger.Info("document pipeline completed",
		"document_id", doc.ID.Hex(), "job_id", job.ID.Hex())
	return nil
}

// persistOCROutput writes the extracted text, its checksum, the confidence
// average, and per-word bounding boxes. Box rows are replaced wholesale so
// a replay cannot double-insert.
func (p *Pipeline) persistOCROutput(ctx context.Context, job *models.Job, doc *models.Document, text string, confidence float64, pages []ai.OCRPage) error {
	_, err := p.store.Documents().UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{
			"extracted_text": text,
			"text_checksum":  utils.Checksum([]byte(text)),
			"ocr_confidence": confidence,
			"status":         models.DocStatusOCRComplete,
		}})
	if err != nil {
		return fmt.Errorf("persist extracted text: %w", err)
	}
	doc.ExtractedText = text
	doc.OCRConfidence = confidence
	doc.Status = models.DocStatusOCRComplete
	p.ledger.NotifyDocumentStatus(ctx, doc.MatterID, doc.ID.Hex(), models.DocStatusOCRComplete)

	if _, err := p.store.BoundingBoxes().DeleteMany(ctx,
		bson.M{"document_id": doc.ID.Hex()}); err != nil {
		return fmt.Errorf("clear bounding boxes: %w", err)
	}

	var boxes []interface{}
	for _, page := range pages {
		for _, w := range page.Words {
			boxes = append(boxes, models.BoundingBox{
				MatterID:      doc.MatterID,
				DocumentID:    doc.ID.Hex(),
				PageNumber:    page.PageNumber,
				X:             w.X,
				Y:             w.Y,
				Width:         w.Width,
				Height:        w.Height,
				Text:          w.Text,
				OCRConfidence: w.Confidence,
			})
		}
	}
	if len(boxes) > 0 {
		if _, err := p.store.BoundingBoxes().InsertMany(ctx, boxes); err != nil {
			return fmt.Errorf("insert bounding boxes: %w", err)
		}
	}
	return nil
}

// failJob classifies the error and, for non-retryable kinds, records the
// terminal failure on the job and document. Retryable errors propagate so
// the broker redelivers the task.
func (p *Pipeline) failJob(ctx context.Context, job *models.Job, doc *models.Document, cause error) error {
	kind := utils.Classify(cause)
	code := utils.ErrorCodeOf(cause)

	if kind == utils.KindCancelled {
		p.logger.Info("pipeline stopped by cancellation", "job_id", job.ID.Hex())
		return nil
	}
	if utils.IsRetryable(cause) {
		p.logger.Warn("pipeline stage failed, will retry",
			"job_id", job.ID.Hex(), "kind", kind.String(), "error", cause)
		return cause
	}

	p.logger.Error("pipeline stage failed terminally",
		"job_id", job.ID.Hex(), "kind", kind.String(), "code", code, "error", cause)
	p.metrics.IncDocumentsFailed(ctx)

	if err := p.ledger.Fail(ctx, job, code, cause.Error()); err != nil && !errors.Is(err, ErrTransitionConflict) {
		p.logger.Error("record job failure", "job_id", job.ID.Hex(), "error", err)
	}
	if doc != nil {
		status := models.DocStatusFailed
		if job.CurrentStage == models.StageOCR || job.CurrentStage == models.StageRouteDecision {
			status = models.DocStatusOCRFailed
		}
		if err := p.setDocumentStatus(ctx, doc, status, cause.Error()); err != nil {
			p.logger.Error("record document failure", "document_id", doc.ID.Hex(), "error", err)
		}
	}
	return cause
}

func (p *Pipeline) loadDocument(ctx context.Context, matterID, documentID string) (*models.Document, error) {
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, utils.NewValidation("invalid_document_id", "malformed document id")
	}
	var doc models.Document
	err = p.store.Documents().FindOne(ctx,
		database.MatterFilter(matterID, bson.M{"_id": oid})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewValidation("document_not_found", "document does not exist in this matter")
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return &doc, nil
}

func (p *Pipeline) setDocumentStatus(ctx context.Context, doc *models.Document, status, errorMessage string) error {
	set := bson.M{"status": status}
	if errorMessage != "" {
		set["error_message"] = errorMessage
	}
	_, err := p.store.Documents().UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	doc.Status = status
	p.ledger.NotifyDocumentStatus(ctx, doc.MatterID, doc.ID.Hex(), status)
	return nil
}

// markDocumentProcessing moves a document to processing only from its
// initial or failed states. A redelivered task whose earlier attempt
// already reached ocr_complete must not pull the status backwards.
func (p *Pipeline) markDocumentProcessing(ctx context.Context, doc *models.Document) error {
	res, err := p.store.Documents().UpdateOne(ctx,
		bson.M{
			"_id":    doc.ID,
			"status": bson.M{"$in": models.DocProcessingStartStates()},
		},
		bson.M{"$set": bson.M{"status": models.DocStatusProcessing}})
	if err != nil {
		return fmt.Errorf("mark document processing: %w", err)
	}
	if res.ModifiedCount > 0 {
		doc.Status = models.DocStatusProcessing
		p.ledger.NotifyDocumentStatus(ctx, doc.MatterID, doc.ID.Hex(), models.DocStatusProcessing)
	}
	return nil
}
