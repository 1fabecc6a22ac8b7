package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/internal/database"
	"legal-intel-platform/internal/storage"
	"legal-intel-platform/internal/telemetry"
	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

const sweepBatchSize = 100

// Recovery owns the periodic sweeps that heal work lost to crashed workers,
// dropped enqueues, and missed merge triggers. Every sweep is idempotent;
// overlapping runs only waste a scan.
type Recovery struct {
	cfg      *config.Config
	store    *database.Store
	objects  storage.ObjectStore
	ledger   *Ledger
	enqueuer TaskEnqueuer
	metrics  *telemetry.PipelineMetrics
	logger   *slog.Logger
}

func NewRecovery(
	cfg *config.Config,
	store *database.Store,
	objects storage.ObjectStore,
	ledger *Ledger,
	enqueuer TaskEnqueuer,
	metrics *telemetry.PipelineMetrics,
	logger *slog.Logger,
) *Recovery {
	return &Recovery{
		cfg:      cfg,
		store:    store,
		objects:  objects,
		ledger:   ledger,
		enqueuer: enqueuer,
		metrics:  metrics,
		logger:   logger,
	}
}

// SweepStaleJobs finds processing jobs whose heartbeat went silent and
// either requeues them within the retry budget or fails them for good.
func (r *Recovery) SweepStaleJobs(ctx context.Context) error {
	stale, err := r.ledger.FindStale(ctx,
		time.Duration(r.cfg.JobStaleTimeoutMinutes)*time.Minute, sweepBatchSize)
	if err != nil {
		return err
	}

	for _, job := range stale {
		log := r.logger.With("job_id", job.ID.Hex(), "document_id", job.DocumentID)
		cause := fmt.Sprintf("%s: no heartbeat for %dm at stage %s",
			utils.CodeWorkerTimeout, r.cfg.JobStaleTimeoutMinutes, job.CurrentStage)

		if err := r.ledger.Fail(ctx, &job, utils.CodeWorkerTimeout, cause); err != nil {
			// Lost the race to the worker itself; it moved on.
			continue
		}
		r.metrics.IncJobsRecovered(ctx)

		if job.RetryCount >= job.MaxRetries {
			log.Error("stale job out of retries, failing permanently",
				"retry_count", job.RetryCount)
			r.failDocument(ctx, job.DocumentID, cause)
			continue
		}

		if err := r.ledger.Requeue(ctx, job.ID, cause, job.RetryCount+1); err != nil {
			log.Error("requeue stale job", "error", err)
			continue
		}
		handle, err := r.enqueuer.EnqueueProcessDocument(ctx, job.MatterID, job.DocumentID, job.ID.Hex())
		if err != nil {
			// Stays queued; the stuck-queued sweep will pick it up.
			log.Error("re-enqueue stale job", "error", err)
			continue
		}
		if err := r.ledger.SetTaskHandle(ctx, job.ID, handle); err != nil {
			log.Warn("record task handle", "error", err)
		}
		log.Info("stale job requeued", "attempt", job.RetryCount+1)
	}
	return nil
}

// SweepStaleChunks resets OCR chunks stuck in processing, re-enqueueing
// within the chunk recovery budget and failing the document beyond it.
func (r *Recovery) SweepStaleChunks(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(r.cfg.ChunkStaleTimeoutMinutes) * time.Minute)
	cursor, err := r.store.OCRChunks().Find(ctx, bson.M{
		"status":                models.ChunkStatusProcessing,
		"processing_started_at": bson.M{"$lt": cutoff},
	}, options.Find().SetLimit(sweepBatchSize))
	if err != nil {
		return fmt.Errorf("find stale chunks: %w", err)
	}
	var chunks []models.OCRChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return fmt.Errorf("decode stale chunks: %w", err)
	}

	for _, chunk := range chunks {
		log := r.logger.With("document_id", chunk.DocumentID, "chunk_index", chunk.ChunkIndex)

		if chunk.RecoveryAttempts >= r.cfg.JobMaxRecoveryRetries {
			log.Error("stale chunk out of retries, failing document",
				"attempts", chunk.RecoveryAttempts)
			_, err := r.store.OCRChunks().UpdateOne(ctx,
				bson.M{"_id": chunk.ID, "status": models.ChunkStatusProcessing},
				bson.M{"$set": bson.M{
					"status":        models.ChunkStatusFailed,
					"error_message": "worker_timeout: chunk recovery budget exhausted",
				}})
			if err != nil {
				log.Error("fail stale chunk", "error", err)
				continue
			}
			r.failChunkedJob(ctx, chunk.DocumentID, "chunk recovery budget exhausted")
			continue
		}

		res, err := r.store.OCRChunks().UpdateOne(ctx,
			bson.M{"_id": chunk.ID, "status": models.ChunkStatusProcessing},
			bson.M{
				"$set": bson.M{"status": models.ChunkStatusPending},
				"$inc": bson.M{"recovery_attempts": 1},
			})
		if err != nil || res.MatchedCount == 0 {
			continue
		}
		r.metrics.IncChunksRecovered(ctx)

		job, err := r.activeJobForDocument(ctx, chunk.DocumentID)
		if err != nil || job == nil {
			log.Warn("no active job for stale chunk", "error", err)
			continue
		}
		if _, err := r.enqueuer.EnqueueOCRChunk(ctx, chunk.MatterID, chunk.DocumentID, job.ID.Hex(), chunk.ChunkIndex); err != nil {
			log.Error("re-enqueue stale chunk", "error", err)
			continue
		}
		log.Info("stale chunk requeued", "attempt", chunk.RecoveryAttempts+1)
	}
	return nil
}

// SweepPendingMerges re-triggers merges for documents whose chunks all
// completed but whose merge enqueue was lost.
func (r *Recovery) SweepPendingMerges(ctx context.Context) error {
	cutoff := time.Now().Add(-2 * time.Minute)
	cursor, err := r.store.Jobs().Find(ctx, bson.M{
		"status":        models.JobStatusProcessing,
		"metadata.kind": models.MetaChunkProcessing,
		"updated_at":    bson.M{"$lt": cutoff},
	}, options.Find().SetLimit(sweepBatchSize))
	if err != nil {
		return fmt.Errorf("find pending merges: %w", err)
	}
	var jobs []models.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return fmt.Errorf("decode pending merge jobs: %w", err)
	}

	for _, job := range jobs {
		total, err := r.store.OCRChunks().CountDocuments(ctx, bson.M{"document_id": job.DocumentID})
		if err != nil {
			return err
		}
		completed, err := r.store.OCRChunks().CountDocuments(ctx, bson.M{
			"document_id": job.DocumentID,
			"status":      models.ChunkStatusCompleted,
		})
		if err != nil {
			return err
		}
		if total == 0 || completed != total {
			continue
		}
		if _, err := r.enqueuer.EnqueueMerge(ctx, job.MatterID, job.DocumentID, job.ID.Hex()); err != nil {
			r.logger.Error("re-enqueue merge", "job_id", job.ID.Hex(), "error", err)
			continue
		}
		r.logger.Info("pending merge re-triggered",
			"job_id", job.ID.Hex(), "document_id", job.DocumentID, "chunks", total)
	}
	return nil
}

// SweepCleanupChunkResults deletes per-chunk OCR artifacts for documents
// completed longer ago than the retention window. The merged text on the
// document is the durable copy; chunk results only exist for merge replay.
func (r *Recovery) SweepCleanupChunkResults(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(r.cfg.ChunkResultRetentionH) * time.Hour)
	cursor, err := r.store.Documents().Find(ctx, bson.M{
		"status":       models.DocStatusCompleted,
		"processed_at": bson.M{"$lt": cutoff},
	}, options.Find().SetLimit(sweepBatchSize).SetProjection(bson.M{"_id": 1, "matter_id": 1}))
	if err != nil {
		return fmt.Errorf("find cleanup candidates: %w", err)
	}
	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return fmt.Errorf("decode cleanup candidates: %w", err)
	}

	for _, doc := range docs {
		chunkCursor, err := r.store.OCRChunks().Find(ctx, bson.M{"document_id": doc.ID.Hex()})
		if err != nil {
			return err
		}
		var chunks []models.OCRChunk
		if err := chunkCursor.All(ctx, &chunks); err != nil {
			return err
		}
		if len(chunks) == 0 {
			continue
		}
		for _, chunk := range chunks {
			if chunk.ResultStoragePath == "" {
				continue
			}
			if err := r.objects.Delete(ctx, chunk.ResultStoragePath); err != nil {
				r.logger.Warn("delete chunk result object",
					"path", chunk.ResultStoragePath, "error", err)
			}
		}
		if _, err := r.store.OCRChunks().DeleteMany(ctx, bson.M{"document_id": doc.ID.Hex()}); err != nil {
			return fmt.Errorf("delete chunk rows: %w", err)
		}
		r.logger.Info("chunk results cleaned up",
			"document_id", doc.ID.Hex(), "chunks", len(chunks))
	}
	return nil
}

// SweepStuckQueued re-enqueues jobs that sat queued past the pickup window,
// which happens when the enqueue after job creation never reached the
// broker.
func (r *Recovery) SweepStuckQueued(ctx context.Context) error {
	stuck, err := r.ledger.FindStuckQueued(ctx, 10*time.Minute, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, job := range stuck {
		handle, err := r.enqueuer.EnqueueProcessDocument(ctx, job.MatterID, job.DocumentID, job.ID.Hex())
		if err != nil {
			r.logger.Error("re-enqueue stuck job", "job_id", job.ID.Hex(), "error", err)
			continue
		}
		if err := r.ledger.SetTaskHandle(ctx, job.ID, handle); err != nil {
			r.logger.Warn("record task handle", "job_id", job.ID.Hex(), "error", err)
		}
		// Touch updated_at so the next sweep does not double-enqueue while
		// the task waits its turn in the queue.
		if _, err := r.store.Jobs().UpdateOne(ctx,
			bson.M{"_id": job.ID, "status": models.JobStatusQueued},
			bson.M{"$set": bson.M{"updated_at": time.Now()}}); err != nil {
			r.logger.Warn("touch stuck job", "job_id", job.ID.Hex(), "error", err)
		}
		r.logger.Info("stuck queued job re-enqueued", "job_id", job.ID.Hex())
	}
	return nil
}

func (r *Recovery) activeJobForDocument(ctx context.Context, documentID string) (*models.Job, error) {
	var job models.Job
	err := r.store.Jobs().FindOne(ctx, bson.M{
		"document_id": documentID,
		"status":      models.JobStatusProcessing,
	}).Decode(&job)
	if err != nil {
		return nil, nil
	}
	return &job, nil
}

func (r *Recovery) failDocument(ctx context.Context, documentID, cause string) {
	if documentID == "" {
		return
	}
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return
	}
	_, err = r.store.Documents().UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"status":        models.DocStatusFailed,
			"error_message": cause,
		}})
	if err != nil {
		r.logger.Error("fail document", "document_id", documentID, "error", err)
	}
}

func (r *Recovery) failChunkedJob(ctx context.Context, documentID, cause string) {
	job, err := r.activeJobForDocument(ctx, documentID)
	if err != nil || job == nil {
		return
	}
	if err := r.ledger.Fail(ctx, job, utils.CodeWorkerTimeout, cause); err != nil {
		r.logger.Error("fail chunked job", "job_id", job.ID.Hex(), "error", err)
		return
	}
	r.failDocument(ctx, documentID, cause)
}
