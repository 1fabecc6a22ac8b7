package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"legal-intel-platform/internal/database"
	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

// ErrTransitionConflict is returned when a compare-and-set status update
// finds the job in a different state than expected. Callers treat it as
// "someone else already acted" and stop, not as a failure.
var ErrTransitionConflict = fmt.Errorf("job transition conflict")

// Ledger is the durable job record keeper. Every status change goes through
// a compare-and-set on the expected current status so concurrent workers
// and sweepers cannot double-apply a transition.
type Ledger struct {
	store    *database.Store
	logger   *slog.Logger
	notifier ProgressNotifier
}

// ProgressNotifier receives job progress events for realtime fan-out.
// A nil notifier disables fan-out.
type ProgressNotifier interface {
	NotifyProgress(ctx context.Context, matterID string, event ProgressEvent)
}

// Event types on the progress stream. Every frame a client receives
// carries exactly one of these in its "type" field.
const (
	EventTypeConnected      = "connected"
	EventTypeJobProgress    = "job_progress"
	EventTypeDocumentStatus = "document_status"
	EventTypeDocumentReady  = "document_ready"
	EventTypePing           = "ping"
)

// ProgressEvent is one update pushed to subscribed clients. Type tells the
// client how to read the rest: job_progress frames carry job fields,
// document_status and document_ready frames identify a document.
type ProgressEvent struct {
	Type        string `json:"type"`
	JobID       string `json:"job_id,omitempty"`
	DocumentID  string `json:"document_id,omitempty"`
	Status      string `json:"status,omitempty"`
	Stage       string `json:"stage,omitempty"`
	ProgressPct int    `json:"progress_pct,omitempty"`
	Error       string `json:"error,omitempty"`
}

func NewLedger(store *database.Store, logger *slog.Logger, notifier ProgressNotifier) *Ledger {
	return &Ledger{store: store, logger: logger, notifier: notifier}
}

// Create inserts a queued job for a document and returns it.
func (l *Ledger) Create(ctx context.Context, matterID, documentID string, maxRetries int) (*models.Job, error) {
	job := &models.Job{
		MatterID:   matterID,
		DocumentID: documentID,
		JobType:    models.JobTypeProcessDocument,
		Status:     models.JobStatusQueued,
		MaxRetries: maxRetries,
		UpdatedAt:  time.Now(),
	}
	res, err := l.store.Jobs().InsertOne(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	job.ID = res.InsertedID.(primitive.ObjectID)
	return job, nil
}

// Get fetches a job scoped to its matter.
func (l *Ledger) Get(ctx context.Context, matterID, jobID string) (*models.Job, error) {
	oid, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return nil, utils.NewValidation("invalid_job_id", "malformed job id")
	}
	var job models.Job
	err = l.store.Jobs().FindOne(ctx, database.MatterFilter(matterID, bson.M{"_id": oid})).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return &job, nil
}

// SetTaskHandle records the broker task ID after enqueue so cancellation can
// reach the in-flight task.
func (l *Ledger) SetTaskHandle(ctx context.Context, jobID primitive.ObjectID, handle string) error {
	_, err := l.store.Jobs().UpdateOne(ctx,
		bson.M{"_id": jobID},
		bson.M{"$set": bson.M{"task_handle": handle, "updated_at": time.Now()}})
	return err
}

// Claim moves a queued job to processing. Returns ErrTransitionConflict when
// the job is no longer queued, which redelivered tasks use to detect that a
// previous attempt already claimed it.
func (l *Ledger) Claim(ctx context.Context, jobID primitive.ObjectID) (*models.Job, error) {
	now := time.Now()
	var job models.Job
	err := l.store.Jobs().FindOneAndUpdate(ctx,
		bson.M{"_id": jobID, "status": models.JobStatusQueued},
		bson.M{"$set": bson.M{
			"status":        models.JobStatusProcessing,
			"started_at":    now,
			"updated_at":    now,
			"current_stage": models.StageRouteDecision,
		}},
	).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, ErrTransitionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	job.Status = models.JobStatusProcessing
	return &job, nil
}

// AdvanceStage records a finished stage, sets the next one, and pushes the
// given progress percentage. It also refreshes updated_at, acting as a
// heartbeat for the stale-job sweeper.
func (l *Ledger) AdvanceStage(ctx context.Context, job *models.Job, completedStage, nextStage string, progressPct int) error {
	update := bson.M{
		"$set": bson.M{
			"current_stage": nextStage,
			"progress_pct":  progressPct,
			"updated_at":    time.Now(),
			"metadata":      models.ProcessingMetadata(nextStage, job.RetryCount),
		},
		"$addToSet": bson.M{"completed_stages": completedStage},
	}
	res, err := l.store.Jobs().UpdateOne(ctx,
		bson.M{"_id": job.ID, "status": models.JobStatusProcessing}, update)
	if err != nil {
		return fmt.Errorf("advance stage: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTransitionConflict
	}
	job.CurrentStage = nextStage
	job.ProgressPct = progressPct
	l.notify(ctx, job.MatterID, ProgressEvent{
		Type:        EventTypeJobProgress,
		JobID:       job.ID.Hex(),
		DocumentID:  job.DocumentID,
		Status:      models.JobStatusProcessing,
		Stage:       nextStage,
		ProgressPct: progressPct,
	})
	return nil
}

// Heartbeat refreshes updated_at without touching stage state. Long stages
// call it periodically so the stale sweeper leaves them alone.
func (l *Ledger) Heartbeat(ctx context.Context, jobID primitive.ObjectID) error {
	_, err := l.store.Jobs().UpdateOne(ctx,
		bson.M{"_id": jobID, "status": models.JobStatusProcessing},
		bson.M{"$set": bson.M{"updated_at": time.Now()}})
	return err
}

// Complete moves a processing job to completed.
func (l *Ledger) Complete(ctx context.Context, job *models.Job) error {
	res, err := l.store.Jobs().UpdateOne(ctx,
		bson.M{"_id": job.ID, "status": models.JobStatusProcessing},
		bson.M{"$set": bson.M{
			"status":        models.JobStatusCompleted,
			"current_stage": "",
			"progress_pct":  100,
			"updated_at":    time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTransitionConflict
	}
	l.notify(ctx, job.MatterID, ProgressEvent{
		Type:        EventTypeJobProgress,
		JobID:       job.ID.Hex(),
		DocumentID:  job.DocumentID,
		Status:      models.JobStatusCompleted,
		ProgressPct: 100,
	})
	return nil
}

// Fail moves a processing job to failed with a stable error code.
func (l *Ledger) Fail(ctx context.Context, job *models.Job, errorCode, message string) error {
	res, err := l.store.Jobs().UpdateOne(ctx,
		bson.M{"_id": job.ID, "status": models.JobStatusProcessing},
		bson.M{"$set": bson.M{
			"status":        models.JobStatusFailed,
			"error_message": fmt.Sprintf("%s: %s", errorCode, message),
			"updated_at":    time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTransitionConflict
	}
	l.notify(ctx, job.MatterID, ProgressEvent{
		Type:        EventTypeJobProgress,
		JobID:       job.ID.Hex(),
		DocumentID:  job.DocumentID,
		Status:      models.JobStatusFailed,
		ProgressPct: job.ProgressPct,
		Error:       errorCode,
	})
	return nil
}

// Requeue moves a failed job back to queued for recovery, incrementing the
// retry count. The caller checks the retry budget first.
func (l *Ledger) Requeue(ctx context.Context, jobID primitive.ObjectID, previousError string, attempt int) error {
	res, err := l.store.Jobs().UpdateOne(ctx,
		bson.M{"_id": jobID, "status": models.JobStatusFailed},
		bson.M{
			"$set": bson.M{
				"status":     models.JobStatusQueued,
				"updated_at": time.Now(),
				"metadata":   models.RecoveringMetadata(previousError, attempt),
			},
			"$inc": bson.M{"retry_count": 1},
		})
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTransitionConflict
	}
	return nil
}

// Cancel marks a job cancelled. Workers observe cancellation at stage
// boundaries; the stage already running finishes or times out.
func (l *Ledger) Cancel(ctx context.Context, matterID, jobID string) (*models.Job, error) {
	oid, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return nil, utils.NewValidation("invalid_job_id", "malformed job id")
	}
	var job models.Job
	err = l.store.Jobs().FindOneAndUpdate(ctx,
		database.MatterFilter(matterID, bson.M{
			"_id":    oid,
			"status": bson.M{"$in": []string{models.JobStatusQueued, models.JobStatusProcessing}},
		}),
		bson.M{"$set": bson.M{
			"status":     models.JobStatusCancelled,
			"updated_at": time.Now(),
		}},
	).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, ErrTransitionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	job.Status = models.JobStatusCancelled
	l.notify(ctx, job.MatterID, ProgressEvent{
		Type:       EventTypeJobProgress,
		JobID:      job.ID.Hex(),
		DocumentID: job.DocumentID,
		Status:     models.JobStatusCancelled,
	})
	return &job, nil
}

// IsCancelled checks the current ledger status. Stage boundaries call this
// so a cancelled job stops without burning further provider quota.
func (l *Ledger) IsCancelled(ctx context.Context, jobID primitive.ObjectID) (bool, error) {
	var job models.Job
	err := l.store.Jobs().FindOne(ctx, bson.M{"_id": jobID},
		options.FindOne().SetProjection(bson.M{"status": 1})).Decode(&job)
	if err != nil {
		return false, fmt.Errorf("check cancellation: %w", err)
	}
	return job.Status == models.JobStatusCancelled, nil
}

// SetChunkProgress records fan-out progress and pushes a coarse progress
// percentage derived from completed chunk count.
func (l *Ledger) SetChunkProgress(ctx context.Context, job *models.Job, chunkCount, chunksCompleted, progressPct int) error {
	_, err := l.store.Jobs().UpdateOne(ctx,
		bson.M{"_id": job.ID, "status": models.JobStatusProcessing},
		bson.M{"$set": bson.M{
			"metadata":     models.ChunkProcessingMetadata(chunkCount, chunksCompleted),
			"progress_pct": progressPct,
			"updated_at":   time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("set chunk progress: %w", err)
	}
	l.notify(ctx, job.MatterID, ProgressEvent{
		Type:        EventTypeJobProgress,
		JobID:       job.ID.Hex(),
		DocumentID:  job.DocumentID,
		Status:      models.JobStatusProcessing,
		Stage:       models.StageOCR,
		ProgressPct: progressPct,
	})
	return nil
}

// FindStale returns processing jobs whose heartbeat is older than the
// cutoff.
func (l *Ledger) FindStale(ctx context.Context, olderThan time.Duration, limit int64) ([]models.Job, error) {
	return l.findByStatusBefore(ctx, models.JobStatusProcessing, olderThan, limit)
}

// FindStuckQueued returns queued jobs that never got picked up, which
// happens when the enqueue after job creation was lost.
func (l *Ledger) FindStuckQueued(ctx context.Context, olderThan time.Duration, limit int64) ([]models.Job, error) {
	return l.findByStatusBefore(ctx, models.JobStatusQueued, olderThan, limit)
}

func (l *Ledger) findByStatusBefore(ctx context.Context, status string, olderThan time.Duration, limit int64) ([]models.Job, error) {
	cutoff := time.Now().Add(-olderThan)
	cursor, err := l.store.Jobs().Find(ctx, bson.M{
		"status":     status,
		"updated_at": bson.M{"$lt": cutoff},
	}, options.Find().SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("find %s jobs: %w", status, err)
	}
	defer cursor.Close(ctx)

	var jobs []models.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}

// NotifyDocumentStatus pushes a document status change to subscribers.
func (l *Ledger) NotifyDocumentStatus(ctx context.Context, matterID, documentID, status string) {
	l.notify(ctx, matterID, ProgressEvent{
		Type:       EventTypeDocumentStatus,
		DocumentID: documentID,
		Status:     status,
	})
}

// NotifyDocumentReady announces that a document finished the pipeline and
// is queryable.
func (l *Ledger) NotifyDocumentReady(ctx context.Context, matterID, documentID string) {
	l.notify(ctx, matterID, ProgressEvent{
		Type:       EventTypeDocumentReady,
		DocumentID: documentID,
	})
}

func (l *Ledger) notify(ctx context.Context, matterID string, event ProgressEvent) {
	if l.notifier == nil {
		return
	}
	l.notifier.NotifyProgress(ctx, matterID, event)
}
