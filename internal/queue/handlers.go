package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/services"
	"legal-intel-platform/utils"
)

// TaskProcessor binds broker deliveries to pipeline and recovery services.
// Error classification happens at exactly this boundary: retryable errors
// propagate so asynq redelivers, everything else wraps asynq.SkipRetry.
type TaskProcessor struct {
	pipeline    *services.Pipeline
	recovery    *services.Recovery
	softTimeout time.Duration
	logger      *slog.Logger
}

func NewTaskProcessor(pipeline *services.Pipeline, recovery *services.Recovery, cfg *config.Config, logger *slog.Logger) *TaskProcessor {
	return &TaskProcessor{
		pipeline:    pipeline,
		recovery:    recovery,
		softTimeout: time.Duration(cfg.TaskSoftTimeoutS) * time.Second,
		logger:      logger,
	}
}

// Register wires every task type into the mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskProcessDocument, p.HandleProcessDocument)
	mux.HandleFunc(TaskProcessOCRChunk, p.HandleProcessOCRChunk)
	mux.HandleFunc(TaskMergeOCRChunks, p.HandleMergeOCRChunks)
	mux.HandleFunc(TaskSweepStaleJobs, p.sweepHandler(p.recovery.SweepStaleJobs))
	mux.HandleFunc(TaskSweepStaleChunks, p.sweepHandler(p.recovery.SweepStaleChunks))
	mux.HandleFunc(TaskSweepPendingMerges, p.sweepHandler(p.recovery.SweepPendingMerges))
	mux.HandleFunc(TaskSweepCleanupChunks, p.sweepHandler(p.recovery.SweepCleanupChunkResults))
	mux.HandleFunc(TaskSweepStuckJobs, p.sweepHandler(p.recovery.SweepStuckQueued))
}

func (p *TaskProcessor) HandleProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload ProcessDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	ctx, cancel := p.softDeadline(ctx)
	defer cancel()

	err := p.pipeline.ProcessDocument(ctx, payload.MatterID, payload.DocumentID, payload.JobID)
	return p.finish(t.Type(), err)
}

func (p *TaskProcessor) HandleProcessOCRChunk(ctx context.Context, t *asynq.Task) error {
	var payload ProcessOCRChunkPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	ctx, cancel := p.softDeadline(ctx)
	defer cancel()

	err := p.pipeline.ProcessOCRChunk(ctx, payload.MatterID, payload.DocumentID, payload.JobID, payload.ChunkIndex)
	return p.finish(t.Type(), err)
}

func (p *TaskProcessor) HandleMergeOCRChunks(ctx context.Context, t *asynq.Task) error {
	var payload MergeOCRChunksPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	ctx, cancel := p.softDeadline(ctx)
	defer cancel()

	err := p.pipeline.MergeOCRChunks(ctx, payload.MatterID, payload.DocumentID, payload.JobID)
	return p.finish(t.Type(), err)
}

func (p *TaskProcessor) sweepHandler(sweep func(context.Context) error) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := sweep(ctx); err != nil {
			p.logger.Error("sweep failed", "task", t.Type(), "error", err)
			return err
		}
		return nil
	}
}

// softDeadline trims the broker's hard timeout so stages see cancellation
// early enough to record state before asynq kills the task.
func (p *TaskProcessor) softDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.softTimeout)
}

// finish maps service errors onto asynq retry semantics.
func (p *TaskProcessor) finish(taskType string, err error) error {
	if err == nil {
		return nil
	}
	if utils.IsRetryable(err) {
		p.logger.Warn("task failed, broker will retry", "task", taskType, "error", err)
		return err
	}
	p.logger.Error("task failed terminally", "task", taskType, "error", err)
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}
