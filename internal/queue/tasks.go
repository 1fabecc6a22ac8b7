package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"legal-intel-platform/services"
)

// Task type names. Document tasks carry per-document payloads; sweep tasks
// are enqueued by the scheduler and carry no payload.
const (
	TaskProcessDocument = "document:process"
	TaskProcessOCRChunk = "document:ocr_chunk"
	TaskMergeOCRChunks  = "document:merge"

	TaskSweepStaleJobs     = services.SweepStaleJobsTask
	TaskSweepStaleChunks   = services.SweepStaleChunksTask
	TaskSweepPendingMerges = services.SweepPendingMergesTask
	TaskSweepCleanupChunks = services.SweepCleanupChunksTask
	TaskSweepStuckJobs     = services.SweepStuckJobsTask
)

// Queue names with asynq priority weights high:6 default:3 low:1. Document
// ingestion and merges ride default, sweeps ride low.
const (
	QueueHigh    = "high"
	QueueDefault = "default"
	QueueLow     = "low"
)

type ProcessDocumentPayload struct {
	MatterID   string `json:"matter_id"`
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
}

type ProcessOCRChunkPayload struct {
	MatterID   string `json:"matter_id"`
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	ChunkIndex int    `json:"chunk_index"`
}

type MergeOCRChunksPayload struct {
	MatterID   string `json:"matter_id"`
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
}

// NewProcessDocumentTask starts the pipeline for one uploaded document. The
// broker retry cap covers transient failures; non-retryable errors short out
// via SkipRetry in the handler.
func NewProcessDocumentTask(payload ProcessDocumentPayload, hardTimeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskProcessDocument,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(hardTimeout),
		asynq.Queue(QueueDefault),
	), nil
}

// NewProcessOCRChunkTask OCRs one page range of a chunked document.
func NewProcessOCRChunkTask(payload ProcessOCRChunkPayload, hardTimeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskProcessOCRChunk,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(hardTimeout),
		asynq.Queue(QueueDefault),
	), nil
}

// NewMergeOCRChunksTask assembles completed chunk results and continues the
// pipeline. Enqueued by the last chunk to finish and by the pending-merge
// sweeper, so duplicates are expected; the merge stage is idempotent.
func NewMergeOCRChunksTask(payload MergeOCRChunksPayload, hardTimeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskMergeOCRChunks,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(hardTimeout),
		asynq.Queue(QueueDefault),
	), nil
}

// NewSweepTask builds a no-payload maintenance task on the low queue.
// Sweeps are cheap scans; one attempt per tick is enough since the next
// tick covers a missed run.
func NewSweepTask(taskType string) *asynq.Task {
	return asynq.NewTask(
		taskType,
		nil,
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Queue(QueueLow),
	)
}
