package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Job is one unit of durable work tracked in the ledger, corresponding to
// one invocation of the pipeline for a document.
type Job struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID        string             `bson:"matter_id" json:"matter_id"`
	DocumentID      string             `bson:"document_id,omitempty" json:"document_id,omitempty"`
	JobType         string             `bson:"job_type" json:"job_type"`
	Status          string             `bson:"status" json:"status"`
	CurrentStage    string             `bson:"current_stage,omitempty" json:"current_stage,omitempty"`
	CompletedStages []string           `bson:"completed_stages,omitempty" json:"completed_stages,omitempty"`
	ProgressPct     int                `bson:"progress_pct" json:"progress_pct"`
	RetryCount      int                `bson:"retry_count" json:"retry_count"`
	MaxRetries      int                `bson:"max_retries" json:"max_retries"`
	TaskHandle      string             `bson:"task_handle,omitempty" json:"task_handle,omitempty"`
	StartedAt       *time.Time         `bson:"started_at,omitempty" json:"started_at,omitempty"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
	ErrorMessage    string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	Metadata        *JobMetadata       `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Job status values. queued -> processing -> {completed, failed};
// failed -> queued only via the recovery path; cancelled is an out-of-band
// transition observed by workers at stage boundaries.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// Job types
const (
	JobTypeProcessDocument = "process_document"
)

// Pipeline stage names recorded in current_stage / completed_stages.
const (
	StageRouteDecision = "route_decision"
	StageOCR           = "ocr"
	StageMergeOCR      = "merge_ocr"
	StageConfidence    = "confidence"
	StageChunk         = "chunk"
	StageLinkBBoxes    = "link_bboxes"
	StageEmbed         = "embed"
	StageExtract       = "extract"
	StageFinalize      = "finalize"
)

// JobMetadata kinds. A tagged variant instead of a free-form map so callers
// cannot silently drop fields.
const (
	MetaProcessing      = "processing"
	MetaRecovering      = "recovering"
	MetaChunkProcessing = "chunk_processing"
)

// JobMetadata carries stage-specific job state, discriminated by Kind.
type JobMetadata struct {
	Kind            string `bson:"kind" json:"kind"`
	Stage           string `bson:"stage,omitempty" json:"stage,omitempty"`
	Attempt         int    `bson:"attempt,omitempty" json:"attempt,omitempty"`
	PreviousError   string `bson:"previous_error,omitempty" json:"previous_error,omitempty"`
	ChunkCount      int    `bson:"chunk_count,omitempty" json:"chunk_count,omitempty"`
	ChunksCompleted int    `bson:"chunks_completed,omitempty" json:"chunks_completed,omitempty"`
}

// ProcessingMetadata marks a job as actively running a stage.
func ProcessingMetadata(stage string, attempt int) *JobMetadata {
	return &JobMetadata{Kind: MetaProcessing, Stage: stage, Attempt: attempt}
}

// RecoveringMetadata marks a job re-queued by a sweeper.
func RecoveringMetadata(previousError string, attempt int) *JobMetadata {
	return &JobMetadata{Kind: MetaRecovering, PreviousError: previousError, Attempt: attempt}
}

// ChunkProcessingMetadata tracks fan-out progress for chunked OCR.
func ChunkProcessingMetadata(chunkCount, chunksCompleted int) *JobMetadata {
	return &JobMetadata{Kind: MetaChunkProcessing, ChunkCount: chunkCount, ChunksCompleted: chunksCompleted}
}

// ValidJobTransition reports whether a job may move between the two states.
func ValidJobTransition(from, to string) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusProcessing || to == JobStatusCancelled
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	case JobStatusFailed:
		return to == JobStatusQueued
	default:
		return false
	}
}

// IsTerminal reports whether the job status admits no further transitions.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusCancelled ||
		(j.Status == JobStatusFailed && j.RetryCount >= j.MaxRetries)
}
