package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document represents one uploaded PDF case file.
type Document struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID         string             `bson:"matter_id" json:"matter_id"`
	Filename         string             `bson:"filename" json:"filename"`
	StoragePath      string             `bson:"storage_path" json:"storage_path"`
	ByteSize         int64              `bson:"byte_size" json:"byte_size"`
	PageCount        *int               `bson:"page_count,omitempty" json:"page_count,omitempty"`
	Status           string             `bson:"status" json:"status"`
	OCRConfidence    float64            `bson:"ocr_confidence,omitempty" json:"ocr_confidence,omitempty"`
	OCRQualityStatus string             `bson:"ocr_quality_status,omitempty" json:"ocr_quality_status,omitempty"`
	ExtractedText    string             `bson:"extracted_text,omitempty" json:"-"`
	TextChecksum     string             `bson:"text_checksum,omitempty" json:"text_checksum,omitempty"`
	ErrorMessage     string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt       time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt      *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// Document status values. Transitions are monotonic except failed -> pending
// on recovery.
const (
	DocStatusPending     = "pending"
	DocStatusProcessing  = "processing"
	DocStatusOCRComplete = "ocr_complete"
	DocStatusOCRFailed   = "ocr_failed"
	DocStatusCompleted   = "completed"
	DocStatusFailed      = "failed"
)

// DocProcessingStartStates are the statuses a document may move to
// processing from. Later statuses mean OCR output already exists and a
// redelivered task must not regress them.
func DocProcessingStartStates() []string {
	return []string{DocStatusPending, DocStatusFailed, DocStatusOCRFailed}
}

// OCR quality buckets derived from the document-level confidence average.
const (
	OCRQualityGood = "good" // >= 0.85
	OCRQualityFair = "fair" // >= 0.70
	OCRQualityPoor = "poor"
)

// QualityForConfidence maps a 0..1 confidence average to a quality bucket.
func QualityForConfidence(c float64) string {
	switch {
	case c >= 0.85:
		return OCRQualityGood
	case c >= 0.70:
		return OCRQualityFair
	default:
		return OCRQualityPoor
	}
}

// OCRChunk is a contiguous page range of a document OCR'd in parallel.
// Within a document, chunk_index values form [0..N-1] without gaps and
// page ranges partition [1..page_count] without overlap.
type OCRChunk struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID              string             `bson:"matter_id" json:"matter_id"`
	DocumentID            string             `bson:"document_id" json:"document_id"`
	ChunkIndex            int                `bson:"chunk_index" json:"chunk_index"`
	PageStart             int                `bson:"page_start" json:"page_start"`
	PageEnd               int                `bson:"page_end" json:"page_end"`
	Status                string             `bson:"status" json:"status"`
	ResultStoragePath     string             `bson:"result_storage_path,omitempty" json:"result_storage_path,omitempty"`
	ResultChecksum        string             `bson:"result_checksum,omitempty" json:"result_checksum,omitempty"`
	ErrorMessage          string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ProcessingStartedAt   *time.Time         `bson:"processing_started_at,omitempty" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time         `bson:"processing_completed_at,omitempty" json:"processing_completed_at,omitempty"`
	RecoveryAttempts      int                `bson:"recovery_attempts" json:"recovery_attempts"`
}

// OCRChunk status values. pending -> processing -> {completed, failed};
// failed -> pending on recovery; completed is terminal.
const (
	ChunkStatusPending    = "pending"
	ChunkStatusProcessing = "processing"
	ChunkStatusCompleted  = "completed"
	ChunkStatusFailed     = "failed"
)

// PageCountOf returns the number of pages covered by the chunk.
func (c *OCRChunk) PageCountOf() int {
	return c.PageEnd - c.PageStart + 1
}

// IsTerminal reports whether the chunk reached a terminal state for the
// purposes of the merge trigger (completed or failed).
func (c *OCRChunk) IsTerminal() bool {
	return c.Status == ChunkStatusCompleted || c.Status == ChunkStatusFailed
}

// ValidChunkTransition reports whether an OCR chunk may move between the
// two states. Recovery is the only path out of failed.
func ValidChunkTransition(from, to string) bool {
	switch from {
	case ChunkStatusPending:
		return to == ChunkStatusProcessing
	case ChunkStatusProcessing:
		return to == ChunkStatusCompleted || to == ChunkStatusFailed
	case ChunkStatusFailed:
		return to == ChunkStatusPending
	default:
		return false
	}
}
