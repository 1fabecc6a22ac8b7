package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BoundingBox is a geometric anchor for a text span: a normalized rectangle
// on a page with the recognized text and its OCR confidence. Boxes are owned
// by the document and referenced by chunks, events, and citations.
type BoundingBox struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID      string             `bson:"matter_id" json:"matter_id"`
	DocumentID    string             `bson:"document_id" json:"document_id"`
	PageNumber    int                `bson:"page_number" json:"page_number"`
	X             float64            `bson:"x" json:"x"`
	Y             float64            `bson:"y" json:"y"`
	Width         float64            `bson:"width" json:"width"`
	Height        float64            `bson:"height" json:"height"`
	Text          string             `bson:"text" json:"text"`
	OCRConfidence float64            `bson:"ocr_confidence" json:"ocr_confidence"`
}

// Chunk is a semantic retrieval unit. Parents give LLM context, children are
// the retrieval targets. A child's parent must exist and have
// chunk_type=parent in the same document.
type Chunk struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID      string             `bson:"matter_id" json:"matter_id"`
	DocumentID    string             `bson:"document_id" json:"document_id"`
	ParentChunkID *string            `bson:"parent_chunk_id,omitempty" json:"parent_chunk_id,omitempty"`
	ChunkType     string             `bson:"chunk_type" json:"chunk_type"`
	ChunkIndex    int                `bson:"chunk_index" json:"chunk_index"`
	Content       string             `bson:"content" json:"content"`
	TokenCount    int                `bson:"token_count" json:"token_count"`
	PageNumber    int                `bson:"page_number,omitempty" json:"page_number,omitempty"`
	BBoxIDs       []string           `bson:"bbox_ids,omitempty" json:"bbox_ids,omitempty"`
	Embedding     []float32          `bson:"embedding,omitempty" json:"-"`
}

// Chunk type values
const (
	ChunkTypeParent = "parent"
	ChunkTypeChild  = "child"
)
