package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CanonicalEntity is a deduplicated named thing (person, organization,
// statute) with its known aliases. Mentions reference it by ID.
type CanonicalEntity struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID   string             `bson:"matter_id" json:"matter_id"`
	Name       string             `bson:"name" json:"name"`
	EntityType string             `bson:"entity_type" json:"entity_type"`
	Aliases    []string           `bson:"aliases,omitempty" json:"aliases,omitempty"`
}

// EntityMention is one occurrence of a named entity in a chunk.
type EntityMention struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID          string             `bson:"matter_id" json:"matter_id"`
	DocumentID        string             `bson:"document_id" json:"document_id"`
	ChunkID           string             `bson:"chunk_id" json:"chunk_id"`
	CanonicalEntityID string             `bson:"canonical_entity_id" json:"canonical_entity_id"`
	Surface           string             `bson:"surface" json:"surface"`
	Aliases           []string           `bson:"aliases,omitempty" json:"aliases,omitempty"`
	BBoxIDs           []string           `bson:"bbox_ids,omitempty" json:"bbox_ids,omitempty"`
}

// Entity types
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityStatute      = "statute"
	EntityDateToken    = "date"
)

// Date precision for extracted events.
const (
	DatePrecisionDay   = "day"
	DatePrecisionMonth = "month"
	DatePrecisionYear  = "year"
)

// Event is an extracted timeline event (filing, order, notice, ...).
type Event struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID         string             `bson:"matter_id" json:"matter_id"`
	DocumentID       string             `bson:"document_id" json:"document_id"`
	EventDate        *time.Time         `bson:"event_date,omitempty" json:"event_date,omitempty"`
	DatePrecision    string             `bson:"date_precision,omitempty" json:"date_precision,omitempty"`
	EventDateText    string             `bson:"event_date_text" json:"event_date_text"`
	Description      string             `bson:"description" json:"description"`
	EventType        string             `bson:"event_type" json:"event_type"`
	SourcePage       int                `bson:"source_page" json:"source_page"`
	SourceBBoxIDs    []string           `bson:"source_bbox_ids,omitempty" json:"source_bbox_ids,omitempty"`
	EntitiesInvolved []string           `bson:"entities_involved,omitempty" json:"entities_involved,omitempty"`
}

// Citation is an extracted statutory reference.
type Citation struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID         string             `bson:"matter_id" json:"matter_id"`
	DocumentID       string             `bson:"document_id" json:"document_id"`
	ActName          string             `bson:"act_name" json:"act_name"`
	Section          string             `bson:"section" json:"section"`
	Subsection       string             `bson:"subsection,omitempty" json:"subsection,omitempty"`
	RawText          string             `bson:"raw_text" json:"raw_text"`
	SourcePage       int                `bson:"source_page" json:"source_page"`
	SourceBBoxIDs    []string           `bson:"source_bbox_ids,omitempty" json:"source_bbox_ids,omitempty"`
	ResolutionStatus string             `bson:"resolution_status" json:"resolution_status"`
}

// Citation resolution states. Garbage resolutions are marked invalid rather
// than deleted so operators can review them.
const (
	CitationAvailable   = "available"
	CitationAutoFetched = "auto_fetched"
	CitationMissing     = "missing"
	CitationInvalid     = "invalid"
)
