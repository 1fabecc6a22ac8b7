package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"legal-intel-platform/internal/config"
)

// Store is the single access point to the metadata store. Every read and
// write goes through matter-scoped filters built with MatterFilter; callers
// never construct cross-tenant queries.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewStore(client *mongo.Client, cfg *config.Config) *Store {
	return &Store{
		client: client,
		db:     client.Database(cfg.DBName),
	}
}

func (s *Store) Matters() *mongo.Collection        { return s.db.Collection("matters") }
func (s *Store) Documents() *mongo.Collection      { return s.db.Collection("documents") }
func (s *Store) OCRChunks() *mongo.Collection      { return s.db.Collection("ocr_chunks") }
func (s *Store) Chunks() *mongo.Collection         { return s.db.Collection("chunks") }
func (s *Store) BoundingBoxes() *mongo.Collection  { return s.db.Collection("bounding_boxes") }
func (s *Store) Jobs() *mongo.Collection           { return s.db.Collection("jobs") }
func (s *Store) Entities() *mongo.Collection       { return s.db.Collection("entities") }
func (s *Store) EntityMentions() *mongo.Collection { return s.db.Collection("entity_mentions") }
func (s *Store) Events() *mongo.Collection         { return s.db.Collection("events") }
func (s *Store) Citations() *mongo.Collection      { return s.db.Collection("citations") }

// MatterFilter builds a query filter scoped to one matter. Extra criteria
// are merged in; a matter_id key in extra is rejected to keep tenant scoping
// in one place.
func MatterFilter(matterID string, extra bson.M) bson.M {
	filter := bson.M{"matter_id": matterID}
	for k, v := range extra {
		if k == "matter_id" {
			continue
		}
		filter[k] = v
	}
	return filter
}

// WithTransaction runs fn inside a Mongo session transaction. The chunking
// stage uses it so a partial bulk insert cannot strand a document.
func (s *Store) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}
