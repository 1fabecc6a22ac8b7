package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	ctx := context.Background()
	db := client.Database(dbName)

	documents := db.Collection("documents")
	_, err := documents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "uploaded_at", Value: -1}}},
	})
	if err != nil {
		return err
	}

	ocrChunks := db.Collection("ocr_chunks")
	_, err = ocrChunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "matter_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "processing_started_at", Value: 1}}},
	})
	if err != nil {
		return err
	}

	chunks := db.Collection("chunks")
	_, err = chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}}},
		{Keys: bson.D{{Key: "parent_chunk_id", Value: 1}}},
	})
	if err != nil {
		return err
	}

	bboxes := db.Collection("bounding_boxes")
	_, err = bboxes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "page_number", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}}},
	})
	if err != nil {
		return err
	}

	jobs := db.Collection("jobs")
	_, err = jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
		{Keys: bson.D{{Key: "document_id", Value: 1}}},
	})
	if err != nil {
		return err
	}

	for _, name := range []string{"entities", "entity_mentions", "events", "citations"} {
		col := db.Collection(name)
		_, err = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "matter_id", Value: 1}}},
			{Keys: bson.D{{Key: "document_id", Value: 1}}},
		})
		if err != nil {
			return err
		}
	}

	matters := db.Collection("matters")
	_, err = matters.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "members.user_id", Value: 1}}},
	})
	return err
}
