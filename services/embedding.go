package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"legal-intel-platform/models"
)

// runEmbeddingStage embeds every child chunk that does not yet have a
// vector. Children are the retrieval targets; parents are fetched by ID at
// query time and never embedded.
func (p *Pipeline) runEmbeddingStage(ctx context.Context, job *models.Job, doc *models.Document) error {
	cursor, err := p.store.Chunks().Find(ctx, bson.M{
		"document_id": doc.ID.Hex(),
		"chunk_type":  models.ChunkTypeChild,
		"embedding":   bson.M{"$exists": false},
	})
	if err != nil {
		return fmt.Errorf("load unembedded chunks: %w", err)
	}
	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return fmt.Errorf("decode unembedded chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	if err := p.ledger.Heartbeat(ctx, job.ID); err != nil {
		p.logger.Warn("heartbeat before embedding", "error", err)
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}

	for i, c := range chunks {
		_, err := p.store.Chunks().UpdateOne(ctx,
			bson.M{"_id": c.ID},
			bson.M{"$set": bson.M{"embedding": vectors[i]}})
		if err != nil {
			return fmt.Errorf("store embedding for chunk %s: %w", c.ID.Hex(), err)
		}
	}

	p.logger.Info("chunks embedded", "document_id", doc.ID.Hex(), "count", len(chunks))
	return nil
}
