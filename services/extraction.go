package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-intel-platform/internal/ai"
	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

// runExtractionStage runs entity, event, and citation extraction over each
// parent chunk in parallel, then deduplicates entities against the matter's
// canonical set and grounds every fact in bounding boxes. Prior extraction
// output for the document is replaced wholesale so replays stay consistent.
func (p *Pipeline) runExtractionStage(ctx context.Context, job *models.Job, doc *models.Document) error {
	parents, err := p.loadParentChunks(ctx, doc.ID.Hex())
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		return nil
	}

	type parentResult struct {
		chunk  models.Chunk
		result *ai.ExtractionResult
	}
	results := make([]parentResult, len(parents))
	errs := make([]error, len(parents))

	var wg sync.WaitGroup
	for i, parent := range parents {
		wg.Add(1)
		go func(i int, parent models.Chunk) {
			defer wg.Done()
			res, err := p.extractor.Extract(ctx, parent.Content)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = parentResult{chunk: parent, result: res}
		}(i, parent)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	if err := p.ledger.Heartbeat(ctx, job.ID); err != nil {
		p.logger.Warn("heartbeat after extraction calls", "error", err)
	}

	// Replace any partial output from a previous attempt.
	docFilter := bson.M{"document_id": doc.ID.Hex()}
	for _, col := range []string{"entity_mentions", "events", "citations"} {
		if _, err := p.store.Documents().Database().Collection(col).DeleteMany(ctx, docFilter); err != nil {
			return fmt.Errorf("clear %s: %w", col, err)
		}
	}

	boxes, err := p.loadOrderedBoxes(ctx, doc.ID.Hex())
	if err != nil {
		return err
	}

	deduper := newEntityDeduper(p, doc.MatterID)
	var mentions, events, citations []interface{}
	entityCount, eventCount, citationCount := 0, 0, 0

	for _, pr := range results {
		if pr.result == nil {
			continue
		}
		entityIDs := make(map[string]string)
		for _, ent := range pr.result.Entities {
			if strings.TrimSpace(ent.Name) == "" {
				continue
			}
			canonicalID, err := deduper.resolve(ctx, ent)
			if err != nil {
				return err
			}
			entityIDs[NormalizeQuery(ent.Name)] = canonicalID

			mentionBoxes, _ := groundSpan(boxes, ent.Surface, p.cfg.BBoxLinkThreshold)
			mentions = append(mentions, models.EntityMention{
				MatterID:          doc.MatterID,
				DocumentID:        doc.ID.Hex(),
				ChunkID:           pr.chunk.ID.Hex(),
				CanonicalEntityID: canonicalID,
				Surface:           ent.Surface,
				Aliases:           ent.Aliases,
				BBoxIDs:           mentionBoxes,
			})
			entityCount++
		}

		for _, ev := range pr.result.Events {
			if strings.TrimSpace(ev.Description) == "" {
				continue
			}
			when, precision := ParseEventDate(ev.DateText)
			srcBoxes, srcPage := groundSpan(boxes, ev.SourceQuote, p.cfg.BBoxLinkThreshold)

			var involved []string
			for _, name := range ev.EntitiesInvolved {
				if id, ok := entityIDs[NormalizeQuery(name)]; ok {
					involved = append(involved, id)
				}
			}
			events = append(events, models.Event{
				MatterID:         doc.MatterID,
				DocumentID:       doc.ID.Hex(),
				EventDate:        when,
				DatePrecision:    precision,
				EventDateText:    ev.DateText,
				Description:      ev.Description,
				EventType:        ev.EventType,
				SourcePage:       srcPage,
				SourceBBoxIDs:    srcBoxes,
				EntitiesInvolved: involved,
			})
			eventCount++
		}

		for _, cit := range pr.result.Citations {
			status := models.CitationMissing
			if strings.TrimSpace(cit.ActName) == "" || strings.TrimSpace(cit.RawText) == "" {
				status = models.CitationInvalid
			}
			srcBoxes, srcPage := groundSpan(boxes, cit.RawText, p.cfg.BBoxLinkThreshold)
			citations = append(citations, models.Citation{
				MatterID:         doc.MatterID,
				DocumentID:       doc.ID.Hex(),
				ActName:          deduper.canonicalActName(cit.ActName),
				Section:          cit.Section,
				Subsection:       cit.Subsection,
				RawText:          cit.RawText,
				SourcePage:       srcPage,
				SourceBBoxIDs:    srcBoxes,
				ResolutionStatus: status,
			})
			citationCount++
		}
	}

	if len(mentions) > 0 {
		if _, err := p.store.EntityMentions().InsertMany(ctx, mentions); err != nil {
			return utils.NewTransient("insert entity mentions", err)
		}
	}
	if len(events) > 0 {
		if _, err := p.store.Events().InsertMany(ctx, events); err != nil {
			return utils.NewTransient("insert events", err)
		}
	}
	if len(citations) > 0 {
		if _, err := p.store.Citations().InsertMany(ctx, citations); err != nil {
			return utils.NewTransient("insert citations", err)
		}
	}

	p.logger.Info("extraction completed",
		"document_id", doc.ID.Hex(),
		"mentions", entityCount, "events", eventCount, "citations", citationCount)
	return nil
}

func (p *Pipeline) loadParentChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	cursor, err := p.store.Chunks().Find(ctx, bson.M{
		"document_id": documentID,
		"chunk_type":  models.ChunkTypeParent,
	})
	if err != nil {
		return nil, fmt.Errorf("load parent chunks: %w", err)
	}
	var parents []models.Chunk
	if err := cursor.All(ctx, &parents); err != nil {
		return nil, fmt.Errorf("decode parent chunks: %w", err)
	}
	return parents, nil
}

// groundSpan finds the bounding boxes for a short text span, returning nil
// and page 0 when nothing clears the threshold.
func groundSpan(boxes []models.BoundingBox, span string, threshold int) ([]string, int) {
	if strings.TrimSpace(span) == "" || len(boxes) == 0 {
		return nil, 0
	}
	ids, page, _ := bestBoxWindow(boxes, span, threshold)
	return ids, page
}

// entityDeduper resolves extracted entities against the matter's canonical
// set with fuzzy name matching, creating new canonical rows on miss. A
// per-run cache avoids refetching during one document's extraction.
type entityDeduper struct {
	p        *Pipeline
	matterID string
	loaded   bool
	known    []models.CanonicalEntity
}

func newEntityDeduper(p *Pipeline, matterID string) *entityDeduper {
	return &entityDeduper{p: p, matterID: matterID}
}

func (d *entityDeduper) load(ctx context.Context) error {
	if d.loaded {
		return nil
	}
	cursor, err := d.p.store.Entities().Find(ctx, bson.M{"matter_id": d.matterID})
	if err != nil {
		return fmt.Errorf("load canonical entities: %w", err)
	}
	if err := cursor.All(ctx, &d.known); err != nil {
		return fmt.Errorf("decode canonical entities: %w", err)
	}
	d.loaded = true
	return nil
}

// resolve returns the canonical entity ID for an extracted entity, matching
// by name or alias at the dedupe threshold within the same entity type.
func (d *entityDeduper) resolve(ctx context.Context, ent ai.ExtractedEntity) (string, error) {
	if err := d.load(ctx); err != nil {
		return "", err
	}
	threshold := d.p.cfg.ActNameDedupeThresh

	for i := range d.known {
		known := &d.known[i]
		if known.EntityType != ent.EntityType {
			continue
		}
		if TokenSetRatio(known.Name, ent.Name) >= threshold {
			d.mergeAliases(ctx, known, ent)
			return known.ID.Hex(), nil
		}
		for _, alias := range known.Aliases {
			if TokenSetRatio(alias, ent.Name) >= threshold {
				d.mergeAliases(ctx, known, ent)
				return known.ID.Hex(), nil
			}
		}
	}

	entity := models.CanonicalEntity{
		ID:         primitive.NewObjectID(),
		MatterID:   d.matterID,
		Name:       ent.Name,
		EntityType: ent.EntityType,
		Aliases:    ent.Aliases,
	}
	if _, err := d.p.store.Entities().InsertOne(ctx, entity); err != nil {
		return "", utils.NewTransient("insert canonical entity", err)
	}
	d.known = append(d.known, entity)
	return entity.ID.Hex(), nil
}

func (d *entityDeduper) mergeAliases(ctx context.Context, known *models.CanonicalEntity, ent ai.ExtractedEntity) {
	existing := toSet(append([]string{known.Name}, known.Aliases...))
	var added []string
	for _, alias := range append(ent.Aliases, ent.Name) {
		if !existing[alias] && strings.TrimSpace(alias) != "" {
			added = append(added, alias)
			known.Aliases = append(known.Aliases, alias)
		}
	}
	if len(added) == 0 {
		return
	}
	_, err := d.p.store.Entities().UpdateOne(ctx,
		bson.M{"_id": known.ID},
		bson.M{"$addToSet": bson.M{"aliases": bson.M{"$each": added}}})
	if err != nil {
		d.p.logger.Warn("merge entity aliases", "entity_id", known.ID.Hex(), "error", err)
	}
}

// canonicalActName maps a cited act name onto an already-known statute
// entity name when the fuzzy match clears the threshold, so citation rows
// group under one spelling.
func (d *entityDeduper) canonicalActName(actName string) string {
	for i := range d.known {
		known := &d.known[i]
		if known.EntityType != models.EntityStatute {
			continue
		}
		if TokenSetRatio(known.Name, actName) >= d.p.cfg.ActNameDedupeThresh {
			return known.Name
		}
	}
	return actName
}
