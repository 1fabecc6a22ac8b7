package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/utils"
)

// ExtractedEntity is one named entity found in a text span.
type ExtractedEntity struct {
	Name       string   `json:"name"`
	EntityType string   `json:"entity_type"`
	Aliases    []string `json:"aliases,omitempty"`
	Surface    string   `json:"surface"`
}

// ExtractedEvent is one dated occurrence found in a text span.
type ExtractedEvent struct {
	DateText         string   `json:"date_text"`
	Description      string   `json:"description"`
	EventType        string   `json:"event_type"`
	SourceQuote      string   `json:"source_quote"`
	EntitiesInvolved []string `json:"entities_involved,omitempty"`
}

// ExtractedCitation is one statutory reference found in a text span.
type ExtractedCitation struct {
	ActName    string `json:"act_name"`
	Section    string `json:"section"`
	Subsection string `json:"subsection,omitempty"`
	RawText    string `json:"raw_text"`
}

// ExtractionResult is the structured output for one parent chunk.
type ExtractionResult struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Events    []ExtractedEvent    `json:"events"`
	Citations []ExtractedCitation `json:"citations"`
}

// Extractor runs structured entity, event, and citation extraction over
// parent-chunk text using a generative model constrained to JSON output.
type Extractor struct {
	client  *genai.Client
	model   string
	limiter *ProviderLimiter
	logger  *slog.Logger
}

func NewExtractor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Extractor, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Extractor{
		client:  client,
		model:   cfg.ExtractionModel,
		limiter: NewProviderLimiter(cfg.ExtractMaxConcurrent, cfg.ExtractRequestsPerMin, 0),
		logger:  logger,
	}, nil
}

func (x *Extractor) Close() error {
	return x.client.Close()
}

const extractionPrompt = `You are extracting structured facts from a legal document excerpt.
Return ONLY a JSON object with this shape, no prose:
{
  "entities": [{"name": "...", "entity_type": "person|organization|statute", "aliases": ["..."], "surface": "exact text as it appears"}],
  "events": [{"date_text": "date as written", "description": "...", "event_type": "filing|order|notice|hearing|other", "source_quote": "exact sentence", "entities_involved": ["entity name"]}],
  "citations": [{"act_name": "...", "section": "...", "subsection": "", "raw_text": "exact citation text"}]
}
Use empty arrays when nothing is found. Do not invent facts absent from the text.

Document excerpt:
`

// Extract runs one extraction call over a text span.
func (x *Extractor) Extract(ctx context.Context, text string) (*ExtractionResult, error) {
	if err := x.limiter.Acquire(ctx); err != nil {
		return nil, utils.NewCancelled("extraction cancelled while queued")
	}
	defer x.limiter.Release()

	model := x.client.GenerativeModel(x.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(extractionPrompt+text))
	if err != nil {
		return nil, classifyGenAIError("extraction", err)
	}

	raw := responseText(resp)
	if raw == "" {
		return nil, utils.NewTransient("extraction returned empty response", nil)
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &result); err != nil {
		// Malformed model output is not the document's fault; retry it.
		return nil, utils.NewTransient("extraction returned malformed JSON", err)
	}
	return &result, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

// stripJSONFences removes markdown code fences some models wrap around JSON.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
