package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds counters and histograms for the document pipeline.
type PipelineMetrics struct {
	StageDuration      metric.Float64Histogram
	OCRDuration        metric.Float64Histogram
	OCRPages           metric.Int64Counter
	DocumentsCompleted metric.Int64Counter
	DocumentsFailed    metric.Int64Counter
	JobsRecovered      metric.Int64Counter
	ChunksRecovered    metric.Int64Counter
}

// InitPipelineMetrics initializes all pipeline metrics.
func InitPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("legal-intel-platform")

	stageDuration, err := meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ocrDuration, err := meter.Float64Histogram(
		"ocr.request.duration",
		metric.WithDescription("OCR provider call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ocrPages, err := meter.Int64Counter(
		"ocr.pages.processed",
		metric.WithDescription("Total pages OCR'd"),
	)
	if err != nil {
		return nil, err
	}

	documentsCompleted, err := meter.Int64Counter(
		"pipeline.documents.completed",
		metric.WithDescription("Documents that finished the full pipeline"),
	)
	if err != nil {
		return nil, err
	}

	documentsFailed, err := meter.Int64Counter(
		"pipeline.documents.failed",
		metric.WithDescription("Documents that failed terminally"),
	)
	if err != nil {
		return nil, err
	}

	jobsRecovered, err := meter.Int64Counter(
		"recovery.jobs.recovered",
		metric.WithDescription("Stale jobs picked up by the recovery sweep"),
	)
	if err != nil {
		return nil, err
	}

	chunksRecovered, err := meter.Int64Counter(
		"recovery.chunks.recovered",
		metric.WithDescription("Stale OCR chunks reset by the recovery sweep"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		StageDuration:      stageDuration,
		OCRDuration:        ocrDuration,
		OCRPages:           ocrPages,
		DocumentsCompleted: documentsCompleted,
		DocumentsFailed:    documentsFailed,
		JobsRecovered:      jobsRecovered,
		ChunksRecovered:    chunksRecovered,
	}, nil
}

func (m *PipelineMetrics) ObserveStage(ctx context.Context, stage string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("success", success),
	))
}

func (m *PipelineMetrics) ObserveOCR(ctx context.Context, d time.Duration, pages int) {
	if m == nil {
		return
	}
	m.OCRDuration.Record(ctx, d.Seconds())
	m.OCRPages.Add(ctx, int64(pages))
}

func (m *PipelineMetrics) IncDocumentsCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.DocumentsCompleted.Add(ctx, 1)
}

func (m *PipelineMetrics) IncDocumentsFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.DocumentsFailed.Add(ctx, 1)
}

func (m *PipelineMetrics) IncJobsRecovered(ctx context.Context) {
	if m == nil {
		return
	}
	m.JobsRecovered.Add(ctx, 1)
}

func (m *PipelineMetrics) IncChunksRecovered(ctx context.Context) {
	if m == nil {
		return
	}
	m.ChunksRecovered.Add(ctx, 1)
}
