package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"legal-intel-platform/internal/config"
)

// Client enqueues pipeline and sweep tasks. It satisfies the services
// TaskEnqueuer and SweepEnqueuer interfaces.
type Client struct {
	client      *asynq.Client
	hardTimeout time.Duration
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		hardTimeout: time.Duration(cfg.TaskHardTimeoutS) * time.Second,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueProcessDocument(ctx context.Context, matterID, documentID, jobID string) (string, error) {
	task, err := NewProcessDocumentTask(ProcessDocumentPayload{
		MatterID:   matterID,
		DocumentID: documentID,
		JobID:      jobID,
	}, c.hardTimeout)
	if err != nil {
		return "", fmt.Errorf("build process task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue process task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) EnqueueOCRChunk(ctx context.Context, matterID, documentID, jobID string, chunkIndex int) (string, error) {
	task, err := NewProcessOCRChunkTask(ProcessOCRChunkPayload{
		MatterID:   matterID,
		DocumentID: documentID,
		JobID:      jobID,
		ChunkIndex: chunkIndex,
	}, c.hardTimeout)
	if err != nil {
		return "", fmt.Errorf("build ocr chunk task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue ocr chunk task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) EnqueueMerge(ctx context.Context, matterID, documentID, jobID string) (string, error) {
	task, err := NewMergeOCRChunksTask(MergeOCRChunksPayload{
		MatterID:   matterID,
		DocumentID: documentID,
		JobID:      jobID,
	}, c.hardTimeout)
	if err != nil {
		return "", fmt.Errorf("build merge task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue merge task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) EnqueueSweep(ctx context.Context, taskType string) error {
	_, err := c.client.EnqueueContext(ctx, NewSweepTask(taskType))
	if err != nil {
		return fmt.Errorf("enqueue sweep %s: %w", taskType, err)
	}
	return nil
}
