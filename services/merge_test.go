package services

import (
	"errors"
	"testing"

	"legal-intel-platform/models"
	"legal-intel-platform/utils"
)

func completedChunk(index, pageStart, pageEnd int) models.OCRChunk {
	return models.OCRChunk{
		ChunkIndex: index,
		PageStart:  pageStart,
		PageEnd:    pageEnd,
		Status:     models.ChunkStatusCompleted,
	}
}

func TestVerifyChunkPlanContiguous(t *testing.T) {
	chunks := []models.OCRChunk{
		completedChunk(0, 1, 15),
		completedChunk(1, 16, 30),
		completedChunk(2, 31, 40),
	}
	if err := verifyChunkPlan(chunks, 40); err != nil {
		t.Fatalf("contiguous plan rejected: %v", err)
	}
}

func TestVerifyChunkPlanMissingTail(t *testing.T) {
	// The plan stops at page 30 of a 45-page document. Merging anyway
	// would silently truncate the document text.
	chunks := []models.OCRChunk{
		completedChunk(0, 1, 15),
		completedChunk(1, 16, 30),
	}
	err := verifyChunkPlan(chunks, 45)
	if err == nil {
		t.Fatal("plan ending before the last page must not merge")
	}
	if utils.Classify(err) != utils.KindIntegrity {
		t.Errorf("Classify = %v, want integrity", utils.Classify(err))
	}
}

func TestVerifyChunkPlanIndexGap(t *testing.T) {
	chunks := []models.OCRChunk{
		completedChunk(0, 1, 15),
		completedChunk(2, 16, 30),
	}
	if err := verifyChunkPlan(chunks, 30); err == nil {
		t.Fatal("index gap must not merge")
	}
}

func TestVerifyChunkPlanPageGap(t *testing.T) {
	chunks := []models.OCRChunk{
		completedChunk(0, 1, 15),
		completedChunk(1, 17, 30),
	}
	if err := verifyChunkPlan(chunks, 30); err == nil {
		t.Fatal("page range gap must not merge")
	}
}

func TestVerifyChunkPlanNotReady(t *testing.T) {
	chunks := []models.OCRChunk{
		completedChunk(0, 1, 15),
		{ChunkIndex: 1, PageStart: 16, PageEnd: 30, Status: models.ChunkStatusProcessing},
	}
	err := verifyChunkPlan(chunks, 30)
	if !errors.Is(err, errMergeNotReady) {
		t.Errorf("incomplete chunk set: got %v, want errMergeNotReady", err)
	}
}

func TestVerifyChunkPlanEmpty(t *testing.T) {
	if err := verifyChunkPlan(nil, 10); err == nil {
		t.Fatal("empty chunk set must not merge")
	}
}
