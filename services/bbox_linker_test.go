package services

import (
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-intel-platform/models"
)

func boxesFromWords(words []string, page int) []models.BoundingBox {
	boxes := make([]models.BoundingBox, len(words))
	for i, w := range words {
		boxes[i] = models.BoundingBox{
			ID:         primitive.NewObjectID(),
			PageNumber: page,
			Text:       w,
		}
	}
	return boxes
}

func TestBestBoxWindowFindsSource(t *testing.T) {
	prefix := strings.Fields("unrelated preamble text about service addresses and notice periods applying here")
	target := strings.Fields("the tenant shall pay rent quarterly in advance on the usual quarter days")
	suffix := strings.Fields("further boilerplate about governing law jurisdiction and severability clauses follows")

	boxes := boxesFromWords(prefix, 1)
	boxes = append(boxes, boxesFromWords(target, 2)...)
	boxes = append(boxes, boxesFromWords(suffix, 3)...)

	ids, page, score := bestBoxWindow(boxes, strings.Join(target, " "), 80)
	if ids == nil {
		t.Fatalf("no window matched, best score %d", score)
	}
	if page != 2 {
		t.Errorf("modal page = %d, want 2", page)
	}
	if len(ids) != len(target) {
		t.Errorf("window size = %d, want %d", len(ids), len(target))
	}
}

func TestBestBoxWindowBelowThreshold(t *testing.T) {
	boxes := boxesFromWords(strings.Fields("completely different vocabulary on every single word here"), 1)
	ids, _, score := bestBoxWindow(boxes, "quantum chromodynamics lattice simulation results", 80)
	if ids != nil {
		t.Errorf("expected no match, got %d boxes at score %d", len(ids), score)
	}
}

func TestBestBoxWindowEmptyChunk(t *testing.T) {
	boxes := boxesFromWords([]string{"a", "b"}, 1)
	if ids, _, _ := bestBoxWindow(boxes, "   ", 80); ids != nil {
		t.Error("whitespace chunk should not match")
	}
}
