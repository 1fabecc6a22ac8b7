package queue

import (
	"encoding/json"
	"testing"
	"time"
)

func TestProcessDocumentTaskRoundTrip(t *testing.T) {
	want := ProcessDocumentPayload{MatterID: "m1", DocumentID: "d1", JobID: "j1"}
	task, err := NewProcessDocumentTask(want, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskProcessDocument {
		t.Errorf("task type = %q, want %q", task.Type(), TaskProcessDocument)
	}
	var got ProcessDocumentPayload
	if err := json.Unmarshal(task.Payload(), &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}
}

func TestProcessOCRChunkTaskRoundTrip(t *testing.T) {
	want := ProcessOCRChunkPayload{MatterID: "m1", DocumentID: "d1", JobID: "j1", ChunkIndex: 4}
	task, err := NewProcessOCRChunkTask(want, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskProcessOCRChunk {
		t.Errorf("task type = %q, want %q", task.Type(), TaskProcessOCRChunk)
	}
	var got ProcessOCRChunkPayload
	if err := json.Unmarshal(task.Payload(), &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}
}
