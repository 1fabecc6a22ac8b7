package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalObjectStoreRoundTrip(t *testing.T) {
	store, err := NewLocalObjectStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	key := UploadKey("m1", "contract.pdf")
	payload := []byte("%PDF-1.7 test bytes")

	if err := store.Put(ctx, key, payload); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("round trip mismatch: %q", got)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	streamed, _ := io.ReadAll(rc)
	rc.Close()
	if string(streamed) != string(payload) {
		t.Errorf("open mismatch: %q", streamed)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, key); err == nil {
		t.Error("get after delete should fail")
	}
}

func TestLocalObjectStoreRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalObjectStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	outside := filepath.Join(root, "..", "escape.txt")
	if err := store.Put(ctx, "../escape.txt", []byte("nope")); err == nil {
		t.Error("traversal key accepted on put")
	}
	if _, err := os.Stat(outside); err == nil {
		t.Error("file written outside the root")
	}
	if _, err := store.Get(ctx, "../../etc/passwd"); err == nil {
		t.Error("traversal key accepted on get")
	}
}

func TestKeyLayout(t *testing.T) {
	if got := UploadKey("m1", "a.pdf"); got != "documents/m1/uploads/a.pdf" {
		t.Errorf("UploadKey = %q", got)
	}
	if got := OCRChunkKey("m1", "d1", 2); got != "documents/m1/ocr_chunks/d1/2.json.gz" {
		t.Errorf("OCRChunkKey = %q", got)
	}
}
