package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/utils"
)

func TestOCRResultHelpers(t *testing.T) {
	r := &OCRResult{Pages: []OCRPage{
		{PageNumber: 1, Text: "first page", Words: []OCRWord{
			{Text: "first", Confidence: 0.9},
			{Text: "page", Confidence: 0.7},
		}},
		{PageNumber: 2, Text: "second page", Words: []OCRWord{
			{Text: "second", Confidence: 0.8},
			{Text: "page", Confidence: 0.6},
		}},
	}}
	if got := r.Text(); got != "first page\nsecond page" {
		t.Errorf("Text() = %q", got)
	}
	if got := r.MeanConfidence(); got < 0.749 || got > 0.751 {
		t.Errorf("MeanConfidence() = %v, want 0.75", got)
	}

	empty := &OCRResult{}
	if got := empty.MeanConfidence(); got != 0 {
		t.Errorf("empty MeanConfidence() = %v", got)
	}
}

func ocrTestClient(t *testing.T, handler http.HandlerFunc) (*OCRClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := &config.Config{
		OCRServiceURL:     srv.URL,
		OCRMaxConcurrent:  2,
		OCRRequestsPerMin: 600,
		OCRMinDelayMs:     0,
	}
	return NewOCRClient(cfg, slog.Default()), srv
}

func TestRecognizeSuccess(t *testing.T) {
	client, srv := ocrTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ocr" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			t.Error("empty request body")
		}
		json.NewEncoder(w).Encode(OCRResult{Pages: []OCRPage{
			{PageNumber: 1, Text: "hello"},
		}})
	})
	defer srv.Close()

	res, err := client.Recognize(context.Background(), []byte("%PDF-1.7"), "doc.pdf")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(res.Pages) != 1 || res.Pages[0].Text != "hello" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRecognizeStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
		kind      utils.ErrorKind
	}{
		{http.StatusTooManyRequests, true, utils.KindRateLimit},
		{http.StatusBadGateway, true, utils.KindTransientExternal},
		{http.StatusUnprocessableEntity, false, utils.KindValidation},
	}
	for _, c := range cases {
		client, srv := ocrTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		})
		_, err := client.Recognize(context.Background(), []byte("%PDF-1.7"), "doc.pdf")
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", c.status)
		}
		if utils.Classify(err) != c.kind {
			t.Errorf("status %d: kind = %v, want %v", c.status, utils.Classify(err), c.kind)
		}
		if utils.IsRetryable(err) != c.retryable {
			t.Errorf("status %d: retryable = %v, want %v", c.status, utils.IsRetryable(err), c.retryable)
		}
	}
}
