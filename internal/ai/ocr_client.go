package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/utils"
)

// OCRWord is one recognized word with its normalized bounding rectangle.
type OCRWord struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// OCRPage is the recognized content of one page.
type OCRPage struct {
	PageNumber int       `json:"page_number"`
	Text       string    `json:"text"`
	Words      []OCRWord `json:"words"`
}

// OCRResult is the provider output for one page range.
type OCRResult struct {
	Pages []OCRPage `json:"pages"`
}

// Text concatenates page texts in page order.
func (r *OCRResult) Text() string {
	var buf bytes.Buffer
	for i, p := range r.Pages {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(p.Text)
	}
	return buf.String()
}

// MeanConfidence averages word confidences across all pages, 0 if no words.
func (r *OCRResult) MeanConfidence() float64 {
	var sum float64
	var n int
	for _, p := range r.Pages {
		for _, w := range p.Words {
			sum += w.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// OCRClient calls the external OCR service over HTTP. Requests pass through
// the provider limiter and a circuit breaker; responses are classified into
// the pipeline error taxonomy at this boundary.
type OCRClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *ProviderLimiter
	logger  *slog.Logger
}

func NewOCRClient(cfg *config.Config, logger *slog.Logger) *OCRClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OCRService",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &OCRClient{
		baseURL: cfg.OCRServiceURL,
		http:    &http.Client{Timeout: 10 * time.Minute},
		breaker: breaker,
		limiter: NewProviderLimiter(cfg.OCRMaxConcurrent, cfg.OCRRequestsPerMin,
			time.Duration(cfg.OCRMinDelayMs)*time.Millisecond),
		logger: logger,
	}
}

// Recognize sends a PDF (already sliced to the wanted page range) to the OCR
// service and returns per-page text and word boxes.
func (c *OCRClient) Recognize(ctx context.Context, pdfData []byte, filename string) (*OCRResult, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, utils.NewCancelled("ocr request cancelled while queued")
	}
	defer c.limiter.Release()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRecognize(ctx, pdfData, filename)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, utils.NewTransient("ocr service circuit open", err)
		}
		return nil, err
	}
	return result.(*OCRResult), nil
}

func (c *OCRClient) doRecognize(ctx context.Context, pdfData []byte, filename string) (*OCRResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, utils.NewTransient("build ocr request", err)
	}
	if _, err := part.Write(pdfData); err != nil {
		return nil, utils.NewTransient("build ocr request", err)
	}
	if err := writer.Close(); err != nil {
		return nil, utils.NewTransient("build ocr request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", &body)
	if err != nil {
		return nil, utils.NewTransient("build ocr request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, utils.NewCancelled("ocr request cancelled")
		}
		return nil, utils.NewTransient("ocr service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyOCRStatus(resp.StatusCode, string(snippet))
	}

	var result OCRResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, utils.NewTransient("decode ocr response", err)
	}
	return &result, nil
}

func classifyOCRStatus(status int, snippet string) error {
	msg := fmt.Sprintf("ocr service returned %d: %s", status, snippet)
	switch {
	case status == http.StatusTooManyRequests:
		return utils.NewRateLimit(msg, nil)
	case status >= 500:
		return utils.NewTransient(msg, nil)
	default:
		return utils.NewValidation(utils.CodeInvalidPDF, msg)
	}
}
