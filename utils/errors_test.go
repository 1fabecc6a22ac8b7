package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyWrappedError(t *testing.T) {
	base := NewRateLimit("provider throttled", errors.New("429"))
	wrapped := fmt.Errorf("ocr page batch: %w", base)

	if got := Classify(wrapped); got != KindRateLimit {
		t.Errorf("Classify = %v, want rate limit", got)
	}
	if !IsRetryable(wrapped) {
		t.Error("rate limit should be retryable")
	}
	if got := ErrorCodeOf(wrapped); got != CodeRateLimited {
		t.Errorf("ErrorCodeOf = %q", got)
	}
}

func TestClassifyUnknownErrorIsTransient(t *testing.T) {
	err := errors.New("connection reset by peer")
	if got := Classify(err); got != KindTransientExternal {
		t.Errorf("Classify = %v, want transient", got)
	}
	if !IsRetryable(err) {
		t.Error("unclassified errors must stay retryable")
	}
	if got := ErrorCodeOf(err); got != CodeExternalService {
		t.Errorf("ErrorCodeOf = %q", got)
	}
}

func TestNonRetryableKinds(t *testing.T) {
	cases := []error{
		NewValidation(CodeInvalidPDF, "bad header"),
		NewIntegrity("checksum mismatch"),
		NewCancelled("job cancelled"),
	}
	for _, err := range cases {
		if IsRetryable(err) {
			t.Errorf("%v should not be retryable", err)
		}
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	err := NewTransient("ocr call", inner)
	if !errors.Is(err, inner) {
		t.Error("wrapped cause lost")
	}
}

func TestValidationCarriesCode(t *testing.T) {
	err := NewValidation(CodeOversizePDF, "document has 600 pages")
	if got := ErrorCodeOf(err); got != CodeOversizePDF {
		t.Errorf("ErrorCodeOf = %q, want %q", got, CodeOversizePDF)
	}
	if Classify(err) != KindValidation {
		t.Error("wrong kind")
	}
}
