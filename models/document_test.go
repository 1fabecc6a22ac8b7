package models

import "testing"

func TestDocProcessingStartStates(t *testing.T) {
	allowed := make(map[string]bool)
	for _, s := range DocProcessingStartStates() {
		allowed[s] = true
	}

	for _, s := range []string{DocStatusPending, DocStatusFailed, DocStatusOCRFailed} {
		if !allowed[s] {
			t.Errorf("%s must be able to move to processing", s)
		}
	}

	// A redelivered task must not pull a document that already produced OCR
	// output back to processing.
	for _, s := range []string{DocStatusOCRComplete, DocStatusCompleted, DocStatusProcessing} {
		if allowed[s] {
			t.Errorf("%s must not regress to processing", s)
		}
	}
}
