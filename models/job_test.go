package models

import "testing"

func TestValidJobTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{JobStatusQueued, JobStatusProcessing},
		{JobStatusQueued, JobStatusCancelled},
		{JobStatusProcessing, JobStatusCompleted},
		{JobStatusProcessing, JobStatusFailed},
		{JobStatusProcessing, JobStatusCancelled},
		{JobStatusFailed, JobStatusQueued},
	}
	for _, c := range allowed {
		if !ValidJobTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to string }{
		{JobStatusQueued, JobStatusCompleted},
		{JobStatusCompleted, JobStatusProcessing},
		{JobStatusCancelled, JobStatusQueued},
		{JobStatusFailed, JobStatusProcessing},
		{JobStatusCompleted, JobStatusFailed},
	}
	for _, c := range denied {
		if ValidJobTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be rejected", c.from, c.to)
		}
	}
}

func TestJobIsTerminal(t *testing.T) {
	cases := []struct {
		job  Job
		want bool
	}{
		{Job{Status: JobStatusCompleted}, true},
		{Job{Status: JobStatusCancelled}, true},
		{Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, true},
		{Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, false},
		{Job{Status: JobStatusProcessing}, false},
		{Job{Status: JobStatusQueued}, false},
	}
	for _, c := range cases {
		if got := c.job.IsTerminal(); got != c.want {
			t.Errorf("IsTerminal(%s retry %d/%d) = %v, want %v",
				c.job.Status, c.job.RetryCount, c.job.MaxRetries, got, c.want)
		}
	}
}

func TestValidChunkTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{ChunkStatusPending, ChunkStatusProcessing},
		{ChunkStatusProcessing, ChunkStatusCompleted},
		{ChunkStatusProcessing, ChunkStatusFailed},
		{ChunkStatusFailed, ChunkStatusPending},
	}
	for _, c := range allowed {
		if !ValidChunkTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to string }{
		{ChunkStatusPending, ChunkStatusCompleted},
		{ChunkStatusCompleted, ChunkStatusPending},
		{ChunkStatusCompleted, ChunkStatusProcessing},
		{ChunkStatusFailed, ChunkStatusProcessing},
	}
	for _, c := range denied {
		if ValidChunkTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be rejected", c.from, c.to)
		}
	}
}

func TestQualityForConfidence(t *testing.T) {
	cases := []struct {
		conf float64
		want string
	}{
		{0.95, OCRQualityGood},
		{0.85, OCRQualityGood},
		{0.84, OCRQualityFair},
		{0.70, OCRQualityFair},
		{0.69, OCRQualityPoor},
		{0.0, OCRQualityPoor},
	}
	for _, c := range cases {
		if got := QualityForConfidence(c.conf); got != c.want {
			t.Errorf("QualityForConfidence(%v) = %s, want %s", c.conf, got, c.want)
		}
	}
}
