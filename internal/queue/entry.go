// Package queue tracks failed flyer extractions for bounded retry and keeps
// an append-only audit log of successful ones.
package queue

import "time"

// Status is the lifecycle state of a pending entry.
type Status string

// StatusPendingRetry marks an image that has failed validation at least once
// and has not yet succeeded. Entries leave the pending set by succeeding,
// never by expiry.
const StatusPendingRetry Status = "pending_retry"

// Entry is the retry-queue record for one flyer image, keyed by path. The
// image itself is never stored, only its path: retries re-extract from the
// original file with a fresh prompt.
type Entry struct {
	ImagePath          string    `json:"image_path"`
	ImageName          string    `json:"image_name"`
	FirstFailed        time.Time `json:"first_failed"`
	LastAttempt        time.Time `json:"last_attempt"`
	AttemptCount       int       `json:"attempt_count"`
	LastScore          int       `json:"last_score"`
	LastReason         string    `json:"last_reason"`
	Status             Status    `json:"status"`
	ExtractionDataPath *string   `json:"extraction_data_path,omitempty"`
}

// SuccessRecord is one row of the append-only success log. Repeated
// successes for the same image append repeated rows; the log is an audit
// trail, not a set.
type SuccessRecord struct {
	ImagePath      string    `json:"image_path"`
	ImageName      string    `json:"image_name"`
	ProcessedAt    time.Time `json:"processed_at"`
	QualityScore   int       `json:"quality_score"`
	DealsExtracted int       `json:"deals_extracted"`
	Status         string    `json:"status"`
}

// Summary aggregates queue state for operator reporting.
type Summary struct {
	Succeeded         int     `json:"succeeded"`
	PendingRetry      int     `json:"pending_retry"`
	PermanentFailures int     `json:"permanent_failures"`
	TotalPending      int     `json:"total_pending"`
	RetryCandidates   []Entry `json:"retry_candidates"`
	Failures          []Entry `json:"failures"`
}
