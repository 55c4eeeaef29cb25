package models

import "time"

// ReviewReason explains why a document landed in the human review queue.
type ReviewReason string

const (
	ReasonLowParseQuality  ReviewReason = "low_parse_quality"
	ReasonFailedExtraction ReviewReason = "failed_extraction"
)

// ReviewStatus is owned by the review collaborator after creation.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewReviewed  ReviewStatus = "reviewed"
	ReviewDismissed ReviewStatus = "dismissed"
)

// ReviewQueueEntry flags one document for human confirmation. At most
// one entry exists per document; reprocessing updates the quality
// snapshot and reason but never the status.
type ReviewQueueEntry struct {
	ID           string       `json:"id"`
	DocumentID   string       `json:"document_id"`
	ParseQuality int          `json:"parse_quality"`
	Reason       ReviewReason `json:"reason"`
	Status       ReviewStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// FoiaStatus transitions are owned by the FOIA collaborator; this core
// only ever creates entries in the pending state.
type FoiaStatus string

const (
	FoiaPending      FoiaStatus = "pending"
	FoiaSubmitted    FoiaStatus = "submitted"
	FoiaAcknowledged FoiaStatus = "acknowledged"
	FoiaCompleted    FoiaStatus = "completed"
	FoiaDismissed    FoiaStatus = "dismissed"
)

// FoiaQueueEntry is created exactly once per FOIA-eligible document.
// The identifier snapshot is taken at first enqueue and is authoritative;
// later re-extraction never rewrites it.
type FoiaQueueEntry struct {
	ID          string     `json:"id"`
	DocumentID  string     `json:"document_id"`
	CADNumbers  []string   `json:"cad_numbers"`
	CaseNumbers []string   `json:"case_numbers"`
	Priority    int        `json:"priority"`
	Status      FoiaStatus `json:"status"`

	CreatedAt      time.Time  `json:"created_at"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DismissedAt    *time.Time `json:"dismissed_at,omitempty"`
}
