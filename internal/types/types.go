package types

import (
	"context"

	"github.com/cadencehq/cadence/internal/models"
)

// Core interfaces

// Store is the persistence layer shared by the pipeline, the queue
// readers and the status server. All writes for one document's run go
// through Finalize as a single atomic unit.
type Store interface {
	// Ingest inserts a raw document if its (agency, hash) pair is new and
	// returns the stored document. The second return is false when the
	// document already existed.
	Ingest(ctx context.Context, raw models.RawDocument) (*models.Document, bool, error)

	// ListPending returns documents awaiting processing (received or
	// failed), oldest first.
	ListPending(ctx context.Context, limit int) ([]models.Document, error)

	// Finalize applies the finished document fields, replaces the chunk
	// set, and upserts the queue entries in one transaction. foia and
	// review may be nil.
	Finalize(ctx context.Context, doc *models.Document, chunks []models.Chunk, foia *models.FoiaQueueEntry, review *models.ReviewQueueEntry) error

	// MarkFailed records a stage failure so the document stays eligible
	// for a full re-run.
	MarkFailed(ctx context.Context, docID string, stage string, cause error) error

	FoiaEntries(ctx context.Context, status models.FoiaStatus) ([]models.FoiaQueueEntry, error)
	ReviewEntries(ctx context.Context, status models.ReviewStatus) ([]models.ReviewQueueEntry, error)

	Close()
}

// IdentifierResult is the outcome of a structured-extraction call.
type IdentifierResult struct {
	CADNumbers  []string `json:"cad_numbers"`
	CaseNumbers []string `json:"case_numbers"`
}

// FallbackExtractor is the gated LLM path of the extraction cascade.
type FallbackExtractor interface {
	// Eligible reports whether the fallback gate admits the document.
	Eligible(doc *models.Document, tokenCount int) bool

	// Extract issues one structured-extraction call with bounded retries.
	Extract(ctx context.Context, text string) (IdentifierResult, error)
}

// Emitter receives the chunk-ready stream after a document's chunk set
// is durably replaced.
type Emitter interface {
	EmitChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
}

// TokenCounter reports the token length of a text, used for chunk
// sizing and the fallback gating minimum.
type TokenCounter interface {
	Count(text string) int
}
