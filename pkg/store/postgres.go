// Package store persists documents, chunks and queue entries in
// Postgres. All writes for one document's processing run are applied in
// a single transaction serialized per document, so a concurrent reader
// never observes a half-processed document and two re-runs of the same
// document cannot interleave.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/types"
)

type StoreConfig struct {
	ConnString string
	VectorDim  int
}

type Store struct {
	config StoreConfig
	pool   *pgxpool.Pool
}

var _ types.Store = (*Store)(nil)

func NewWithConfig(config StoreConfig) (*Store, error) {
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	s := &Store{
		config: config,
		pool:   pool,
	}

	if err := s.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	ctx := context.Background()

	// Embeddings are written later by the vector collaborator.
	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			agency_id TEXT NOT NULL,
			source_url TEXT NOT NULL,
			doc_hash VARCHAR(64) NOT NULL,
			platform_type TEXT NOT NULL DEFAULT '',
			document_type TEXT NOT NULL DEFAULT '',
			title TEXT,
			raw_text TEXT NOT NULL,
			cleaned_text TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ NOT NULL,
			scraped_at TIMESTAMPTZ NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			cad_numbers TEXT[] NOT NULL DEFAULT '{}',
			case_numbers TEXT[] NOT NULL DEFAULT '{}',
			foia_eligible BOOLEAN NOT NULL DEFAULT FALSE,
			parse_quality SMALLINT,
			extraction_method TEXT NOT NULL DEFAULT 'none',
			status TEXT NOT NULL DEFAULT 'received',
			last_error TEXT,
			processed_at TIMESTAMPTZ,
			UNIQUE (agency_id, doc_hash)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			agency_id TEXT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL,
			document_type TEXT NOT NULL,
			cad_numbers TEXT[] NOT NULL,
			case_numbers TEXT[] NOT NULL,
			foia_eligible BOOLEAN NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (document_id, chunk_index)
		)`, s.config.VectorDim),
		`CREATE TABLE IF NOT EXISTS foia_queue (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
			cad_numbers TEXT[] NOT NULL,
			case_numbers TEXT[] NOT NULL,
			priority SMALLINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			submitted_at TIMESTAMPTZ,
			acknowledged_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			dismissed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS review_queue (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
			parse_quality SMALLINT NOT NULL,
			reason TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`,
		`CREATE INDEX IF NOT EXISTS documents_agency_idx ON documents (agency_id)`,
		`CREATE INDEX IF NOT EXISTS foia_queue_status_priority_idx ON foia_queue (status, priority DESC)`,
		`CREATE INDEX IF NOT EXISTS review_queue_status_idx ON review_queue (status)`,
		`CREATE INDEX IF NOT EXISTS chunks_embedding_idx
			ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %v", err)
		}
	}

	return nil
}

// Ingest stores a raw document if its (agency, hash) pair is new.
// Published date falls back to the scrape timestamp so the field is
// never null downstream.
func (s *Store) Ingest(ctx context.Context, raw models.RawDocument) (*models.Document, bool, error) {
	published := raw.ScrapedAt
	if raw.PublishedDate != nil && !raw.PublishedDate.IsZero() {
		published = *raw.PublishedDate
	}

	doc := &models.Document{
		ID:           uuid.New().String(),
		AgencyID:     raw.AgencyID,
		SourceURL:    raw.SourceURL,
		DocHash:      raw.Hash(),
		PlatformType: raw.PlatformType,
		DocumentType: models.DocumentType(raw.DocumentType),
		Title:        raw.Title,
		RawText:      raw.RawText,
		PublishedAt:  published,
		ScrapedAt:    raw.ScrapedAt,
		CADNumbers:   []string{},
		CaseNumbers:  []string{},
		Status:       models.StatusReceived,
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, agency_id, source_url, doc_hash, platform_type,
			document_type, title, raw_text, published_at, scraped_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (agency_id, doc_hash) DO NOTHING`,
		doc.ID, doc.AgencyID, doc.SourceURL, doc.DocHash, doc.PlatformType,
		string(doc.DocumentType), doc.Title, doc.RawText, doc.PublishedAt, doc.ScrapedAt,
		string(doc.Status),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ingest document: %v", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := s.getByHash(ctx, raw.AgencyID, doc.DocHash)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return doc, true, nil
}

const documentColumns = `id, agency_id, source_url, doc_hash, platform_type, document_type,
	title, raw_text, cleaned_text, published_at, scraped_at, confidence,
	cad_numbers, case_numbers, foia_eligible, parse_quality, extraction_method,
	status, last_error, processed_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	var title, lastError *string
	err := row.Scan(
		&d.ID, &d.AgencyID, &d.SourceURL, &d.DocHash, &d.PlatformType, &d.DocumentType,
		&title, &d.RawText, &d.CleanedText, &d.PublishedAt, &d.ScrapedAt, &d.Confidence,
		&d.CADNumbers, &d.CaseNumbers, &d.FOIAEligible, &d.ParseQuality, &d.ExtractionMethod,
		&d.Status, &lastError, &d.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if title != nil {
		d.Title = *title
	}
	if lastError != nil {
		d.LastError = *lastError
	}
	return &d, nil
}

func (s *Store) getByHash(ctx context.Context, agencyID, hash string) (*models.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE agency_id = $1 AND doc_hash = $2`,
		agencyID, hash)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %v", err)
	}
	return doc, nil
}

// ListPending returns documents awaiting processing, oldest first.
// Failed documents are included: failure is not terminal and a re-run
// starts the state machine over.
func (s *Store) ListPending(ctx context.Context, limit int) ([]models.Document, error) {
	if limit == 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE status IN ('received', 'failed')
		 ORDER BY scraped_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %v", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %v", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Finalize applies one document's processing results atomically: the
// finalized document fields, full replacement of the chunk set, and the
// queue upserts. A per-document advisory lock serializes concurrent
// re-runs of the same document without any cross-document locking.
func (s *Store) Finalize(ctx context.Context, doc *models.Document, chunks []models.Chunk, foia *models.FoiaQueueEntry, review *models.ReviewQueueEntry) error {
	for _, c := range chunks {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("chunk %s belongs to document %s, not %s", c.ID, c.DocumentID, doc.ID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	// Single writer per document key.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doc.ID); err != nil {
		return fmt.Errorf("failed to acquire document lock: %v", err)
	}

	now := time.Now().UTC()
	doc.ProcessedAt = &now

	_, err = tx.Exec(ctx, `
		UPDATE documents SET
			document_type = $2, cleaned_text = $3, confidence = $4,
			cad_numbers = $5, case_numbers = $6, foia_eligible = $7,
			parse_quality = $8, extraction_method = $9,
			status = $10, last_error = NULL, processed_at = $11
		WHERE id = $1`,
		doc.ID, string(doc.DocumentType), doc.CleanedText, doc.Confidence,
		doc.CADNumbers, doc.CaseNumbers, doc.FOIAEligible,
		doc.ParseQuality, string(doc.ExtractionMethod),
		string(doc.Status), doc.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %v", err)
	}

	// Chunk sets are replaced wholesale; chunks from two extraction
	// generations must never coexist.
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear chunk set: %v", err)
	}

	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, chunk_index, text, token_count,
				agency_id, published_at, document_type, cad_numbers, case_numbers, foia_eligible)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.DocumentID, c.Index, c.Text, c.TokenCount,
			c.Metadata.AgencyID, c.Metadata.PublishedAt, string(c.Metadata.DocumentType),
			c.Metadata.CADNumbers, c.Metadata.CaseNumbers, c.Metadata.FOIAEligible,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %v", c.Index, err)
		}
	}

	if foia != nil {
		// First enqueue is authoritative; re-extraction never rewrites
		// the snapshot or resets status.
		_, err := tx.Exec(ctx, `
			INSERT INTO foia_queue (id, document_id, cad_numbers, case_numbers, priority, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (document_id) DO NOTHING`,
			foia.ID, foia.DocumentID, foia.CADNumbers, foia.CaseNumbers,
			foia.Priority, string(foia.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert FOIA queue entry: %v", err)
		}
	}

	if review != nil {
		// Quality snapshot and reason refresh on re-runs; status belongs
		// to the review collaborator and is left alone.
		_, err := tx.Exec(ctx, `
			INSERT INTO review_queue (id, document_id, parse_quality, reason, status)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (document_id) DO UPDATE SET
				parse_quality = EXCLUDED.parse_quality,
				reason = EXCLUDED.reason,
				updated_at = now()`,
			review.ID, review.DocumentID, review.ParseQuality, string(review.Reason),
			string(review.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert review queue entry: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit document %s: %v", doc.ID, err)
	}

	return nil
}

// MarkFailed records the failing stage and error so the document stays
// visible and re-runnable.
func (s *Store) MarkFailed(ctx context.Context, docID string, stage string, cause error) error {
	msg := fmt.Sprintf("%s: %v", stage, cause)
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = 'failed', last_error = $2 WHERE id = $1`,
		docID, msg)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %v", err)
	}
	return nil
}

// FoiaEntries lists FOIA queue entries with the given status, highest
// priority first.
func (s *Store) FoiaEntries(ctx context.Context, status models.FoiaStatus) ([]models.FoiaQueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, cad_numbers, case_numbers, priority, status,
			created_at, submitted_at, acknowledged_at, completed_at, dismissed_at
		FROM foia_queue WHERE status = $1
		ORDER BY priority DESC, created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query FOIA queue: %v", err)
	}
	defer rows.Close()

	var entries []models.FoiaQueueEntry
	for rows.Next() {
		var e models.FoiaQueueEntry
		err := rows.Scan(&e.ID, &e.DocumentID, &e.CADNumbers, &e.CaseNumbers,
			&e.Priority, &e.Status, &e.CreatedAt,
			&e.SubmittedAt, &e.AcknowledgedAt, &e.CompletedAt, &e.DismissedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan FOIA entry: %v", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReviewEntries lists review queue entries with the given status.
func (s *Store) ReviewEntries(ctx context.Context, status models.ReviewStatus) ([]models.ReviewQueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, parse_quality, reason, status, created_at, updated_at
		FROM review_queue WHERE status = $1
		ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query review queue: %v", err)
	}
	defer rows.Close()

	var entries []models.ReviewQueueEntry
	for rows.Next() {
		var e models.ReviewQueueEntry
		err := rows.Scan(&e.ID, &e.DocumentID, &e.ParseQuality, &e.Reason,
			&e.Status, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review entry: %v", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateChunkEmbedding stores an embedding computed by the vector
// collaborator. Chunk text and metadata stay frozen.
func (s *Store) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE chunks SET embedding = $2 WHERE id = $1`,
		chunkID, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to update chunk embedding: %v", err)
	}
	return nil
}

// QueueDepths reports pending counts for the status endpoint.
func (s *Store) QueueDepths(ctx context.Context) (foia int, review int, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM foia_queue WHERE status = 'pending'),
			(SELECT count(*) FROM review_queue WHERE status = 'pending')`)
	if err := row.Scan(&foia, &review); err != nil {
		return 0, 0, fmt.Errorf("failed to read queue depths: %v", err)
	}
	return foia, review, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
