// Package pipeline sequences the document processing stages and owns
// the transaction boundaries: classify, clean, extract (regex then
// gated LLM fallback), score, chunk, and enqueue. Re-running a document
// from scratch is safe at every downstream effect.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/types"
	"github.com/cadencehq/cadence/pkg/chunker"
	"github.com/cadencehq/cadence/pkg/classify"
	"github.com/cadencehq/cadence/pkg/clean"
	"github.com/cadencehq/cadence/pkg/extract"
	"github.com/cadencehq/cadence/pkg/llm"
)

type PipelineConfig struct {
	// Workers bounds the per-document worker pool.
	Workers int
	// QualityThreshold routes documents scoring below it to review.
	QualityThreshold int
	// BatchSize caps how many pending documents one Run drains.
	BatchSize int
}

// Pipeline is the orchestrator. Fallback and Emitter may be nil: a nil
// fallback disables the LLM path, a nil emitter drops chunk events.
type Pipeline struct {
	config   PipelineConfig
	store    types.Store
	fallback types.FallbackExtractor
	budget   *llm.BudgetMonitor
	chunker  *chunker.Chunker
	counter  types.TokenCounter
	emitter  types.Emitter

	now func() time.Time
}

func NewWithConfig(config PipelineConfig, store types.Store, fallback types.FallbackExtractor,
	budget *llm.BudgetMonitor, ch *chunker.Chunker, counter types.TokenCounter, emitter types.Emitter) *Pipeline {

	if config.Workers == 0 {
		config.Workers = 8
	}
	if config.QualityThreshold == 0 {
		config.QualityThreshold = 50
	}
	if config.BatchSize == 0 {
		config.BatchSize = 500
	}
	if budget == nil {
		budget = llm.NewBudgetMonitor(llm.BudgetConfig{})
	}

	return &Pipeline{
		config:   config,
		store:    store,
		fallback: fallback,
		budget:   budget,
		chunker:  ch,
		counter:  counter,
		emitter:  emitter,
		now:      time.Now,
	}
}

// Budget exposes the fallback budget monitor for reporting surfaces.
func (p *Pipeline) Budget() *llm.BudgetMonitor {
	return p.budget
}

// Process runs one document through the full state machine. The
// document is mutated in place; all persistence happens in one atomic
// Finalize call so re-runs and concurrent readers stay consistent. Any
// stage failure marks the document failed and leaves it re-runnable.
func (p *Pipeline) Process(ctx context.Context, doc *models.Document) error {
	doc.Status = models.StatusReceived
	doc.LastError = ""

	// Classify. Never fails: ambiguous input gets the default type and
	// a low confidence that flows into quality scoring.
	result := classify.Classify(doc)
	doc.DocumentType = result.DocumentType
	doc.Confidence = result.Confidence
	doc.Status = models.StatusClassified

	// Clean. Empty output is a data error, not a stage failure: the
	// document continues with empty identifier sets and a floor score.
	cleaned := clean.Clean(doc.RawText, doc.PlatformType)
	doc.CleanedText = cleaned.Text
	doc.Status = models.StatusCleaned

	// Extract: pattern library first.
	regexResult := extract.Extract(doc.CleanedText, doc.PlatformType, doc.AgencyID)
	doc.SetIdentifiers(regexResult.CADNumbers, regexResult.CaseNumbers)

	outcome := outcomeNotAttempted
	if regexResult.Matched() {
		doc.ExtractionMethod = models.ExtractionRegex
		outcome = outcomeRegexHit
	} else {
		doc.ExtractionMethod = models.ExtractionNone
	}

	// Fallback: the only stage that leaves the process. Gated hard and
	// tracked by the budget monitor either way.
	tookFallback := false
	if !regexResult.Matched() && p.fallback != nil {
		tokenCount := p.counter.Count(doc.CleanedText)
		if p.fallback.Eligible(doc, tokenCount) {
			tookFallback = true
			fbResult, err := p.fallback.Extract(ctx, doc.CleanedText)
			if err != nil {
				// Degraded, never fatal: the document proceeds with
				// empty sets and lands in review.
				doc.ExtractionMethod = models.ExtractionNone
				outcome = outcomeFailed
			} else {
				doc.SetIdentifiers(fbResult.CADNumbers, fbResult.CaseNumbers)
				doc.ExtractionMethod = models.ExtractionLLM
				if doc.FOIAEligible {
					outcome = outcomeLLMHit
				} else {
					// Confirmed negative, distinct from not attempted.
					outcome = outcomeLLMNegative
				}
			}
		}
	}
	p.budget.Record(tookFallback)
	doc.Status = models.StatusExtracted

	// Score. Low quality is advisory: review routing never halts
	// chunking or enqueueing.
	quality := parseQuality(cleaned.Score, doc.Confidence, outcome)
	doc.ParseQuality = &quality
	doc.Status = models.StatusScored

	var review *models.ReviewQueueEntry
	if quality < p.config.QualityThreshold || outcome == outcomeFailed {
		reason := models.ReasonLowParseQuality
		if outcome == outcomeFailed {
			reason = models.ReasonFailedExtraction
		}
		review = &models.ReviewQueueEntry{
			ID:           uuid.New().String(),
			DocumentID:   doc.ID,
			ParseQuality: quality,
			Reason:       reason,
			Status:       models.ReviewPending,
		}
	}

	doc.Status = models.StatusPersisted

	// Chunk. A chunk constructed without full metadata is a contract
	// violation and fails the document before anything is persisted.
	chunks, err := p.chunker.Split(doc)
	if err != nil {
		return p.fail(ctx, doc, "chunk", err)
	}
	doc.Status = models.StatusChunked

	var foia *models.FoiaQueueEntry
	if doc.FOIAEligible {
		foia = &models.FoiaQueueEntry{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			CADNumbers:  append([]string(nil), doc.CADNumbers...),
			CaseNumbers: append([]string(nil), doc.CaseNumbers...),
			Priority:    foiaPriority(len(doc.CADNumbers)+len(doc.CaseNumbers), doc.DocumentType, doc.PublishedAt, p.now()),
			Status:      models.FoiaPending,
		}
	}
	doc.Status = models.StatusEnqueued

	doc.Status = models.StatusDone
	if err := p.store.Finalize(ctx, doc, chunks, foia, review); err != nil {
		return p.fail(ctx, doc, "finalize", err)
	}

	if p.emitter != nil && len(chunks) > 0 {
		if err := p.emitter.EmitChunks(ctx, doc, chunks); err != nil {
			// Persisted state is already consistent; event delivery is
			// at-least-once via reprocessing, so log-and-continue is
			// the collaborator contract here.
			log.Printf("chunk event emit failed for document %s: %v", doc.ID, err)
		}
	}

	return nil
}

func (p *Pipeline) fail(ctx context.Context, doc *models.Document, stage string, cause error) error {
	doc.Status = models.StatusFailed
	doc.LastError = fmt.Sprintf("%s: %v", stage, cause)
	if err := p.store.MarkFailed(ctx, doc.ID, stage, cause); err != nil {
		return fmt.Errorf("stage %s failed (%v); marking failed also failed: %w", stage, cause, err)
	}
	return fmt.Errorf("stage %s: %w", stage, cause)
}

// ProcessBatch fans documents across the worker pool. Documents are
// partitioned by identity hash so the same document can never be
// processed by two workers concurrently, and stages within one document
// always run in state-machine order.
func (p *Pipeline) ProcessBatch(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	workers := p.config.Workers
	partitions := make([][]models.Document, workers)
	for _, doc := range docs {
		w := partition(doc.ID, workers)
		partitions[w] = append(partitions[w], doc)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, part := range partitions {
		part := part
		if len(part) == 0 {
			continue
		}
		g.Go(func() error {
			for i := range part {
				// A failed document is recorded and skipped, not fatal
				// to the batch.
				_ = p.Process(gctx, &part[i])
			}
			return nil
		})
	}

	return g.Wait()
}

// Run drains pending documents from the store and processes them.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	docs, err := p.store.ListPending(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending documents: %w", err)
	}
	if err := p.ProcessBatch(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func partition(id string, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % uint32(workers))
}
