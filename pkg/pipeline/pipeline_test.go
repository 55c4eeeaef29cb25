package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/types"
	"github.com/cadencehq/cadence/pkg/chunker"
)

// memStore is an in-memory Store with the same Finalize semantics as
// the postgres implementation: chunk-set replacement, keep-first FOIA
// entries, and review upserts that never touch status.
type memStore struct {
	mu     sync.Mutex
	docs   map[string]models.Document
	chunks map[string][]models.Chunk
	foia   map[string]models.FoiaQueueEntry
	review map[string]models.ReviewQueueEntry
	failed map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		docs:   make(map[string]models.Document),
		chunks: make(map[string][]models.Chunk),
		foia:   make(map[string]models.FoiaQueueEntry),
		review: make(map[string]models.ReviewQueueEntry),
		failed: make(map[string]string),
	}
}

func (s *memStore) Ingest(ctx context.Context, raw models.RawDocument) (*models.Document, bool, error) {
	return nil, false, errors.New("not used in pipeline tests")
}

func (s *memStore) ListPending(ctx context.Context, limit int) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []models.Document
	for _, d := range s.docs {
		if d.Status == models.StatusReceived || d.Status == models.StatusFailed {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

func (s *memStore) Finalize(ctx context.Context, doc *models.Document, chunks []models.Chunk,
	foia *models.FoiaQueueEntry, review *models.ReviewQueueEntry) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.ID] = *doc
	s.chunks[doc.ID] = append([]models.Chunk(nil), chunks...)

	if foia != nil {
		if _, exists := s.foia[doc.ID]; !exists {
			s.foia[doc.ID] = *foia
		}
	}

	if review != nil {
		if existing, exists := s.review[doc.ID]; exists {
			existing.ParseQuality = review.ParseQuality
			existing.Reason = review.Reason
			s.review[doc.ID] = existing
		} else {
			s.review[doc.ID] = *review
		}
	}
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, docID string, stage string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[docID] = stage
	return nil
}

func (s *memStore) FoiaEntries(ctx context.Context, status models.FoiaStatus) ([]models.FoiaQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FoiaQueueEntry
	for _, e := range s.foia {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ReviewEntries(ctx context.Context, status models.ReviewStatus) ([]models.ReviewQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReviewQueueEntry
	for _, e := range s.review {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) Close() {}

var _ types.Store = (*memStore)(nil)

// fakeFallback mirrors the production gate and returns a canned result.
type fakeFallback struct {
	result types.IdentifierResult
	err    error
	calls  int
}

func (f *fakeFallback) Eligible(doc *models.Document, tokenCount int) bool {
	if len(doc.CADNumbers) > 0 || len(doc.CaseNumbers) > 0 {
		return false
	}
	return doc.DocumentType == models.TypePressRelease && tokenCount > 10
}

func (f *fakeFallback) Extract(ctx context.Context, text string) (types.IdentifierResult, error) {
	f.calls++
	return f.result, f.err
}

type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

var fixedNow = time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)

func newPipeline(store types.Store, fb types.FallbackExtractor) *Pipeline {
	ch := chunker.NewWithConfig(chunker.ChunkerConfig{}, wordCounter{})
	p := NewWithConfig(PipelineConfig{Workers: 2}, store, fb, nil, ch, wordCounter{}, nil)
	p.now = func() time.Time { return fixedNow }
	return p
}

func incidentDoc(id string) models.Document {
	return models.Document{
		ID:           id,
		AgencyID:     "example_pd",
		SourceURL:    "https://www.crimemapping.com/map/agency/example",
		PlatformType: "crimemapping",
		RawText: "Officers responded to a burglary at 1200 N Main St on 01/15/2024. " +
			"Case #23-004512 was assigned to detectives for follow up work.",
		PublishedAt: fixedNow.Add(-24 * time.Hour),
		ScrapedAt:   fixedNow,
		Status:      models.StatusReceived,
	}
}

func pressReleaseDoc(id string) models.Document {
	return models.Document{
		ID:           id,
		AgencyID:     "example_pd",
		SourceURL:    "https://example.gov/posts/picnic",
		RawText: "The department hosted its annual community picnic downtown. " +
			"Residents enjoyed live music and food trucks throughout the afternoon.",
		PublishedAt: fixedNow.Add(-24 * time.Hour),
		ScrapedAt:   fixedNow,
		Status:      models.StatusReceived,
	}
}

func TestProcess_RegexPath(t *testing.T) {
	store := newMemStore()
	fb := &fakeFallback{}
	p := newPipeline(store, fb)

	doc := incidentDoc("doc-1")
	require.NoError(t, p.Process(context.Background(), &doc))

	assert.Equal(t, models.StatusDone, doc.Status)
	assert.Equal(t, models.TypeCrimemapping, doc.DocumentType)
	assert.Equal(t, models.ExtractionRegex, doc.ExtractionMethod)
	assert.Equal(t, []string{"23-004512"}, doc.CaseNumbers)
	assert.True(t, doc.FOIAEligible)
	require.NotNil(t, doc.ParseQuality)
	assert.GreaterOrEqual(t, *doc.ParseQuality, 50)

	// Identifiers found by regex: the fallback must never fire.
	assert.Zero(t, fb.calls)

	entry, ok := store.foia["doc-1"]
	require.True(t, ok)
	assert.Equal(t, []string{"23-004512"}, entry.CaseNumbers)
	assert.Equal(t, models.FoiaPending, entry.Status)
	assert.Greater(t, entry.Priority, 0)

	_, hasReview := store.review["doc-1"]
	assert.False(t, hasReview)

	chunks := store.chunks["doc-1"]
	require.NotEmpty(t, chunks)
	assert.True(t, chunks[0].Metadata.FOIAEligible)
	assert.Equal(t, []string{"23-004512"}, chunks[0].Metadata.CaseNumbers)
}

func TestProcess_Idempotent(t *testing.T) {
	store := newMemStore()
	p := newPipeline(store, &fakeFallback{})

	first := incidentDoc("doc-1")
	require.NoError(t, p.Process(context.Background(), &first))
	firstChunks := append([]models.Chunk(nil), store.chunks["doc-1"]...)
	firstFoia := store.foia["doc-1"]

	// Re-run from the stored raw fields, as a recovery pass would.
	second := incidentDoc("doc-1")
	require.NoError(t, p.Process(context.Background(), &second))

	assert.Equal(t, first, second)
	assert.Equal(t, firstChunks, store.chunks["doc-1"], "chunk IDs and content must be stable across re-runs")
	assert.Equal(t, firstFoia, store.foia["doc-1"], "first enqueue is authoritative")
	assert.Len(t, store.foia, 1)
}

func TestProcess_FallbackConfirmedNegative(t *testing.T) {
	store := newMemStore()
	fb := &fakeFallback{result: types.IdentifierResult{CADNumbers: []string{}, CaseNumbers: []string{}}}
	p := newPipeline(store, fb)

	doc := pressReleaseDoc("doc-2")
	require.NoError(t, p.Process(context.Background(), &doc))

	assert.Equal(t, 1, fb.calls)
	assert.Equal(t, models.TypePressRelease, doc.DocumentType)
	assert.Equal(t, models.ExtractionLLM, doc.ExtractionMethod, "a confirmed negative still records the llm method")
	assert.False(t, doc.FOIAEligible)
	assert.Empty(t, doc.CADNumbers)
	assert.Empty(t, doc.CaseNumbers)

	_, hasFoia := store.foia["doc-2"]
	assert.False(t, hasFoia)

	assert.Equal(t, uint64(1), p.Budget().Status().Fallback)
}

func TestProcess_FallbackFinds(t *testing.T) {
	store := newMemStore()
	fb := &fakeFallback{result: types.IdentifierResult{
		CADNumbers:  []string{"23-0099887"},
		CaseNumbers: []string{},
	}}
	p := newPipeline(store, fb)

	doc := pressReleaseDoc("doc-3")
	require.NoError(t, p.Process(context.Background(), &doc))

	assert.Equal(t, models.ExtractionLLM, doc.ExtractionMethod)
	assert.Equal(t, []string{"23-0099887"}, doc.CADNumbers)
	assert.True(t, doc.FOIAEligible)

	entry, ok := store.foia["doc-3"]
	require.True(t, ok)
	assert.Equal(t, []string{"23-0099887"}, entry.CADNumbers)
}

func TestProcess_FallbackFailureRoutesToReview(t *testing.T) {
	store := newMemStore()
	fb := &fakeFallback{err: errors.New("connection refused")}
	p := newPipeline(store, fb)

	doc := pressReleaseDoc("doc-4")
	require.NoError(t, p.Process(context.Background(), &doc), "a degraded fallback is not a stage failure")

	assert.Equal(t, models.ExtractionNone, doc.ExtractionMethod)
	assert.False(t, doc.FOIAEligible)

	entry, ok := store.review["doc-4"]
	require.True(t, ok)
	assert.Equal(t, models.ReasonFailedExtraction, entry.Reason)
	assert.Equal(t, models.ReviewPending, entry.Status)

	// The document still finished: chunks persisted, status done.
	assert.Equal(t, models.StatusDone, doc.Status)
	assert.NotEmpty(t, store.chunks["doc-4"])
}

func TestProcess_LowQualityRoutesToReview(t *testing.T) {
	store := newMemStore()
	p := newPipeline(store, nil)

	doc := models.Document{
		ID:          "doc-5",
		AgencyID:    "example_pd",
		SourceURL:   "https://example.gov/x",
		RawText:     "Brief note.",
		PublishedAt: fixedNow.Add(-24 * time.Hour),
		ScrapedAt:   fixedNow,
	}
	require.NoError(t, p.Process(context.Background(), &doc))

	require.NotNil(t, doc.ParseQuality)
	assert.Less(t, *doc.ParseQuality, 50)

	entry, ok := store.review["doc-5"]
	require.True(t, ok)
	assert.Equal(t, models.ReasonLowParseQuality, entry.Reason)
	assert.Equal(t, models.ReviewPending, entry.Status)
	assert.Equal(t, *doc.ParseQuality, entry.ParseQuality)
}

func TestProcess_ReviewUpdateKeepsStatus(t *testing.T) {
	store := newMemStore()
	p := newPipeline(store, nil)

	doc := pressReleaseDoc("doc-6")
	doc.RawText = "Brief note."
	require.NoError(t, p.Process(context.Background(), &doc))

	// Reviewer picks the entry up between runs.
	entry := store.review["doc-6"]
	entry.Status = models.ReviewReviewed
	store.review["doc-6"] = entry

	again := pressReleaseDoc("doc-6")
	again.RawText = "Brief note."
	require.NoError(t, p.Process(context.Background(), &again))

	assert.Equal(t, models.ReviewReviewed, store.review["doc-6"].Status,
		"reprocessing refreshes quality and reason but never the review status")
}

func TestProcess_ChunkFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	p := newPipeline(store, nil)

	doc := incidentDoc("doc-7")
	doc.AgencyID = ""

	err := p.Process(context.Background(), &doc)
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.LastError)
	assert.Equal(t, "chunk", store.failed["doc-7"])

	// Nothing was persisted for the failed run.
	assert.Empty(t, store.chunks["doc-7"])
	_, hasFoia := store.foia["doc-7"]
	assert.False(t, hasFoia)
}

type failingEmitter struct {
	calls int
}

func (e *failingEmitter) EmitChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	e.calls++
	return errors.New("consumer gone")
}

func TestProcess_EmitFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	emitter := &failingEmitter{}
	ch := chunker.NewWithConfig(chunker.ChunkerConfig{}, wordCounter{})
	p := NewWithConfig(PipelineConfig{Workers: 2}, store, nil, nil, ch, wordCounter{}, emitter)
	p.now = func() time.Time { return fixedNow }

	doc := incidentDoc("doc-10")
	require.NoError(t, p.Process(context.Background(), &doc))

	assert.Equal(t, 1, emitter.calls)
	assert.Equal(t, models.StatusDone, doc.Status)
	assert.NotEmpty(t, store.chunks["doc-10"], "persisted state survives a failed emit")
	assert.Empty(t, store.failed)
}

func TestProcess_PriorityGrowsWithIdentifiers(t *testing.T) {
	store := newMemStore()
	p := newPipeline(store, nil)

	one := incidentDoc("doc-8")
	require.NoError(t, p.Process(context.Background(), &one))

	three := incidentDoc("doc-9")
	three.RawText += " Related reports include case #23-004600 and case #23-004601."
	require.NoError(t, p.Process(context.Background(), &three))

	assert.Greater(t, store.foia["doc-9"].Priority, store.foia["doc-8"].Priority)
}

func TestProcessBatch(t *testing.T) {
	store := newMemStore()
	p := newPipeline(store, nil)

	docs := []models.Document{
		incidentDoc("batch-1"),
		incidentDoc("batch-2"),
		incidentDoc("batch-3"),
		incidentDoc("batch-4"),
	}
	require.NoError(t, p.ProcessBatch(context.Background(), docs))

	assert.Len(t, store.docs, 4)
	for _, id := range []string{"batch-1", "batch-2", "batch-3", "batch-4"} {
		assert.Equal(t, models.StatusDone, store.docs[id].Status)
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		name       string
		cleanScore int
		confidence float64
		outcome    extractionOutcome
		want       int
	}{
		{"regex hit clamps at 100", 100, 1.0, outcomeRegexHit, 100},
		{"mid score llm hit", 70, 0.7, outcomeLLMHit, 80},
		{"confirmed negative", 70, 0.4, outcomeLLMNegative, 63},
		{"failed extraction penalized", 50, 0.4, outcomeFailed, 21},
		{"floor at zero", 0, 0.0, outcomeFailed, 0},
		{"not attempted", 30, 0.4, outcomeNotAttempted, 34},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseQuality(tt.cleanScore, tt.confidence, tt.outcome))
		})
	}
}

func TestFoiaPriority(t *testing.T) {
	now := fixedNow

	recent := now.Add(-2 * 24 * time.Hour)
	old := now.Add(-400 * 24 * time.Hour)

	// Monotonic in identifier count.
	prev := -1
	for count := 0; count <= 6; count++ {
		score := foiaPriority(count, models.TypeIncidentReport, recent, now)
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}

	// Monotonic in recency.
	assert.Greater(t,
		foiaPriority(2, models.TypePressRelease, recent, now),
		foiaPriority(2, models.TypePressRelease, old, now))

	// Bounded.
	assert.LessOrEqual(t, foiaPriority(10, models.TypeIncidentReport, recent, now), 100)
	assert.GreaterOrEqual(t, foiaPriority(0, models.TypeRSSItem, old, now), 0)

	// Identifier points cap at 40.
	assert.Equal(t,
		foiaPriority(4, models.TypeArrestLog, recent, now),
		foiaPriority(9, models.TypeArrestLog, recent, now))
}

func TestPartition_Stable(t *testing.T) {
	for _, id := range []string{"a", "b", "doc-123", "ffffffff"} {
		w := partition(id, 8)
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, 8)
		assert.Equal(t, w, partition(id, 8))
	}
}
