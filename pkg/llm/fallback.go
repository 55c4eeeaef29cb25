// Package llm implements the gated fallback path of the extraction
// cascade: one structured-extraction call against a local language
// model for documents the pattern library came up empty on.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/types"
)

// systemPrompt is the fixed prompt contract: document text in, one JSON
// object with both identifier arrays out.
const systemPrompt = `You extract law enforcement incident identifiers from public safety documents. ` +
	`Respond with only a JSON object of the form {"cad_numbers": [], "case_numbers": []}. ` +
	`CAD numbers are computer-aided dispatch event identifiers. Case numbers are case, report, or DR numbers. ` +
	`Use empty arrays when the document contains none. Do not invent identifiers.`

// maxPromptChars bounds what we send per call; identifiers in these
// documents appear early, and longer prompts only add latency and cost.
const maxPromptChars = 12000

type FallbackConfig struct {
	Model     string
	BaseURL   string // Ollama server URL
	MaxTokens int    // response token cap per call
	Timeout   time.Duration
	Retries   int
	RateLimit float64
	Parallel  int
	MinTokens int
}

// Fallback issues structured-extraction calls under a strict gate. It
// is the only pipeline stage that leaves the process, so it carries its
// own concurrency cap and rate limit independent of the worker pool.
type Fallback struct {
	config  FallbackConfig
	model   llms.Model
	sem     chan struct{}
	limiter *rate.Limiter
}

var _ types.FallbackExtractor = (*Fallback)(nil)

func applyFallbackDefaults(config *FallbackConfig) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retries == 0 {
		config.Retries = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2.0
	}
	if config.Parallel == 0 {
		config.Parallel = 4
	}
	if config.MinTokens == 0 {
		config.MinTokens = 100
	}
}

// NewWithConfig creates a Fallback backed by an Ollama model in JSON
// output mode.
func NewWithConfig(config FallbackConfig) (*Fallback, error) {
	applyFallbackDefaults(&config)

	model, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(config, model), nil
}

// NewWithModel wires an explicit model implementation, used by tests.
func NewWithModel(config FallbackConfig, model llms.Model) *Fallback {
	applyFallbackDefaults(&config)

	return &Fallback{
		config:  config,
		model:   model,
		sem:     make(chan struct{}, config.Parallel),
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Eligible implements the gating policy: the pattern library produced
// empty sets, the document is a press release, and the cleaned text is
// long enough to plausibly carry an identifier worth a paid call.
func (f *Fallback) Eligible(doc *models.Document, tokenCount int) bool {
	if len(doc.CADNumbers) > 0 || len(doc.CaseNumbers) > 0 {
		return false
	}
	if doc.DocumentType != models.TypePressRelease {
		return false
	}
	return tokenCount > f.config.MinTokens
}

// Extract issues the structured-extraction call with bounded retries
// and per-call timeout. A timed-out call lands on the retry path like
// any other transport failure; the caller degrades to extraction_method
// "none" when the error return is non-nil.
func (f *Fallback) Extract(ctx context.Context, text string) (types.IdentifierResult, error) {
	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return types.IdentifierResult{}, ctx.Err()
	}

	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	var lastErr error
	for attempt := 0; attempt < f.config.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return types.IdentifierResult{}, err
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return types.IdentifierResult{}, err
		}

		callCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
		resp, err := f.model.GenerateContent(callCtx, content, llms.WithMaxTokens(f.config.MaxTokens))
		cancel()

		if err != nil {
			lastErr = err
			continue
		}

		result, err := parseResult(resp)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	return types.IdentifierResult{}, fmt.Errorf("fallback extraction failed after %d attempts: %w", f.config.Retries, lastErr)
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseResult pulls the JSON object out of a model response. Models in
// JSON mode still occasionally wrap output in code fences.
func parseResult(resp *llms.ContentResponse) (types.IdentifierResult, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return types.IdentifierResult{}, fmt.Errorf("empty model response")
	}

	raw := strings.TrimSpace(resp.Choices[0].Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var result types.IdentifierResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return types.IdentifierResult{}, fmt.Errorf("malformed extraction response: %w", err)
	}

	result.CADNumbers = models.NormalizeSet(result.CADNumbers)
	result.CaseNumbers = models.NormalizeSet(result.CaseNumbers)
	return result, nil
}
