package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Retries < 1 || c.LLM.Retries > 10 {
		errors = append(errors, ValidationError{
			Field:   "llm.retries",
			Message: "retries must be between 1 and 10",
		})
	}

	if c.LLM.Parallel < 1 || c.LLM.Parallel > 16 {
		errors = append(errors, ValidationError{
			Field:   "llm.parallel",
			Message: "parallel must be between 1 and 16",
		})
	}

	if c.LLM.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Pipeline.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.workers",
			Message: "workers must be positive",
		})
	}

	if c.Pipeline.QualityThreshold < 0 || c.Pipeline.QualityThreshold > 100 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.quality_threshold",
			Message: "quality_threshold must be between 0 and 100",
		})
	}

	if c.Pipeline.FallbackMinTokens < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.fallback_min_tokens",
			Message: "fallback_min_tokens must be non-negative",
		})
	}

	if c.Budget.Ceiling <= 0 || c.Budget.Ceiling > 1 {
		errors = append(errors, ValidationError{
			Field:   "budget.ceiling",
			Message: "ceiling must be in (0, 1]",
		})
	}

	if c.Budget.Target <= 0 || c.Budget.Target > c.Budget.Ceiling {
		errors = append(errors, ValidationError{
			Field:   "budget.target",
			Message: "target must be positive and not exceed ceiling",
		})
	}

	if c.Budget.Window < 1 {
		errors = append(errors, ValidationError{
			Field:   "budget.window",
			Message: "window must be positive",
		})
	}

	if c.Chunker.TargetTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.target_tokens",
			Message: "target_tokens must be positive",
		})
	}

	if c.Chunker.MinTokens < 0 || c.Chunker.MinTokens >= c.Chunker.TargetTokens {
		errors = append(errors, ValidationError{
			Field:   "chunker.min_tokens",
			Message: "min_tokens must be non-negative and less than target_tokens",
		})
	}

	if c.Chunker.OverlapSentences < 0 {
		errors = append(errors, ValidationError{
			Field:   "chunker.overlap_sentences",
			Message: "overlap_sentences must be non-negative",
		})
	}

	return errors
}
