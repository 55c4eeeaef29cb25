// Package chunker splits finalized documents into ordered chunks, each
// carrying a frozen snapshot of the parent's metadata taken at creation
// time. Splitting is deterministic: the same document produces the same
// chunk set, down to the chunk IDs.
package chunker

import (
	"fmt"
	"strings"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/types"
)

type ChunkerConfig struct {
	// TargetTokens is the token budget per chunk; a chunk closes once
	// the next sentence would push it past the budget.
	TargetTokens int
	// OverlapSentences carries this many trailing sentences into the
	// next chunk for context continuity.
	OverlapSentences int
	// MinTokens drops trailing fragments too small to index usefully,
	// unless they are the document's only chunk.
	MinTokens int
}

type Chunker struct {
	config  ChunkerConfig
	counter types.TokenCounter
}

func NewWithConfig(config ChunkerConfig, counter types.TokenCounter) *Chunker {
	if config.TargetTokens == 0 {
		config.TargetTokens = 300
	}
	if config.MinTokens == 0 {
		config.MinTokens = 20
	}
	if config.OverlapSentences < 0 {
		config.OverlapSentences = 0
	}

	return &Chunker{
		config:  config,
		counter: counter,
	}
}

// Split breaks the document's cleaned text into chunks. The document
// must be fully extracted and scored before chunking; incomplete
// metadata is rejected by chunk construction rather than persisted.
func (c *Chunker) Split(doc *models.Document) ([]models.Chunk, error) {
	text := strings.TrimSpace(doc.CleanedText)
	if text == "" {
		return nil, nil
	}

	sentences := splitSentences(text)

	var chunks []models.Chunk
	var current []string
	currentTokens := 0

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		body := strings.TrimSpace(strings.Join(current, " "))
		if body == "" {
			current = nil
			currentTokens = 0
			return nil
		}
		chunk, err := models.NewChunk(doc, len(chunks), body, c.counter.Count(body))
		if err != nil {
			return fmt.Errorf("chunking document %s: %w", doc.ID, err)
		}
		chunks = append(chunks, chunk)

		// Seed the next chunk with the configured sentence overlap.
		overlapFrom := len(current) - c.config.OverlapSentences
		if overlapFrom < 0 || c.config.OverlapSentences == 0 {
			current = nil
		} else {
			current = append([]string(nil), current[overlapFrom:]...)
		}
		currentTokens = 0
		for _, s := range current {
			currentTokens += c.counter.Count(s)
		}
		return nil
	}

	for _, sentence := range sentences {
		t := c.counter.Count(sentence)
		if currentTokens+t > c.config.TargetTokens && currentTokens > 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		current = append(current, sentence)
		currentTokens += t
	}

	// Final chunk: drop a fragment below the minimum unless it would be
	// the only chunk of the document.
	if len(current) > 0 {
		body := strings.TrimSpace(strings.Join(current, " "))
		tokens := c.counter.Count(body)
		onlyOverlap := len(chunks) > 0 && len(current) <= c.config.OverlapSentences
		if body != "" && !onlyOverlap && (tokens >= c.config.MinTokens || len(chunks) == 0) {
			chunk, err := models.NewChunk(doc, len(chunks), body, tokens)
			if err != nil {
				return nil, fmt.Errorf("chunking document %s: %w", doc.ID, err)
			}
			chunks = append(chunks, chunk)
		}
	}

	return chunks, nil
}

// splitSentences breaks text on sentence-ending punctuation and on
// paragraph boundaries. The split is intentionally simple; it only has
// to be deterministic and roughly aligned with sentence edges.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	emit := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			if i+1 < len(runes) && runes[i+1] == '\n' {
				emit()
				for i+1 < len(runes) && runes[i+1] == '\n' {
					i++
				}
				continue
			}
			current.WriteRune(' ')
			continue
		}

		current.WriteRune(r)

		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n') {
			emit()
		}
	}
	emit()

	return sentences
}
