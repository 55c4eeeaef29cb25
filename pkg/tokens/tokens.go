// Package tokens counts text tokens for chunk sizing and the fallback
// gating minimum.
package tokens

import "github.com/pkoukk/tiktoken-go"

// Counter counts tokens with the cl100k_base BPE. When the encoding
// cannot be loaded (offline environments) it degrades to a word-based
// approximation; counts only feed size heuristics, not correctness.
type Counter struct {
	enc *tiktoken.Tiktoken
}

func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

func (c *Counter) Count(text string) int {
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return approximate(text)
}

// approximate assumes ~4/3 tokens per whitespace-separated word.
func approximate(text string) int {
	words := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return words * 4 / 3
}
