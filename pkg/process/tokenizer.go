package process

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates prompt size so classification batches stay under the
// oracle's input budget. Gemini's tokenizer is not public; cl100k_base is a
// close enough approximation for budgeting.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter returns a counter for the named encoding ("" = cl100k_base).
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	var enc tokenizer.Encoding
	switch encoding {
	case "", "cl100k_base":
		enc = tokenizer.Cl100kBase
	case "o200k_base":
		enc = tokenizer.O200kBase
	case "p50k_base":
		enc = tokenizer.P50kBase
	case "r50k_base":
		enc = tokenizer.R50kBase
	default:
		return nil, fmt.Errorf("unknown token encoding %q", encoding)
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the token count of text, or -1 if encoding fails.
// A nil counter falls back to a 4-characters-per-token estimate.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return (len(text) + 3) / 4
	}
	ids, _, err := tc.codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}
