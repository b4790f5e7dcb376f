package ai

import (
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter measures how much of the model context a text consumes.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter returns a cl100k_base counter, or the heuristic one if the
// encoding cannot be loaded.
func NewTokenCounter() TokenCounter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Str("component", "ai").Msg("tokenizer unavailable, falling back to estimate")
		return HeuristicCounter{}
	}
	return tiktokenCounter{codec: codec}
}

func (c tiktokenCounter) Count(text string) int {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return EstimateTokens(text)
	}
	return len(ids)
}

// HeuristicCounter estimates tokens without a vocabulary.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int { return EstimateTokens(text) }

// EstimateTokens weighs ASCII at roughly four characters per token and any
// other rune at one token each.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}
