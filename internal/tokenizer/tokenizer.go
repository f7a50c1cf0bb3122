// Package tokenizer provides token counting and truncation helpers.
//
// Counting uses tiktoken so the enforced maximum sequence length tracks what
// transformer tokenizers actually produce. The service treats the model as an
// opaque encode capability, so one shared encoding is used for every model;
// when the vocabulary cannot be loaded the helpers fall back to a
// conservative one-token-per-four-runes estimate.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackRunesPerToken is the conservative estimate used when no encoding
// is available.
const fallbackRunesPerToken = 4

var (
	encodingOnce sync.Once
	encodingEnc  *tiktoken.Tiktoken
)

// encoding returns the shared cl100k_base encoding, or nil when the
// vocabulary cannot be loaded (offline host with a cold tiktoken cache).
func encoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encodingEnc = enc
		}
	})
	return encodingEnc
}

// Count returns the approximate token count for text.
func Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return runeEstimate(text)
}

// Truncate shortens text to at most maxTokens tokens and reports whether
// anything was removed. The result is a prefix of the input. A non-positive
// maxTokens leaves text untouched.
func Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}

	if enc := encoding(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text, false
		}
		return enc.Decode(tokens[:maxTokens]), true
	}

	limit := maxTokens * fallbackRunesPerToken
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:limit]), true
}

func runeEstimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + fallbackRunesPerToken - 1) / fallbackRunesPerToken
}
