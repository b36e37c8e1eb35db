// Package vocab tokenizes text against a GPT-2 style vocab.json, in which a
// leading "Ġ" marks a token that starts after a space.
package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	SpaceMarker = "Ġ"

	DefaultUnknownToken = "<|endoftext|>"
	DefaultMaxTokens    = 128
)

type Options struct {
	// UnknownToken replaces characters no vocabulary entry covers. When it is
	// not in the vocabulary such characters are an error.
	UnknownToken string

	// MaxTokens truncates the output. Zero means DefaultMaxTokens, negative means no limit.
	MaxTokens int
}

type Tokenizer struct {
	values  map[string]int64
	indices map[int64]string

	// longest is the length in runes of the longest entry.
	longest int

	unknown    int64
	hasUnknown bool
	maxTokens  int
}

// NewTokenizer loads a vocabulary from a JSON object mapping tokens to ids.
func NewTokenizer(vocabPath string, opts Options) (*Tokenizer, error) {
	b, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	values := make(map[string]int64)
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary %q: %w", vocabPath, err)
	}
	return New(values, opts)
}

func New(values map[string]int64, opts Options) (*Tokenizer, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("vocabulary is empty")
	}
	t := &Tokenizer{
		values:    values,
		indices:   make(map[int64]string, len(values)),
		maxTokens: opts.MaxTokens,
	}
	if t.maxTokens == 0 {
		t.maxTokens = DefaultMaxTokens
	}
	for token, id := range values {
		if other, ok := t.indices[id]; ok {
			return nil, fmt.Errorf("tokens %q and %q share id %d", other, token, id)
		}
		t.indices[id] = token
		t.longest = max(t.longest, utf8.RuneCountInString(token))
	}

	unk := opts.UnknownToken
	if unk == "" {
		unk = DefaultUnknownToken
	}
	t.unknown, t.hasUnknown = values[unk]
	return t, nil
}

// Tokenize splits text on whitespace and covers each word with the longest
// vocabulary entries it can find, left to right.
func (t *Tokenizer) Tokenize(ctx context.Context, text string) ([]int64, []string, error) {
	var ids []int64
	var tokens []string
	for i, word := range strings.Fields(text) {
		if i > 0 {
			word = SpaceMarker + word
		}
		runes := []rune(word)
		for start := 0; start < len(runes); {
			end := min(len(runes), start+t.longest)
			for ; end > start; end-- {
				if id, ok := t.values[string(runes[start:end])]; ok {
					ids = append(ids, id)
					tokens = append(tokens, display(string(runes[start:end])))
					break
				}
			}
			if end == start {
				if !t.hasUnknown {
					return nil, nil, fmt.Errorf("no token covers %q in %q", string(runes[start]), word)
				}
				ids = append(ids, t.unknown)
				tokens = append(tokens, string(runes[start]))
				end = start + 1
			}
			start = end
		}
	}

	if t.maxTokens > 0 && len(ids) > t.maxTokens {
		ids, tokens = ids[:t.maxTokens], tokens[:t.maxTokens]
	}
	return ids, tokens, nil
}

func (t *Tokenizer) Detokenize(ctx context.Context, ids []int64) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		piece, ok := t.indices[id]
		if !ok {
			return "", fmt.Errorf("token id %d is not in the vocabulary", id)
		}
		sb.WriteString(display(piece))
	}
	return sb.String(), nil
}

func display(token string) string {
	return strings.ReplaceAll(token, SpaceMarker, " ")
}
