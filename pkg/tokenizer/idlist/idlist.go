// Package idlist reads token ids written out literally, as "[464, 3290, 318]"
// or "464 3290 318". It lets callers that tokenize elsewhere use the
// embedding service directly.
package idlist

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type Tokenizer struct{}

func New() *Tokenizer {
	return &Tokenizer{}
}

func (t *Tokenizer) Tokenize(ctx context.Context, text string) ([]int64, []string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "[")
	text = strings.TrimSuffix(text, "]")

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, nil, nil
	}

	ids := make([]int64, len(fields))
	for i, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing token id %q: %w", f, err)
		}
		ids[i] = id
	}
	return ids, fields, nil
}

func (t *Tokenizer) Detokenize(ctx context.Context, ids []int64) (string, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}
