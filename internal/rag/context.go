package rag

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/prajwalprabhu/File-Chat/internal/models"
)

// Tokenizer counts text the way the inference model does.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

var ErrNoTokenizer = errors.New("a tokenizer is required to bound the context")

func init() {
	// encodings are read from the embedded ranks instead of being downloaded
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// NewTiktoken returns a Tokenizer for a tiktoken encoding such as cl100k_base.
// Only cl100k_base, o200k_base and p50k_base ship with the binary.
func NewTiktoken(encoding string) (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding %s: %w", encoding, err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// ContextAssembler joins retrieved chunks into a context bounded in tokens.
type ContextAssembler struct {
	tok Tokenizer
}

func NewContextAssembler(tok Tokenizer) (*ContextAssembler, error) {
	if tok == nil {
		return nil, ErrNoTokenizer
	}
	return &ContextAssembler{tok: tok}, nil
}

// Assemble joins chunk texts in rank order with a blank line between them.
// Text longer than maxTokens is cut at a token boundary; maxTokens <= 0
// disables the bound.
func (a *ContextAssembler) Assemble(chunks []models.Chunk, maxTokens int) string {
	if len(chunks) == 0 {
		return ""
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	joined := strings.Join(texts, models.ContextSeparator)
	if maxTokens <= 0 {
		return joined
	}

	tokens := a.tok.Encode(joined)
	if len(tokens) <= maxTokens {
		return joined
	}
	return trimInvalidSuffix(a.tok.Decode(tokens[:maxTokens]))
}

// trimInvalidSuffix drops a partial UTF-8 sequence left by cutting a
// multi-byte character across tokens.
func trimInvalidSuffix(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}
