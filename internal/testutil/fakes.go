// Package testutil holds deterministic stand-ins for the model clients.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// FakeEmbedder maps text to a bag-of-words vector. Texts sharing words are
// similar, identical texts get identical vectors.
type FakeEmbedder struct {
	Dim int
	Err error

	mu          sync.Mutex
	DocCalls    int
	QueryCalls  int
	EmbeddedLen int
}

func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Dim: 32}
}

func (f *FakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.DocCalls++
	f.EmbeddedLen += len(texts)
	err := f.Err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *FakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.QueryCalls++
	err := f.Err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.vector(text), nil
}

func (f *FakeEmbedder) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

func (f *FakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.Dim)
	// constant component keeps every vector non-zero
	v[f.Dim-1] = 0.1
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[int(h.Sum32()%uint32(f.Dim-1))]++
	}
	return v
}

// FakeLLM answers prompts with Respond and records every prompt it saw.
type FakeLLM struct {
	Respond func(prompt string) (string, error)

	mu      sync.Mutex
	Prompts []string
}

var _ llms.Model = (*FakeLLM)(nil)

var ErrNoResponder = errors.New("fake llm has no responder")

func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var b strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				b.WriteString(tc.Text)
			}
		}
	}
	prompt := b.String()

	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt)
	f.mu.Unlock()

	if f.Respond == nil {
		return nil, ErrNoResponder
	}
	out, err := f.Respond(prompt)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Calls returns a copy of the recorded prompts.
func (f *FakeLLM) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Prompts...)
}
