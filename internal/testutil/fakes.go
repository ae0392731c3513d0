// Package testutil holds in-process stand-ins for the model and embedding
// services so packages can be tested without network access.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// FakeLLM answers with a function of the prompt and records every prompt it
// receives.
type FakeLLM struct {
	mu      sync.Mutex
	Respond func(prompt string) (string, error)
	prompts []string
}

// NewFakeLLM returns a model that replies with reply to every prompt.
func NewFakeLLM(reply string) *FakeLLM {
	return &FakeLLM{Respond: func(string) (string, error) { return reply, nil }}
}

// NewRoutingFakeLLM answers classifier prompts with label and everything
// else with answer.
func NewRoutingFakeLLM(label, answer string) *FakeLLM {
	return &FakeLLM{Respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Category:") {
			return label, nil
		}
		return answer, nil
	}}
}

func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				sb.WriteString(t.Text)
			}
		}
	}
	prompt := sb.String()

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	out, err := f.Respond(prompt)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Prompts returns a copy of the prompts seen so far.
func (f *FakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// LastPrompt returns the most recent prompt or "".
func (f *FakeLLM) LastPrompt() string {
	p := f.Prompts()
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// ErrFake is returned by failing fakes.
var ErrFake = errors.New("fake failure")

// HashEmbedder is a deterministic bag-of-words embedder: every lower-cased
// word is hashed into one of Dim buckets. The last bucket is a constant bias
// so no vector is all zeros.
type HashEmbedder struct {
	Dim  int
	Fail bool
	// Block makes every call wait for its context to end.
	Block bool

	mu    sync.Mutex
	calls int
}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: 64}
}

func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.Fail {
		return nil, ErrFake
	}

	v := make([]float32, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.Dim-1)]++
	}
	v[e.Dim-1] = 0.1

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}

// Calls reports how many texts were embedded.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
