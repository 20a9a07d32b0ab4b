package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// NoSuggestion is the recommendation used when a provider answers with an
// empty completion.
const NoSuggestion = "No suggestion available."

// ErrNoResponse is returned by Complete when the provider closed its stream
// without a final response.
var ErrNoResponse = errors.New("model: no response")

// Request captures the normalized generation input: an optional system
// instruction and the user prompt (the assembled summary).
type Request struct {
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a generator. The final
// chunk carries the full text.
type Response struct {
	ID           string      `json:"id,omitempty"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"` // "stop", "length", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a generator implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "ollama", "anthropic", "mock"
}

// Generator is the text generation capability that turns the assembled
// summary into free text.
type Generator interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the generator implementation.
	Info() Info
}

// Complete drains a generation and returns the final text, trimmed.
func Complete(ctx context.Context, g Generator, req Request) (string, error) {
	respCh, errCh := g.Generate(ctx, req)

	var final *Response
	for r := range respCh {
		if !r.Partial {
			final = &r
		}
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	if final == nil {
		return "", ErrNoResponse
	}
	return strings.TrimSpace(final.Text), nil
}

// MockModel is a lightweight in-memory Generator useful for tests & examples.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	err       error
	prompts   []string
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// SetError makes every following generation fail with err (nil resets).
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Prompts returns the prompts seen so far.
func (m *MockModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Generate implements Generator; emits optional streaming chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	full, ok := m.responses[req.Prompt]
	failure := m.err
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if failure != nil {
			errCh <- failure
			return
		}
		if req.Prompt == "" {
			errCh <- fmt.Errorf("no prompt provided")
			return
		}
		if !ok {
			full = fmt.Sprintf("Mock suggestion for: %s", firstLine(req.Prompt))
		}
		if req.Stream {
			for _, w := range strings.SplitAfter(full, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: w}:
				}
			}
		}
		respCh <- Response{Text: full, FinishReason: "stop"}
	}()
	return respCh, errCh
}

// Info implements Generator.
func (m *MockModel) Info() Info { return m.info }

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
