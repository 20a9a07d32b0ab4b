package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Generator = (*MockModel)(nil)

func TestMockModel_Complete(t *testing.T) {
	m := NewMockModel("mock-1")
	m.AddResponse("📍 Location: Berlin", "  Visit the Tiergarten.  ")

	text, err := Complete(context.Background(), m, Request{Prompt: "📍 Location: Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "Visit the Tiergarten.", text)
	assert.Equal(t, []string{"📍 Location: Berlin"}, m.Prompts())
	assert.Equal(t, Info{Name: "mock-1", Provider: "mock"}, m.Info())
}

func TestMockModel_StreamingEndsWithFinal(t *testing.T) {
	m := NewMockModel("mock-1")
	m.AddResponse("p", "go for a run")

	respCh, errCh := m.Generate(context.Background(), Request{Prompt: "p", Stream: true})
	var partial, final string
	for r := range respCh {
		if r.Partial {
			partial += r.Text
			continue
		}
		final = r.Text
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "go for a run", partial)
	assert.Equal(t, "go for a run", final)
}

func TestMockModel_DefaultResponse(t *testing.T) {
	text, err := Complete(context.Background(), NewMockModel("m"), Request{Prompt: "first line\nsecond"})
	require.NoError(t, err)
	assert.Equal(t, "Mock suggestion for: first line", text)
}

func TestMockModel_Errors(t *testing.T) {
	m := NewMockModel("m")
	_, err := Complete(context.Background(), m, Request{})
	assert.Error(t, err)

	boom := errors.New("ollama down")
	m.SetError(boom)
	_, err = Complete(context.Background(), m, Request{Prompt: "p"})
	assert.ErrorIs(t, err, boom)
}

type silentGenerator struct{}

func (silentGenerator) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response)
	errCh := make(chan error)
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (silentGenerator) Info() Info { return Info{Name: "silent"} }

func TestComplete_NoFinalResponse(t *testing.T) {
	_, err := Complete(context.Background(), silentGenerator{}, Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNoResponse)
}
