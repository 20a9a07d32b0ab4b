package main

import (
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/brokermesh/config"
	"github.com/hupe1980/brokermesh/model"
	"github.com/hupe1980/brokermesh/model/anthropic"
	"github.com/hupe1980/brokermesh/model/openai"
)

// newGenerator builds the text generator selected by LLM_PROVIDER.
func newGenerator(cfg config.LLM) (model.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return openai.NewOllamaModel(cfg.Model, func(o *openai.Options) {
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}
			o.Temperature = cfg.Temperature
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			// the default base URL points at Ollama
			if cfg.BaseURL != "" && cfg.BaseURL != openai.OllamaBaseURL {
				o.BaseURL = cfg.BaseURL
			}
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if strings.HasPrefix(cfg.Model, "claude") {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
		}), nil
	case config.ProviderMock:
		return model.NewMockModel(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
