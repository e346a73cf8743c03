package factory

import (
	"fmt"

	"zero-entropy-be/pkg/llm"
	"zero-entropy-be/pkg/llm/anthropic"
	"zero-entropy-be/pkg/llm/ollama"
	"zero-entropy-be/pkg/llm/openai"
)

type Params struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
}

func NewLLMProvider(p Params) (llm.LLMProvider, error) {
	switch p.Provider {
	case "ollama":
		baseURL := p.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, p.Model, p.Temperature), nil
	case "openai":
		if p.APIKey == "" && p.BaseURL == "" {
			return nil, fmt.Errorf("openai provider needs OPENAI_API_KEY or OPENAI_BASE_URL")
		}
		return openai.NewProvider(p.APIKey, p.BaseURL, p.Model, p.Temperature), nil
	case "anthropic":
		if p.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider needs ANTHROPIC_API_KEY")
		}
		return anthropic.NewProvider(p.APIKey, p.BaseURL, p.Model, p.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", p.Provider)
	}
}
