package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/fantastic-router/fantastic-router/llm"
)

// OllamaProvider targets the OpenAI-compatible API served by Ollama, vLLM
// and similar local runtimes. Request and response formats are shared with
// OpenAIProvider; only the default base URL and auth differ.
type OllamaProvider struct {
	OpenAIProvider
}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildURL constructs the chat completions endpoint, defaulting to a local
// Ollama instance.
func (o *OllamaProvider) BuildURL(baseURL, model string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return o.OpenAIProvider.BuildURL(baseURL, model)
}

// SetHeaders adds a bearer token when one is configured. Local runtimes
// usually need none; gateways like OpenRouter do.
func (o *OllamaProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OLLAMA_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	}
}
