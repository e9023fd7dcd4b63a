package providers

import (
	"net/http"

	"lens_gateway/internal/models"
)

const (
	xaiDefaultBaseURL = "https://api.x.ai/v1"
	xaiDefaultModel   = "grok-beta"
)

// NewXAIAdapter creates the xAI adapter. xAI speaks the OpenAI chat
// completions protocol.
func NewXAIAdapter(client *http.Client) Adapter {
	return &chatCompletionsAdapter{
		providerType:   models.ProviderTypeXAI,
		vendor:         "xAI",
		defaultBaseURL: xaiDefaultBaseURL,
		defaultModel:   xaiDefaultModel,
		client:         client,
	}
}
