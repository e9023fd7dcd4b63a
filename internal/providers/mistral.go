package providers

import (
	"net/http"

	"lens_gateway/internal/models"
)

const (
	mistralDefaultBaseURL = "https://api.mistral.ai/v1"
	mistralDefaultModel   = "mistral-large-latest"
)

// NewMistralAdapter creates the Mistral adapter
func NewMistralAdapter(client *http.Client) Adapter {
	return &chatCompletionsAdapter{
		providerType:   models.ProviderTypeMistral,
		vendor:         "Mistral",
		defaultBaseURL: mistralDefaultBaseURL,
		defaultModel:   mistralDefaultModel,
		client:         client,
	}
}
