package providers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"lens_gateway/internal/models"
)

const (
	azureVendor            = "Azure OpenAI"
	azureDefaultAPIVersion = "2024-02-15-preview"
)

var (
	errAzureAPIKey     = errors.New("Azure OpenAI API key is required")
	errAzureEndpoint   = errors.New("Azure OpenAI endpoint is required in configuration")
	errAzureDeployment = errors.New("Azure OpenAI deployment_name is required in configuration")
)

// AzureOpenAIAdapter talks to a tenant-specific Azure OpenAI resource. The
// deployment name takes the place of a model.
type AzureOpenAIAdapter struct {
	client *http.Client
}

// NewAzureOpenAIAdapter creates the Azure OpenAI adapter
func NewAzureOpenAIAdapter(client *http.Client) Adapter {
	return &AzureOpenAIAdapter{client: client}
}

func (a *AzureOpenAIAdapter) Type() models.ProviderType {
	return models.ProviderTypeAzureOpenAI
}

func (a *AzureOpenAIAdapter) DefaultModel(s Settings) string {
	return s.DeploymentName
}

func (a *AzureOpenAIAdapter) apiVersion(s Settings) string {
	if s.APIVersion != "" {
		return s.APIVersion
	}
	return azureDefaultAPIVersion
}

func (a *AzureOpenAIAdapter) endpoint(s Settings) string {
	return strings.TrimRight(s.Endpoint, "/")
}

func (a *AzureOpenAIAdapter) completionsURL(s Settings) string {
	return a.endpoint(s) + "/openai/deployments/" + url.PathEscape(s.DeploymentName) +
		"/chat/completions?api-version=" + url.QueryEscape(a.apiVersion(s))
}

// Execute sends a chat completion to the configured deployment. The request
// model is ignored; Azure routes by deployment.
func (a *AzureOpenAIAdapter) Execute(ctx context.Context, req Request, s Settings) (*Response, error) {
	if s.Endpoint == "" {
		return nil, errAzureEndpoint
	}
	if s.DeploymentName == "" {
		return nil, errAzureDeployment
	}

	var resp chatCompletionResponse
	err := do(ctx, a.client, vendorCall{
		vendor: azureVendor,
		method: http.MethodPost,
		url:    a.completionsURL(s),
		body:   newChatCompletionRequest("", req),
		auth:   NewHeaderAuth(s.APIKey, "api-key", ""),
	}, &resp)
	if err != nil {
		return nil, err
	}

	text, tokens := resp.output()

	// Deployment names are arbitrary; price by the underlying model Azure reports.
	model := resp.Model
	if model == "" {
		model = s.DeploymentName
	}

	return &Response{
		Output: text,
		Tokens: tokens,
		Cost:   EstimateCost(models.ProviderTypeAzureOpenAI, resp.Model, tokens),
		Model:  model,
	}, nil
}

// TestConnection lists the resource's models, then sends a one-token
// completion to the deployment.
func (a *AzureOpenAIAdapter) TestConnection(ctx context.Context, s Settings) (*ConnectionResult, error) {
	if s.APIKey == "" {
		return nil, errAzureAPIKey
	}
	if s.Endpoint == "" {
		return nil, errAzureEndpoint
	}
	if s.DeploymentName == "" {
		return nil, errAzureDeployment
	}

	auth := NewHeaderAuth(s.APIKey, "api-key", "")

	var list modelList
	err := do(ctx, a.client, vendorCall{
		vendor: azureVendor,
		method: http.MethodGet,
		url:    a.endpoint(s) + "/openai/models?api-version=" + url.QueryEscape(a.apiVersion(s)),
		auth:   auth,
	}, &list)
	if err != nil {
		return nil, err
	}

	err = do(ctx, a.client, vendorCall{
		vendor: azureVendor,
		method: http.MethodPost,
		url:    a.completionsURL(s),
		body:   newChatCompletionRequest("", Request{Prompt: "Hello", MaxTokens: 1}),
		auth:   auth,
	}, nil)
	if err != nil {
		return nil, err
	}

	return &ConnectionResult{
		Message: "Successfully connected to Azure OpenAI",
		Details: map[string]any{
			"endpoint":        s.Endpoint,
			"deployment":      s.DeploymentName,
			"apiVersion":      a.apiVersion(s),
			"modelsAvailable": len(list.Data),
		},
	}, nil
}
