package providers

import (
	"context"
	"fmt"
	"net/http"

	"lens_gateway/internal/models"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the OpenAI chat completions payload, also spoken
// by Azure OpenAI, xAI and Mistral.
type chatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func newChatCompletionRequest(model string, req Request) chatCompletionRequest {
	return chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// output returns the first choice's text and the reported usage.
func (r *chatCompletionResponse) output() (string, Tokens) {
	var text string
	if len(r.Choices) > 0 {
		text = r.Choices[0].Message.Content
	}

	tokens := Tokens{
		Input:  r.Usage.PromptTokens,
		Output: r.Usage.CompletionTokens,
		Total:  r.Usage.TotalTokens,
	}
	if tokens.Total == 0 {
		tokens.Total = tokens.Input + tokens.Output
	}
	return text, tokens
}

// chatCompletionsAdapter serves every vendor exposing an OpenAI-compatible
// /chat/completions and /models API behind a bearer token.
type chatCompletionsAdapter struct {
	providerType   models.ProviderType
	vendor         string
	defaultBaseURL string
	defaultModel   string
	client         *http.Client
}

// NewOpenAIAdapter creates the OpenAI adapter
func NewOpenAIAdapter(client *http.Client) Adapter {
	return &chatCompletionsAdapter{
		providerType:   models.ProviderTypeOpenAI,
		vendor:         "OpenAI",
		defaultBaseURL: openAIDefaultBaseURL,
		defaultModel:   openAIDefaultModel,
		client:         client,
	}
}

func (a *chatCompletionsAdapter) Type() models.ProviderType {
	return a.providerType
}

func (a *chatCompletionsAdapter) DefaultModel(Settings) string {
	return a.defaultModel
}

// Execute sends one chat completion request
func (a *chatCompletionsAdapter) Execute(ctx context.Context, req Request, s Settings) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	var resp chatCompletionResponse
	err := do(ctx, a.client, vendorCall{
		vendor: a.vendor,
		method: http.MethodPost,
		url:    s.baseURL(a.defaultBaseURL) + "/chat/completions",
		body:   newChatCompletionRequest(model, req),
		auth:   NewBearerAuth(s.APIKey),
	}, &resp)
	if err != nil {
		return nil, err
	}

	text, tokens := resp.output()
	reported := resp.Model
	if reported == "" {
		reported = model
	}

	return &Response{
		Output: text,
		Tokens: tokens,
		Cost:   EstimateCost(a.providerType, model, tokens),
		Model:  reported,
	}, nil
}

// TestConnection lists the vendor's models
func (a *chatCompletionsAdapter) TestConnection(ctx context.Context, s Settings) (*ConnectionResult, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", a.vendor)
	}

	var list modelList
	err := do(ctx, a.client, vendorCall{
		vendor: a.vendor,
		method: http.MethodGet,
		url:    s.baseURL(a.defaultBaseURL) + "/models",
		auth:   NewBearerAuth(s.APIKey),
	}, &list)
	if err != nil {
		return nil, err
	}

	return &ConnectionResult{
		Message: fmt.Sprintf("Successfully connected to %s", a.vendor),
		Details: map[string]any{
			"modelsAvailable": len(list.Data),
			"defaultModel":    a.defaultModel,
		},
	}, nil
}
