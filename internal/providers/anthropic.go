package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lens_gateway/internal/models"
)

const (
	anthropicVendor         = "Anthropic"
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-3-sonnet-20240229"
	anthropicVersion        = "2023-06-01"
)

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicAdapter talks to the Anthropic Messages API.
type AnthropicAdapter struct {
	client *http.Client
}

// NewAnthropicAdapter creates the Anthropic adapter
func NewAnthropicAdapter(client *http.Client) Adapter {
	return &AnthropicAdapter{client: client}
}

func (a *AnthropicAdapter) Type() models.ProviderType {
	return models.ProviderTypeAnthropic
}

func (a *AnthropicAdapter) DefaultModel(Settings) string {
	return anthropicDefaultModel
}

func (a *AnthropicAdapter) call(method, url string, s Settings, body any) vendorCall {
	return vendorCall{
		vendor:  anthropicVendor,
		method:  method,
		url:     url,
		body:    body,
		auth:    NewHeaderAuth(s.APIKey, "x-api-key", ""),
		headers: map[string]string{"anthropic-version": anthropicVersion},
	}
}

func (a *AnthropicAdapter) Execute(ctx context.Context, req Request, s Settings) (*Response, error) {
	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}

	payload := anthropicRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	}

	var resp anthropicResponse
	url := s.baseURL(anthropicDefaultBaseURL) + "/messages"
	if err := do(ctx, a.client, a.call(http.MethodPost, url, s, payload), &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	tokens := Tokens{
		Input:  resp.Usage.InputTokens,
		Output: resp.Usage.OutputTokens,
		Total:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}

	reported := resp.Model
	if reported == "" {
		reported = model
	}

	return &Response{
		Output: text.String(),
		Tokens: tokens,
		Cost:   EstimateCost(models.ProviderTypeAnthropic, model, tokens),
		Model:  reported,
	}, nil
}

// TestConnection lists models, then sends a one-token message with the
// default model.
func (a *AnthropicAdapter) TestConnection(ctx context.Context, s Settings) (*ConnectionResult, error) {
	if s.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	base := s.baseURL(anthropicDefaultBaseURL)

	var list modelList
	if err := do(ctx, a.client, a.call(http.MethodGet, base+"/models", s, nil), &list); err != nil {
		return nil, err
	}

	probe := anthropicRequest{
		Model:     anthropicDefaultModel,
		MaxTokens: 1,
		Messages:  []chatMessage{{Role: "user", Content: "Hello"}},
	}
	if err := do(ctx, a.client, a.call(http.MethodPost, base+"/messages", s, probe), nil); err != nil {
		return nil, err
	}

	return &ConnectionResult{
		Message: "Successfully connected to Anthropic",
		Details: map[string]any{
			"model":           anthropicDefaultModel,
			"modelsAvailable": len(list.Data),
		},
	}, nil
}
