package providers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"lens_gateway/internal/models"
)

const (
	googleVendor         = "Google"
	googleDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	googleDefaultModel   = "gemini-pro"
)

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type googleRequest struct {
	Contents         []googleContent        `json:"contents"`
	GenerationConfig googleGenerationConfig `json:"generationConfig"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

// GoogleAdapter talks to the Gemini generateContent API.
type GoogleAdapter struct {
	client *http.Client
}

// NewGoogleAdapter creates the Google adapter
func NewGoogleAdapter(client *http.Client) Adapter {
	return &GoogleAdapter{client: client}
}

func (a *GoogleAdapter) Type() models.ProviderType {
	return models.ProviderTypeGoogle
}

func (a *GoogleAdapter) DefaultModel(Settings) string {
	return googleDefaultModel
}

// Execute calls generateContent. Usage is not taken from the response;
// tokens are estimated at four characters per token.
func (a *GoogleAdapter) Execute(ctx context.Context, req Request, s Settings) (*Response, error) {
	model := req.Model
	if model == "" {
		model = googleDefaultModel
	}

	payload := googleRequest{
		Contents: []googleContent{{Parts: []googlePart{{Text: req.Prompt}}}},
		GenerationConfig: googleGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	var resp googleResponse
	err := do(ctx, a.client, vendorCall{
		vendor: googleVendor,
		method: http.MethodPost,
		url:    s.baseURL(googleDefaultBaseURL) + "/models/" + url.PathEscape(model) + ":generateContent",
		body:   payload,
		auth:   NewQueryAuth(s.APIKey, "key"),
	}, &resp)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	output := text.String()

	tokens := Tokens{
		Input:  EstimateTokens(req.Prompt),
		Output: EstimateTokens(output),
	}
	tokens.Total = tokens.Input + tokens.Output

	return &Response{
		Output: output,
		Tokens: tokens,
		Cost:   EstimateCost(models.ProviderTypeGoogle, model, tokens),
		Model:  model,
	}, nil
}

// TestConnection lists the available models
func (a *GoogleAdapter) TestConnection(ctx context.Context, s Settings) (*ConnectionResult, error) {
	if s.APIKey == "" {
		return nil, errors.New("Google API key is required")
	}

	var list struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	err := do(ctx, a.client, vendorCall{
		vendor: googleVendor,
		method: http.MethodGet,
		url:    s.baseURL(googleDefaultBaseURL) + "/models",
		auth:   NewQueryAuth(s.APIKey, "key"),
	}, &list)
	if err != nil {
		return nil, err
	}

	return &ConnectionResult{
		Message: "Successfully connected to Google",
		Details: map[string]any{
			"modelsAvailable": len(list.Models),
			"defaultModel":    googleDefaultModel,
		},
	}, nil
}

// EstimateTokens approximates a token count as ceil(characters / 4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
