package providers

import (
	"context"
	"fmt"

	"lens_gateway/internal/models"
)

// Request is the normalized input to an adapter call.
type Request struct {
	Prompt      string
	Model       string // empty selects the adapter default
	Temperature float64
	MaxTokens   int
}

// Tokens is a token usage breakdown.
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Response is a normalized provider response.
type Response struct {
	Output string
	Tokens Tokens
	Cost   float64 // USD, unrounded
	Model  string
}

// ConnectionResult describes a successful connection test.
type ConnectionResult struct {
	Message string
	Details map[string]any
}

// Adapter is implemented by each vendor (OpenAI, Azure OpenAI, Anthropic,
// Google, xAI, Mistral). Evaluation prompts travel through Execute, so every
// operation shares one set of HTTP mechanics per vendor.
type Adapter interface {
	// Type returns the provider type this adapter serves
	Type() models.ProviderType

	// DefaultModel returns the model used when a request names none
	DefaultModel(s Settings) string

	// Execute runs a single prompt against the vendor
	Execute(ctx context.Context, req Request, s Settings) (*Response, error)

	// TestConnection performs a minimal round-trip to verify the credentials
	TestConnection(ctx context.Context, s Settings) (*ConnectionResult, error)
}

// UnsupportedTypeError is returned when no adapter serves a provider type.
type UnsupportedTypeError struct {
	Type models.ProviderType
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("Unsupported provider type: %s", e.Type)
}
