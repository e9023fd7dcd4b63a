package models

import (
	"time"
)

// ProviderType enumerates supported provider types.
type ProviderType string

const (
	ProviderTypeOpenAI      ProviderType = "openai"
	ProviderTypeAzureOpenAI ProviderType = "azure_openai"
	ProviderTypeAnthropic   ProviderType = "anthropic"
	ProviderTypeGoogle      ProviderType = "google"
	ProviderTypeXAI         ProviderType = "xai"
	ProviderTypeMistral     ProviderType = "mistral"
)

// ProviderTypes lists every provider type the gateway can dispatch to.
var ProviderTypes = []ProviderType{
	ProviderTypeOpenAI,
	ProviderTypeAzureOpenAI,
	ProviderTypeAnthropic,
	ProviderTypeGoogle,
	ProviderTypeXAI,
	ProviderTypeMistral,
}

// Valid reports whether t is one of the known provider types.
func (t ProviderType) Valid() bool {
	for _, known := range ProviderTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ProviderStatus is the lifecycle state of a provider record.
type ProviderStatus string

const (
	ProviderStatusActive   ProviderStatus = "active"
	ProviderStatusInactive ProviderStatus = "inactive"
)

// Provider represents a configured LLM vendor account.
//
// Config and Credentials are kept exactly as the registry returned them; use
// RawSettings.Decode to obtain the normalized map.
type Provider struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Type        ProviderType   `db:"provider_type" json:"type"`
	Status      ProviderStatus `db:"status" json:"status"`
	Config      RawSettings    `db:"config" json:"config,omitempty"`
	Credentials RawSettings    `db:"credentials" json:"credentials,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the gateway may dispatch to this provider.
func (p *Provider) IsActive() bool {
	return p.Status == ProviderStatusActive
}
