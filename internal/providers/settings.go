package providers

import "strings"

// Settings is the typed view of a provider's config and credentials.
type Settings struct {
	APIKey         string
	BaseURL        string // overrides the vendor default base URL
	Endpoint       string // Azure resource endpoint
	DeploymentName string // Azure deployment
	APIVersion     string // Azure api-version
}

// NewSettings builds Settings from decoded config and credentials maps.
// Values that are not strings are ignored.
func NewSettings(config, credentials map[string]any) Settings {
	return Settings{
		APIKey:         stringValue(credentials, "api_key", "apiKey"),
		BaseURL:        stringValue(config, "base_url", "baseUrl"),
		Endpoint:       stringValue(config, "endpoint"),
		DeploymentName: stringValue(config, "deployment_name", "deploymentName"),
		APIVersion:     stringValue(config, "api_version", "apiVersion"),
	}
}

func stringValue(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// baseURL returns the configured override or the vendor default, without a
// trailing slash.
func (s Settings) baseURL(fallback string) string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return fallback
}
