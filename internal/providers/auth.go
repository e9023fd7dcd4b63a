package providers

import (
	"net/http"
)

// Authenticator attaches credentials to an outbound vendor request.
type Authenticator interface {
	Apply(req *http.Request)
}

// HeaderAuth sends the API key in a header (OpenAI-style bearer tokens,
// Anthropic x-api-key, Azure api-key).
type HeaderAuth struct {
	apiKey     string
	headerName string
	prefix     string
}

// NewBearerAuth creates an Authorization: Bearer authenticator
func NewBearerAuth(apiKey string) *HeaderAuth {
	return NewHeaderAuth(apiKey, "Authorization", "Bearer ")
}

// NewHeaderAuth creates a header authenticator
func NewHeaderAuth(apiKey, headerName, prefix string) *HeaderAuth {
	if headerName == "" {
		headerName = "Authorization"
	}
	return &HeaderAuth{
		apiKey:     apiKey,
		headerName: headerName,
		prefix:     prefix,
	}
}

// Apply sets the auth header
func (a *HeaderAuth) Apply(req *http.Request) {
	req.Header.Set(a.headerName, a.prefix+a.apiKey)
}

// QueryAuth sends the API key as a query parameter (Google).
type QueryAuth struct {
	apiKey string
	param  string
}

// NewQueryAuth creates a query parameter authenticator
func NewQueryAuth(apiKey, param string) *QueryAuth {
	if param == "" {
		param = "key"
	}
	return &QueryAuth{apiKey: apiKey, param: param}
}

// Apply adds the key to the request URL
func (a *QueryAuth) Apply(req *http.Request) {
	q := req.URL.Query()
	q.Set(a.param, a.apiKey)
	req.URL.RawQuery = q.Encode()
}
