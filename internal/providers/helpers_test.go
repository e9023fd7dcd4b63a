package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordedRequest is what a fake vendor saw.
type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   map[string]any
}

// fakeVendor is an httptest server that records requests and replies with a
// fixed status and body per path.
type fakeVendor struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	replies  map[string]fakeReply
	fallback fakeReply
}

type fakeReply struct {
	status int
	body   string
}

func newFakeVendor(t *testing.T, status int, body string) *fakeVendor {
	t.Helper()

	f := &fakeVendor{
		replies:  make(map[string]fakeReply),
		fallback: fakeReply{status: status, body: body},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		}
		if len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &rec.Body))
		}

		f.mu.Lock()
		f.requests = append(f.requests, rec)
		reply, ok := f.replies[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			reply = f.fallback
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeVendor) reply(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[path] = fakeReply{status: status, body: body}
}

func (f *fakeVendor) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// settingsFor points an adapter of the given type at the fake vendor.
func settingsFor(providerType string, f *fakeVendor) Settings {
	s := Settings{APIKey: "sk-test"}
	if providerType == "azure_openai" {
		s.Endpoint = f.URL
		s.DeploymentName = "gpt4-prod"
		return s
	}
	s.BaseURL = f.URL
	return s
}
