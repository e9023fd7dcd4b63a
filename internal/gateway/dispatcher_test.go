package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"lens_gateway/internal/logging"
	"lens_gateway/internal/metrics"
	"lens_gateway/internal/models"
	"lens_gateway/internal/providers"
)

func newStub() *stubAdapter {
	return &stubAdapter{
		providerType: models.ProviderTypeOpenAI,
		response: &providers.Response{
			Output: "hello",
			Tokens: providers.Tokens{Input: 2, Output: 1, Total: 3},
			Cost:   0.00012,
			Model:  "gpt-4",
		},
		connection: &providers.ConnectionResult{
			Message: "Successfully connected to OpenAI",
			Details: map[string]any{"modelsAvailable": 3},
		},
	}
}

func TestPrepareRejectsInactiveProviders(t *testing.T) {
	stub := newStub()
	d := NewDispatcher(stubSource{adapter: stub}, Options{})

	for _, providerType := range models.ProviderTypes {
		p := activeProvider(providerType)
		p.Status = models.ProviderStatusInactive

		target, err := d.Prepare(p)
		assert.ErrorIs(t, err, ErrProviderInactive, providerType)
		assert.Nil(t, target)
	}

	assert.Zero(t, stub.calls())
}

func TestPrepareDecodesBothSettingForms(t *testing.T) {
	d := NewDispatcher(stubSource{adapter: newStub()}, Options{})

	p := activeProvider(models.ProviderTypeAzureOpenAI)
	p.Config = models.RawSettings(`"{\"endpoint\":\"https://res.openai.azure.com\",\"deployment_name\":\"gpt4\"}"`)

	target, err := d.Prepare(p)
	require.NoError(t, err)
	assert.Equal(t, "https://res.openai.azure.com", target.Settings.Endpoint)
	assert.Equal(t, "gpt4", target.Settings.DeploymentName)
	assert.Equal(t, "sk-x", target.Settings.APIKey)
	assert.Equal(t, []string{"deployment_name", "endpoint"}, target.ConfigKeys())
}

func TestPrepareRejectsMalformedSettings(t *testing.T) {
	stub := newStub()
	d := NewDispatcher(stubSource{adapter: stub}, Options{})

	p := activeProvider(models.ProviderTypeOpenAI)
	p.Config = models.RawSettings(`{not json`)
	_, err := d.Prepare(p)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	p = activeProvider(models.ProviderTypeOpenAI)
	p.Credentials = models.RawSettings(`"just a string"`)
	_, err = d.Prepare(p)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	assert.Zero(t, stub.calls())
}

func TestExecuteSuccess(t *testing.T) {
	stub := newStub()
	sink := &memorySink{}
	spend := &memoryBilling{}
	m := metrics.NewPrometheusMetrics()
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	d := NewDispatcher(stubSource{adapter: stub}, Options{Sink: sink, Billing: spend, Metrics: m, Tracer: tracer})

	target, err := d.Prepare(activeProvider(models.ProviderTypeOpenAI))
	require.NoError(t, err)

	env := d.Execute(context.Background(), target, ExecuteInput{Prompt: "hi", RequestID: "req-1"})

	require.True(t, env.Success, env.Error)
	assert.Equal(t, "hello", env.Output)
	assert.Equal(t, &providers.Tokens{Input: 2, Output: 1, Total: 3}, env.Tokens)
	require.NotNil(t, env.Cost)
	assert.InDelta(t, 0.00012, *env.Cost, 1e-12)
	assert.Equal(t, "gpt-4", env.Model)
	assert.Empty(t, env.Error)

	require.Len(t, stub.requests, 1)
	assert.Equal(t, providers.Request{Prompt: "hi", Temperature: 0.7, MaxTokens: 1000}, stub.requests[0])

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, logging.OperationExecute, rec.Operation)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "p1", rec.ProviderID)
	assert.True(t, rec.Success)
	assert.Equal(t, 2, rec.InputTokens)

	assert.InDelta(t, 0.00012, spend.spend["p1"], 1e-12)

	count, err := testutil.GatherAndCount(m.Registry(), "lens_provider_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "gateway.execute", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestExecuteHonoursExplicitParameters(t *testing.T) {
	stub := newStub()
	d := NewDispatcher(stubSource{adapter: stub}, Options{})
	target, _ := d.Prepare(activeProvider(models.ProviderTypeOpenAI))

	temperature := 0.0
	maxTokens := 42
	d.Execute(context.Background(), target, ExecuteInput{Prompt: "hi", Model: "gpt-4o", Temperature: &temperature, MaxTokens: &maxTokens})

	assert.Equal(t, providers.Request{Prompt: "hi", Model: "gpt-4o", Temperature: 0, MaxTokens: 42}, stub.requests[0])
}

func TestExecuteFailureEnvelope(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	stub := newStub()
	stub.err = errUpstream
	stub.advance = func() { clock = clock.Add(250 * time.Millisecond) }

	sink := &memorySink{}
	spend := &memoryBilling{}
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	d := NewDispatcher(stubSource{adapter: stub}, Options{Sink: sink, Billing: spend, Tracer: tracer})
	d.now = func() time.Time { return clock }

	target, _ := d.Prepare(activeProvider(models.ProviderTypeOpenAI))
	env := d.Execute(context.Background(), target, ExecuteInput{Prompt: "hi"})

	assert.False(t, env.Success)
	assert.Equal(t, "upstream exploded", env.Error)
	assert.Equal(t, int64(250), env.ExecutionTime)
	assert.Nil(t, env.Tokens)
	assert.Nil(t, env.Cost)
	assert.Empty(t, env.Output)

	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].Success)
	assert.Equal(t, "upstream exploded", sink.records[0].Error)
	assert.Equal(t, "stub-default", sink.records[0].Model)
	assert.Empty(t, spend.spend)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestExecuteEnvelopeOutputKey(t *testing.T) {
	stub := newStub()
	stub.response.Output = ""
	d := NewDispatcher(stubSource{adapter: stub}, Options{})

	target, err := d.Prepare(activeProvider(models.ProviderTypeOpenAI))
	require.NoError(t, err)
	env := d.Execute(context.Background(), target, ExecuteInput{Prompt: "hi"})
	require.True(t, env.Success)

	body, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Contains(t, decoded, "output")
	assert.Equal(t, "", decoded["output"])
	assert.Contains(t, decoded, "tokens")

	stub.err = errUpstream
	env = d.Execute(context.Background(), target, ExecuteInput{Prompt: "hi"})
	require.False(t, env.Success)

	body, err = json.Marshal(env)
	require.NoError(t, err)
	decoded = map[string]any{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.NotContains(t, decoded, "output")
	assert.Equal(t, "upstream exploded", decoded["error"])
}

func TestExecuteUnsupportedType(t *testing.T) {
	d := NewDispatcher(stubSource{adapter: newStub()}, Options{})

	target, err := d.Prepare(activeProvider("cohere"))
	require.NoError(t, err)

	env := d.Execute(context.Background(), target, ExecuteInput{Prompt: "hi"})
	assert.False(t, env.Success)
	assert.Equal(t, "Unsupported provider type: cohere", env.Error)

	conn := d.TestConnection(context.Background(), target, "")
	assert.False(t, conn.Success)
	assert.Equal(t, "Unsupported provider type: cohere", conn.Error)
}

func TestSideEffectFailuresDoNotFailDispatch(t *testing.T) {
	d := NewDispatcher(stubSource{adapter: newStub()}, Options{
		Sink:    &memorySink{err: errors.New("redis down")},
		Billing: &memoryBilling{err: errors.New("redis down")},
	})
	target, _ := d.Prepare(activeProvider(models.ProviderTypeOpenAI))

	env := d.Execute(context.Background(), target, ExecuteInput{Prompt: "hi"})
	assert.True(t, env.Success)
}

func TestTestConnection(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	stub := newStub()
	stub.advance = func() { clock = clock.Add(120 * time.Millisecond) }

	sink := &memorySink{}
	d := NewDispatcher(stubSource{adapter: stub}, Options{Sink: sink})
	d.now = func() time.Time { return clock }

	target, _ := d.Prepare(activeProvider(models.ProviderTypeOpenAI))
	env := d.TestConnection(context.Background(), target, "req-2")

	assert.True(t, env.Success)
	assert.Equal(t, "Successfully connected to OpenAI", env.Message)
	assert.Equal(t, int64(120), env.ResponseTime)
	assert.Equal(t, 3, env.Details["modelsAvailable"])
	require.Len(t, sink.records, 1)
	assert.Equal(t, logging.OperationTestConnection, sink.records[0].Operation)

	stub.err = errors.New("Invalid API key")
	env = d.TestConnection(context.Background(), target, "")
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid API key", env.Error)
	assert.Equal(t, int64(120), env.ResponseTime)
}

// The dispatcher with the real OpenAI adapter reproduces the documented
// execute scenario end to end.
func TestExecuteWithOpenAIAdapter(t *testing.T) {
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":2,"completion_tokens":1,"total_tokens":3},"model":"gpt-4"}`))
	}))
	defer vendor.Close()

	d := NewDispatcher(providers.NewTable(vendor.Client()), Options{})

	p := activeProvider(models.ProviderTypeOpenAI)
	p.Config = models.MustRawSettings(map[string]any{"base_url": vendor.URL})
	target, err := d.Prepare(p)
	require.NoError(t, err)

	env := d.Execute(context.Background(), target, ExecuteInput{Prompt: "hi"})
	require.True(t, env.Success, env.Error)
	assert.Equal(t, "hello", env.Output)
	assert.Equal(t, &providers.Tokens{Input: 2, Output: 1, Total: 3}, env.Tokens)
	assert.InDelta(t, 2*0.00003+1*0.00006, *env.Cost, 1e-12)
	assert.Equal(t, "gpt-4", env.Model)
}
