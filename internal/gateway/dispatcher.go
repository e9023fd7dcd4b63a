package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lens_gateway/internal/billing"
	"lens_gateway/internal/logging"
	"lens_gateway/internal/metrics"
	"lens_gateway/internal/models"
	"lens_gateway/internal/providers"
	"lens_gateway/internal/storage"
)

var (
	// ErrProviderNotFound is returned by Resolve for unknown provider ids
	ErrProviderNotFound = errors.New("Provider not found")

	// ErrProviderInactive is returned by Prepare for providers that are not active
	ErrProviderInactive = errors.New("Provider is not active")

	// ErrInvalidConfiguration is returned by Prepare when config or credentials do not decode
	ErrInvalidConfiguration = errors.New("Invalid provider configuration")
)

// Request defaults.
const (
	DefaultExecuteTemperature  = 0.7
	DefaultEvaluateTemperature = 0.0
	DefaultMaxTokens           = 1000
)

// AdapterSource resolves a provider type to its adapter.
type AdapterSource interface {
	Lookup(t models.ProviderType) (providers.Adapter, error)
}

// Target is a provider ready for dispatch: its settings decoded once, and its
// adapter selected by type.
type Target struct {
	Provider *models.Provider
	Settings providers.Settings
	Config   map[string]any

	adapter    providers.Adapter
	adapterErr error
}

// ConfigKeys returns the decoded config's keys, sorted
func (t *Target) ConfigKeys() []string {
	keys := make([]string, 0, len(t.Config))
	for k := range t.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Options wires the dispatcher's side effects. Nil fields are no-ops.
type Options struct {
	Sink    logging.Sink
	Billing billing.Service
	Metrics metrics.Metrics
	Tracer  trace.Tracer
}

// Dispatcher runs execute, evaluate and test-connection against a provider.
// Every adapter failure becomes a failure envelope; nothing is retried.
type Dispatcher struct {
	adapters AdapterSource
	sink     logging.Sink
	billing  billing.Service
	metrics  metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// NewDispatcher creates a dispatcher
func NewDispatcher(adapters AdapterSource, opts Options) *Dispatcher {
	d := &Dispatcher{
		adapters: adapters,
		sink:     opts.Sink,
		billing:  opts.Billing,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		now:      time.Now,
	}
	if d.sink == nil {
		d.sink = logging.NewNoopSink()
	}
	if d.billing == nil {
		d.billing = billing.NewNoopService()
	}
	if d.metrics == nil {
		d.metrics = metrics.NewNoopMetrics()
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("lens_gateway/gateway")
	}
	return d
}

// Prepare checks the provider's status and decodes its settings. An unknown
// provider type is not an error here; it fails at dispatch like any other
// adapter error.
func (d *Dispatcher) Prepare(p *models.Provider) (*Target, error) {
	if !p.IsActive() {
		return nil, ErrProviderInactive
	}

	config, err := p.Config.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: config: %v", ErrInvalidConfiguration, err)
	}
	credentials, err := p.Credentials.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: credentials: %v", ErrInvalidConfiguration, err)
	}

	target := &Target{
		Provider: p,
		Settings: providers.NewSettings(config, credentials),
		Config:   config,
	}
	target.adapter, target.adapterErr = d.adapters.Lookup(p.Type)
	return target, nil
}

// ExecuteInput is a prompt to run. Nil numeric fields take the defaults.
type ExecuteInput struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	RequestID   string   `json:"-"`
}

// Envelope is the execute response.
type Envelope struct {
	Success       bool              `json:"success"`
	Output        string            `json:"output,omitempty"`
	ExecutionTime int64             `json:"executionTime"`
	Tokens        *providers.Tokens `json:"tokens,omitempty"`
	Cost          *float64          `json:"cost,omitempty"`
	Model         string            `json:"model,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// MarshalJSON always carries output on success, even when the completion is
// empty.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	if !e.Success {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		Output string `json:"output"`
	}{plain(e), e.Output})
}

// Execute runs the prompt once and reports the outcome
func (d *Dispatcher) Execute(ctx context.Context, t *Target, in ExecuteInput) *Envelope {
	req := providers.Request{
		Prompt:      in.Prompt,
		Model:       in.Model,
		Temperature: floatOr(in.Temperature, DefaultExecuteTemperature),
		MaxTokens:   intOr(in.MaxTokens, DefaultMaxTokens),
	}

	ctx, span := d.startSpan(ctx, logging.OperationExecute, t, req.Model)
	defer span.End()

	start := d.now()
	resp, err := d.execute(ctx, t, req)
	elapsed := d.now().Sub(start)

	env := &Envelope{ExecutionTime: elapsed.Milliseconds()}
	rec := d.record(logging.OperationExecute, t, in.RequestID, elapsed)

	if err != nil {
		env.Error = err.Error()
		rec.Error = env.Error
		rec.Model = d.modelFor(t, req.Model)
		endSpan(span, err)
	} else {
		env.Success = true
		env.Output = resp.Output
		env.Tokens = &resp.Tokens
		env.Cost = &resp.Cost
		env.Model = resp.Model
		fillUsage(rec, resp)
		endSpan(span, nil)
	}

	d.finish(ctx, rec)
	return env
}

// EvaluationMetadata identifies what produced an evaluation.
type EvaluationMetadata struct {
	Provider     string `json:"provider"`
	ProviderType string `json:"providerType"`
	MetricType   string `json:"metricType"`
	Model        string `json:"model"`
}

// EvaluationEnvelope is the evaluate response.
type EvaluationEnvelope struct {
	Success        bool                `json:"success"`
	MetricType     string              `json:"metricType,omitempty"`
	Score          *float64            `json:"score,omitempty"`
	RawScore       *float64            `json:"rawScore,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Passed         *bool               `json:"passed,omitempty"`
	Threshold      *float64            `json:"threshold,omitempty"`
	Contradictions []string            `json:"contradictions,omitempty"`
	Tokens         *providers.Tokens   `json:"tokens,omitempty"`
	Cost           *float64            `json:"cost,omitempty"`
	ExecutionTime  int64               `json:"executionTime"`
	Metadata       *EvaluationMetadata `json:"metadata,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// Evaluate asks the provider to judge an output with the requested metric.
// The input must have passed ValidateEvaluate.
func (d *Dispatcher) Evaluate(ctx context.Context, t *Target, in *EvaluateInput, requestID string) *EvaluationEnvelope {
	req := providers.Request{
		Model:       in.Model,
		Temperature: floatOr(in.Temperature, DefaultEvaluateTemperature),
		MaxTokens:   intOr(in.MaxTokens, DefaultMaxTokens),
	}

	meta := &EvaluationMetadata{
		Provider:     t.Provider.Name,
		ProviderType: string(t.Provider.Type),
		MetricType:   in.MetricType,
		Model:        d.modelFor(t, req.Model),
	}

	ctx, span := d.startSpan(ctx, logging.OperationEvaluate, t, req.Model)
	span.SetAttributes(attribute.String("lens.metric_type", in.MetricType))
	defer span.End()

	start := d.now()
	verdict, resp, err := d.evaluate(ctx, t, in, req)
	elapsed := d.now().Sub(start)

	env := &EvaluationEnvelope{
		ExecutionTime: elapsed.Milliseconds(),
		Metadata:      meta,
	}
	rec := d.record(logging.OperationEvaluate, t, requestID, elapsed)
	rec.MetricType = in.MetricType
	rec.Model = meta.Model

	if resp != nil {
		meta.Model = resp.Model
		env.Tokens = &resp.Tokens
		env.Cost = &resp.Cost
		fillUsage(rec, resp)
	}

	if err != nil {
		env.Error = err.Error()
		rec.Success = false
		rec.Error = env.Error
		endSpan(span, err)
	} else {
		threshold := in.threshold()
		env.Success = true
		env.MetricType = in.MetricType
		env.Score = &verdict.Score
		env.RawScore = &verdict.RawScore
		env.Reason = verdict.Reason
		env.Passed = &verdict.Passed
		env.Threshold = &threshold
		env.Contradictions = verdict.Contradictions
		endSpan(span, nil)
	}

	d.finish(ctx, rec)
	return env
}

func (d *Dispatcher) evaluate(ctx context.Context, t *Target, in *EvaluateInput, req providers.Request) (*Verdict, *providers.Response, error) {
	m, ok := lookupMetric(in.MetricType)
	if !ok {
		return nil, nil, fmt.Errorf("Unsupported metric type: %s", in.MetricType)
	}

	req.Prompt = m.prompt(in)
	resp, err := d.execute(ctx, t, req)
	if err != nil {
		return nil, nil, err
	}

	j, err := parseJudgement(resp.Output)
	if err != nil {
		return nil, resp, err
	}
	return m.verdict(j, in.threshold()), resp, nil
}

// ConnectionEnvelope is the test-connection response. Debug is filled by the
// HTTP layer outside production.
type ConnectionEnvelope struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message,omitempty"`
	ResponseTime int64          `json:"responseTime"`
	Details      map[string]any `json:"details,omitempty"`
	Error        string         `json:"error,omitempty"`
	Debug        map[string]any `json:"debug,omitempty"`
}

// TestConnection performs the vendor's minimal round-trip
func (d *Dispatcher) TestConnection(ctx context.Context, t *Target, requestID string) *ConnectionEnvelope {
	ctx, span := d.startSpan(ctx, logging.OperationTestConnection, t, "")
	defer span.End()

	start := d.now()
	var (
		result *providers.ConnectionResult
		err    error
	)
	if t.adapterErr != nil {
		err = t.adapterErr
	} else {
		result, err = t.adapter.TestConnection(ctx, t.Settings)
	}
	elapsed := d.now().Sub(start)

	env := &ConnectionEnvelope{ResponseTime: elapsed.Milliseconds()}
	rec := d.record(logging.OperationTestConnection, t, requestID, elapsed)

	if err != nil {
		env.Error = err.Error()
		rec.Error = env.Error
		endSpan(span, err)
	} else {
		env.Success = true
		env.Message = result.Message
		env.Details = result.Details
		rec.Success = true
		endSpan(span, nil)
	}

	d.finish(ctx, rec)
	return env
}

// execute runs one adapter call; the only place an adapter's Execute is
// invoked.
func (d *Dispatcher) execute(ctx context.Context, t *Target, req providers.Request) (*providers.Response, error) {
	if t.adapterErr != nil {
		return nil, t.adapterErr
	}
	return t.adapter.Execute(ctx, req, t.Settings)
}

func (d *Dispatcher) modelFor(t *Target, requested string) string {
	if requested != "" || t.adapter == nil {
		return requested
	}
	return t.adapter.DefaultModel(t.Settings)
}

func (d *Dispatcher) startSpan(ctx context.Context, op string, t *Target, model string) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "gateway."+op, trace.WithAttributes(
		attribute.String("lens.provider_id", t.Provider.ID),
		attribute.String("lens.provider_type", string(t.Provider.Type)),
		attribute.String("lens.model", d.modelFor(t, model)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (d *Dispatcher) record(op string, t *Target, requestID string, elapsed time.Duration) *logging.ExecutionRecord {
	return &logging.ExecutionRecord{
		Timestamp:    d.now().UTC(),
		RequestID:    requestID,
		Operation:    op,
		ProviderID:   t.Provider.ID,
		ProviderType: string(t.Provider.Type),
		DurationMs:   elapsed.Milliseconds(),
	}
}

func fillUsage(rec *logging.ExecutionRecord, resp *providers.Response) {
	rec.Success = true
	rec.Model = resp.Model
	rec.InputTokens = resp.Tokens.Input
	rec.OutputTokens = resp.Tokens.Output
	rec.CostUSD = resp.Cost
}

// finish emits the best-effort side effects of a dispatch. Failures are
// logged and never reach the caller.
func (d *Dispatcher) finish(ctx context.Context, rec *logging.ExecutionRecord) {
	d.metrics.ObserveDispatch(metrics.Dispatch{
		Operation:    rec.Operation,
		ProviderType: rec.ProviderType,
		Model:        rec.Model,
		Success:      rec.Success,
		Duration:     time.Duration(rec.DurationMs) * time.Millisecond,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		CostUSD:      rec.CostUSD,
	})

	// Side effects must outlive a client that has gone away.
	ctx = context.WithoutCancel(ctx)

	if err := d.sink.Enqueue(ctx, rec); err != nil {
		log.Warn().Err(err).Str("provider_id", rec.ProviderID).Msg("failed to enqueue execution record")
	}

	if rec.CostUSD > 0 {
		if err := d.billing.AddUsage(ctx, rec.ProviderID, rec.CostUSD); err != nil {
			log.Warn().Err(err).Str("provider_id", rec.ProviderID).Msg("failed to record provider spend")
		}
	}

	event := log.Info()
	if !rec.Success {
		event = log.Warn().Str("error", rec.Error)
	}
	event.
		Str("request_id", rec.RequestID).
		Str("operation", rec.Operation).
		Str("provider_id", rec.ProviderID).
		Str("provider_type", rec.ProviderType).
		Str("model", rec.Model).
		Int64("duration_ms", rec.DurationMs).
		Float64("cost_usd", rec.CostUSD).
		Msg("dispatch completed")
}

func floatOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func intOr(v *int, def int) int {
	if v != nil && *v > 0 {
		return *v
	}
	return def
}

// Runner looks providers up and dispatches in one call, mapping registry and
// Prepare failures to failure envelopes.
type Runner struct {
	Store      storage.ProviderStore
	Dispatcher *Dispatcher
}

// Resolve fetches and prepares a provider. Failures are ErrProviderNotFound,
// ErrProviderInactive, ErrInvalidConfiguration or a registry error.
func (r *Runner) Resolve(ctx context.Context, providerID string) (*Target, error) {
	p, err := r.Store.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			return nil, ErrProviderNotFound
		}
		if errors.Is(err, storage.ErrInvalidCredentials) {
			log.Warn().Err(err).Str("provider_id", providerID).Msg("provider credentials could not be revealed")
			return nil, ErrInvalidConfiguration
		}
		return nil, fmt.Errorf("failed to load provider %s: %w", providerID, err)
	}

	t, err := r.Dispatcher.Prepare(p)
	if errors.Is(err, ErrInvalidConfiguration) {
		log.Warn().Err(err).Str("provider_id", providerID).Msg("provider settings could not be decoded")
		return nil, ErrInvalidConfiguration
	}
	return t, err
}

// RunExecute validates, looks up the provider and executes the prompt
func (r *Runner) RunExecute(ctx context.Context, providerID string, in ExecuteInput) *Envelope {
	if err := ValidateExecute(providerID, in); err != nil {
		return &Envelope{Error: err.Error()}
	}
	t, err := r.Resolve(ctx, providerID)
	if err != nil {
		return &Envelope{Error: err.Error()}
	}
	return r.Dispatcher.Execute(ctx, t, in)
}

// RunEvaluate validates, looks up the provider and evaluates
func (r *Runner) RunEvaluate(ctx context.Context, providerID string, in *EvaluateInput) *EvaluationEnvelope {
	if err := ValidateEvaluate(providerID, in); err != nil {
		return &EvaluationEnvelope{Error: err.Error()}
	}
	t, err := r.Resolve(ctx, providerID)
	if err != nil {
		return &EvaluationEnvelope{Error: err.Error()}
	}
	return r.Dispatcher.Evaluate(ctx, t, in, "")
}

// RunTestConnection looks up the provider and tests its connection
func (r *Runner) RunTestConnection(ctx context.Context, providerID string) *ConnectionEnvelope {
	if err := ValidateTestConnection(providerID); err != nil {
		return &ConnectionEnvelope{Error: err.Error()}
	}
	t, err := r.Resolve(ctx, providerID)
	if err != nil {
		return &ConnectionEnvelope{Error: err.Error()}
	}
	return r.Dispatcher.TestConnection(ctx, t, "")
}
