package logging

import (
	"context"
	"time"
)

// Operation names used in execution records.
const (
	OperationExecute        = "execute"
	OperationEvaluate       = "evaluate"
	OperationTestConnection = "test_connection"
)

// ExecutionRecord describes one dispatched gateway operation.
type ExecutionRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
	Operation    string    `json:"operation"`
	ProviderID   string    `json:"provider_id"`
	ProviderType string    `json:"provider_type"`
	Model        string    `json:"model,omitempty"`
	MetricType   string    `json:"metric_type,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	CostUSD      float64   `json:"cost_usd,omitempty"`
}

// Sink receives execution records from the dispatcher.
type Sink interface {
	Enqueue(ctx context.Context, rec *ExecutionRecord) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(context.Context, *ExecutionRecord) error {
	return nil
}
