package llm

import (
	"context"

	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
)

// CompletionRequest is one provider-neutral chat turn.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	JSON        bool // ask the provider for a JSON object response when it supports it
}

// Completer is implemented by every model provider (openai, gemini).
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}

// ParseRequest carries one extracted document to the schema parser.
type ParseRequest struct {
	Text      string
	TablesTSV string
	FileName  string
}

// NarrativeRequest carries the computed figures the commentary is based on.
type NarrativeRequest struct {
	ProductName     string
	Payback         *int
	IRRMin          *float64
	IRRMax          *float64
	AvgAnnualGrowth *float64
}

// SchemaParser turns free text into a policy record. The raw normalized JSON is
// returned alongside for logging and debugging.
type SchemaParser interface {
	ParsePolicy(ctx context.Context, req ParseRequest) (finance.PolicyRecord, []byte, error)
}

// Narrator writes a short commentary about a policy's metrics.
type Narrator interface {
	Narrate(ctx context.Context, req NarrativeRequest) (string, error)
}
