// Package tools provides tool definitions and the executor registry the
// gateway's tool-call orchestrator dispatches to.
package tools

import (
	"context"
	"encoding/json"
)

// Tool defines the interface for model-callable tools.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool
	// does. It is sent to the model to help it decide when to call.
	Description() string

	// Schema returns the JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Call executes the tool. The args parameter is the model's argument
	// payload after best-effort repair; it is valid JSON.
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName string
	Desc     string
	Params   json.RawMessage
	Fn       func(ctx context.Context, args json.RawMessage) (any, error)
}

// Name implements Tool.
func (f *Func) Name() string { return f.ToolName }

// Description implements Tool.
func (f *Func) Description() string { return f.Desc }

// Schema implements Tool.
func (f *Func) Schema() json.RawMessage { return f.Params }

// Call implements Tool.
func (f *Func) Call(ctx context.Context, args json.RawMessage) (any, error) {
	return f.Fn(ctx, args)
}
