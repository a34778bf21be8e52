// Package gateway is the composition root of relay: it resolves a provider
// for the requested model, drives streaming and the bounded tool-call loop,
// and reports completed calls to the usage-accounting hook.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/petal-labs/relay/core"
	"github.com/petal-labs/relay/providers"
)

// ToolExecutor dispatches a tool call by name. It is implemented by
// tools.Registry.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// Gateway is the single public entry point for issuing chat-completion
// calls. Gateway is safe for concurrent use.
type Gateway struct {
	registry *providers.Registry
	executor ToolExecutor
	usage    core.UsageRecorder
	log      *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithToolExecutor sets the executor the tool-call loop dispatches to.
// Without one, every tool call resolves to an unsupported-tool message.
func WithToolExecutor(e ToolExecutor) Option {
	return func(g *Gateway) {
		if e != nil {
			g.executor = e
		}
	}
}

// WithUsageRecorder sets the fire-and-forget accounting hook.
func WithUsageRecorder(r core.UsageRecorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.usage = r
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// New creates a Gateway backed by the given provider registry. The registry
// lives as long as the Gateway; there is no hidden global state.
func New(registry *providers.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry: registry,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result is the full outcome of one gateway call.
type Result struct {
	// CallID labels the call in logs and usage records.
	CallID string

	// Provider and Model identify who served the call.
	Provider string
	Model    string

	// Output is the assembled response text.
	Output string

	// Cancelled is true when the caller cancelled the call. Cancellation is
	// not an error: Output holds whatever content had arrived, possibly
	// nothing.
	Cancelled bool

	// Usage is the token consumption summed across all tool-loop rounds.
	Usage core.TokenUsage

	// Rounds is the number of provider round-trips made.
	Rounds int
}

// Call resolves the provider for modelID and returns the assembled response
// text. cfg.OnFragment is invoked zero or more times before Call returns
// when streaming is used.
func (g *Gateway) Call(ctx context.Context, modelID string, messages []core.Message, cfg core.RequestConfig) (string, error) {
	res, err := g.Do(ctx, modelID, messages, cfg)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Do is Call with the full Result exposed.
func (g *Gateway) Do(ctx context.Context, modelID string, messages []core.Message, cfg core.RequestConfig) (*Result, error) {
	p, err := g.registry.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	callID := uuid.NewString()
	log := g.log.With("call_id", callID, "provider", p.Name(), "model", modelID)

	res, err := g.orchestrate(ctx, log, p, modelID, messages, cfg)
	if err != nil {
		return nil, err
	}

	res.CallID = callID
	res.Provider = p.Name()
	res.Model = modelID

	g.recordUsage(log, p.Name(), modelID, messages, res.Output)
	return res, nil
}

// recordUsage invokes the accounting hook once per completed call. Hook
// failures are swallowed and logged; accounting must not break delivery.
func (g *Gateway) recordUsage(log *slog.Logger, provider, model string, messages []core.Message, output string) {
	if g.usage == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn("usage recorder panicked", "panic", r)
		}
	}()

	input, err := json.Marshal(messages)
	if err != nil {
		log.Warn("could not serialize input for usage record", "error", err)
		return
	}

	if err := g.usage.Record(provider, model, string(input), output); err != nil {
		log.Warn("usage recorder failed", "error", err)
	}
}
