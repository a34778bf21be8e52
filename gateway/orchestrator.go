package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/petal-labs/relay/core"
	"github.com/petal-labs/relay/providers"
	"github.com/petal-labs/relay/tools"
)

// DefaultMaxToolRounds caps the tool-call loop when RequestConfig does not.
const DefaultMaxToolRounds = 5

// orchestrate drives one logical call: request, response, optional tool
// invocations, follow-up requests, up to the round cap. The conversation is
// append-only throughout; prior messages are never removed or reordered, and
// the caller's slice is never touched.
func (g *Gateway) orchestrate(
	ctx context.Context,
	log *slog.Logger,
	p *providers.Provider,
	modelID string,
	messages []core.Message,
	cfg core.RequestConfig,
) (*Result, error) {
	streaming := cfg.Streaming
	if streaming && len(cfg.Tools) > 0 && !p.StreamToolUse() {
		// Provider-declared capability, not a global rule.
		log.Debug("provider cannot stream tool calls, downgrading to one-shot")
		streaming = false
	}

	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}

	conv := make([]core.Message, len(messages), len(messages)+4)
	copy(conv, messages)

	result := &Result{}
	var lastOutput string // last known assistant text, possibly empty

	// When streaming, the result text is the concatenation of every fragment
	// delivered to the caller, across all tool-loop rounds. The callback
	// wrapper keeps the two in lockstep.
	var streamed strings.Builder
	onFragment := cfg.OnFragment
	if streaming {
		caller := cfg.OnFragment
		onFragment = func(fragment string) {
			streamed.WriteString(fragment)
			if caller != nil {
				caller(fragment)
			}
		}
	}
	finalOutput := func(fallback string) string {
		if streaming {
			return streamed.String()
		}
		return fallback
	}

	for round := 1; ; round++ {
		result.Rounds = round

		// Cancellation between loop iterations breaks the loop cleanly.
		if ctx.Err() != nil {
			result.Output = finalOutput(lastOutput)
			result.Cancelled = true
			return result, nil
		}

		req := &core.ChatRequest{
			Model:       modelID,
			Messages:    conv,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxOutputTokens,
			Tools:       cfg.Tools,
			WebSearch:   cfg.WebSearch,
			Extra:       cfg.Extra,
		}

		var resp *core.ChatResponse
		var err error
		if streaming {
			resp, err = g.drain(ctx, p, req, onFragment)
		} else {
			resp, err = p.Chat(ctx, req)
		}
		if err != nil {
			// A cancellation that surfaces as a request error is still a
			// cancellation, not a failure.
			if ctx.Err() != nil {
				result.Output = finalOutput(lastOutput)
				result.Cancelled = true
				return result, nil
			}
			return nil, err
		}

		result.Usage = result.Usage.Add(resp.Usage)
		if resp.Output != "" {
			lastOutput = resp.Output
		}

		if resp.Cancelled {
			result.Output = finalOutput(resp.Output)
			result.Cancelled = true
			return result, nil
		}

		if !resp.HasToolCalls() {
			result.Output = finalOutput(resp.Output)
			return result, nil
		}

		if round >= maxRounds {
			// Cap exhaustion is a soft condition, not an error: return the
			// last known assistant text, even when it is empty.
			log.Warn("tool-call round cap reached, returning accumulated text",
				"cap", maxRounds)
			result.Output = finalOutput(lastOutput)
			return result, nil
		}

		// Append the assistant turn with its emitted calls, then one tool
		// message per call. Tool messages always reference the provider's
		// tool_call_id; the orchestrator never synthesizes one.
		conv = append(conv, core.Message{
			Role:      core.RoleAssistant,
			Content:   resp.Output,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			conv = append(conv, core.Message{
				Role:       core.RoleTool,
				ToolCallID: call.ID,
				Content:    g.invokeTool(ctx, log, call),
			})
		}
	}
}

// drain consumes a stream, forwarding fragments to the callback in arrival
// order, and returns the assembled response. The accumulated output always
// equals the ordered concatenation of the delivered fragments.
func (g *Gateway) drain(ctx context.Context, p *providers.Provider, req *core.ChatRequest, onFragment func(string)) (*core.ChatResponse, error) {
	stream, err := p.StreamChat(ctx, req)
	if err != nil {
		return nil, err
	}

	var accumulated strings.Builder
	for chunk := range stream.Ch {
		if onFragment != nil {
			onFragment(chunk.Delta)
		}
		accumulated.WriteString(chunk.Delta)
	}

	select {
	case err, ok := <-stream.Err:
		if ok && err != nil {
			return nil, err
		}
	default:
	}

	resp, ok := <-stream.Final
	if !ok || resp == nil {
		resp = &core.ChatResponse{}
	}
	if resp.Output == "" {
		resp.Output = accumulated.String()
	}
	return resp, nil
}

// invokeTool resolves one tool call to its result text, best-effort: broken
// argument payloads are repaired, unknown tools produce an explicit
// unsupported-tool message, and execution failures are reported back to the
// model instead of failing the call.
func (g *Gateway) invokeTool(ctx context.Context, log *slog.Logger, call core.ToolCall) string {
	if g.executor == nil {
		return "unsupported tool: " + call.Name
	}

	out, err := g.executor.Execute(ctx, call.Name, repairArguments(call.Arguments))
	if err != nil {
		if errors.Is(err, tools.ErrUnknownTool) {
			return "unsupported tool: " + call.Name
		}
		log.Debug("tool execution failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("tool %s failed: %s", call.Name, err)
	}
	return stringifyResult(out)
}

// repairArguments turns the model's argument text into valid JSON. Models
// occasionally emit truncated or single-quoted payloads; jsonrepair fixes
// most of them, and anything unrecoverable degrades to an empty object.
func repairArguments(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err == nil && json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired)
	}
	return json.RawMessage(`{}`)
}

// stringifyResult renders a tool result as the content of a tool message.
func stringifyResult(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
