package providers

import (
	"encoding/json"
	"net/http"

	"github.com/petal-labs/relay/core"
)

// Default wire dialect: the OpenAI-compatible chat-completions shape both
// Kimi and DeepSeek speak. Providers with a different shape override it
// through the Config transforms.

// Request types

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
	Tools       []wireTool    `json:"tools,omitempty"`
	WebSearch   *bool         `json:"web_search,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string         `json:"type"` // "function"
	Function wireToolSchema `json:"function"`
}

type wireToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response types

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type wireChoice struct {
	Index        int             `json:"index"`
	Message      wireRespMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type wireRespMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u wireUsage) toCore() core.TokenUsage {
	return core.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// wireError is the error envelope in non-success responses.
type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildBody merges the request with provider defaults into a wire payload.
// A configured RequestTransform fully replaces this shaping; the two are
// never combined.
func (p *Provider) buildBody(req *core.ChatRequest, stream bool) ([]byte, error) {
	if p.cfg.RequestTransform != nil {
		return p.cfg.RequestTransform(req, stream)
	}

	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	wr := wireRequest{
		Model:       model,
		Messages:    mapMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}

	if len(req.Tools) > 0 {
		wr.Tools = mapTools(req.Tools)
	}

	if req.WebSearch && p.cfg.SupportsSearch {
		enabled := true
		wr.WebSearch = &enabled
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return nil, err
	}
	if len(req.Extra) == 0 {
		return body, nil
	}
	return mergeExtra(body, req.Extra)
}

// mergeExtra folds provider-specific flags into an already-shaped payload.
func mergeExtra(body []byte, extra map[string]any) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	for k, v := range extra {
		m[k] = v
	}
	return json.Marshal(m)
}

// mapMessages converts conversation messages to the wire shape.
func mapMessages(msgs []core.Message) []wireMessage {
	result := make([]wireMessage, len(msgs))
	for i, msg := range msgs {
		result[i] = wireMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if len(msg.ToolCalls) > 0 {
			result[i].ToolCalls = toWireToolCalls(msg.ToolCalls)
		}
	}
	return result
}

// mapTools converts tool definitions to the wire shape.
func mapTools(defs []core.ToolDefinition) []wireTool {
	result := make([]wireTool, len(defs))
	for i, d := range defs {
		params := d.Parameters
		if params == nil {
			params = json.RawMessage(`{}`)
		}
		result[i] = wireTool{
			Type: "function",
			Function: wireToolSchema{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		}
	}
	return result
}

func toWireToolCalls(calls []core.ToolCall) []wireToolCall {
	result := make([]wireToolCall, len(calls))
	for i, c := range calls {
		result[i] = wireToolCall{
			ID:   c.ID,
			Type: "function",
			Function: wireFunction{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		}
	}
	return result
}

func fromWireToolCalls(calls []wireToolCall) []core.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]core.ToolCall, len(calls))
	for i, c := range calls {
		result[i] = core.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		}
	}
	return result
}

// decodeResponse extracts assistant text and any pending tool calls from a
// one-shot payload.
func (p *Provider) decodeResponse(body []byte) (*core.ChatResponse, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, p.decodeError(err)
	}

	out := &core.ChatResponse{
		ID:    wr.ID,
		Model: wr.Model,
		Usage: wr.Usage.toCore(),
	}
	if len(wr.Choices) > 0 {
		choice := wr.Choices[0]
		out.Output = choice.Message.Content
		out.ToolCalls = fromWireToolCalls(choice.Message.ToolCalls)
	}
	return out, nil
}

// statusError converts a non-success HTTP response into a ProviderError
// carrying the status and, when parseable, the upstream message.
func (p *Provider) statusError(status int, body []byte) error {
	var we wireError
	_ = json.Unmarshal(body, &we)

	message := we.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = core.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		sentinel = core.ErrRateLimited
	case status >= 500:
		sentinel = core.ErrServer
	default:
		sentinel = core.ErrBadRequest
	}

	return &core.ProviderError{
		Provider: p.cfg.Name,
		Status:   status,
		Code:     we.Error.Code,
		Message:  message,
		Err:      sentinel,
	}
}

func (p *Provider) networkError(err error) error {
	return &core.ProviderError{
		Provider: p.cfg.Name,
		Message:  err.Error(),
		Err:      core.ErrNetwork,
	}
}

func (p *Provider) decodeError(err error) error {
	return &core.ProviderError{
		Provider: p.cfg.Name,
		Message:  err.Error(),
		Err:      core.ErrDecode,
	}
}
