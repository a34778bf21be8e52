package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/petal-labs/relay/core"
)

// doneSentinel is the frame that ends a stream early without error.
const doneSentinel = "[DONE]"

// Streaming frame types (OpenAI-compatible delta shape).

type wireStreamFrame struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []wireStreamChoice `json:"choices"`
	Usage   *wireUsage         `json:"usage,omitempty"`
}

type wireStreamChoice struct {
	Index        int             `json:"index"`
	Delta        wireStreamDelta `json:"delta"`
	FinishReason string          `json:"finish_reason"`
}

type wireStreamDelta struct {
	Role      string               `json:"role"`
	Content   string               `json:"content"`
	ToolCalls []wireStreamToolCall `json:"tool_calls"`
}

type wireStreamToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

// toolCallAssembler accumulates tool-call fragments across stream frames.
// Argument text arrives in pieces keyed by index; no JSON validation happens
// here because the payload is only presumed to be JSON. Repair is the
// orchestrator's concern.
type toolCallAssembler struct {
	calls map[int]*partialToolCall
}

type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{calls: make(map[int]*partialToolCall)}
}

func (a *toolCallAssembler) add(tc wireStreamToolCall) {
	call, ok := a.calls[tc.Index]
	if !ok {
		call = &partialToolCall{}
		a.calls[tc.Index] = call
	}
	if tc.ID != "" {
		call.id = tc.ID
	}
	if tc.Function.Name != "" {
		call.name = tc.Function.Name
	}
	if tc.Function.Arguments != "" {
		call.args.WriteString(tc.Function.Arguments)
	}
}

// finalize returns the assembled calls in index order.
func (a *toolCallAssembler) finalize() []core.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	result := make([]core.ToolCall, 0, len(a.calls))
	for _, idx := range indexes {
		call := a.calls[idx]
		result = append(result, core.ToolCall{
			ID:        call.id,
			Name:      call.name,
			Arguments: call.args.String(),
		})
	}
	return result
}

// streamDecoder turns a line-delimited event body into a lazy, single-pass
// sequence of content fragments. Decoding is frame-at-a-time: a frame that
// fails to parse is skipped rather than fatal, because upstream services
// sporadically emit partial frames at buffer boundaries. A tool-call delta
// stops content for that frame but not the stream; the full call set is
// handed to the orchestrator on Final.
type streamDecoder struct {
	provider *Provider
	chunks   chan<- core.ChatChunk
	errs     chan<- error
	final    chan<- *core.ChatResponse
}

// run consumes the body until EOF, the done sentinel, a request-level error,
// or caller cancellation. The body is closed on every exit path.
func (d *streamDecoder) run(ctx context.Context, body io.ReadCloser) {
	defer body.Close()
	defer close(d.chunks)
	defer close(d.errs)
	defer close(d.final)

	reader := bufio.NewReader(body)
	assembler := newToolCallAssembler()
	resp := &core.ChatResponse{}

	finish := func(cancelled bool) {
		resp.Cancelled = cancelled
		resp.ToolCalls = assembler.finalize()
		d.final <- resp
	}

	for {
		// Cancellation is checked before every read and is not an error:
		// stop pulling and hand back what has already arrived.
		select {
		case <-ctx.Done():
			finish(true)
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx.Err() != nil {
				// The transport aborts the read when the request context is
				// cancelled; treat it as cancellation, not failure.
				finish(true)
				return
			}
			d.errs <- d.provider.networkError(err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			break
		}

		if d.provider.cfg.FragmentTransform != nil {
			if fragment, ok := d.provider.cfg.FragmentTransform([]byte(payload)); ok && fragment != "" {
				if !d.emit(ctx, fragment) {
					finish(true)
					return
				}
			}
			continue
		}

		var frame wireStreamFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			// Malformed frame: skip it, never fail the stream.
			d.provider.log.Debug("skipping malformed stream frame",
				"provider", d.provider.cfg.Name, "error", err)
			continue
		}

		if frame.ID != "" {
			resp.ID = frame.ID
		}
		if frame.Model != "" {
			resp.Model = frame.Model
		}
		if frame.Usage != nil {
			resp.Usage = frame.Usage.toCore()
		}

		for _, choice := range frame.Choices {
			if choice.Delta.Content != "" {
				if !d.emit(ctx, choice.Delta.Content) {
					finish(true)
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				assembler.add(tc)
			}
		}
	}

	finish(false)
}

// emit delivers one fragment, reporting false when the caller cancelled
// instead of receiving it.
func (d *streamDecoder) emit(ctx context.Context, fragment string) bool {
	select {
	case d.chunks <- core.ChatChunk{Delta: fragment}:
		return true
	case <-ctx.Done():
		return false
	}
}
