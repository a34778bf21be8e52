package core

// ChatStream represents a streaming response from a provider.
//
// Channel rules:
//   - Providers MUST close Ch, Err, and Final when the stream ends.
//   - Fragments arrive on Ch strictly in upstream order.
//   - Err emits at most one error.
//   - Final emits exactly once on a completed or cancelled stream, and zero
//     times when setup fails before any reading starts.
//   - Caller cancellation is not an error: the provider stops reading, sends
//     a Final response with Cancelled set, and closes the channels.
type ChatStream struct {
	// Ch emits content fragments in arrival order.
	Ch <-chan ChatChunk

	// Err emits at most one request-level error.
	Err <-chan error

	// Final carries the assembled response: tool calls, usage, and the
	// cancellation flag.
	Final <-chan *ChatResponse
}
