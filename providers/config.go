package providers

import (
	"net/http"
	"strings"

	"github.com/petal-labs/relay/core"
)

// Config statically describes one remote chat-completion service. One Config
// exists per provider variant and is immutable after construction; variants
// differ only in their Config, never in the call protocol.
type Config struct {
	// Name identifies the provider ("kimi", "deepseek"). It is the lookup
	// key in the credential store and the label on usage records and logs.
	Name string

	// BaseURL is the service root; CompletionsPath is appended to it.
	BaseURL string

	// CompletionsPath overrides the default "/chat/completions".
	CompletionsPath string

	// DefaultModel is used when a request leaves the model empty.
	DefaultModel string

	// DefaultHeaders are added to every request after the auth headers.
	DefaultHeaders http.Header

	// CredentialEnv is the environment variable consulted when the
	// credential store has no entry for Name.
	CredentialEnv string

	// Models and ModelPrefixes drive registry resolution: a model identifier
	// belongs to this provider when it appears in Models or starts with one
	// of the prefixes.
	Models        []string
	ModelPrefixes []string

	// StreamToolUse declares whether the service can combine streaming with
	// tool calls. When false, the gateway downgrades a streaming request
	// that carries tools to a one-shot request.
	StreamToolUse bool

	// SupportsSearch declares whether the service accepts the web_search
	// request flag.
	SupportsSearch bool

	// RequestTransform, when set, fully replaces the default body shaping.
	// There is no partial merge: the transform owns the entire payload.
	RequestTransform func(req *core.ChatRequest, stream bool) ([]byte, error)

	// ResponseTransform, when set, replaces the default one-shot decode.
	ResponseTransform func(body []byte) (*core.ChatResponse, error)

	// FragmentTransform, when set, replaces the default per-frame content
	// extraction. Returning ok=false means the frame carries no content.
	FragmentTransform func(frame []byte) (fragment string, ok bool)
}

// matches reports whether the config claims the given model identifier.
func (c Config) matches(modelID string) bool {
	for _, m := range c.Models {
		if m == modelID {
			return true
		}
	}
	for _, p := range c.ModelPrefixes {
		if strings.HasPrefix(modelID, p) {
			return true
		}
	}
	return false
}
