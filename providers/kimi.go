package providers

// Kimi speaks Moonshot's OpenAI-compatible chat-completions dialect. It can
// stream tool-call deltas, so streaming stays enabled when tools are
// requested, and it honors the web_search request flag.

const (
	kimiBaseURL = "https://api.moonshot.ai/v1"
	kimiKeyEnv  = "KIMI_API_KEY"
)

// KimiConfig returns the static description of the Kimi service.
func KimiConfig() Config {
	return Config{
		Name:          "kimi",
		BaseURL:       kimiBaseURL,
		DefaultModel:  "moonshot-v1-8k",
		CredentialEnv: kimiKeyEnv,
		Models: []string{
			"moonshot-v1-8k",
			"moonshot-v1-32k",
			"moonshot-v1-128k",
			"kimi-k2-0711-preview",
		},
		ModelPrefixes:  []string{"moonshot-", "kimi-"},
		StreamToolUse:  true,
		SupportsSearch: true,
	}
}

// Kimi creates a Kimi provider.
func Kimi(opts ...Option) *Provider {
	return New(KimiConfig(), opts...)
}
