package providers

// DeepSeek speaks the same OpenAI-compatible dialect as Kimi but declares
// that it cannot combine streaming with tool use: when tools are requested
// the gateway downgrades the call to a one-shot request. This mirrors the
// service's observed behavior and is a declared capability, not a hard-coded
// rule. It has no built-in search flag.

const (
	deepseekBaseURL = "https://api.deepseek.com/v1"
	deepseekKeyEnv  = "DEEPSEEK_API_KEY"
)

// DeepSeekConfig returns the static description of the DeepSeek service.
func DeepSeekConfig() Config {
	return Config{
		Name:          "deepseek",
		BaseURL:       deepseekBaseURL,
		DefaultModel:  "deepseek-chat",
		CredentialEnv: deepseekKeyEnv,
		Models: []string{
			"deepseek-chat",
			"deepseek-reasoner",
		},
		ModelPrefixes:  []string{"deepseek-"},
		StreamToolUse:  false,
		SupportsSearch: false,
	}
}

// DeepSeek creates a DeepSeek provider.
func DeepSeek(opts ...Option) *Provider {
	return New(DeepSeekConfig(), opts...)
}
