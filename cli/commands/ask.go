package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/petal-labs/relay/cli/config"
	"github.com/petal-labs/relay/cli/keystore"
	"github.com/petal-labs/relay/cli/usage"
	"github.com/petal-labs/relay/core"
	"github.com/petal-labs/relay/gateway"
	"github.com/petal-labs/relay/providers"
)

// Exit codes
const (
	ExitSuccess    = 0
	ExitValidation = 1
	ExitProvider   = 2
	ExitNetwork    = 3
)

var (
	prompt      string
	system      string
	temperature float32
	maxTokens   int
	stream      bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Send a chat completion request",
	Long: `Send a chat completion request to the provider serving the model.

Examples:
  relay ask --model kimi-k2-0711-preview --prompt "Hello"
  relay ask --model deepseek-chat --prompt "Hello" --stream
  relay ask --prompt "Hello" --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVar(&prompt, "prompt", "", "User message (required)")
	askCmd.Flags().StringVar(&system, "system", "", "System message")
	askCmd.Flags().Float32Var(&temperature, "temperature", 0, "Temperature (0 = use default)")
	askCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Max output tokens (0 = use default)")
	askCmd.Flags().BoolVar(&stream, "stream", false, "Enable streaming output")

	_ = askCmd.MarkFlagRequired("prompt")
}

func runAsk(cmd *cobra.Command, args []string) error {
	modelID := GetModel()
	if modelID == "" {
		return exitWithCode(ExitValidation, fmt.Errorf("model required: use --model flag or set default_model in config"))
	}

	registry, err := newRegistry()
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}

	usagePath := cfg.UsageLog
	if usagePath == "" {
		usagePath = config.DefaultUsageLogPath()
	}

	gw := gateway.New(registry,
		gateway.WithUsageRecorder(usage.NewFileRecorder(usagePath)),
	)

	messages := []core.Message{}
	if system != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: system})
	}
	messages = append(messages, core.Message{Role: core.RoleUser, Content: prompt})

	reqCfg := core.RequestConfig{}
	if temperature > 0 {
		reqCfg.Temperature = &temperature
	}
	if maxTokens > 0 {
		reqCfg.MaxOutputTokens = &maxTokens
	}

	// Ctrl-C cancels the call; partial output is kept, not an error.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	useStream := stream || cfg.Stream
	if useStream && !IsJSONOutput() {
		fmt.Printf("> %s\n", prompt)
		reqCfg.Streaming = true
		reqCfg.OnFragment = func(delta string) {
			fmt.Print(delta)
		}

		res, err := gw.Do(ctx, modelID, messages, reqCfg)
		if err != nil {
			fmt.Println()
			return handleCallError(err)
		}
		fmt.Println()
		if res.Cancelled {
			fmt.Fprintln(os.Stderr, "(cancelled)")
		}
		printUsage(res)
		return nil
	}

	reqCfg.Streaming = useStream
	res, err := gw.Do(ctx, modelID, messages, reqCfg)
	if err != nil {
		return handleCallError(err)
	}

	if IsJSONOutput() {
		return outputJSON(res)
	}

	fmt.Printf("> %s\n", prompt)
	fmt.Println(res.Output)
	if res.Cancelled {
		fmt.Fprintln(os.Stderr, "(cancelled)")
	}
	printUsage(res)
	return nil
}

// newRegistry builds the provider registry backed by the encrypted keystore,
// with config overrides applied.
func newRegistry() (*providers.Registry, error) {
	ks, err := keystore.NewKeystore()
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	store := keystore.NewCredentialStore(ks)
	registry := providers.NewEmptyRegistry(providers.WithCredentialStore(store))

	for _, pc := range []providers.Config{providers.KimiConfig(), providers.DeepSeekConfig()} {
		if c := GetConfig().GetProvider(pc.Name); c != nil {
			if c.BaseURL != "" {
				pc.BaseURL = c.BaseURL
			}
			if c.APIKeyRef != "" {
				store.Alias(pc.Name, c.APIKeyRef)
			}
		}
		registry.Add(pc)
	}

	return registry, nil
}

func printUsage(res *gateway.Result) {
	if IsVerbose() {
		fmt.Fprintf(os.Stderr, "Usage: %d prompt + %d completion = %d total tokens (%d rounds)\n",
			res.Usage.PromptTokens,
			res.Usage.CompletionTokens,
			res.Usage.TotalTokens,
			res.Rounds)
	}
}

func handleCallError(err error) error {
	var provErr *core.ProviderError
	if errors.As(err, &provErr) {
		if IsJSONOutput() {
			outputErrorJSON(provErr)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", provErr.Message)
			fmt.Fprintf(os.Stderr, "  Provider: %s\n", provErr.Provider)
		}

		switch {
		case errors.Is(err, core.ErrNetwork):
			return exitWithCode(ExitNetwork, err)
		case errors.Is(err, core.ErrMissingCredential):
			return exitWithCode(ExitValidation, err)
		default:
			return exitWithCode(ExitProvider, err)
		}
	}

	if errors.Is(err, core.ErrUnsupportedModel) {
		if IsJSONOutput() {
			outputSimpleErrorJSON("validation_error", err.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return exitWithCode(ExitValidation, err)
	}

	if IsJSONOutput() {
		outputSimpleErrorJSON("error", err.Error())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitWithCode(ExitProvider, err)
}

func outputJSON(res *gateway.Result) error {
	output := map[string]interface{}{
		"call_id":   res.CallID,
		"provider":  res.Provider,
		"model":     res.Model,
		"output":    res.Output,
		"cancelled": res.Cancelled,
		"rounds":    res.Rounds,
		"usage": map[string]int{
			"prompt_tokens":     res.Usage.PromptTokens,
			"completion_tokens": res.Usage.CompletionTokens,
			"total_tokens":      res.Usage.TotalTokens,
		},
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func outputErrorJSON(provErr *core.ProviderError) {
	output := map[string]interface{}{
		"error": map[string]interface{}{
			"type":     provErr.Code,
			"message":  provErr.Message,
			"provider": provErr.Provider,
		},
	}

	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	enc.Encode(output)
}

func outputSimpleErrorJSON(errType, message string) {
	output := map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	}

	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	enc.Encode(output)
}

// exitError wraps an error with an exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) ExitCode() int {
	return e.code
}

func exitWithCode(code int, err error) error {
	return &exitError{code: code, err: err}
}
