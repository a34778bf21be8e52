package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/petal-labs/relay/core"
)

// staticCreds is an in-memory credential store for tests.
type staticCreds map[string]string

func (s staticCreds) Get(provider string) (core.Secret, bool) {
	v, ok := s[provider]
	if !ok || v == "" {
		return core.Secret{}, false
	}
	return core.NewSecret(v), true
}

// testConfig returns a minimal config pointed at a test server.
func testConfig(url string) Config {
	return Config{
		Name:          "test",
		BaseURL:       url,
		DefaultModel:  "test-model",
		Models:        []string{"test-model"},
		ModelPrefixes: []string{"test-"},
	}
}

func testProvider(url string, opts ...Option) *Provider {
	opts = append([]Option{WithCredentialStore(staticCreds{"test": "test-key"})}, opts...)
	return New(testConfig(url), opts...)
}

func TestChatSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "resp-1",
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "4"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 1, "total_tokens": 10}
		}`))
	}))
	defer server.Close()

	p := testProvider(server.URL)
	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "test-model",
		Messages: []core.Message{{Role: core.RoleUser, Content: "2+2?"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if resp.Output != "4" {
		t.Errorf("Output = %q, want %q", resp.Output, "4")
	}
	if resp.ID != "resp-1" {
		t.Errorf("ID = %q, want %q", resp.ID, "resp-1")
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("Usage.TotalTokens = %d, want 10", resp.Usage.TotalTokens)
	}
	if resp.HasToolCalls() {
		t.Error("HasToolCalls() = true, want false")
	}
}

func TestChatMissingCredentialMakesNoRequest(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.CredentialEnv = "RELAY_TEST_MISSING_KEY"
	t.Setenv("RELAY_TEST_MISSING_KEY", "")

	p := New(cfg)
	_, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "test-model",
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	})

	if !errors.Is(err, core.ErrMissingCredential) {
		t.Fatalf("error = %v, want ErrMissingCredential", err)
	}
	if requests != 0 {
		t.Errorf("server saw %d requests, want 0", requests)
	}
}

func TestChatCredentialEnvFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer env-key" {
			t.Errorf("Authorization = %q, want Bearer env-key", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.CredentialEnv = "RELAY_TEST_ENV_KEY"
	t.Setenv("RELAY_TEST_ENV_KEY", "env-key")

	p := New(cfg)
	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Output != "ok" {
		t.Errorf("Output = %q, want %q", resp.Output, "ok")
	}
}

func TestChatCancelledDuringRequest(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		close(started)
		// Hold the response until the client gives up.
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	p := testProvider(server.URL)
	resp, err := p.Chat(ctx, &core.ChatRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("cancellation surfaced as error: %v", err)
	}
	if !resp.Cancelled {
		t.Error("Cancelled = false, want true")
	}
	if resp.Output != "" {
		t.Errorf("Output = %q, want empty", resp.Output)
	}
}

func TestChatStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"code":"invalid_api_key","message":"bad key"}}`,
			sentinel: core.ErrUnauthorized,
			message:  "bad key",
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     `{}`,
			sentinel: core.ErrUnauthorized,
			message:  "Forbidden",
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"message":"slow down"}}`,
			sentinel: core.ErrRateLimited,
			message:  "slow down",
		},
		{
			name:     "server error",
			status:   http.StatusBadGateway,
			body:     ``,
			sentinel: core.ErrServer,
			message:  "Bad Gateway",
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"no messages"}}`,
			sentinel: core.ErrBadRequest,
			message:  "no messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := testProvider(server.URL)
			_, err := p.Chat(context.Background(), &core.ChatRequest{
				Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
			})

			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("error = %v, want sentinel %v", err, tt.sentinel)
			}

			var provErr *core.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("error is not a ProviderError: %v", err)
			}
			if provErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", provErr.Status, tt.status)
			}
			if provErr.Message != tt.message {
				t.Errorf("Message = %q, want %q", provErr.Message, tt.message)
			}
		})
	}
}

func TestChatDecodesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "resp-2",
			"choices": [{"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Oslo\"}"}}]
			}}]
		}`))
	}))
	defer server.Close()

	p := testProvider(server.URL)
	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: "weather?"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if !resp.HasToolCalls() {
		t.Fatal("HasToolCalls() = false, want true")
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "get_weather" {
		t.Errorf("ToolCalls[0] = %+v", call)
	}
	if call.Arguments != `{"city":"Oslo"}` {
		t.Errorf("Arguments = %q", call.Arguments)
	}
}

func TestBuildBodyDefaultsAndExtras(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.SupportsSearch = true
	p := New(cfg, WithCredentialStore(staticCreds{"test": "test-key"}))

	temp := float32(0.7)
	maxTok := 128
	_, err := p.Chat(context.Background(), &core.ChatRequest{
		Messages:    []core.Message{{Role: core.RoleUser, Content: "hi"}},
		Temperature: &temp,
		MaxTokens:   &maxTok,
		WebSearch:   true,
		Extra:       map[string]any{"thinking": true},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if captured["model"] != "test-model" {
		t.Errorf("model = %v, want default test-model", captured["model"])
	}
	if captured["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want 0.7", captured["temperature"])
	}
	if captured["max_tokens"] != float64(128) {
		t.Errorf("max_tokens = %v, want 128", captured["max_tokens"])
	}
	if captured["stream"] != false {
		t.Errorf("stream = %v, want false", captured["stream"])
	}
	if captured["web_search"] != true {
		t.Errorf("web_search = %v, want true", captured["web_search"])
	}
	if captured["thinking"] != true {
		t.Errorf("extra field thinking = %v, want true", captured["thinking"])
	}
}

func TestBuildBodyOmitsSearchWhenUnsupported(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	p := testProvider(server.URL)
	_, err := p.Chat(context.Background(), &core.ChatRequest{
		Messages:  []core.Message{{Role: core.RoleUser, Content: "hi"}},
		WebSearch: true,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if _, ok := captured["web_search"]; ok {
		t.Error("web_search present in body for a provider without search support")
	}
}

func TestRequestTransformReplacesShaping(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RequestTransform = func(req *core.ChatRequest, stream bool) ([]byte, error) {
		return json.Marshal(map[string]any{"custom": req.Model, "stream": stream})
	}
	p := New(cfg, WithCredentialStore(staticCreds{"test": "test-key"}))

	_, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "test-model",
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if captured["custom"] != "test-model" {
		t.Errorf("custom = %v, want test-model", captured["custom"])
	}
	if _, ok := captured["messages"]; ok {
		t.Error("default shaping leaked into transformed body")
	}
}

func TestDefaultHeadersForwarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Client"); got != "relay" {
			t.Errorf("X-Client = %q, want relay", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.DefaultHeaders = http.Header{"X-Client": []string{"relay"}}
	p := New(cfg, WithCredentialStore(staticCreds{"test": "test-key"}))

	if _, err := p.Chat(context.Background(), &core.ChatRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
}

func TestModelsReturnsCopy(t *testing.T) {
	p := testProvider("http://unused")
	models := p.Models()
	if len(models) == 0 {
		t.Fatal("Models() is empty")
	}
	models[0] = "mutated"
	if p.Models()[0] == "mutated" {
		t.Error("Models() did not return a copy")
	}
}
