package providers

import (
	"errors"
	"strings"
	"testing"

	"github.com/petal-labs/relay/core"
)

func TestResolveMemoizesInstances(t *testing.T) {
	r := NewEmptyRegistry()
	r.Add(testConfig("http://unused"))

	first, err := r.Resolve("test-model")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := r.Resolve("test-model")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if first != second {
		t.Error("Resolve() returned distinct instances for the same model")
	}
}

func TestResolveUnsupportedModel(t *testing.T) {
	r := NewEmptyRegistry()
	r.Add(testConfig("http://unused"))

	_, err := r.Resolve("gpt-4o")
	if !errors.Is(err, core.ErrUnsupportedModel) {
		t.Fatalf("error = %v, want ErrUnsupportedModel", err)
	}
	if !strings.Contains(err.Error(), "gpt-4o") {
		t.Errorf("error %q does not name the model", err)
	}
	if !strings.Contains(err.Error(), "test") {
		t.Errorf("error %q does not list registered providers", err)
	}
}

func TestResolvePrefixMatch(t *testing.T) {
	r := NewEmptyRegistry()
	r.Add(testConfig("http://unused"))

	p, err := r.Resolve("test-something-new")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Name() != "test" {
		t.Errorf("Name() = %q, want test", p.Name())
	}
}

func TestResolveFirstRegisteredWins(t *testing.T) {
	a := testConfig("http://a")
	a.Name = "a"
	b := testConfig("http://b")
	b.Name = "b"

	r := NewEmptyRegistry()
	r.Add(a)
	r.Add(b)

	p, err := r.Resolve("test-model")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Name() != "a" {
		t.Errorf("Name() = %q, want first-registered a", p.Name())
	}
}

func TestClearCacheCreatesFreshInstances(t *testing.T) {
	r := NewEmptyRegistry()
	r.Add(testConfig("http://unused"))

	before, err := r.Resolve("test-model")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	r.ClearCache()

	after, err := r.Resolve("test-model")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if before == after {
		t.Error("Resolve() returned the pre-clear instance after ClearCache")
	}
}

func TestRegistryOptionsReachProviders(t *testing.T) {
	creds := staticCreds{"test": "opt-key"}
	r := NewEmptyRegistry(WithCredentialStore(creds))
	r.Add(testConfig("http://unused"))

	p, err := r.Resolve("test-model")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	secret, err := p.credential()
	if err != nil {
		t.Fatalf("credential() error = %v", err)
	}
	if secret.Expose() != "opt-key" {
		t.Errorf("credential = %q, want opt-key", secret.Expose())
	}
}

func TestDefaultRegistryProviders(t *testing.T) {
	r := NewRegistry()

	names := r.Names()
	if len(names) != 2 || names[0] != "kimi" || names[1] != "deepseek" {
		t.Fatalf("Names() = %v, want [kimi deepseek]", names)
	}

	tests := []struct {
		model    string
		provider string
	}{
		{"moonshot-v1-8k", "kimi"},
		{"kimi-k2-0711-preview", "kimi"},
		{"deepseek-chat", "deepseek"},
		{"deepseek-reasoner", "deepseek"},
	}
	for _, tt := range tests {
		p, err := r.Resolve(tt.model)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", tt.model, err)
			continue
		}
		if p.Name() != tt.provider {
			t.Errorf("Resolve(%q).Name() = %q, want %q", tt.model, p.Name(), tt.provider)
		}
	}
}

func TestVariantCapabilities(t *testing.T) {
	kimi := KimiConfig()
	if !kimi.StreamToolUse {
		t.Error("kimi should stream tool calls")
	}
	if !kimi.SupportsSearch {
		t.Error("kimi should support web search")
	}

	deepseek := DeepSeekConfig()
	if deepseek.StreamToolUse {
		t.Error("deepseek should not stream tool calls")
	}
	if deepseek.SupportsSearch {
		t.Error("deepseek should not support web search")
	}
}
