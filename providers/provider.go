// Package providers implements the provider abstraction of the relay
// gateway: a shared HTTP call protocol parameterized by per-service configs,
// an SSE stream decoder, and a caching registry that maps model identifiers
// to provider instances.
package providers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/petal-labs/relay/core"
)

// defaultCompletionsPath is the chat-completions endpoint shared by the
// OpenAI-compatible services relay talks to.
const defaultCompletionsPath = "/chat/completions"

// Provider executes the shared call protocol for one remote service:
// credential check, request construction, authenticated POST, and decoding
// of the one-shot or streaming response. A Provider holds no per-call state
// and is safe for concurrent use.
type Provider struct {
	cfg   Config
	creds core.CredentialStore
	http  *http.Client
	log   *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.http = client
		}
	}
}

// WithCredentialStore sets the credential store consulted before the
// environment fallback.
func WithCredentialStore(store core.CredentialStore) Option {
	return func(p *Provider) {
		if store != nil {
			p.creds = store
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Provider) {
		if log != nil {
			p.log = log
		}
	}
}

// WithBaseURL overrides the service base URL (proxies, test servers).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.cfg.BaseURL = url
		}
	}
}

// New creates a Provider from a Config.
func New(cfg Config, opts ...Option) *Provider {
	if cfg.CompletionsPath == "" {
		cfg.CompletionsPath = defaultCompletionsPath
	}
	p := &Provider{
		cfg:   cfg,
		creds: core.EnvOnly{},
		http:  http.DefaultClient,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.cfg.Name
}

// DefaultModel returns the model used when a request leaves it empty.
func (p *Provider) DefaultModel() string {
	return p.cfg.DefaultModel
}

// StreamToolUse reports whether the service can combine streaming with tool
// calls.
func (p *Provider) StreamToolUse() bool {
	return p.cfg.StreamToolUse
}

// Models returns the model identifiers the provider claims.
func (p *Provider) Models() []string {
	out := make([]string, len(p.cfg.Models))
	copy(out, p.cfg.Models)
	return out
}

// credential resolves the provider secret: credential store first, then the
// environment fallback. It fails before any network access happens.
func (p *Provider) credential() (core.Secret, error) {
	if s, ok := p.creds.Get(p.cfg.Name); ok && !s.IsEmpty() {
		return s, nil
	}
	if p.cfg.CredentialEnv != "" {
		if v := os.Getenv(p.cfg.CredentialEnv); v != "" {
			return core.NewSecret(v), nil
		}
	}
	return core.Secret{}, &core.ProviderError{
		Provider: p.cfg.Name,
		Message:  "no API key configured (set " + p.cfg.CredentialEnv + " or add one to the keystore)",
		Err:      core.ErrMissingCredential,
	}
}

// authHeaders builds the header set for one request.
func (p *Provider) authHeaders(secret core.Secret) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+secret.Expose())
	h.Set("Content-Type", "application/json")
	for key, values := range p.cfg.DefaultHeaders {
		for _, v := range values {
			h.Add(key, v)
		}
	}
	return h
}

// post runs the front half of the call protocol: credential check, body
// construction, authenticated POST. Any non-success status is normalized
// into a ProviderError before the body reaches a decoder.
func (p *Provider) post(ctx context.Context, req *core.ChatRequest, stream bool) (*http.Response, error) {
	secret, err := p.credential()
	if err != nil {
		return nil, err
	}

	body, err := p.buildBody(req, stream)
	if err != nil {
		return nil, p.decodeError(err)
	}

	url := p.cfg.BaseURL + p.cfg.CompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, p.networkError(err)
	}
	httpReq.Header = p.authHeaders(secret)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, p.networkError(err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, p.statusError(resp.StatusCode, respBody)
	}

	return resp, nil
}

// Chat sends a one-shot request and decodes the full response. A response
// that signals a pending tool invocation yields the calls on the result, not
// text; acting on them is the orchestrator's job.
//
// Cancellation is not an error: a caller that cancels while the request is
// in flight gets an empty response with Cancelled set, the same signal the
// stream decoder produces.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	resp, err := p.post(ctx, req, false)
	if err != nil {
		if ctx.Err() != nil {
			return &core.ChatResponse{Cancelled: true}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return &core.ChatResponse{Cancelled: true}, nil
		}
		return nil, p.networkError(err)
	}

	if p.cfg.ResponseTransform != nil {
		return p.cfg.ResponseTransform(body)
	}
	return p.decodeResponse(body)
}

// StreamChat sends a streaming request. The response body is consumed by the
// stream decoder on its own goroutine; the returned ChatStream is a lazy,
// single-pass sequence of content fragments.
func (p *Provider) StreamChat(ctx context.Context, req *core.ChatRequest) (*core.ChatStream, error) {
	resp, err := p.post(ctx, req, true)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledStream(), nil
		}
		return nil, err
	}

	chunkCh := make(chan core.ChatChunk, 16)
	errCh := make(chan error, 1)
	finalCh := make(chan *core.ChatResponse, 1)

	dec := &streamDecoder{
		provider: p,
		chunks:   chunkCh,
		errs:     errCh,
		final:    finalCh,
	}
	go dec.run(ctx, resp.Body)

	return &core.ChatStream{
		Ch:    chunkCh,
		Err:   errCh,
		Final: finalCh,
	}, nil
}

// cancelledStream is the stream shape for a request cancelled before any
// response bytes arrived: no fragments, no error, a Final with Cancelled set.
func cancelledStream() *core.ChatStream {
	chunkCh := make(chan core.ChatChunk)
	close(chunkCh)
	errCh := make(chan error)
	close(errCh)
	finalCh := make(chan *core.ChatResponse, 1)
	finalCh <- &core.ChatResponse{Cancelled: true}
	close(finalCh)
	return &core.ChatStream{
		Ch:    chunkCh,
		Err:   errCh,
		Final: finalCh,
	}
}
