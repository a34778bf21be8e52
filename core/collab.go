package core

// CredentialStore supplies API secrets to providers. Implementations include
// the CLI's encrypted keystore and the environment-variable store used in
// tests.
type CredentialStore interface {
	// Get returns the credential for a provider name, or ok=false when no
	// secret is configured for it.
	Get(provider string) (secret Secret, ok bool)
}

// EnvOnly is the zero-value credential store: every lookup misses, so
// providers fall back to their environment variable.
type EnvOnly struct{}

// Get always reports absent.
func (EnvOnly) Get(string) (Secret, bool) {
	return Secret{}, false
}

// UsageRecorder is the fire-and-forget accounting hook invoked by the
// gateway after a call completes. Errors are logged by the gateway and never
// surfaced to the caller; accounting must not break chat delivery.
type UsageRecorder interface {
	Record(provider, model, input, output string) error
}
