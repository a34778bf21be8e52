package keystore

import (
	"github.com/petal-labs/relay/core"
)

// CredentialStore adapts a Keystore to the provider credential interface.
// Lookups that miss fall back to the provider's environment variable at the
// call site, so a miss here is not an error.
type CredentialStore struct {
	ks      Keystore
	aliases map[string]string
}

// NewCredentialStore wraps a Keystore for use as a provider credential
// source.
func NewCredentialStore(ks Keystore) *CredentialStore {
	return &CredentialStore{ks: ks}
}

// Alias makes lookups for a provider read a different keystore entry. Used
// for the api_key_ref config field.
func (s *CredentialStore) Alias(provider, ref string) {
	if s.aliases == nil {
		s.aliases = make(map[string]string)
	}
	s.aliases[provider] = ref
}

// Get implements core.CredentialStore.
func (s *CredentialStore) Get(provider string) (core.Secret, bool) {
	name := provider
	if ref, ok := s.aliases[provider]; ok && ref != "" {
		name = ref
	}

	value, err := s.ks.Get(name)
	if err != nil || value == "" {
		return core.Secret{}, false
	}
	return core.NewSecret(value), true
}

var _ core.CredentialStore = (*CredentialStore)(nil)
