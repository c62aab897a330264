package models

// NewTestAdConfigStore creates a config store seeded with the given networks
// and scripts and default settings, for tests.
func NewTestAdConfigStore(networks []AdNetwork, scripts []AdScript) *InMemoryAdConfigStore {
	s := NewInMemoryAdConfigStore()
	_ = s.ReloadAll(networks, scripts, DefaultAdSettings())
	return s
}
