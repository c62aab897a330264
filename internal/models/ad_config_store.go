package models

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// AdConfigStore provides thread-safe access to ad engine configuration.
// Reads are served from an immutable snapshot that writers swap atomically.
type AdConfigStore interface {
	// Read operations (hot path)
	GetSettings() AdSettings
	GetNetwork(id string) *AdNetwork
	GetScript(id string) *AdScript
	GetAllNetworks() []AdNetwork
	GetAllScripts() []AdScript
	GetScriptsByNetwork(networkID string) []AdScript

	// Context-aware sources used by the delivery pipeline.
	FetchSettings(ctx context.Context) (AdSettings, error)
	FetchScripts(ctx context.Context) ([]AdScript, error)

	// Atomic bulk operations
	ReloadAll(networks []AdNetwork, scripts []AdScript, settings AdSettings) error

	// CRUD operations for real-time updates
	SetSettings(settings AdSettings) error

	InsertNetwork(network AdNetwork) error
	UpdateNetwork(network AdNetwork) error
	DeleteNetwork(id string) error

	InsertScript(script AdScript) error
	UpdateScript(script AdScript) error
	DeleteScript(id string) error
}

// configSnapshot is an immutable view of all ad configuration.
type configSnapshot struct {
	settings     AdSettings
	networks     []AdNetwork
	networkIndex map[string]*AdNetwork
	scripts      []AdScript
	scriptIndex  map[string]*AdScript
}

func newConfigSnapshot(networks []AdNetwork, scripts []AdScript, settings AdSettings) *configSnapshot {
	snap := &configSnapshot{
		settings:     settings,
		networks:     networks,
		networkIndex: make(map[string]*AdNetwork, len(networks)),
		scripts:      scripts,
		scriptIndex:  make(map[string]*AdScript, len(scripts)),
	}
	for i := range snap.networks {
		snap.networkIndex[snap.networks[i].ID] = &snap.networks[i]
	}
	for i := range snap.scripts {
		snap.scriptIndex[snap.scripts[i].ID] = &snap.scripts[i]
	}
	return snap
}

// InMemoryAdConfigStore implements AdConfigStore with atomic snapshot updates.
type InMemoryAdConfigStore struct {
	data atomic.Pointer[configSnapshot]
	// writeMu serializes writers so concurrent CRUD calls do not drop updates.
	writeMu sync.Mutex
}

var _ AdConfigStore = (*InMemoryAdConfigStore)(nil)

// NewInMemoryAdConfigStore creates a store holding default settings and no
// networks or scripts.
func NewInMemoryAdConfigStore() *InMemoryAdConfigStore {
	s := &InMemoryAdConfigStore{}
	s.data.Store(newConfigSnapshot(nil, nil, DefaultAdSettings()))
	return s
}

// GetSettings returns the current settings.
func (s *InMemoryAdConfigStore) GetSettings() AdSettings {
	return s.data.Load().settings
}

// GetNetwork retrieves a network by ID.
func (s *InMemoryAdConfigStore) GetNetwork(id string) *AdNetwork {
	if n, ok := s.data.Load().networkIndex[id]; ok {
		cp := *n
		return &cp
	}
	return nil
}

// GetScript retrieves a script by ID.
func (s *InMemoryAdConfigStore) GetScript(id string) *AdScript {
	if sc, ok := s.data.Load().scriptIndex[id]; ok {
		cp := *sc
		return &cp
	}
	return nil
}

// GetAllNetworks returns a copy of all networks.
func (s *InMemoryAdConfigStore) GetAllNetworks() []AdNetwork {
	data := s.data.Load()
	result := make([]AdNetwork, len(data.networks))
	copy(result, data.networks)
	return result
}

// GetAllScripts returns a copy of all scripts.
func (s *InMemoryAdConfigStore) GetAllScripts() []AdScript {
	data := s.data.Load()
	result := make([]AdScript, len(data.scripts))
	copy(result, data.scripts)
	return result
}

// GetScriptsByNetwork returns the scripts owned by a network.
func (s *InMemoryAdConfigStore) GetScriptsByNetwork(networkID string) []AdScript {
	var result []AdScript
	for _, sc := range s.data.Load().scripts {
		if sc.NetworkID == networkID {
			result = append(result, sc)
		}
	}
	return result
}

// FetchSettings returns the current settings. It never fails for the
// in-memory store but honours ctx cancellation like remote sources do.
func (s *InMemoryAdConfigStore) FetchSettings(ctx context.Context) (AdSettings, error) {
	if err := ctx.Err(); err != nil {
		return AdSettings{}, err
	}
	return s.GetSettings(), nil
}

// FetchScripts returns all scripts.
func (s *InMemoryAdConfigStore) FetchScripts(ctx context.Context) ([]AdScript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.GetAllScripts(), nil
}

// ReloadAll atomically replaces every piece of configuration.
func (s *InMemoryAdConfigStore) ReloadAll(networks []AdNetwork, scripts []AdScript, settings AdSettings) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ns := make([]AdNetwork, len(networks))
	copy(ns, networks)
	sc := make([]AdScript, len(scripts))
	copy(sc, scripts)
	s.data.Store(newConfigSnapshot(ns, sc, settings))
	return nil
}

// SetSettings replaces the singleton settings.
func (s *InMemoryAdConfigStore) SetSettings(settings AdSettings) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.data.Load()
	s.data.Store(newConfigSnapshot(cur.networks, cur.scripts, settings))
	return nil
}

// InsertNetwork adds a network, replacing any existing one with the same ID.
func (s *InMemoryAdConfigStore) InsertNetwork(network AdNetwork) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.data.Load()
	networks := make([]AdNetwork, 0, len(cur.networks)+1)
	for _, n := range cur.networks {
		if n.ID != network.ID {
			networks = append(networks, n)
		}
	}
	networks = append(networks, network)
	s.data.Store(newConfigSnapshot(networks, cur.scripts, cur.settings))
	return nil
}

// UpdateNetwork replaces an existing network.
func (s *InMemoryAdConfigStore) UpdateNetwork(network AdNetwork) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.data.Load()
	existing, ok := cur.networkIndex[network.ID]
	if !ok {
		return ErrNotFound
	}
	if network.CreatedAt.IsZero() {
		network.CreatedAt = existing.CreatedAt
	}
	networks := make([]AdNetwork, len(cur.networks))
	copy(networks, cur.networks)
	for i := range networks {
		if networks[i].ID == network.ID {
			networks[i] = network
		}
	}
	s.data.Store(newConfigSnapshot(networks, cur.scripts, cur.settings))
	return nil
}

// DeleteNetwork removes a network together with its scripts.
func (s *InMemoryAdConfigStore) DeleteNetwork(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.data.Load()
	if _, ok := cur.networkIndex[id]; !ok {
		return ErrNotFound
	}
	networks := make([]AdNetwork, 0, len(cur.networks))
	for _, n := range cur.networks {
		if n.ID != id {
			networks = append(networks, n)
		}
	}
	scripts := make([]AdScript, 0, len(cur.scripts))
	for _, sc := range cur.scripts {
		if sc.NetworkID != id {
			scripts = append(scripts, sc)
		}
	}
	s.data.Store(newConfigSnapshot(networks, scripts, cur.settings))
	return nil
}

// InsertScript adds a script, replacing any existing one with the same ID.
func (s *InMemoryAdConfigStore) InsertScript(script AdScript) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.data.Load()
	scripts := make([]AdScript, 0, len(cur.scripts)+1)
	for _, sc := range cur.scripts {
		if sc.ID != script.ID {
			scripts = append(scripts, sc)
		}
	}
	scripts = append(scripts, script)
	s.data.Store(newConfigSnapshot(cur.networks, scripts, cur.settings))
	return nil
}

// UpdateScript replaces an existing script.
func (s *InMemoryAdConfigStore) UpdateScript(script AdScript) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.data.Load()
	existing, ok := cur.scriptIndex[script.ID]
	if !ok {
		return ErrNotFound
	}
	if script.CreatedAt.IsZero() {
		script.CreatedAt = existing.CreatedAt
	}
	scripts := make([]AdScript, len(cur.scripts))
	copy(scripts, cur.scripts)
	for i := range scripts {
		if scripts[i].ID == script.ID {
			scripts[i] = script
		}
	}
	s.data.Store(newConfigSnapshot(cur.networks, scripts, cur.settings))
	return nil
}

// DeleteScript removes a script by ID.
func (s *InMemoryAdConfigStore) DeleteScript(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.data.Load()
	if _, ok := cur.scriptIndex[id]; !ok {
		return ErrNotFound
	}
	scripts := make([]AdScript, 0, len(cur.scripts))
	for _, sc := range cur.scripts {
		if sc.ID != id {
			scripts = append(scripts, sc)
		}
	}
	s.data.Store(newConfigSnapshot(cur.networks, scripts, cur.settings))
	return nil
}

// SortScriptsByCreated orders scripts oldest first, ID breaking ties.
func SortScriptsByCreated(scripts []AdScript) {
	sort.SliceStable(scripts, func(i, j int) bool {
		if scripts[i].CreatedAt.Equal(scripts[j].CreatedAt) {
			return scripts[i].ID < scripts[j].ID
		}
		return scripts[i].CreatedAt.Before(scripts[j].CreatedAt)
	})
}
