package db

import (
	"context"
	"fmt"

	"github.com/patrickwarner/moovie-ads/internal/models"
)

// ConfigLoader is the subset of Postgres used to populate the config store.
type ConfigLoader interface {
	LoadSettings(ctx context.Context) (models.AdSettings, error)
	LoadNetworks(ctx context.Context) ([]models.AdNetwork, error)
	LoadScripts(ctx context.Context, networkID string) ([]models.AdScript, error)
}

// LoadConfig reads settings, networks and scripts and swaps them into store
// in one atomic step. Scripts referencing unknown networks are rejected.
func LoadConfig(ctx context.Context, src ConfigLoader, store models.AdConfigStore) error {
	settings, err := src.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	networks, err := src.LoadNetworks(ctx)
	if err != nil {
		return fmt.Errorf("load networks: %w", err)
	}
	scripts, err := src.LoadScripts(ctx, "")
	if err != nil {
		return fmt.Errorf("load scripts: %w", err)
	}

	known := make(map[string]struct{}, len(networks))
	for _, n := range networks {
		known[n.ID] = struct{}{}
	}
	for _, s := range scripts {
		if _, ok := known[s.NetworkID]; !ok {
			return fmt.Errorf("script %s references undefined network %s", s.ID, s.NetworkID)
		}
	}

	if err := store.ReloadAll(networks, scripts, settings); err != nil {
		return fmt.Errorf("reload ad config: %w", err)
	}
	return nil
}
