package selectors

import (
	"context"
	"fmt"

	"github.com/patrickwarner/moovie-ads/internal/models"
)

// Catalog narrows the script list down to the candidates for one ad type.
type Catalog struct {
	src      ScriptSource
	networks NetworkLookup
}

// NewCatalog creates a Catalog. networks may be nil, in which case network
// state is not consulted.
func NewCatalog(src ScriptSource, networks NetworkLookup) *Catalog {
	return &Catalog{src: src, networks: networks}
}

// GetAdScriptsByType returns the enabled scripts of adType. Scripts whose
// network is known and disabled are left out. An empty result is a valid
// "no ad available" outcome.
func (c *Catalog) GetAdScriptsByType(ctx context.Context, adType models.AdType) ([]models.AdScript, error) {
	all, err := c.src.FetchScripts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch scripts: %w", err)
	}
	var out []models.AdScript
	for _, s := range all {
		if s.AdType != adType || !s.IsEnabled {
			continue
		}
		if c.networks != nil {
			if n := c.networks.GetNetwork(s.NetworkID); n != nil && !n.IsEnabled {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}
