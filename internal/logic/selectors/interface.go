package selectors

import (
	"context"

	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// Selector picks one script for a placement from an already filtered,
// non-empty list. zone is nil for placements without a position.
type Selector interface {
	SelectScript(scripts []models.AdScript, zone *models.AdZone, trace *logic.SelectionTrace) *models.AdScript
}

// ScriptSource lists every configured script.
type ScriptSource interface {
	FetchScripts(ctx context.Context) ([]models.AdScript, error)
}

// NetworkLookup resolves a network by ID. It returns nil for unknown IDs.
type NetworkLookup interface {
	GetNetwork(id string) *models.AdNetwork
}
