package selectors

import (
	"math/rand"

	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// SelectRandomScript returns a uniformly random member of scripts, or nil
// when scripts is empty.
func SelectRandomScript(scripts []models.AdScript) *models.AdScript {
	return selectWith(rand.Intn, scripts)
}

func selectWith(intn func(int) int, scripts []models.AdScript) *models.AdScript {
	if len(scripts) == 0 {
		return nil
	}
	s := scripts[intn(len(scripts))]
	return &s
}

// RandomSelector honours a zone's pinned script when it is among the
// candidates and otherwise picks uniformly at random. No weighting or
// recency avoidance is applied.
type RandomSelector struct {
	intn func(int) int
}

// NewRandomSelector creates a RandomSelector backed by math/rand.
func NewRandomSelector() *RandomSelector {
	return &RandomSelector{intn: rand.Intn}
}

// SelectScript implements Selector.
func (r *RandomSelector) SelectScript(scripts []models.AdScript, zone *models.AdZone, trace *logic.SelectionTrace) *models.AdScript {
	if zone != nil {
		if pinned := zone.PinnedScriptID(); pinned != "" {
			for i := range scripts {
				if scripts[i].ID == pinned {
					s := scripts[i]
					trace.AddStepWithDetails("select", "pinned", map[string]string{"script_id": s.ID})
					return &s
				}
			}
			// The pinned script was deleted or disabled since assignment.
			trace.AddStepWithDetails("select", "pin_fallback", map[string]string{"pinned_script_id": pinned})
		}
	}

	intn := r.intn
	if intn == nil {
		intn = rand.Intn
	}
	s := selectWith(intn, scripts)
	if s != nil {
		trace.AddStepWithDetails("select", "random", map[string]string{"script_id": s.ID})
	}
	return s
}
