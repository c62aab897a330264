package logic

// TraceStep records the outcome of one placement pipeline stage.
type TraceStep struct {
	Stage   string            `json:"stage"`
	Outcome string            `json:"outcome"`
	Details map[string]string `json:"details,omitempty"`
}

// SelectionTrace captures the ordered stages a placement went through. A nil
// trace ignores every call so callers need not check for debug mode.
type SelectionTrace struct {
	Steps []TraceStep `json:"steps"`
}

// AddStep appends a trace entry for the given stage.
func (t *SelectionTrace) AddStep(stage, outcome string) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, TraceStep{Stage: stage, Outcome: outcome})
}

// AddStepWithDetails appends a trace entry with additional details.
func (t *SelectionTrace) AddStepWithDetails(stage, outcome string, details map[string]string) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, TraceStep{Stage: stage, Outcome: outcome, Details: details})
}

// Stages returns the stage names in order.
func (t *SelectionTrace) Stages() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Stage
	}
	return out
}
