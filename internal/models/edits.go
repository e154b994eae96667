package models

// ValidatePatch enforces the operation-specific patch shape from spec §3
// MemoryEdit: amend requires text and/or importance; attenuate requires an
// absolute importance and/or a signed delta; block requires a channel;
// retract and quarantine carry no patch fields at all.
func ValidatePatch(op EditOp, patch EditPatch) error {
	switch op {
	case EditOpAmend:
		if patch.Text == nil && patch.Importance == nil {
			return NewInvalidInput("amend patch requires text and/or importance")
		}
		if patch.Importance != nil && (*patch.Importance < 0 || *patch.Importance > 1) {
			return NewInvalidInput("amend importance must be in [0,1]")
		}
		if patch.ImportanceDelta != nil || patch.Channel != "" {
			return NewInvalidInput("amend patch must not set importance_delta or channel")
		}
	case EditOpAttenuate:
		if patch.Importance == nil && patch.ImportanceDelta == nil {
			return NewInvalidInput("attenuate patch requires importance and/or importance_delta")
		}
		if patch.Importance != nil && (*patch.Importance < 0 || *patch.Importance > 1) {
			return NewInvalidInput("attenuate absolute importance must be in [0,1]")
		}
		if patch.Text != nil || patch.Channel != "" {
			return NewInvalidInput("attenuate patch must not set text or channel")
		}
	case EditOpBlock:
		if patch.Channel == "" {
			return NewInvalidInput("block patch requires channel")
		}
		if patch.Text != nil || patch.Importance != nil || patch.ImportanceDelta != nil {
			return NewInvalidInput("block patch must not set text, importance, or importance_delta")
		}
	case EditOpRetract, EditOpQuarantine:
		if patch.Text != nil || patch.Importance != nil || patch.ImportanceDelta != nil || patch.Channel != "" {
			return NewInvalidInput("%s patch must be empty", op)
		}
	default:
		return NewInvalidInput("unknown edit op %q", op)
	}
	return nil
}

// ClampImportance keeps an importance value within [0,1] (spec §4.D
// attenuate composition rule, §8 boundary: delta=-1.5 clamps to 0).
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
