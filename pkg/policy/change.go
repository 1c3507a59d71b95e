package policy

import "time"

// Snapshot is the unit returned by a source's point-in-time read: one policy
// for one method id as a single source currently holds it.
type Snapshot struct {
	SourceID string
	MethodID string
	Policy   Policy
	// Fields is the mask of properties the source actually set. A zero mask
	// means "infer from the policy's populated properties".
	Fields    FieldMask
	Timestamp time.Time
	Metadata  map[string]string
}

// ChangeReason classifies an incremental change pushed by a source.
type ChangeReason string

// Change reasons.
const (
	ChangeAdded    ChangeReason = "added"
	ChangeUpdated  ChangeReason = "updated"
	ChangeRemoved  ChangeReason = "removed"
	ChangeReloaded ChangeReason = "reloaded"
)

// Change is the unit pushed by a source's live stream.
type Change struct {
	SourceID string
	MethodID string
	Policy   Policy
	// SetMask marks the properties the change sets. A zero mask means
	// "infer from the policy's populated properties".
	SetMask FieldMask
	// ClearMask marks properties the change withdraws. Reserved for sources
	// that shrink a layer without removing it entirely.
	ClearMask FieldMask
	Reason    ChangeReason
	Timestamp time.Time
}

// Layer is one source's current contribution to one method id's policy,
// tagged with that source's priority. One layer exists per (method id, source)
// pair that has ever contributed.
type Layer struct {
	SourceID  string
	Priority  int
	Policy    Policy
	Fields    FieldMask
	Timestamp time.Time
}

// Clone returns a deep copy of the layer.
func (l Layer) Clone() Layer {
	clone := l
	clone.Policy = l.Policy.Clone()
	return clone
}

// ResolutionResult is the merged, effective policy for one method id plus its
// full provenance trail. Once returned to a caller it is a detached snapshot:
// mutating it has no effect on resolver state.
type ResolutionResult struct {
	MethodID      string
	Policy        Policy
	Contributions []Contribution
	ResolvedAt    time.Time
}

// Clone returns a deep copy of the result.
func (r ResolutionResult) Clone() ResolutionResult {
	clone := ResolutionResult{
		MethodID:   r.MethodID,
		Policy:     r.Policy.Clone(),
		ResolvedAt: r.ResolvedAt,
	}
	if len(r.Contributions) > 0 {
		clone.Contributions = append([]Contribution(nil), r.Contributions...)
	}
	return clone
}

// Equal reports value equality of two results, ignoring ResolvedAt.
func (r ResolutionResult) Equal(o ResolutionResult) bool {
	if r.MethodID != o.MethodID {
		return false
	}
	if !r.Policy.Equal(o.Policy) {
		return false
	}
	if len(r.Contributions) != len(o.Contributions) {
		return false
	}
	for i := range r.Contributions {
		if r.Contributions[i] != o.Contributions[i] {
			return false
		}
	}
	return true
}

// EmptyResult returns the all-default resolution for a method id that no
// source has ever configured. Absence of configuration is not a failure state.
func EmptyResult(methodID string, at time.Time) ResolutionResult {
	return ResolutionResult{MethodID: methodID, ResolvedAt: at}
}
