package policy

import (
	"sort"
	"time"
)

// MergeLayers computes the effective policy for one method id from the given
// layer set. It is a pure function of the layers: applying the same set in any
// order yields a value-equal result.
//
// Field resolution visits layers in descending priority order; for each field
// not yet resolved, the first layer whose mask includes that field supplies
// its value. Fields no layer ever set keep the empty-policy default.
//
// Provenance is built independently: every layer contributes exactly one
// record, concatenated in ascending priority order regardless of whether the
// layer won any field. Overridden layers therefore stay visible in the audit
// trail.
//
// Metadata is not merged key-by-key: the highest-priority layer that set the
// metadata field supplies its whole map, shadowing lower layers entirely.
func MergeLayers(methodID string, layers []Layer, resolvedAt time.Time) ResolutionResult {
	result := ResolutionResult{
		MethodID:   methodID,
		ResolvedAt: resolvedAt,
	}
	if len(layers) == 0 {
		return result
	}

	ordered := make([]Layer, len(layers))
	copy(ordered, layers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	result.Contributions = make([]Contribution, 0, len(ordered))
	for _, layer := range ordered {
		result.Contributions = append(result.Contributions, Contribution{
			SourceID:  layer.SourceID,
			Fields:    layer.Fields,
			Kind:      ContributionSet,
			Timestamp: layer.Timestamp,
		})
	}

	remaining := FieldsAll
	for i := len(ordered) - 1; i >= 0 && !remaining.IsEmpty(); i-- {
		layer := ordered[i]
		take := layer.Fields & remaining
		if take.IsEmpty() {
			continue
		}
		if take.Has(FieldDuration) && layer.Policy.Duration != nil {
			d := *layer.Policy.Duration
			result.Policy.Duration = &d
		}
		if take.Has(FieldTags) {
			result.Policy.Tags = append([]string(nil), layer.Policy.Tags...)
		}
		if take.Has(FieldKeyStrategy) {
			result.Policy.KeyStrategy = layer.Policy.KeyStrategy
		}
		if take.Has(FieldVersion) && layer.Policy.Version != nil {
			v := *layer.Policy.Version
			result.Policy.Version = &v
		}
		if take.Has(FieldRequireIdempotent) && layer.Policy.RequireIdempotent != nil {
			b := *layer.Policy.RequireIdempotent
			result.Policy.RequireIdempotent = &b
		}
		if take.Has(FieldMetadata) {
			result.Policy.Metadata = cloneStringMap(layer.Policy.Metadata)
		}
		remaining = remaining.Without(take)
	}

	result.Policy.Provenance = append([]Contribution(nil), result.Contributions...)
	return result
}
