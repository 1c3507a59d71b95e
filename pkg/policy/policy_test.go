package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Clone_Detached(t *testing.T) {
	original := Policy{
		Duration:          DurationPtr(time.Minute),
		Tags:              []string{"users", "orders"},
		KeyStrategy:       "canonical-json",
		Version:           IntPtr(3),
		RequireIdempotent: BoolPtr(true),
		Metadata:          map[string]string{"runtime.refresh_ahead": "10s"},
	}

	clone := original.Clone()
	assert.True(t, original.Equal(clone))

	// Mutating the clone must not leak back into the original.
	*clone.Duration = time.Hour
	clone.Tags[0] = "mutated"
	clone.Metadata["runtime.refresh_ahead"] = "1s"
	*clone.Version = 9

	assert.Equal(t, time.Minute, *original.Duration)
	assert.Equal(t, "users", original.Tags[0])
	assert.Equal(t, "10s", original.Metadata["runtime.refresh_ahead"])
	assert.Equal(t, 3, *original.Version)
}

func TestPolicy_Equal(t *testing.T) {
	base := Policy{
		Duration: DurationPtr(time.Minute),
		Tags:     []string{"a", "b"},
		Metadata: map[string]string{"k": "v"},
	}

	tests := []struct {
		name  string
		other Policy
		want  bool
	}{
		{"identical", base.Clone(), true},
		{"nil vs set duration", Policy{Tags: []string{"a", "b"}, Metadata: map[string]string{"k": "v"}}, false},
		{"different duration", Policy{Duration: DurationPtr(time.Hour), Tags: []string{"a", "b"}, Metadata: map[string]string{"k": "v"}}, false},
		{"tag order matters", Policy{Duration: DurationPtr(time.Minute), Tags: []string{"b", "a"}, Metadata: map[string]string{"k": "v"}}, false},
		{"different metadata value", Policy{Duration: DurationPtr(time.Minute), Tags: []string{"a", "b"}, Metadata: map[string]string{"k": "x"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Equal(tt.other))
		})
	}
}

func TestResolutionResult_CloneAndEqual(t *testing.T) {
	now := time.Now()
	result := ResolutionResult{
		MethodID: "Svc.Method",
		Policy:   Policy{Duration: DurationPtr(time.Second)},
		Contributions: []Contribution{
			{SourceID: "attrs", Fields: FieldDuration, Kind: ContributionSet, Timestamp: now},
		},
		ResolvedAt: now,
	}

	clone := result.Clone()
	assert.True(t, result.Equal(clone))

	clone.Contributions[0].SourceID = "other"
	assert.Equal(t, "attrs", result.Contributions[0].SourceID)
	assert.False(t, result.Equal(clone))
}

func TestEmptyResult(t *testing.T) {
	now := time.Now()
	result := EmptyResult("Svc.Unknown", now)

	assert.Equal(t, "Svc.Unknown", result.MethodID)
	assert.True(t, result.Policy.Equal(Policy{}))
	assert.Empty(t, result.Contributions)
	assert.Equal(t, now, result.ResolvedAt)
}
