package runtime

import (
	"strconv"
	"time"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// Reserved metadata keys decoded into runtime extras. Arbitrary sources can
// ship these through the policy metadata channel without widening the core
// policy shape.
const (
	MetaSlidingExpiration = "runtime.sliding_expiration"
	MetaRefreshAhead      = "runtime.refresh_ahead"
	MetaStampedeMode      = "runtime.stampede.mode"
	MetaStampedeBeta      = "runtime.stampede.beta"
	MetaStampedeRetries   = "runtime.stampede.retries"
	MetaLockTimeout       = "runtime.lock.timeout"
	MetaLockConcurrency   = "runtime.lock.concurrency"
)

// StampedeProtection configures anti-stampede behavior for a cached
// operation.
type StampedeProtection struct {
	// Mode selects the strategy ("probabilistic", "lock", ...). Opaque to
	// this package.
	Mode string

	// Beta tunes probabilistic early expiration. Zero when absent.
	Beta float64

	// Retries bounds lock-acquisition attempts. Zero when absent.
	Retries int
}

// DistributedLock configures cross-process locking for a cached operation.
type DistributedLock struct {
	Timeout     time.Duration
	Concurrency int
}

// Policy is the runtime-facing projection of a resolved cache policy.
type Policy struct {
	MethodID string

	Duration          *time.Duration
	Tags              []string
	KeyStrategy       string
	Version           *int
	RequireIdempotent *bool
	Metadata          map[string]string

	// Fields is the originating mask, kept for traceability.
	Fields policy.FieldMask

	SlidingExpiration *time.Duration
	RefreshAhead      *time.Duration
	Stampede          *StampedeProtection
	Lock              *DistributedLock
}

// FromResult builds the projection from a resolution result.
func FromResult(result policy.ResolutionResult) Policy {
	mask := policy.FieldsNone
	for _, c := range result.Contributions {
		mask = mask.With(c.Fields)
	}
	return FromPolicy(result.MethodID, result.Policy, mask)
}

// FromPolicy builds the projection directly from a policy and its mask.
// Unparseable or absent runtime metadata leaves the corresponding extra nil;
// decoding never fails.
func FromPolicy(methodID string, p policy.Policy, mask policy.FieldMask) Policy {
	clone := p.Clone()
	proj := Policy{
		MethodID:          methodID,
		Duration:          clone.Duration,
		Tags:              clone.Tags,
		KeyStrategy:       clone.KeyStrategy,
		Version:           clone.Version,
		RequireIdempotent: clone.RequireIdempotent,
		Metadata:          clone.Metadata,
		Fields:            mask,
	}

	meta := clone.Metadata
	if d, ok := parseDuration(meta[MetaSlidingExpiration]); ok {
		proj.SlidingExpiration = &d
	}
	if d, ok := parseDuration(meta[MetaRefreshAhead]); ok {
		proj.RefreshAhead = &d
	}

	if mode, ok := meta[MetaStampedeMode]; ok && mode != "" {
		sp := &StampedeProtection{Mode: mode}
		if beta, err := strconv.ParseFloat(meta[MetaStampedeBeta], 64); err == nil {
			sp.Beta = beta
		}
		if retries, err := strconv.Atoi(meta[MetaStampedeRetries]); err == nil {
			sp.Retries = retries
		}
		proj.Stampede = sp
	}

	if d, ok := parseDuration(meta[MetaLockTimeout]); ok {
		lock := &DistributedLock{Timeout: d}
		if n, err := strconv.Atoi(meta[MetaLockConcurrency]); err == nil {
			lock.Concurrency = n
		}
		proj.Lock = lock
	}

	return proj
}

// ShouldCache reports whether the projection enables caching at all.
func (p Policy) ShouldCache() bool {
	return p.Duration != nil && *p.Duration > 0
}

// EffectiveTTL returns the TTL to use for a cache write: the override when
// positive, otherwise the policy duration, otherwise zero (no caching).
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if p.Duration != nil && *p.Duration > 0 {
		return *p.Duration
	}
	return 0
}

func parseDuration(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}
