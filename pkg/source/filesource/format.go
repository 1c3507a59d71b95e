package filesource

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// fileDoc is the on-disk document shape:
//
//	policies:
//	  Svc.Method:
//	    duration: 5m
//	    tags: [users, orders]
//	    key_strategy: canonical-json
//	    version: 2
//	    require_idempotent: true
//	    metadata:
//	      runtime.refresh_ahead: 30s
type fileDoc struct {
	Policies map[string]policySpec `yaml:"policies"`
}

// policySpec uses pointers so that "present in the file" and "absent from
// the file" stay distinguishable: only present keys enter the field mask.
type policySpec struct {
	Duration          *string           `yaml:"duration"`
	Tags              []string          `yaml:"tags"`
	KeyStrategy       *string           `yaml:"key_strategy"`
	Version           *int              `yaml:"version"`
	RequireIdempotent *bool             `yaml:"require_idempotent"`
	Metadata          map[string]string `yaml:"metadata"`
}

func parseFile(data []byte) (map[string]entry, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	entries := make(map[string]entry, len(doc.Policies))
	for methodID, spec := range doc.Policies {
		if methodID == "" {
			return nil, fmt.Errorf("parse policy file: empty method id")
		}
		p, mask, err := spec.toPolicy()
		if err != nil {
			return nil, fmt.Errorf("policy for %q: %w", methodID, err)
		}
		entries[methodID] = entry{policy: p, mask: mask}
	}
	return entries, nil
}

func (s policySpec) toPolicy() (policy.Policy, policy.FieldMask, error) {
	var p policy.Policy
	var mask policy.FieldMask

	if s.Duration != nil {
		d, err := time.ParseDuration(*s.Duration)
		if err != nil {
			return policy.Policy{}, policy.FieldsNone, fmt.Errorf("invalid duration %q: %w", *s.Duration, err)
		}
		p.Duration = policy.DurationPtr(d)
		mask = mask.With(policy.FieldDuration)
	}
	if s.Tags != nil {
		p.Tags = append([]string(nil), s.Tags...)
		mask = mask.With(policy.FieldTags)
	}
	if s.KeyStrategy != nil {
		p.KeyStrategy = *s.KeyStrategy
		mask = mask.With(policy.FieldKeyStrategy)
	}
	if s.Version != nil {
		p.Version = policy.IntPtr(*s.Version)
		mask = mask.With(policy.FieldVersion)
	}
	if s.RequireIdempotent != nil {
		p.RequireIdempotent = policy.BoolPtr(*s.RequireIdempotent)
		mask = mask.With(policy.FieldRequireIdempotent)
	}
	if s.Metadata != nil {
		p.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			p.Metadata[k] = v
		}
		mask = mask.With(policy.FieldMetadata)
	}

	if mask.IsEmpty() {
		return policy.Policy{}, policy.FieldsNone, fmt.Errorf("no fields set")
	}
	return p, mask, nil
}
