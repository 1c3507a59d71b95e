package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cacheplane/cacheplane/pkg/policy"
	"github.com/cacheplane/cacheplane/pkg/runtime"
)

// resolveOutput is the YAML document printed for one resolution.
type resolveOutput struct {
	Method        string             `yaml:"method"`
	Duration      string             `yaml:"duration,omitempty"`
	Tags          []string           `yaml:"tags,omitempty"`
	KeyStrategy   string             `yaml:"key_strategy,omitempty"`
	Version       *int               `yaml:"version,omitempty"`
	Idempotent    *bool              `yaml:"require_idempotent,omitempty"`
	Metadata      map[string]string  `yaml:"metadata,omitempty"`
	ShouldCache   bool               `yaml:"should_cache"`
	Contributions []contributionLine `yaml:"contributions"`
	ResolvedAt    time.Time          `yaml:"resolved_at"`
}

type contributionLine struct {
	Source string    `yaml:"source"`
	Fields string    `yaml:"fields"`
	Kind   string    `yaml:"kind"`
	At     time.Time `yaml:"at,omitempty"`
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <method-id>",
		Short: "Resolve the effective cache policy for one operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(cmd)
			if err != nil {
				return err
			}
			defer p.close(cmd.Context())

			result, err := p.resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func printResult(result policy.ResolutionResult) error {
	proj := runtime.FromResult(result)

	out := resolveOutput{
		Method:        result.MethodID,
		Tags:          proj.Tags,
		KeyStrategy:   proj.KeyStrategy,
		Version:       proj.Version,
		Idempotent:    proj.RequireIdempotent,
		Metadata:      proj.Metadata,
		ShouldCache:   proj.ShouldCache(),
		Contributions: make([]contributionLine, 0, len(result.Contributions)),
		ResolvedAt:    result.ResolvedAt,
	}
	if proj.Duration != nil {
		out.Duration = proj.Duration.String()
	}
	for _, c := range result.Contributions {
		out.Contributions = append(out.Contributions, contributionLine{
			Source: c.SourceID,
			Fields: c.Fields.String(),
			Kind:   string(c.Kind),
			At:     c.Timestamp,
		})
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
