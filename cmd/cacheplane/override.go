package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cacheplane/cacheplane/pkg/policy"
)

// newOverrideCmd simulates a runtime override: it applies the given fields on
// top of the configured policy file and prints the resolution an operator
// would see, provenance included.
func newOverrideCmd() *cobra.Command {
	var (
		durationFlag   time.Duration
		tagsFlag       []string
		keyStrategy    string
		versionFlag    int
		idempotentFlag bool
		metadataFlag   []string
		clearFlag      bool
	)

	cmd := &cobra.Command{
		Use:   "override <method-id>",
		Short: "Preview the effect of a runtime override on one operation",
		Long: `Applies a runtime override on top of the policy file and prints the
resulting resolution. With --clear the override layer is removed again first,
showing what the operation falls back to.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			methodID := args[0]

			p, err := newPipeline(cmd)
			if err != nil {
				return err
			}
			defer p.close(cmd.Context())

			if !clearFlag {
				var (
					pol  policy.Policy
					mask policy.FieldMask
				)
				if cmd.Flags().Changed("duration") {
					pol.Duration = policy.DurationPtr(durationFlag)
					mask = mask.With(policy.FieldDuration)
				}
				if cmd.Flags().Changed("tags") {
					pol.Tags = tagsFlag
					mask = mask.With(policy.FieldTags)
				}
				if cmd.Flags().Changed("key-strategy") {
					pol.KeyStrategy = keyStrategy
					mask = mask.With(policy.FieldKeyStrategy)
				}
				if cmd.Flags().Changed("version") {
					pol.Version = policy.IntPtr(versionFlag)
					mask = mask.With(policy.FieldVersion)
				}
				if cmd.Flags().Changed("require-idempotent") {
					pol.RequireIdempotent = policy.BoolPtr(idempotentFlag)
					mask = mask.With(policy.FieldRequireIdempotent)
				}
				if len(metadataFlag) > 0 {
					pol.Metadata = make(map[string]string, len(metadataFlag))
					for _, pair := range metadataFlag {
						key, value, ok := strings.Cut(pair, "=")
						if !ok {
							return fmt.Errorf("metadata entry %q is not key=value", pair)
						}
						pol.Metadata[key] = value
					}
					mask = mask.With(policy.FieldMetadata)
				}

				if err := p.overrides.Set(cmd.Context(), methodID, pol, mask); err != nil {
					return err
				}
			}

			// Set ran before the resolver's first snapshot, so the
			// override is part of the bootstrap state.
			result, err := p.resolver.Resolve(cmd.Context(), methodID)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}

	cmd.Flags().DurationVar(&durationFlag, "duration", 0, "Cache entry lifetime")
	cmd.Flags().StringSliceVar(&tagsFlag, "tags", nil, "Invalidation tags")
	cmd.Flags().StringVar(&keyStrategy, "key-strategy", "", "Key derivation strategy reference")
	cmd.Flags().IntVar(&versionFlag, "version", 0, "Cache key version")
	cmd.Flags().BoolVar(&idempotentFlag, "require-idempotent", false, "Require the operation to be idempotent")
	cmd.Flags().StringSliceVar(&metadataFlag, "metadata", nil, "Metadata entries as key=value")
	cmd.Flags().BoolVar(&clearFlag, "clear", false, "Show the resolution without any override")

	return cmd
}
