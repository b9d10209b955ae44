// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSynth/services/synth/config"
	"github.com/AleutianAI/AleutianSynth/services/synth/framework"
	"github.com/AleutianAI/AleutianSynth/services/synth/generate"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

type runFlags struct {
	useOpenAI bool
	model     string
	parallel  bool
	stats     bool
}

func (a *app) newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <spec-file>",
		Short: "Synthesize a solution for the specification",
		Long: `run executes the full engine: cache lookup, routing, recursive
decomposition, leaf generation and composition.

# Exit Codes

  - 0: A solution was synthesized
  - 1: Synthesis completed without a solution
  - 2: Error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSynthesis(cmd, args, f)
		},
	}
	cmd.Flags().BoolVar(&f.useOpenAI, "openai", false, "generate leaves with an OpenAI-compatible model (needs OPENAI_API_KEY)")
	cmd.Flags().StringVar(&f.model, "model", "", "override the configured generator model")
	cmd.Flags().BoolVar(&f.parallel, "parallel", false, "solve independent subproblems concurrently")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "print cache and learner statistics after the run")
	return cmd
}

// generatorOptions selects the leaf generator from flags and config.
func (f *runFlags) generatorOptions(cfg config.Config, logger *slog.Logger) ([]framework.Option, error) {
	if !f.useOpenAI {
		return []framework.Option{framework.WithGenerator(generate.TemplateGenerator{})}, nil
	}
	model := cfg.Generator.Model
	if f.model != "" {
		model = f.model
	}
	gen, err := generate.NewOpenAIGenerator(generate.OpenAIConfig{
		BaseURL:           cfg.Generator.BaseURL,
		Model:             model,
		RequestsPerSecond: cfg.Generator.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("openai generator: %w", err)
	}
	return []framework.Option{framework.WithGenerator(gen)}, nil
}

// runResult is the JSON payload of the run command.
type runResult struct {
	Result *spec.SynthesisResult `json:"result"`
	Stats  *framework.Stats      `json:"stats,omitempty"`
}

func (a *app) runSynthesis(cmd *cobra.Command, args []string, f *runFlags) (err error) {
	start := time.Now()
	sess, err := a.open(cmd, args[0], openOptions{
		adjust: func(cfg *config.Config) {
			if f.parallel {
				cfg.ParallelSubproblems = true
			}
		},
		extra: f.generatorOptions,
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sess.Close()) }()

	fw, err := framework.New(sess.services)
	if err != nil {
		return err
	}
	result, err := fw.Synthesize(cmd.Context(), sess.spec, sess.context)
	if err != nil {
		return err
	}

	var stats *framework.Stats
	if f.stats {
		st := sess.services.Stats()
		stats = &st
	}

	out := cmd.OutOrStdout()
	if a.jsonOut {
		if err := writeJSON(out, newCommandResult("run", start, result.Success, runResult{Result: result, Stats: stats})); err != nil {
			return err
		}
	} else if err := writeRunResult(out, result, stats); err != nil {
		return err
	}

	if !result.Success {
		return &synthesisFailedError{kind: string(result.Kind)}
	}
	return nil
}

// writeRunResult renders a synthesis result for humans.
func writeRunResult(w io.Writer, result *spec.SynthesisResult, stats *framework.Stats) error {
	var b strings.Builder
	if result.Success {
		fmt.Fprintf(&b, "strategy:   %s\n", result.Strategy)
	} else {
		fmt.Fprintf(&b, "failed:     %s\n", result.Kind)
		fmt.Fprintf(&b, "error:      %s\n", result.Error)
	}
	fmt.Fprintf(&b, "iterations: %d\n", result.Iterations)
	fmt.Fprintf(&b, "cached:     %t\n", result.Cached)
	fmt.Fprintf(&b, "duration:   %s\n", result.Duration.Round(time.Millisecond))
	if stats != nil {
		fmt.Fprintf(&b, "solutions:  %d cached, %d hits, %d misses\n",
			stats.Solutions.Size, stats.Solutions.Hits, stats.Solutions.Misses)
		fmt.Fprintf(&b, "learner:    %d outcomes\n", stats.Learner.TotalOutcomes)
	}
	if result.Success && result.Solution != nil {
		fmt.Fprintf(&b, "\n%s\n", strings.TrimRight(result.Solution.Code, "\n"))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
