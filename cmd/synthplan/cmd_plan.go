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
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSynth/services/synth/routing"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// planNode is one specification in a decomposition plan.
type planNode struct {
	Description  string     `json:"description"`
	Slot         string     `json:"slot,omitempty"`
	Condition    string     `json:"condition,omitempty"`
	Dependencies []int      `json:"dependencies,omitempty"`
	Strategy     string     `json:"strategy,omitempty"`
	Confidence   float64    `json:"confidence,omitempty"`
	Leaf         bool       `json:"leaf,omitempty"`
	Waves        [][]int    `json:"waves,omitempty"`
	Children     []planNode `json:"children,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func (a *app) newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <spec-file>",
		Short: "Print the decomposition plan without generating code",
		Long: `plan routes and decomposes the specification recursively, up to the
configured max depth, and prints each level with its dependency waves.
Nothing is generated and no outcome is recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runPlan,
	}
}

func (a *app) runPlan(cmd *cobra.Command, args []string) (err error) {
	start := time.Now()
	sess, err := a.open(cmd, args[0], openOptions{})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sess.Close()) }()

	root := buildPlan(cmd.Context(), sess.services.Router, sess.config.MaxDepth, sess.spec, sess.context, 0)
	if a.jsonOut {
		return writeJSON(cmd.OutOrStdout(), newCommandResult("plan", start, root.Error == "", root))
	}
	return writePlan(cmd.OutOrStdout(), root, 0)
}

// buildPlan routes s and decomposes it until leaves or maxDepth.
//
// # Description
//
// Routing and decomposition failures are recorded on the node instead of
// aborting, so a plan always shows how far decomposition got.
func buildPlan(ctx context.Context, router *routing.Router, maxDepth int, s *spec.Specification, c *spec.Context, depth int) planNode {
	node := planNode{Description: s.Summary()}

	match, err := router.SelectStrategy(ctx, s, c)
	if err != nil {
		node.Error = err.Error()
		return node
	}
	node.Strategy = match.Name
	node.Confidence = match.Confidence

	if match.Strategy.Metadata().Atomic || depth >= maxDepth {
		node.Leaf = true
		return node
	}
	subs, err := match.Strategy.Decompose(s, c)
	if err != nil {
		node.Error = err.Error()
		return node
	}
	if err := spec.ValidateSubproblems(subs); err != nil {
		node.Error = err.Error()
		return node
	}
	if len(subs) == 0 {
		node.Leaf = true
		return node
	}

	node.Waves = spec.Waves(subs)
	for i, sub := range subs {
		child := buildPlan(ctx, router, maxDepth, &sub.Specification, c, depth+1)
		child.Slot = sub.SlotName(i)
		child.Condition = sub.Condition
		child.Dependencies = sub.Dependencies
		node.Children = append(node.Children, child)
	}
	return node
}

// writePlan renders a plan as an indented tree.
func writePlan(w io.Writer, node planNode, indent int) error {
	pad := strings.Repeat("  ", indent)

	var b strings.Builder
	b.WriteString(pad)
	if node.Slot != "" {
		b.WriteString(node.Slot + ": ")
	}
	b.WriteString(node.Description)
	if node.Strategy != "" {
		fmt.Fprintf(&b, "  [%s %.3f]", node.Strategy, node.Confidence)
	}
	if node.Leaf {
		b.WriteString(" leaf")
	}
	b.WriteString("\n")
	if len(node.Dependencies) > 0 {
		fmt.Fprintf(&b, "%s  after: %v\n", pad, node.Dependencies)
	}
	if node.Condition != "" {
		fmt.Fprintf(&b, "%s  when: %s\n", pad, node.Condition)
	}
	if len(node.Waves) > 0 {
		fmt.Fprintf(&b, "%s  waves: %v\n", pad, node.Waves)
	}
	if node.Error != "" {
		fmt.Fprintf(&b, "%s  error: %s\n", pad, node.Error)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	for _, child := range node.Children {
		if err := writePlan(w, child, indent+1); err != nil {
			return err
		}
	}
	return nil
}
