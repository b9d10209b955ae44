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
	"time"

	"github.com/spf13/cobra"
)

// rankRow is one strategy in JSON rank output.
type rankRow struct {
	Rank       int                `json:"rank"`
	Strategy   string             `json:"strategy"`
	Confidence float64            `json:"confidence"`
	Signals    map[string]float64 `json:"signals"`
}

func (a *app) newRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank <spec-file>",
		Short: "Show how the router scores every applicable strategy",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runRank,
	}
}

// runRank prints the router's ranking for the document's specification.
func (a *app) runRank(cmd *cobra.Command, args []string) (err error) {
	start := time.Now()
	sess, err := a.open(cmd, args[0], openOptions{})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sess.Close()) }()

	ctx := cmd.Context()
	router := sess.services.Router
	if !a.jsonOut {
		_, err = fmt.Fprint(cmd.OutOrStdout(), router.Explain(ctx, sess.spec, sess.context))
		return err
	}

	matches := router.RankStrategies(ctx, sess.spec, sess.context)
	rows := make([]rankRow, len(matches))
	for i, m := range matches {
		rows[i] = rankRow{Rank: i + 1, Strategy: m.Name, Confidence: m.Confidence, Signals: m.Signals}
	}
	return writeJSON(cmd.OutOrStdout(), newCommandResult("rank", start, len(rows) > 0, rows))
}
