// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command synthplan inspects and runs the synthesis engine over a
// specification document.
//
// Usage:
//
//	synthplan rank spec.yaml
//	synthplan plan spec.yaml --json
//	synthplan run spec.yaml --config synth.yaml
//
// With an OpenAI-compatible model for leaf generation:
//
//	OPENAI_API_KEY=... synthplan run spec.yaml --openai
//
// Without --openai, leaves are filled with stub functions so plans can be
// checked end to end offline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		var failed *synthesisFailedError
		if errors.As(err, &failed) {
			os.Exit(CLIExitFindings)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(CLIExitError)
	}
}
