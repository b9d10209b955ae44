// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

const (
	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"

	defaultSystemPrompt = "You write small, self-contained functions. " +
		"Answer with exactly one fenced code block and nothing else."

	fencedConfidence = 0.8
	rawConfidence    = 0.5
)

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*\n(.*?)```")

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	// APIKey authenticates requests. If empty, OPENAI_API_KEY is used.
	APIKey string

	// BaseURL overrides the API endpoint (OpenAI-compatible servers, tests).
	BaseURL string

	// Model defaults to DefaultOpenAIModel.
	Model string

	// Temperature is passed through when non-zero.
	Temperature float32

	// MaxTokens is passed through when positive.
	MaxTokens int

	// RequestsPerSecond limits outbound calls. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter burst. Defaults to 1.
	Burst int

	// SystemPrompt replaces the default system message.
	SystemPrompt string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// OpenAIGenerator generates leaf candidates with a chat-completions model.
//
// Thread Safety: Safe for concurrent use.
type OpenAIGenerator struct {
	client  *openai.Client
	limiter *rate.Limiter
	config  OpenAIConfig
	logger  *slog.Logger
}

// NewOpenAIGenerator creates a generator.
//
// Outputs:
//
//	*OpenAIGenerator - Ready generator.
//	error - Non-nil when no API key is available.
func NewOpenAIGenerator(config OpenAIConfig) (*OpenAIGenerator, error) {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	if config.Model == "" {
		config.Model = DefaultOpenAIModel
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	logger.Info("Initializing OpenAI generator", slog.String("model", config.Model))
	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientConfig),
		limiter: rate.NewLimiter(limit, config.Burst),
		config:  config,
		logger:  logger,
	}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, s *spec.Specification, c *spec.Context, hints Hints) (GenerateResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return GenerateResult{}, fmt.Errorf("rate limiter: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.config.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(s, c, hints)},
		},
		Temperature: g.config.Temperature,
	}
	if g.config.MaxTokens > 0 {
		req.MaxCompletionTokens = g.config.MaxTokens
	}

	g.logger.Debug("Generating leaf via OpenAI",
		slog.String("model", g.config.Model),
		slog.Int("attempt", hints.Attempt))
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return GenerateResult{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, &RetryableError{Err: errors.New("OpenAI returned no choices")}
	}

	code, fenced := ExtractCode(resp.Choices[0].Message.Content)
	if code == "" {
		return GenerateResult{Success: false}, nil
	}
	confidence := rawConfidence
	if fenced {
		confidence = fencedConfidence
	}
	return GenerateResult{Success: true, Code: code, Confidence: confidence}, nil
}

// classifyOpenAIError marks rate limiting and server errors retryable.
func classifyOpenAIError(err error) error {
	wrapped := fmt.Errorf("OpenAI API call failed: %w", err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
		return &RetryableError{Err: wrapped}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
		return &RetryableError{Err: wrapped}
	}
	return wrapped
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// ExtractCode returns the first fenced code block of a model reply, or the
// trimmed reply when it has none. The boolean reports whether a fence was
// found.
func ExtractCode(reply string) (string, bool) {
	if m := fencePattern.FindStringSubmatch(reply); m != nil {
		return strings.TrimRight(m[1], "\n"), true
	}
	return strings.TrimSpace(reply), false
}

// BuildPrompt renders the user message for one leaf.
func BuildPrompt(s *spec.Specification, c *spec.Context, hints Hints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", strings.TrimSpace(s.Description))
	if s.HasTypeSignature() {
		fmt.Fprintf(&b, "Signature: %s\n", strings.TrimSpace(s.TypeSignature))
	}
	if len(s.Constraints) > 0 {
		b.WriteString("Constraints:\n")
		for _, constraint := range s.Constraints {
			fmt.Fprintf(&b, "- %s\n", constraint)
		}
	}
	if len(s.Examples) > 0 {
		b.WriteString("Examples:\n")
		for _, ex := range s.Examples {
			fmt.Fprintf(&b, "- %v -> %v\n", ex.Input, ex.Output)
		}
	}
	if len(s.Tests) > 0 {
		b.WriteString("Tests:\n")
		for _, tc := range s.Tests {
			switch {
			case tc.Source != "":
				fmt.Fprintf(&b, "```\n%s\n```\n", strings.TrimSpace(tc.Source))
			default:
				fmt.Fprintf(&b, "- %s\n", tc.Name)
			}
		}
	}
	if c != nil && len(c.Solved) > 0 {
		b.WriteString("Already solved (reuse, do not repeat):\n")
		for _, desc := range sortedKeys(c.Solved) {
			fmt.Fprintf(&b, "- %s\n", desc)
		}
	}
	if len(hints.Abstractions) > 0 {
		b.WriteString("Available helpers:\n")
		for _, a := range hints.Abstractions {
			fmt.Fprintf(&b, "- %s: %s\n", a.Abstraction.Name, a.Abstraction.Description)
		}
	}
	if len(hints.Issues) > 0 {
		b.WriteString("The previous attempt was rejected:\n")
		for _, issue := range hints.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	return b.String()
}
