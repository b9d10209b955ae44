// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package framework

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/AleutianAI/AleutianSynth/services/synth/cache"
	"github.com/AleutianAI/AleutianSynth/services/synth/config"
	"github.com/AleutianAI/AleutianSynth/services/synth/generate"
	"github.com/AleutianAI/AleutianSynth/services/synth/history"
	"github.com/AleutianAI/AleutianSynth/services/synth/learner"
	"github.com/AleutianAI/AleutianSynth/services/synth/policy"
	"github.com/AleutianAI/AleutianSynth/services/synth/routing"
	"github.com/AleutianAI/AleutianSynth/services/synth/strategy"
)

// snapshotTimeout bounds learner snapshot load and save.
const snapshotTimeout = 10 * time.Second

// Services holds every long-lived collaborator of the engine.
//
// # Description
//
// One Services value replaces process-wide caches and singletons. Build it
// once with NewServices, share it between Framework instances, and Close
// it on shutdown.
//
// # Thread Safety
//
// Safe for concurrent use once constructed.
type Services struct {
	Config     config.Config
	Registry   *strategy.Registry
	Learner    *learner.Learner
	Router     *routing.Router
	Solutions  *cache.SolutionCache
	Strategies *cache.StrategyCache
	Executions *cache.ExecutionResultCache

	// Generator and Validator are already wrapped with the retry policy.
	Generator generate.Generator
	Validator generate.Validator

	// Library is optional.
	Library generate.AbstractionLibrary

	// History is optional.
	History routing.HistoryStore

	Logger *slog.Logger

	ownedHistory *history.BadgerStore
	snapshots    learner.SnapshotStore
}

type options struct {
	registry       *strategy.Registry
	generator      generate.Generator
	validators     []generate.Validator
	testRunner     generate.TestRunner
	library        generate.AbstractionLibrary
	history        routing.HistoryStore
	logger         *slog.Logger
	clock          cache.Clock
	runtimeVersion string
}

// Option customizes NewServices.
type Option func(*options)

// WithRegistry replaces the default strategy registry.
func WithRegistry(r *strategy.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithGenerator sets the leaf generator. Default: generate.TemplateGenerator.
func WithGenerator(g generate.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithValidator adds a leaf validator. generate.NonEmptyValidator always runs
// first.
func WithValidator(v generate.Validator) Option {
	return func(o *options) { o.validators = append(o.validators, v) }
}

// WithTestRunner validates leaves by running their tests, memoized in the
// execution result cache.
func WithTestRunner(r generate.TestRunner) Option {
	return func(o *options) { o.testRunner = r }
}

// WithLibrary sets the abstraction library consulted at leaves.
func WithLibrary(l generate.AbstractionLibrary) Option {
	return func(o *options) { o.library = l }
}

// WithHistory sets the episodic history store, overriding config.History.
func WithHistory(h routing.HistoryStore) Option {
	return func(o *options) { o.history = h }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the cache clock. Used by tests.
func WithClock(c cache.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRuntimeVersion sets the runtime part of execution cache keys.
// Default: runtime.Version().
func WithRuntimeVersion(v string) Option {
	return func(o *options) { o.runtimeVersion = v }
}

// NewServices builds the engine's collaborators from configuration.
//
// # Inputs
//
//   - cfg: Engine configuration. Validated here.
//   - opts: Collaborator overrides.
//
// # Outputs
//
//   - *Services: Ready services. Caller must call Close.
//   - error: Non-nil for invalid configuration, unknown enabled strategies
//     or an unopenable history store.
func NewServices(cfg config.Config, opts ...Option) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{runtimeVersion: runtime.Version()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = strategy.DefaultRegistry()
	}
	if o.generator == nil {
		o.generator = generate.TemplateGenerator{}
	}

	registry, err := o.registry.Filter(cfg.EnabledStrategies)
	if err != nil {
		return nil, fmt.Errorf("enabled strategies: %w", err)
	}

	svc := &Services{
		Config:   cfg,
		Registry: registry,
		Library:  o.library,
		Logger:   o.logger,
		Solutions: cache.NewSolutionCache(cache.Config{
			MaxSize:    cfg.Cache.SolutionMaxSize,
			DefaultTTL: config.Seconds(cfg.Cache.SolutionTTLSeconds),
			Clock:      o.clock,
			Logger:     o.logger,
		}),
		Strategies: cache.NewStrategyCache(cache.Config{
			MaxSize:    cfg.Cache.StrategyMaxSize,
			DefaultTTL: config.Seconds(cfg.Cache.StrategyTTLSeconds),
			Clock:      o.clock,
			Logger:     o.logger,
		}),
		Executions: cache.NewExecutionResultCache(cache.Config{
			MaxSize:    cfg.Cache.ExecutionMaxSize,
			DefaultTTL: config.Seconds(cfg.Cache.ExecutionTTLSeconds),
			Clock:      o.clock,
			Logger:     o.logger,
		}, o.runtimeVersion),
		Learner: learner.New(learner.Config{MaxHistory: cfg.Learner.MaxHistory, Logger: o.logger}),
	}

	svc.History = o.history
	if svc.History == nil && cfg.History.Enabled {
		store, err := openHistory(cfg.History, o.logger)
		if err != nil {
			return nil, err
		}
		svc.History = store
		svc.ownedHistory = store
	}
	if snaps, ok := svc.History.(learner.SnapshotStore); ok {
		svc.snapshots = snaps
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		if err := svc.Learner.Load(ctx, snaps); err != nil {
			o.logger.Warn("learner snapshot not restored", slog.String("error", err.Error()))
		}
		cancel()
	}

	svc.Router = routing.NewRouter(registry, routing.Config{
		Learner:       svc.Learner,
		History:       svc.History,
		StrategyCache: svc.Strategies,
		HistoryLimit:  cfg.History.QueryLimit,
		Logger:        o.logger,
	})

	retryPolicy := generate.RetryPolicy{
		Timeout:    cfg.ValidationTimeout(),
		MaxRetries: cfg.MaxRetries,
		Logger:     o.logger,
	}
	validators := []generate.Validator{generate.NonEmptyValidator{}}
	if o.testRunner != nil {
		validators = append(validators, generate.NewTestValidator(o.testRunner, svc.Executions))
	}
	if cfg.Policy.Enabled {
		engine, err := policy.NewEngine()
		if err != nil {
			return nil, fmt.Errorf("leak policy: %w", err)
		}
		validators = append(validators, policy.NewValidator(engine, policy.Confidence(cfg.Policy.MinConfidence)))
	}
	validators = append(validators, o.validators...)
	svc.Generator = generate.NewRetryingGenerator(o.generator, retryPolicy)
	svc.Validator = generate.NewRetryingValidator(generate.All(validators...), retryPolicy)

	return svc, nil
}

func openHistory(cfg config.HistoryConfig, logger *slog.Logger) (*history.BadgerStore, error) {
	hc := history.DefaultConfig(cfg.Path)
	if cfg.InMemory {
		hc = history.InMemoryConfig()
	}
	hc.Logger = logger
	store, err := history.Open(hc)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

// Stats aggregates cache and learner statistics.
type Stats struct {
	Solutions  cache.Stats
	Strategies cache.Stats
	Executions cache.Stats
	Learner    learner.Stats
}

// Stats returns a snapshot of service statistics.
func (s *Services) Stats() Stats {
	return Stats{
		Solutions:  s.Solutions.Stats(),
		Strategies: s.Strategies.Stats(),
		Executions: s.Executions.Stats(),
		Learner:    s.Learner.Stats(),
	}
}

// Close waits for pending history writes, saves the learner snapshot when
// the history store supports it, and closes a history store opened from
// configuration.
func (s *Services) Close() error {
	s.Router.Wait()

	var errs []error
	if s.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		if err := s.Learner.Save(ctx, s.snapshots); err != nil {
			errs = append(errs, fmt.Errorf("save learner snapshot: %w", err))
		}
		cancel()
	}
	if s.ownedHistory != nil {
		if err := s.ownedHistory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history store: %w", err))
		}
	}
	return errors.Join(errs...)
}
