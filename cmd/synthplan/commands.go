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
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSynth/pkg/logging"
	"github.com/AleutianAI/AleutianSynth/pkg/telemetry"
	"github.com/AleutianAI/AleutianSynth/services/synth/config"
	"github.com/AleutianAI/AleutianSynth/services/synth/framework"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

const (
	// serviceName tags log records, the log file name and telemetry.
	serviceName = "synthplan"

	// shutdownTimeout bounds telemetry flush and metrics server shutdown.
	shutdownTimeout = 5 * time.Second
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

// app holds the persistent flags shared by every subcommand.
type app struct {
	configPath     string
	logLevel       string
	jsonOut        bool
	traceExporter  string
	metricExporter string
}

// newRootCmd builds the command tree. Tests build a fresh tree per case.
func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "synthplan",
		Short: "Plan and run recursive program synthesis",
		Long: `synthplan loads a specification document, shows how the router
ranks decomposition strategies, prints the decomposition plan, and runs
the full synthesis engine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "engine config file (YAML or JSON)")
	flags.StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flags.BoolVar(&a.jsonOut, "json", false, "output as JSON")
	flags.StringVar(&a.traceExporter, "trace-exporter", "", "override the trace exporter (none, stdout, otlp)")
	flags.StringVar(&a.metricExporter, "metric-exporter", "", "override the metric exporter (none, stdout, prometheus)")

	root.AddCommand(a.newRankCmd(), a.newPlanCmd(), a.newRunCmd())
	return root
}

// =============================================================================
// SESSION
// =============================================================================

// session is everything one subcommand invocation needs.
type session struct {
	config   config.Config
	spec     *spec.Specification
	context  *spec.Context
	services *framework.Services
	logger   *logging.Logger

	shutdownTelemetry func(context.Context) error
	metricsServer     *http.Server
}

// optionsFunc adds framework options that depend on the loaded config.
type optionsFunc func(cfg config.Config, logger *slog.Logger) ([]framework.Option, error)

// openOptions customizes open for one subcommand.
type openOptions struct {
	// adjust applies command flags to the loaded config.
	adjust func(cfg *config.Config)

	// extra adds config-dependent framework options.
	extra optionsFunc
}

// open loads config and the specification document and builds services.
//
// # Inputs
//
//   - cmd: The running command. Logs go to its stderr.
//   - specPath: Path to the specification document.
//   - oo: Optional config overrides and framework options.
//
// # Outputs
//
//   - *session: Ready session. Caller must call Close.
//   - error: Non-nil if any input is invalid.
func (a *app) open(cmd *cobra.Command, specPath string, oo openOptions) (*session, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.traceExporter != "" {
		cfg.Telemetry.TraceExporter = a.traceExporter
	}
	if a.metricExporter != "" {
		cfg.Telemetry.MetricExporter = a.metricExporter
	}
	if oo.adjust != nil {
		oo.adjust(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logCfg, err := cfg.Log.LoggingConfig(serviceName)
	if err != nil {
		return nil, fmt.Errorf("log config: %w", err)
	}
	logCfg.Writer = cmd.ErrOrStderr()
	logger := logging.New(logCfg)

	s, c, err := spec.LoadDocument(specPath)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	opts := []framework.Option{framework.WithLogger(logger.Slog())}
	if oo.extra != nil {
		more, err := oo.extra(cfg, logger.Slog())
		if err != nil {
			_ = logger.Close()
			return nil, err
		}
		opts = append(opts, more...)
	}

	svc, err := framework.NewServices(cfg, opts...)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	sess := &session{config: cfg, spec: s, context: c, services: svc, logger: logger}

	tc := cfg.Telemetry.SDKConfig(serviceName)
	tc.Writer = cmd.ErrOrStderr()
	sess.shutdownTelemetry, err = telemetry.Init(cmd.Context(), tc)
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	if handler := telemetry.MetricsHandler(); handler != nil && cfg.Telemetry.MetricsAddr != "" {
		sess.serveMetrics(cfg.Telemetry.MetricsAddr, handler)
	}
	return sess, nil
}

// serveMetrics exposes /metrics for the lifetime of the session.
func (s *session) serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	s.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Slog().Warn("metrics server stopped", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
	s.logger.Slog().Info("serving metrics", slog.String("addr", addr))
}

// Close releases the services, telemetry and the log file.
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := []error{s.services.Close()}
	if s.metricsServer != nil {
		errs = append(errs, s.metricsServer.Shutdown(ctx))
	}
	if s.shutdownTelemetry != nil {
		errs = append(errs, s.shutdownTelemetry(ctx))
	}
	errs = append(errs, s.logger.Close())
	return errors.Join(errs...)
}
