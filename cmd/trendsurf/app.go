// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jllopis/trendsurf/pkg/agents"
	"github.com/jllopis/trendsurf/pkg/artifact"
	"github.com/jllopis/trendsurf/pkg/assistant"
	"github.com/jllopis/trendsurf/pkg/assistant/azure"
	"github.com/jllopis/trendsurf/pkg/config"
	"github.com/jllopis/trendsurf/pkg/guardrails"
	"github.com/jllopis/trendsurf/pkg/mcp"
	"github.com/jllopis/trendsurf/pkg/pipeline"
	"github.com/jllopis/trendsurf/pkg/resilience"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

// deps holds the constructors the CLI swaps out in tests.
type deps struct {
	newService func(cfg config.ServiceConfig, logger *slog.Logger) (assistant.Service, error)
	runIDs     func() string
}

func defaultDeps() deps {
	return deps{newService: newAzureService}
}

func newAzureService(cfg config.ServiceConfig, logger *slog.Logger) (assistant.Service, error) {
	return azure.New(azure.Config{
		Endpoint:       cfg.Endpoint,
		APIVersion:     cfg.APIVersion,
		APIKey:         cfg.APIKey,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
}

// app is a fully wired pipeline plus the resources it must release.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	orchestrator *pipeline.Orchestrator
	ledger       *artifact.SQLiteLedger
	shutdown     telemetry.ShutdownFunc
}

func loadConfig(flags globalFlags) (*config.Config, error) {
	cfg, err := config.LoadWithCLI(flags.configArgs())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads configuration and wires the orchestrator. Logs go to logOut.
func setup(flags globalFlags, logOut io.Writer, d deps, emitters ...pipeline.Emitter) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger := telemetry.ConfigureSlog(logOut, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig(cfg.Telemetry.ServiceName, version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, shutdown: shutdown}

	if err := a.wire(d, emitters); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(d deps, emitters []pipeline.Emitter) error {
	cfg := a.cfg
	reg, err := agents.Load(cfg.Pipeline.DefinitionsPath)
	if err != nil {
		return err
	}
	svc, err := d.newService(cfg.Service, a.logger)
	if err != nil {
		return err
	}
	metrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		a.logger.Warn("pipeline metrics disabled", "error", err)
		metrics = nil
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(metrics),
		pipeline.WithModel(cfg.Service.Model),
		pipeline.WithDocument(cfg.Index.DocumentPath, cfg.Index.Name),
		pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout),
		pipeline.WithRunFailurePolicy(pipeline.Policy(cfg.Pipeline.RunFailure)),
		pipeline.WithIndexFailurePolicy(pipeline.Policy(cfg.Pipeline.IndexFailure)),
		pipeline.WithRunPoll(resilience.PollConfig{
			Interval:    cfg.Poll.Interval,
			MaxAttempts: cfg.Poll.MaxAttempts,
			Timeout:     cfg.Poll.Timeout,
		}),
		pipeline.WithIndexPoll(resilience.PollConfig{
			Interval:    cfg.Index.Interval,
			MaxAttempts: cfg.Index.MaxAttempts,
			Timeout:     cfg.Index.Timeout,
		}),
	}
	if cfg.Pipeline.Guardrails {
		opts = append(opts, pipeline.WithGuard(guardrails.New(
			guardrails.WithMaxTopicLength(cfg.Pipeline.MaxTopicLength),
			guardrails.WithPromptInjectionDetector(),
			guardrails.WithPhraseScanner(guardrails.DefaultPhraseRules...),
			guardrails.WithPIIScanner(),
		)))
	}
	if d.runIDs != nil {
		opts = append(opts, pipeline.WithRunIDs(d.runIDs))
	}
	for _, e := range emitters {
		opts = append(opts, pipeline.WithEmitter(e))
	}
	if cfg.Store.LedgerPath != "" {
		a.ledger, err = artifact.OpenSQLiteLedger(cfg.Store.LedgerPath)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithLedger(a.ledger))
	}

	var storeOpts []artifact.FileStoreOption
	if cfg.Pipeline.RunDirectories {
		storeOpts = append(storeOpts, artifact.WithRunDirectories())
	}
	a.orchestrator, err = pipeline.New(svc, reg, artifact.NewFileStore(cfg.Pipeline.OutputDir, storeOpts...), opts...)
	return err
}

// Close releases the ledger and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	return stderrors.Join(errs...)
}

func runGenerate(ctx context.Context, flags globalFlags, topic string, stdout, stderr io.Writer, d deps) error {
	var emitters []pipeline.Emitter
	var narr *narrator
	if !flags.JSON {
		narr = newNarrator(stdout, len(agents.Stages))
		emitters = append(emitters, narr)
	}

	a, err := setup(flags, stderr, d, emitters...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			a.logger.Warn("shutdown", "error", cerr)
		}
	}()

	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = a.cfg.Pipeline.DefaultTopic
	}

	res, err := a.orchestrator.Execute(ctx, topic)
	if flags.JSON && res != nil {
		data, merr := res.MarshalIndent()
		if merr != nil {
			return merr
		}
		fmt.Fprintln(stdout, string(data))
	}
	if narr != nil && res != nil {
		narr.Summary(res)
	}
	return err
}

func newMCPCmd(flags *globalFlags, stderr io.Writer, d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pipeline as an MCP tool over stdio",
		Long: `Serve the generate_content tool on stdin/stdout using the Model Context
Protocol. Logs are written to stderr. With store.ledger_path set the
recent_runs tool is also available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(mcpFlags(*flags), stderr, d)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
					a.logger.Warn("shutdown", "error", cerr)
				}
			}()

			opts := []mcp.Option{
				mcp.WithDefaultTopic(a.cfg.Pipeline.DefaultTopic),
				mcp.WithLogger(a.logger),
			}
			if a.ledger != nil {
				opts = append(opts, mcp.WithLedger(a.ledger))
			}
			srv := mcp.NewServer("trendsurf", version, a.orchestrator, opts...)
			a.logger.Info("serving MCP over stdio")
			err = srv.ServeStdio(cmd.Context())
			if err != nil && cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
}

// mcpFlags forces per-run output directories. MCP clients may call
// generate_content concurrently, and runs sharing one directory would
// overwrite each other's artifacts.
func mcpFlags(flags globalFlags) globalFlags {
	flags.Sets = append(slices.Clone(flags.Sets), "pipeline.run_directories=true")
	return flags
}
