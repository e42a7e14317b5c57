// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the TrendSurf CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	ConfigPaths []string
	EnvFile     string
	Sets        []string
	OutputDir   string
	JSON        bool
}

// configArgs renders the flags in the form config.LoadWithCLI accepts.
func (f globalFlags) configArgs() []string {
	var args []string
	for _, p := range f.ConfigPaths {
		args = append(args, "--config", p)
	}
	if f.EnvFile != "" {
		args = append(args, "--env-file", f.EnvFile)
	}
	for _, s := range f.Sets {
		args = append(args, "--set", s)
	}
	if f.OutputDir != "" {
		args = append(args, "--set", "pipeline.output_dir="+f.OutputDir)
	}
	return args
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, d deps) int {
	var flags globalFlags
	root := newRootCmd(&flags, stdout, stderr, d)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(stderr, err, flags.JSON)
		return exitCode(err)
	}
	return 0
}

func newRootCmd(flags *globalFlags, stdout, stderr io.Writer, d deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "trendsurf [topic...]",
		Short: "Research a topic and draft brand-compliant social media posts",
		Long: `TrendSurf runs four hosted agents in order: research, brand compliance,
copywriting and final review. Every stage output is written to the output
directory together with an aggregate pipeline_result.json.

The topic is the remaining arguments joined by spaces. Without one the
configured default topic is used.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), *flags, strings.Join(args, " "), stdout, stderr, d)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.New(errors.CodeInvalidInput, err.Error(), err)
	})

	pf := root.PersistentFlags()
	pf.StringArrayVar(&flags.ConfigPaths, "config", nil, "Config file (YAML); repeatable, later files win")
	pf.StringVar(&flags.EnvFile, "env-file", "", "Dotenv file with AZURE_OPENAI_* or TRENDSURF_* variables (default ./.env when present)")
	pf.StringArrayVar(&flags.Sets, "set", nil, "Override a config key, e.g. --set pipeline.run_failure=degrade")
	pf.StringVarP(&flags.OutputDir, "output", "o", "", "Output directory for artifacts (overrides pipeline.output_dir)")
	pf.BoolVar(&flags.JSON, "json", false, "Print the aggregate result and errors as JSON")

	root.AddCommand(
		newMCPCmd(flags, stderr, d),
		newRunsCmd(flags, stdout),
		newValidateCmd(flags, stdout),
		newVersionCmd(stdout),
	)
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(stdout, version)
		},
	}
}
