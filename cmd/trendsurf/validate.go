// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jllopis/trendsurf/pkg/agents"
	"github.com/jllopis/trendsurf/pkg/config"
	"github.com/jllopis/trendsurf/pkg/errors"
)

type validateResult struct {
	Config   checkResult   `json:"config"`
	Service  checkResult   `json:"service"`
	Agents   []checkResult `json:"agents"`
	Document checkResult   `json:"document"`
	Overall  string        `json:"overall"`
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "error", "skip"
	Message string `json:"message,omitempty"`
}

func newValidateCmd(flags *globalFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration, agent definitions and the reference document",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			result := validate(*flags)
			if flags.JSON {
				data, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(stdout, string(data))
			} else {
				printValidateResult(stdout, result)
			}
			if result.Overall == "error" {
				return errors.New(errors.CodeInvalidInput, "validation failed", nil)
			}
			return nil
		},
	}
}

func validate(flags globalFlags) validateResult {
	result := validateResult{Agents: []checkResult{}}

	cfg, err := loadConfig(flags)
	if err != nil {
		result.Config = checkResult{Name: "config", Status: "error", Message: err.Error()}
		result.Service = checkResult{Name: "service", Status: "skip", Message: "config not loaded"}
		result.Document = checkResult{Name: "document", Status: "skip", Message: "config not loaded"}
		result.Overall = "error"
		return result
	}
	result.Config = checkResult{Name: "config", Status: "ok"}
	result.Service = validateService(cfg)

	reg, err := agents.Load(cfg.Pipeline.DefinitionsPath)
	if err != nil {
		result.Agents = append(result.Agents, checkResult{Name: "agents", Status: "error", Message: err.Error()})
	} else {
		for _, def := range reg.Ordered() {
			msg := def.Name
			if len(def.Tools) > 0 {
				msg += " (tools: " + strings.Join(def.Tools, ", ") + ")"
			}
			result.Agents = append(result.Agents, checkResult{Name: def.Stage, Status: "ok", Message: msg})
		}
	}

	result.Document = validateDocument(cfg)

	result.Overall = "ok"
	checks := append([]checkResult{result.Config, result.Service, result.Document}, result.Agents...)
	for _, c := range checks {
		switch c.Status {
		case "error":
			result.Overall = "error"
		case "warn":
			if result.Overall == "ok" {
				result.Overall = "warn"
			}
		}
	}
	return result
}

func validateService(cfg *config.Config) checkResult {
	auth := "api key"
	if strings.TrimSpace(cfg.Service.APIKey) == "" {
		auth = "Entra ID"
	}
	return checkResult{
		Name:    "service",
		Status:  "ok",
		Message: fmt.Sprintf("%s (model %s, api %s, auth %s)", cfg.Service.Endpoint, cfg.Service.Model, cfg.Service.APIVersion, auth),
	}
}

func validateDocument(cfg *config.Config) checkResult {
	path := cfg.Index.DocumentPath
	if path == "" {
		return checkResult{Name: "document", Status: "warn", Message: "no reference document; compliance runs without retrieval"}
	}
	info, err := os.Stat(path)
	switch {
	case err != nil && cfg.Pipeline.IndexFailure == config.PolicyDegrade:
		return checkResult{Name: "document", Status: "warn", Message: err.Error()}
	case err != nil:
		return checkResult{Name: "document", Status: "error", Message: err.Error()}
	case info.IsDir():
		return checkResult{Name: "document", Status: "error", Message: path + " is a directory"}
	}
	return checkResult{Name: "document", Status: "ok", Message: fmt.Sprintf("%s (%d bytes)", path, info.Size())}
}

func printValidateResult(w io.Writer, r validateResult) {
	fmt.Fprintln(w, "TrendSurf configuration check")
	fmt.Fprintln(w)
	printCheck(w, r.Config)
	printCheck(w, r.Service)
	printCheck(w, r.Document)
	fmt.Fprintln(w, "Agents:")
	for _, c := range r.Agents {
		fmt.Fprint(w, "  ")
		printCheck(w, c)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Overall: %s\n", strings.ToUpper(r.Overall))
}

func printCheck(w io.Writer, c checkResult) {
	marker := map[string]string{"ok": "✓", "warn": "!", "error": "✗", "skip": "-"}[c.Status]
	if c.Message != "" {
		fmt.Fprintf(w, "%s %s: %s\n", marker, c.Name, c.Message)
		return
	}
	fmt.Fprintf(w, "%s %s\n", marker, c.Name)
}
