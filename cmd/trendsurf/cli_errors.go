// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// Process exit codes.
const (
	exitOK            = 0
	exitOther         = 1
	exitInvalidInput  = 2
	exitTransport     = 3
	exitAgentCreation = 4
	exitRunFailed     = 5
	exitIndexing      = 6
	exitTimeout       = 7
)

// exitCode maps the first typed error in err's chain to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch errors.CodeOf(err) {
	case errors.CodeInvalidInput:
		return exitInvalidInput
	case errors.CodeTransport, errors.CodeUnauthorized, errors.CodeRateLimit, errors.CodeNotFound:
		return exitTransport
	case errors.CodeAgentCreation:
		return exitAgentCreation
	case errors.CodeRunFailed:
		return exitRunFailed
	case errors.CodeIndexingFailed:
		return exitIndexing
	case errors.CodeTimeout:
		return exitTimeout
	default:
		return exitOther
	}
}

// hint suggests a next step for the error's code.
func hint(code errors.Code) string {
	switch code {
	case errors.CodeInvalidInput:
		return "run 'trendsurf validate' to check the configuration"
	case errors.CodeUnauthorized:
		return "check service.api_key (or AZURE_OPENAI_API_KEY), or the Entra ID login when no key is set"
	case errors.CodeTransport:
		return "check service.endpoint (or AZURE_OPENAI_ENDPOINT) and network access"
	case errors.CodeRateLimit:
		return "the service is throttling requests; try again later"
	case errors.CodeNotFound:
		return "check that the model deployment named by service.model exists"
	case errors.CodeAgentCreation:
		return "check the agent definitions and the model deployment"
	case errors.CodeRunFailed:
		return "set pipeline.run_failure=degrade to continue past failed stages"
	case errors.CodeIndexingFailed:
		return "check index.document_path, or set pipeline.index_failure=degrade"
	case errors.CodeTimeout:
		return "raise poll.timeout or pipeline.stage_timeout"
	default:
		return ""
	}
}

type jsonError struct {
	Code    errors.Code    `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Hint    string         `json:"hint,omitempty"`
}

// printError writes err to w, as a JSON object when asJSON is set.
func printError(w io.Writer, err error, asJSON bool) {
	code := errors.CodeOf(err)
	out := jsonError{Code: code, Message: err.Error(), Hint: hint(code)}
	if te, ok := errors.As(err); ok && len(te.Context) > 0 {
		out.Context = te.Context
	}

	if asJSON {
		data, merr := json.Marshal(map[string]jsonError{"error": out})
		if merr != nil {
			fmt.Fprintf(w, "Error: %s\n", err)
			return
		}
		fmt.Fprintln(w, string(data))
		return
	}

	fmt.Fprintf(w, "Error: %s\n", out.Message)
	if out.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", out.Hint)
	}
}
