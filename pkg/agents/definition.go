// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package agents holds the immutable description of every pipeline role:
// the remote agent's name and instructions, its tool and resource bindings,
// and the template of the user message that drives the stage.
package agents

import (
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// Stage identifiers in execution order.
const (
	StageResearch   = "research"
	StageCompliance = "compliance"
	StageCopy       = "copy"
	StageReview     = "review"
)

// Stages lists every stage in the order the pipeline runs them.
var Stages = []string{StageResearch, StageCompliance, StageCopy, StageReview}

// Prompt input keys. KeyTopic is always available; the others hold the output
// of the stage that produces them.
const (
	KeyTopic      = "topic"
	KeyResearch   = "research"
	KeyCompliance = "compliance"
	KeyDraft      = "draft"
	KeyReview     = "review"
)

// OutputKey returns the prompt key under which a stage's output is published.
func OutputKey(stage string) string {
	switch stage {
	case StageResearch:
		return KeyResearch
	case StageCompliance:
		return KeyCompliance
	case StageCopy:
		return KeyDraft
	case StageReview:
		return KeyReview
	default:
		return ""
	}
}

// Inputs returns the prompt keys a stage may read: the topic plus the output of
// every earlier stage.
func Inputs(stage string) []string {
	keys := []string{KeyTopic}
	for _, s := range Stages {
		if s == stage {
			return keys
		}
		keys = append(keys, OutputKey(s))
	}
	return nil
}

// Tool names understood by the remote service.
const (
	ToolFileSearch      = "file_search"
	ToolCodeInterpreter = "code_interpreter"
)

// IndexPlaceholder in Resources is replaced by the run's index ID.
const IndexPlaceholder = "{{index}}"

// Definition describes one pipeline role.
type Definition struct {
	Stage        string   `json:"stage" yaml:"stage"`
	Name         string   `json:"name" yaml:"name"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"` // empty uses the configured deployment
	Instructions string   `json:"instructions" yaml:"instructions"`
	Prompt       string   `json:"prompt" yaml:"prompt"`
	Tools        []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Resources    []string `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// Normalized returns a trimmed copy that shares no slices with def.
func (def Definition) Normalized() Definition {
	clone := Definition{
		Stage:        strings.ToLower(strings.TrimSpace(def.Stage)),
		Name:         strings.TrimSpace(def.Name),
		Model:        strings.TrimSpace(def.Model),
		Instructions: strings.TrimSpace(def.Instructions),
		Prompt:       def.Prompt,
	}
	for _, tool := range def.Tools {
		if t := strings.ToLower(strings.TrimSpace(tool)); t != "" {
			clone.Tools = append(clone.Tools, t)
		}
	}
	for _, res := range def.Resources {
		if r := strings.TrimSpace(res); r != "" {
			clone.Resources = append(clone.Resources, r)
		}
	}
	return clone
}

// Validate checks the definition and dry-runs its prompt template with only the
// inputs its stage may read, so a prompt that references later output fails here.
func (def Definition) Validate() error {
	fail := func(format string, args ...any) error {
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf(format, args...), nil).
			WithContext("stage", def.Stage)
	}
	if !slices.Contains(Stages, def.Stage) {
		return fail("agent: unknown stage %q", def.Stage)
	}
	if def.Name == "" {
		return fail("agent: %s: name is required", def.Stage)
	}
	if def.Instructions == "" {
		return fail("agent: %s: instructions are required", def.Stage)
	}
	if strings.TrimSpace(def.Prompt) == "" {
		return fail("agent: %s: prompt is required", def.Stage)
	}
	for _, tool := range def.Tools {
		if tool != ToolFileSearch && tool != ToolCodeInterpreter {
			return fail("agent: %s: unknown tool %q", def.Stage, tool)
		}
	}
	if len(def.Resources) > 0 && !slices.Contains(def.Tools, ToolFileSearch) {
		return fail("agent: %s: resources require the %s tool", def.Stage, ToolFileSearch)
	}

	sample := make(map[string]string)
	for _, key := range Inputs(def.Stage) {
		sample[key] = key
	}
	if _, err := def.Render(sample); err != nil {
		return errors.New(errors.CodeInvalidInput, "agent: "+def.Stage+": invalid prompt", err).
			WithContext("stage", def.Stage)
	}
	return nil
}

// BindIndex returns a copy whose index placeholders point at indexID.
// An empty indexID drops the placeholders, and drops file_search too when no
// other resource is left for it to search.
func (def Definition) BindIndex(indexID string) Definition {
	bound := def
	bound.Resources = nil
	dropped := false
	for _, res := range def.Resources {
		if res == IndexPlaceholder {
			if indexID == "" {
				dropped = true
				continue
			}
			res = indexID
		}
		bound.Resources = append(bound.Resources, res)
	}
	bound.Tools = slices.Clone(def.Tools)
	if dropped && len(bound.Resources) == 0 {
		bound.Tools = slices.DeleteFunc(bound.Tools, func(tool string) bool { return tool == ToolFileSearch })
	}
	return bound
}

// Render fills the prompt template. Referencing a key missing from inputs is an
// error, which keeps a stage from reading output it cannot have yet.
func (def Definition) Render(inputs map[string]string) (string, error) {
	tmpl, err := template.New(def.Stage).Option("missingkey=error").Parse(def.Prompt)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, inputs); err != nil {
		return "", err
	}
	return b.String(), nil
}
