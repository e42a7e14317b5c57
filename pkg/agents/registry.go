// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package agents

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/trendsurf/pkg/errors"
)

//go:embed definitions.yaml
var defaultDefinitions []byte

type definitionFile struct {
	Agents []Definition `yaml:"agents"`
}

// Registry maps every stage to its definition. It is read-only after construction.
type Registry struct {
	defs map[string]Definition
}

// Default returns the registry built from the embedded definitions.
func Default() (*Registry, error) {
	defs, err := ParseDefinitionsYAML(defaultDefinitions)
	if err != nil {
		return nil, fmt.Errorf("agent: embedded definitions: %w", err)
	}
	return New(defs...)
}

// Load returns the default registry with the definitions in path layered on top.
// A stage defined in the file replaces the embedded definition for that stage.
// An empty path returns the defaults.
func Load(path string) (*Registry, error) {
	reg, err := Default()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return reg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "agent: read definitions", err).
			WithContext("path", path)
	}
	overrides, err := ParseDefinitionsYAML(data)
	if err != nil {
		return nil, fmt.Errorf("agent: %s: %w", path, err)
	}
	for _, def := range overrides {
		reg.defs[def.Stage] = def
	}
	return reg, nil
}

// New validates defs and builds a registry. Every stage must be defined exactly once.
func New(defs ...Definition) (*Registry, error) {
	reg := &Registry{defs: make(map[string]Definition, len(Stages))}
	for _, def := range defs {
		def = def.Normalized()
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := reg.defs[def.Stage]; dup {
			return nil, errors.New(errors.CodeInvalidInput, "agent: duplicate stage "+def.Stage, nil)
		}
		reg.defs[def.Stage] = def
	}
	for _, stage := range Stages {
		if _, ok := reg.defs[stage]; !ok {
			return nil, errors.New(errors.CodeInvalidInput, "agent: missing definition for stage "+stage, nil)
		}
	}
	return reg, nil
}

// ParseDefinitionsYAML decodes, normalizes and validates a definitions payload.
func ParseDefinitionsYAML(data []byte) ([]Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "agent: definitions payload is empty", nil)
	}
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "agent: decode definitions", err)
	}
	defs := make([]Definition, 0, len(file.Agents))
	for _, def := range file.Agents {
		def = def.Normalized()
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Lookup returns the definition for stage.
func (r *Registry) Lookup(stage string) (Definition, error) {
	def, ok := r.defs[stage]
	if !ok {
		return Definition{}, errors.New(errors.CodeNotFound, "agent: no definition for stage "+stage, nil)
	}
	return def, nil
}

// Ordered returns every definition in stage order.
func (r *Registry) Ordered() []Definition {
	out := make([]Definition, 0, len(Stages))
	for _, stage := range Stages {
		out = append(out, r.defs[stage])
	}
	return out
}
