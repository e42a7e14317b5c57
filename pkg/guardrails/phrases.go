// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"regexp"
	"sort"
)

// PhraseRule flags language a financial services brand must not publish.
type PhraseRule struct {
	Name     string
	Patterns []string
}

// DefaultPhraseRules mirror the prohibited language section of the brand kit.
var DefaultPhraseRules = []PhraseRule{
	{Name: "guarantee", Patterns: []string{
		`(?i)\bguarantee(d|s)?\b`,
		`(?i)\brisk[- ]free\b`,
		`(?i)\bcan'?t\s+lose\b`,
		`(?i)\bsure\s+thing\b`,
		`(?i)\bno[- ]risk\b`,
	}},
	{Name: "superlative", Patterns: []string{
		`(?i)\bindustry[- ]leading\b`,
		`(?i)\bunmatched\b`,
		`(?i)\bbest[- ]in[- ]class\b`,
		`(?i)(^|\s)#1\b`,
		`(?i)\bnumber\s+one\b`,
	}},
	{Name: "urgency", Patterns: []string{
		`(?i)\bact\s+now\b`,
		`(?i)\bbefore\s+it'?s\s+too\s+late\b`,
		`(?i)\bdon'?t\s+(get\s+)?(be\s+)?left\s+behind\b`,
		`(?i)\blimited\s+time\b`,
	}},
	{Name: "investment_advice", Patterns: []string{
		`(?i)\byou\s+should\s+(buy|sell|invest)\b`,
		`(?i)\b(buy|sell)\s+(now|today)\b`,
		`(?i)\bguaranteed\s+returns?\b`,
	}},
}

type compiledRule struct {
	name     string
	patterns []*regexp.Regexp
}

// PhraseScanner reports prohibited phrases.
type PhraseScanner struct {
	rules []compiledRule
}

// NewPhraseScanner compiles rules. Patterns that fail to compile are skipped.
func NewPhraseScanner(rules ...PhraseRule) *PhraseScanner {
	s := &PhraseScanner{}
	for _, r := range rules {
		cr := compiledRule{name: r.Name}
		for _, p := range r.Patterns {
			if re, err := regexp.Compile(p); err == nil {
				cr.patterns = append(cr.patterns, re)
			}
		}
		if len(cr.patterns) > 0 {
			s.rules = append(s.rules, cr)
		}
	}
	return s
}

// ID returns the scanner identifier.
func (s *PhraseScanner) ID() string {
	return "prohibited"
}

// Scan returns one finding per match, ordered by position. Overlapping
// matches of the same rule are reported once.
func (s *PhraseScanner) Scan(text string) []Finding {
	var out []Finding
	for _, r := range s.rules {
		seen := map[int]bool{}
		for _, re := range r.patterns {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				if seen[loc[0]] {
					continue
				}
				seen[loc[0]] = true
				out = append(out, Finding{
					Kind:     s.ID() + ":" + r.name,
					Match:    text[loc[0]:loc[1]],
					Position: loc[0],
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// WithPhraseScanner adds a phrase scanner built from rules.
func WithPhraseScanner(rules ...PhraseRule) Option {
	return WithScanner(NewPhraseScanner(rules...))
}
