// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
)

// PromptInjectionDetector blocks topics that try to steer the agents away
// from their instructions. The topic is templated into every stage prompt,
// so one injected topic reaches all four agents.
type PromptInjectionDetector struct {
	patterns []*regexp.Regexp
}

// PromptInjectionOption configures the detector.
type PromptInjectionOption func(*PromptInjectionDetector)

// Topics often name attacks as subject matter ("defending against jailbreak
// attacks", "agents running in admin mode"), so the jailbreak and mode
// patterns only match the imperative form aimed at the agents.
var defaultInjectionPatterns = []string{
	// Instruction override
	`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`,
	`(?i)new\s+instructions?\s*:`,

	// Persona manipulation
	`(?i)you\s+are\s+now\s+(a|an|the)\s+`,
	`(?i)pretend\s+(you\s+are|to\s+be)\s+`,
	`(?i)from\s+now\s+on\s+you\s+`,

	// System prompt extraction
	`(?i)(what\s+(is|are)|show\s+me|reveal|print|display|repeat)\s+your\s+(system\s+)?(prompt|instructions?)`,

	// Jailbreaks
	`(?i)do\s+anything\s+now`,
	`(?i)\bDAN\s+mode\b`,
	`(?i)\bjailbreak\s+(yourself|your\s+\w+|the\s+(model|assistant|agents?|reviewer|ai|llm))\b`,
	`(?i)\b(enter|enable|switch\s+to|activate|turn\s+on|go\s+into)\s+(developer|debug|sudo|admin|god)\s+mode`,
	`(?i)bypass\s+(the\s+)?(safety|content|compliance|brand)\s+(filter|rules?|checks?)`,

	// Chat template delimiters
	`(?i)\]\]\s*system\s*:`,
	`<\|[a-z_]+\|>`,
	`(?i)\[/?INST\]`,
	`(?i)<</?SYS>>`,
	`(?im)^\s*(system|assistant)\s*:`,
}

// NewPromptInjectionDetector creates a detector with the default patterns.
func NewPromptInjectionDetector(opts ...PromptInjectionOption) *PromptInjectionDetector {
	d := &PromptInjectionDetector{}
	for _, p := range defaultInjectionPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile(p))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithInjectionPatterns adds patterns. Patterns that fail to compile are skipped.
func WithInjectionPatterns(patterns ...string) PromptInjectionOption {
	return func(d *PromptInjectionDetector) {
		for _, p := range patterns {
			if re, err := regexp.Compile(p); err == nil {
				d.patterns = append(d.patterns, re)
			}
		}
	}
}

// ID returns the guardrail identifier.
func (d *PromptInjectionDetector) ID() string {
	return "prompt-injection"
}

// CheckTopic blocks on any matching pattern.
func (d *PromptInjectionDetector) CheckTopic(_ context.Context, topic string) CheckResult {
	if topic == "" {
		return CheckResult{}
	}
	var matched []string
	for _, p := range d.patterns {
		if p.MatchString(topic) {
			matched = append(matched, p.String())
		}
	}
	if len(matched) == 0 {
		return CheckResult{}
	}
	return CheckResult{
		Blocked: true,
		Reason:  "topic looks like a prompt injection attempt",
		Matches: matched,
	}
}

// WithPromptInjectionDetector adds prompt injection detection.
func WithPromptInjectionDetector(opts ...PromptInjectionOption) Option {
	return WithTopicChecker(NewPromptInjectionDetector(opts...))
}
