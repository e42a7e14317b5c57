// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails holds the local content checks that bracket a pipeline
// run.
//
// Guardrails run at two points:
//   - Topic: before the topic is templated into any agent prompt (prompt
//     injection, oversized input).
//   - Posts: after the copy stage, drafted posts are scanned for prohibited
//     brand language and personal data. Findings are reported, never
//     rewritten; the remote review stage stays the authority on compliance.
//
// Example usage:
//
//	guard := guardrails.New(
//	    guardrails.WithPromptInjectionDetector(),
//	    guardrails.WithPhraseScanner(guardrails.DefaultPhraseRules...),
//	    guardrails.WithPIIScanner(),
//	)
//
//	if result := guard.CheckTopic(ctx, topic); result.Blocked {
//	    return result.Reason
//	}
//	findings := guard.Scan(ctx, "linkedin", post)
package guardrails

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"
)

// DefaultMaxTopicLength bounds topics accepted by Default.
const DefaultMaxTopicLength = 500

// CheckResult is the outcome of a topic check.
type CheckResult struct {
	// Blocked indicates the topic must not reach the agents.
	Blocked bool

	// Reason explains why the topic was blocked.
	Reason string

	// GuardrailID identifies the checker that blocked.
	GuardrailID string

	// Matches lists the patterns or rules that fired.
	Matches []string
}

// Finding is one match reported by a Scanner.
type Finding struct {
	// Kind is "<scanner>:<rule>", e.g. "prohibited:guarantee" or "pii:email".
	Kind string `json:"kind"`
	// Match is the matched text.
	Match string `json:"match"`
	// Position is the byte offset of Match in the scanned text.
	Position int `json:"position"`
	// Platform names the post the finding came from, when known.
	Platform string `json:"platform,omitempty"`
}

// TopicChecker validates a topic before prompts are built from it.
type TopicChecker interface {
	CheckTopic(ctx context.Context, topic string) CheckResult
	ID() string
}

// Scanner reports findings in generated text.
type Scanner interface {
	Scan(text string) []Finding
	ID() string
}

// Guard runs topic checkers and post scanners.
type Guard struct {
	mu             sync.RWMutex
	checkers       []TopicChecker
	scanners       []Scanner
	maxTopicLength int
}

// Option configures a Guard.
type Option func(*Guard)

// New creates a Guard with the given options. A Guard without options
// accepts every topic and reports nothing.
func New(opts ...Option) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Default returns the guard the CLI runs with: prompt injection detection,
// the default brand phrase rules, PII scanning and DefaultMaxTopicLength.
func Default() *Guard {
	return New(
		WithMaxTopicLength(DefaultMaxTopicLength),
		WithPromptInjectionDetector(),
		WithPhraseScanner(DefaultPhraseRules...),
		WithPIIScanner(),
	)
}

// WithTopicChecker adds a topic checker.
func WithTopicChecker(c TopicChecker) Option {
	return func(g *Guard) { g.checkers = append(g.checkers, c) }
}

// WithScanner adds a post scanner.
func WithScanner(s Scanner) Option {
	return func(g *Guard) { g.scanners = append(g.scanners, s) }
}

// WithMaxTopicLength blocks topics longer than n runes. Zero disables the limit.
func WithMaxTopicLength(n int) Option {
	return func(g *Guard) { g.maxTopicLength = n }
}

// CheckTopic runs the length limit and every checker and returns the first
// blocking result. A cancelled context blocks.
func (g *Guard) CheckTopic(ctx context.Context, topic string) CheckResult {
	g.mu.RLock()
	checkers, limit := g.checkers, g.maxTopicLength
	g.mu.RUnlock()

	if n := utf8.RuneCountInString(topic); limit > 0 && n > limit {
		return CheckResult{
			Blocked:     true,
			Reason:      fmt.Sprintf("topic is %d characters, limit is %d", n, limit),
			GuardrailID: "topic-length",
		}
	}
	for _, c := range checkers {
		if ctx.Err() != nil {
			return CheckResult{Blocked: true, Reason: "topic check cancelled", GuardrailID: "system"}
		}
		if res := c.CheckTopic(ctx, topic); res.Blocked {
			res.GuardrailID = c.ID()
			return res
		}
	}
	return CheckResult{}
}

// Scan runs every scanner over text and tags the findings with platform.
func (g *Guard) Scan(ctx context.Context, platform, text string) []Finding {
	g.mu.RLock()
	scanners := g.scanners
	g.mu.RUnlock()

	var out []Finding
	for _, s := range scanners {
		if ctx.Err() != nil {
			break
		}
		for _, f := range s.Scan(text) {
			f.Platform = platform
			out = append(out, f)
		}
	}
	return out
}

// AddScanner adds a scanner at runtime.
func (g *Guard) AddScanner(s Scanner) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scanners = append(g.scanners, s)
}

// Stats returns the number of configured checkers and scanners.
func (g *Guard) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{TopicCheckers: len(g.checkers), Scanners: len(g.scanners), MaxTopicLength: g.maxTopicLength}
}

// Stats describes a Guard's configuration.
type Stats struct {
	TopicCheckers  int
	Scanners       int
	MaxTopicLength int
}
