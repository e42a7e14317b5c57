// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"regexp"
	"sort"
)

// PIIType categorizes personal data.
type PIIType string

const (
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeSSN        PIIType = "ssn"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeIPAddress  PIIType = "ip_address"
)

type piiPattern struct {
	piiType PIIType
	pattern *regexp.Regexp
}

// Order matters: a span claimed by an earlier pattern is not reported again.
var defaultPIIPatterns = []piiPattern{
	{PIITypeCreditCard, regexp.MustCompile(`\b[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}\b`)},
	{PIITypeSSN, regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)},
	{PIITypeEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{PIITypePhone, regexp.MustCompile(`(\+[0-9]{1,3}[-. ]?)?\(?[0-9]{3}\)?[-. ][0-9]{3}[-. ][0-9]{4}\b`)},
	{PIITypeIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)},
}

// PIIScanner reports personal data in generated posts.
type PIIScanner struct {
	patterns []piiPattern
}

// PIIScannerOption configures the scanner.
type PIIScannerOption func(*PIIScanner)

// NewPIIScanner creates a scanner for every PII type.
func NewPIIScanner(opts ...PIIScannerOption) *PIIScanner {
	s := &PIIScanner{patterns: defaultPIIPatterns}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithPIITypes restricts the scanner to types.
func WithPIITypes(types ...PIIType) PIIScannerOption {
	return func(s *PIIScanner) {
		enabled := make(map[PIIType]bool, len(types))
		for _, t := range types {
			enabled[t] = true
		}
		var kept []piiPattern
		for _, p := range defaultPIIPatterns {
			if enabled[p.piiType] {
				kept = append(kept, p)
			}
		}
		s.patterns = kept
	}
}

// ID returns the scanner identifier.
func (s *PIIScanner) ID() string {
	return "pii"
}

// Scan returns the PII found in text, ordered by position.
func (s *PIIScanner) Scan(text string) []Finding {
	var out []Finding
	var claimed [][2]int
	overlaps := func(a, b int) bool {
		for _, c := range claimed {
			if a < c[1] && b > c[0] {
				return true
			}
		}
		return false
	}
	for _, p := range s.patterns {
		for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
			if overlaps(loc[0], loc[1]) {
				continue
			}
			claimed = append(claimed, [2]int{loc[0], loc[1]})
			out = append(out, Finding{
				Kind:     s.ID() + ":" + string(p.piiType),
				Match:    text[loc[0]:loc[1]],
				Position: loc[0],
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// WithPIIScanner adds PII scanning.
func WithPIIScanner(opts ...PIIScannerOption) Option {
	return WithScanner(NewPIIScanner(opts...))
}
