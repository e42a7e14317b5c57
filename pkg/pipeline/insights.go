// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jllopis/trendsurf/pkg/errors"
	"github.com/jllopis/trendsurf/pkg/guardrails"
)

// maxSources caps the sources surfaced from a research brief.
const maxSources = 3

var (
	openFence  = regexp.MustCompile("(?m)^```(?:json)?[ \t]*\n?")
	closeFence = regexp.MustCompile("(?m)\n?```[ \t]*$")
	urlPattern = regexp.MustCompile(`https?://[^\s]+`)
)

// Source is a reference cited by the research brief.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ChecklistItem is one brand compliance check.
type ChecklistItem struct {
	Key  string `json:"key"`
	Item string `json:"item"`
	Pass bool   `json:"pass"`
}

// ComplianceSummary condenses the compliance stage verdict.
type ComplianceSummary struct {
	Status     string          `json:"status,omitempty"`
	Score      float64         `json:"score"`
	Violations int             `json:"violations"`
	Checklist  []ChecklistItem `json:"checklist"`
}

// Post is the copy drafted for one platform.
type Post struct {
	Platform  string   `json:"platform"`
	Content   string   `json:"content"`
	Hashtags  []string `json:"hashtags,omitempty"`
	CharCount int      `json:"char_count"`
}

// Insights is structured data pulled from the stage outputs when the agents
// answered in the JSON shapes their instructions ask for. Every field is
// best effort; a stage whose output is not JSON contributes nothing.
type Insights struct {
	Sources      []Source           `json:"sources,omitempty"`
	Compliance   *ComplianceSummary `json:"compliance,omitempty"`
	Posts        []Post             `json:"posts,omitempty"`
	Disclaimers  []string           `json:"disclaimers,omitempty"`
	ReviewStatus string             `json:"review_status,omitempty"`
	QualityScore float64            `json:"quality_score,omitempty"`
	// Flags are local guardrail findings in the drafted posts.
	Flags []guardrails.Finding `json:"flags,omitempty"`
}

// Empty reports whether nothing could be extracted.
func (in Insights) Empty() bool {
	return len(in.Sources) == 0 && in.Compliance == nil && len(in.Posts) == 0 &&
		len(in.Disclaimers) == 0 && in.ReviewStatus == "" && len(in.Flags) == 0
}

// ParseAgentJSON decodes an agent reply into v after stripping a surrounding
// markdown code fence.
func ParseAgentJSON(text string, v any) error {
	stripped := openFence.ReplaceAllString(strings.TrimSpace(text), "")
	stripped = strings.TrimSpace(closeFence.ReplaceAllString(stripped, ""))
	if stripped == "" {
		return errors.New(errors.CodeInvalidInput, "agent reply is empty", nil)
	}
	if err := json.Unmarshal([]byte(stripped), v); err != nil {
		return errors.New(errors.CodeInvalidInput, "agent reply is not JSON", err)
	}
	return nil
}

type researchBrief struct {
	Sources []Source `json:"sources"`
}

type complianceReport struct {
	Status     string            `json:"status"`
	Score      float64           `json:"compliance_score"`
	Violations []json.RawMessage `json:"violations"`
	Checklist  map[string]bool   `json:"checklist"`
}

type platformPost struct {
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags"`
}

type draftPosts struct {
	Posts       map[string]platformPost `json:"posts"`
	Disclaimers []string                `json:"disclaimers_included"`
}

type finalReview struct {
	Status string  `json:"review_status"`
	Score  float64 `json:"overall_quality_score"`
}

var checklistLabels = []struct{ key, label string }{
	{"voice_tone", "Voice & Tone"},
	{"no_prohibited_language", "No Prohibited Language"},
	{"claims_sourced", "Claims Sourced"},
	{"disclaimers_present", "Disclaimers Present"},
	{"platform_compliant", "Platform Compliant"},
	{"audience_appropriate", "Audience Appropriate"},
}

var platformOrder = []string{"linkedin", "twitter", "teams"}

// ExtractInsights parses the stage outputs of a run.
func ExtractInsights(r *Result) Insights {
	var in Insights

	var brief researchBrief
	if ParseAgentJSON(r.Research, &brief) == nil {
		for _, s := range brief.Sources {
			if s.URL == "" {
				continue
			}
			in.Sources = append(in.Sources, s)
		}
	}
	if len(in.Sources) == 0 {
		in.Sources = ExtractSources(r.Research)
	}

	var report complianceReport
	if ParseAgentJSON(r.Compliance, &report) == nil {
		summary := &ComplianceSummary{
			Status:     report.Status,
			Score:      report.Score,
			Violations: len(report.Violations),
		}
		for _, c := range checklistLabels {
			summary.Checklist = append(summary.Checklist, ChecklistItem{
				Key:  c.key,
				Item: c.label,
				Pass: report.Checklist[c.key],
			})
		}
		in.Compliance = summary
	}

	var drafts draftPosts
	if ParseAgentJSON(r.Posts, &drafts) == nil {
		for _, platform := range platformOrder {
			p, ok := drafts.Posts[platform]
			if !ok || p.Content == "" {
				continue
			}
			in.Posts = append(in.Posts, Post{
				Platform:  platform,
				Content:   p.Content,
				Hashtags:  p.Hashtags,
				CharCount: utf8.RuneCountInString(p.Content),
			})
		}
		in.Disclaimers = drafts.Disclaimers
	}

	var review finalReview
	if ParseAgentJSON(r.Review, &review) == nil {
		in.ReviewStatus = review.Status
		in.QualityScore = review.Score
	}
	return in
}

// ExtractSources returns up to three URLs found in free text.
func ExtractSources(text string) []Source {
	var out []Source
	seen := make(map[string]bool)
	for _, raw := range urlPattern.FindAllString(text, -1) {
		url := strings.TrimRight(raw, `.,;:)]}>"'`+"`")
		if seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, Source{Title: fmt.Sprintf("Source %d", len(out)+1), URL: url})
		if len(out) == maxSources {
			break
		}
	}
	return out
}
