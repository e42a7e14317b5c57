package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentJSONStripsFences(t *testing.T) {
	var v struct {
		Status string `json:"status"`
	}
	require.NoError(t, ParseAgentJSON("```json\n{\"status\": \"APPROVED\"}\n```", &v))
	assert.Equal(t, "APPROVED", v.Status)

	require.NoError(t, ParseAgentJSON(`  {"status": "REJECTED"}  `, &v))
	assert.Equal(t, "REJECTED", v.Status)

	assert.Error(t, ParseAgentJSON("Here is the brief: not json", &v))
	assert.Error(t, ParseAgentJSON("", &v))
}

func TestExtractInsights(t *testing.T) {
	res := &Result{
		Research: "```json\n" + `{"sources": [
			{"title": "NIST AI RMF", "url": "https://www.nist.gov/itl/ai-risk-management-framework"},
			{"title": "No link"}]}` + "\n```",
		Compliance: `{"status": "NEEDS_REVISION", "compliance_score": 72,
			"violations": [{"type": "claim"}],
			"checklist": {"voice_tone": true, "claims_sourced": false}}`,
		Posts: `{"posts": {"twitter": {"content": "AI risk is a board topic. #AI", "hashtags": ["#AI"]},
			"linkedin": {"content": "Long form"}},
			"disclaimers_included": ["Not financial advice."]}`,
		Review: `{"review_status": "ALL_APPROVED", "overall_quality_score": 9}`,
	}

	in := ExtractInsights(res)
	require.Len(t, in.Sources, 1)
	assert.Equal(t, "NIST AI RMF", in.Sources[0].Title)

	require.NotNil(t, in.Compliance)
	assert.Equal(t, "NEEDS_REVISION", in.Compliance.Status)
	assert.Equal(t, 72.0, in.Compliance.Score)
	assert.Equal(t, 1, in.Compliance.Violations)
	require.Len(t, in.Compliance.Checklist, 6)
	assert.True(t, in.Compliance.Checklist[0].Pass)
	assert.False(t, in.Compliance.Checklist[2].Pass)

	require.Len(t, in.Posts, 2)
	assert.Equal(t, "linkedin", in.Posts[0].Platform)
	assert.Equal(t, "twitter", in.Posts[1].Platform)
	assert.Equal(t, len("AI risk is a board topic. #AI"), in.Posts[1].CharCount)
	assert.Equal(t, []string{"Not financial advice."}, in.Disclaimers)
	assert.Equal(t, "ALL_APPROVED", in.ReviewStatus)
	assert.Equal(t, 9.0, in.QualityScore)
}

func TestExtractInsightsPlainText(t *testing.T) {
	in := ExtractInsights(&Result{Research: "Plain prose without links."})
	assert.True(t, in.Empty())
}

func TestExtractSourcesFallback(t *testing.T) {
	text := `See https://a.example.com/x, then (https://b.example.com/y).
Also https://a.example.com/x again, https://c.example.com and https://d.example.com.`

	sources := ExtractSources(text)
	require.Len(t, sources, 3)
	assert.Equal(t, Source{Title: "Source 1", URL: "https://a.example.com/x"}, sources[0])
	assert.Equal(t, "https://b.example.com/y", sources[1].URL)
	assert.Equal(t, "https://c.example.com", sources[2].URL)
}
