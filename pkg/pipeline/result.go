// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"time"

	"github.com/jllopis/trendsurf/pkg/agents"
	"github.com/jllopis/trendsurf/pkg/artifact"
)

// Status is the outcome of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusDegraded  Status = "degraded"
	StatusFailed    Status = "failed"
)

// Degradation records a failure the run continued past.
type Degradation struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Result is the outcome of Execute. Its JSON form is the aggregate document
// written as pipeline_result.json.
type Result struct {
	RunID      string        `json:"run_id"`
	Topic      string        `json:"topic"`
	Research   string        `json:"research"`
	Compliance string        `json:"compliance"`
	Posts      string        `json:"posts"`
	Review     string        `json:"review"`
	Status     Status        `json:"status"`
	Degraded   []Degradation `json:"degraded,omitempty"`
	Error      string        `json:"error,omitempty"`
	IndexID    string        `json:"index_id,omitempty"`
	OutputDir  string        `json:"output_dir,omitempty"`
	Insights   *Insights     `json:"insights,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`

	Artifacts []artifact.Artifact `json:"-"`
}

// Output returns the text produced by stage.
func (r *Result) Output(stage string) string {
	switch stage {
	case agents.StageResearch:
		return r.Research
	case agents.StageCompliance:
		return r.Compliance
	case agents.StageCopy:
		return r.Posts
	case agents.StageReview:
		return r.Review
	default:
		return ""
	}
}

func (r *Result) setOutput(stage, text string) {
	switch stage {
	case agents.StageResearch:
		r.Research = text
	case agents.StageCompliance:
		r.Compliance = text
	case agents.StageCopy:
		r.Posts = text
	case agents.StageReview:
		r.Review = text
	}
}

// IsDegraded reports whether the run continued past any failure.
func (r *Result) IsDegraded() bool {
	return len(r.Degraded) > 0
}

// MarshalIndent renders the aggregate document.
func (r *Result) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
