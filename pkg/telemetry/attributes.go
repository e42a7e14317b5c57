// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration with pipeline
// attributes, metrics and trace-aware structured logging.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for pipeline telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Pipeline attributes
	AttrRunID = "trendsurf.run.id"
	AttrTopic = "trendsurf.run.topic"
	AttrStage = "trendsurf.stage.name"
	AttrSeq   = "trendsurf.stage.sequence"

	// Remote agent attributes
	AttrAgentID   = "trendsurf.agent.id"
	AttrAgentName = "trendsurf.agent.name"
	AttrModel     = "gen_ai.request.model"

	// Turn attributes
	AttrConversationID = "trendsurf.conversation.id"
	AttrRemoteRunID    = "trendsurf.remote_run.id"
	AttrRunStatus      = "trendsurf.remote_run.status"
	AttrPollAttempts   = "trendsurf.poll.attempts"
	AttrOutputChars    = "trendsurf.output.chars"

	// Index attributes
	AttrIndexID    = "trendsurf.index.id"
	AttrIndexState = "trendsurf.index.state"
	AttrDocument   = "trendsurf.index.document"

	// Error attributes
	AttrErrorCode = "error.code"
	AttrDegraded  = "trendsurf.degraded"
)

// maxTopicLen keeps span attributes bounded for free-text topics.
const maxTopicLen = 200

// RunAttributes returns common attributes for the pipeline span.
func RunAttributes(runID, topic string) []attribute.KeyValue {
	if len(topic) > maxTopicLen {
		topic = topic[:maxTopicLen] + "..."
	}
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.String(AttrTopic, topic),
	}
}

// StageAttributes returns attributes for a stage span.
func StageAttributes(stage string, seq int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStage, stage),
		attribute.Int(AttrSeq, seq),
	}
}

// AgentAttributes returns attributes describing a remote agent.
func AgentAttributes(agentID, name, model string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
	}
	if name != "" {
		attrs = append(attrs, attribute.String(AttrAgentName, name))
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrModel, model))
	}
	return attrs
}

// TurnAttributes returns attributes for a finished turn.
func TurnAttributes(conversationID, runID, status string, attempts, outputChars int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrConversationID, conversationID),
		attribute.String(AttrRemoteRunID, runID),
		attribute.String(AttrRunStatus, status),
		attribute.Int(AttrPollAttempts, attempts),
		attribute.Int(AttrOutputChars, outputChars),
	}
}
