// SPDX-License-Identifier: Apache-2.0

package assistant

// RunStatus is the closed set of remote run states.
//
// State machine: queued -> in_progress -> {completed | failed | cancelled |
// expired | incomplete}. No transition leaves a terminal state.
type RunStatus int

const (
	RunStatusUnknown RunStatus = iota
	RunQueued
	RunInProgress
	RunRequiresAction
	RunCancelling
	RunCompleted
	RunFailed
	RunCancelled
	RunExpired
	RunIncomplete
)

// ParseRunStatus maps the service's status string onto RunStatus.
// Unrecognized strings map to RunStatusUnknown.
func ParseRunStatus(s string) RunStatus {
	switch s {
	case "queued":
		return RunQueued
	case "in_progress":
		return RunInProgress
	case "requires_action":
		return RunRequiresAction
	case "cancelling":
		return RunCancelling
	case "completed":
		return RunCompleted
	case "failed":
		return RunFailed
	case "cancelled":
		return RunCancelled
	case "expired":
		return RunExpired
	case "incomplete":
		return RunIncomplete
	default:
		return RunStatusUnknown
	}
}

func (s RunStatus) String() string {
	switch s {
	case RunQueued:
		return "queued"
	case RunInProgress:
		return "in_progress"
	case RunRequiresAction:
		return "requires_action"
	case RunCancelling:
		return "cancelling"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	case RunExpired:
		return "expired"
	case RunIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can occur.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete:
		return true
	default:
		return false
	}
}

// settled reports whether polling should stop. Agents carry no function
// tools, so requires_action can never be satisfied and an unknown status
// cannot be interpreted: both end the turn as failures.
func (s RunStatus) settled() bool {
	return s.Terminal() || s == RunRequiresAction || s == RunStatusUnknown
}

// IndexState summarizes IndexStatus.
type IndexState int

const (
	IndexPending IndexState = iota
	IndexReady
	IndexFailed
)

func (s IndexState) String() string {
	switch s {
	case IndexReady:
		return "ready"
	case IndexFailed:
		return "failed"
	default:
		return "pending"
	}
}

// State derives the index state. Any failed document fails the index, since
// compliance checks would otherwise run against a partial corpus.
func (s IndexStatus) State() IndexState {
	switch {
	case s.Failed > 0:
		return IndexFailed
	case s.Completed >= 1:
		return IndexReady
	default:
		return IndexPending
	}
}
