package models

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the outcome of a human review.
type Decision string

// Review decision constants
const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionModified Decision = "modified"
	DecisionRejected Decision = "rejected"
	// DecisionRerun sends the task back to run again, with the payload as
	// extra parameter overrides, and opens a new checkpoint for its output.
	DecisionRerun Decision = "rerun"
)

// ParseDecision accepts the decision names and their imperative forms
// ("approve", "modify", "reject", "rerun").
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved", "accept", "accepted":
		return DecisionApproved, nil
	case "modify", "modified":
		return DecisionModified, nil
	case "reject", "rejected":
		return DecisionRejected, nil
	case "rerun", "re-run", "retry":
		return DecisionRerun, nil
	default:
		return "", fmt.Errorf("invalid decision %q: must be approve, modify, rerun or reject", s)
	}
}

// ReviewCheckpoint is a suspended decision point for a task flagged human_review.
type ReviewCheckpoint struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	TaskName  string    `json:"task_name"`
	Proposed  Artifact  `json:"proposed,omitempty"`
	Decision  Decision  `json:"decision"`
	Payload   Artifact  `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	DecidedAt time.Time `json:"decided_at,omitzero"`
}

// Resolved reports whether a decision has been recorded.
func (c *ReviewCheckpoint) Resolved() bool {
	return c.Decision != "" && c.Decision != DecisionPending
}

// Outcome returns the artifact dependents should receive for a resolved checkpoint.
func (c *ReviewCheckpoint) Outcome() Artifact {
	if c.Decision == DecisionModified {
		return c.Payload
	}
	return c.Proposed
}
