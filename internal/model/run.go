package model

import (
	"strings"
	"time"
)

// Conclusion is the normalized terminal status of a CI run
type Conclusion string

const (
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionCancelled Conclusion = "cancelled"
	ConclusionSkipped   Conclusion = "skipped"
	ConclusionNeutral   Conclusion = "neutral"
	ConclusionPending   Conclusion = "pending"
)

// NormalizeConclusion maps provider specific run states onto Conclusion
func NormalizeConclusion(raw string) Conclusion {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful", "passed":
		return ConclusionSuccess
	case "failure", "failed", "timed_out", "startup_failure", "error":
		return ConclusionFailure
	case "cancelled", "canceled", "stopped":
		return ConclusionCancelled
	case "skipped":
		return ConclusionSkipped
	case "neutral", "action_required", "stale":
		return ConclusionNeutral
	default:
		return ConclusionPending
	}
}

// IsDecisive reports whether the conclusion says anything about build health
func (c Conclusion) IsDecisive() bool {
	return c == ConclusionSuccess || c == ConclusionFailure
}

// IsFailure reports whether the run failed
func (c Conclusion) IsFailure() bool {
	return c == ConclusionFailure
}

// WorkflowRun is one execution of a CI pipeline
type WorkflowRun struct {
	ID           int64      `json:"id"`
	HeadSHA      string     `json:"head_sha"`
	Conclusion   Conclusion `json:"conclusion"`
	Event        string     `json:"event"`
	WorkflowName string     `json:"workflow_name"`
	Status       string     `json:"status,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
}

// CommitStatus is the combined legacy status of a commit
type CommitStatus struct {
	State    string   `json:"state"`
	Contexts []string `json:"contexts"`
}

// CommitDetails is the remote view of a commit
type CommitDetails struct {
	SHA          string `json:"sha"`
	FilesChanged int    `json:"files_changed"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	ParentsCount int    `json:"parents_count"`
}

// ListRunsOptions controls CI run pagination
type ListRunsOptions struct {
	PerPage  int
	MaxPages int
}
