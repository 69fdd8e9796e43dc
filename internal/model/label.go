package model

import (
	"sort"
	"strings"
)

// BuildLabel is the best-effort outcome of a historical commit build
type BuildLabel string

const (
	LabelPassed  BuildLabel = "passed"
	LabelFailed  BuildLabel = "failed"
	LabelNoCI    BuildLabel = "no_ci"
	LabelUnknown BuildLabel = "unknown"
)

// LabelResult is everything the labeler learned about one commit
type LabelResult struct {
	CommitHash    string        `json:"commit_hash"`
	ProjectID     string        `json:"project_id"`
	Label         BuildLabel    `json:"label"`
	Details       CommitDetails `json:"details"`
	HasCI         bool          `json:"has_ci"`
	HasPR         bool          `json:"has_pr"`
	WorkflowNames []string      `json:"workflow_names"`
	RunsTotal     int           `json:"runs_total"`

	// Transient is set when the label degraded because of a remote failure,
	// such results are worth retrying later.
	Transient bool `json:"-"`
}

// SelectOutcome picks a single conclusion for a commit from all of its runs.
//
// Runs are grouped by workflow name, inside a workflow the latest decisive run
// (by creation time, then id) wins. A commit fails if any workflow's latest
// decisive run failed and passes if every such run succeeded. ok is false when
// there is no decisive run at all.
func SelectOutcome(runs []WorkflowRun) (c Conclusion, ok bool) {
	latest := make(map[string]WorkflowRun)
	for _, run := range runs {
		if !run.Conclusion.IsDecisive() {
			continue
		}
		cur, found := latest[run.WorkflowName]
		if !found || isAfter(run, cur) {
			latest[run.WorkflowName] = run
		}
	}
	if len(latest) == 0 {
		return ConclusionPending, false
	}
	for _, run := range latest {
		if run.Conclusion.IsFailure() {
			return ConclusionFailure, true
		}
	}
	return ConclusionSuccess, true
}

// LabelFromRuns converts runs of a commit into a BuildLabel
func LabelFromRuns(runs []WorkflowRun) BuildLabel {
	c, ok := SelectOutcome(runs)
	switch {
	case !ok:
		return LabelUnknown
	case c.IsFailure():
		return LabelFailed
	default:
		return LabelPassed
	}
}

// LabelFromStatus converts a combined commit status into a BuildLabel.
// A pending state without any context means nothing ever reported a build.
func LabelFromStatus(status CommitStatus) BuildLabel {
	switch strings.ToLower(status.State) {
	case "success":
		return LabelPassed
	case "failure", "error":
		return LabelFailed
	case "pending", "":
		if len(status.Contexts) == 0 {
			return LabelNoCI
		}
		return LabelUnknown
	default:
		return LabelUnknown
	}
}

// WorkflowNames returns distinct sorted workflow names of runs
func WorkflowNames(runs []WorkflowRun) []string {
	seen := make(map[string]struct{}, len(runs))
	names := make([]string, 0, len(runs))
	for _, run := range runs {
		if run.WorkflowName == "" {
			continue
		}
		if _, ok := seen[run.WorkflowName]; ok {
			continue
		}
		seen[run.WorkflowName] = struct{}{}
		names = append(names, run.WorkflowName)
	}
	sort.Strings(names)
	return names
}

func isAfter(a, b WorkflowRun) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
