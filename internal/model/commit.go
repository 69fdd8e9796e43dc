package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/maxbolgarin/errm"
)

// ChangeColumns is the column layout of the historical commit-change dataset.
var ChangeColumns = []string{
	"PROJECT_ID", "FILE", "COMMIT_HASH", "DATE", "COMMITTER_ID", "LINES_ADDED", "LINES_REMOVED", "NOTE",
}

// ChangeRow is one row of the historical dataset: a single file touched by a commit
type ChangeRow struct {
	ProjectID    string `csv:"PROJECT_ID"`
	File         string `csv:"FILE"`
	CommitHash   string `csv:"COMMIT_HASH"`
	Date         string `csv:"DATE"`
	CommitterID  string `csv:"COMMITTER_ID"`
	LinesAdded   string `csv:"LINES_ADDED"`
	LinesRemoved string `csv:"LINES_REMOVED"`
	Note         string `csv:"NOTE"`
}

// NewChangeRow builds a row from exactly len(ChangeColumns) fields
func NewChangeRow(fields []string) ChangeRow {
	return ChangeRow{
		ProjectID:    strings.TrimSpace(fields[0]),
		File:         strings.TrimSpace(fields[1]),
		CommitHash:   strings.TrimSpace(fields[2]),
		Date:         fields[3],
		CommitterID:  fields[4],
		LinesAdded:   fields[5],
		LinesRemoved: fields[6],
		Note:         fields[7],
	}
}

// Added returns LINES_ADDED as an integer, 0 when it cannot be parsed
func (r ChangeRow) Added() int {
	return ParseCount(r.LinesAdded)
}

// Removed returns LINES_REMOVED as an integer, 0 when it cannot be parsed
func (r ChangeRow) Removed() int {
	return ParseCount(r.LinesRemoved)
}

// EnhancedRow is a ChangeRow with derived per-commit features
type EnhancedRow struct {
	ChangeRow
	HasFixKeyword Flag `csv:"has_fix_keyword"`
	FilesChanged  int  `csv:"files_changed"`
	ChangedTests  Flag `csv:"changed_tests"`
}

// LabeledRow is one row per distinct commit with its build outcome
type LabeledRow struct {
	EnhancedRow
	BuildLabel         BuildLabel `csv:"build_label"`
	RemoteFilesChanged int        `csv:"remote_files_changed"`
	RemoteAdditions    int        `csv:"remote_additions"`
	RemoteDeletions    int        `csv:"remote_deletions"`
	RemoteHasCI        Flag       `csv:"remote_has_ci"`
	RemoteHasPR        Flag       `csv:"remote_has_pr"`
	WorkflowNames      string     `csv:"gha_workflow_names"`
}

// Commit is a commit mined from a git history
type Commit struct {
	Hash         string
	Message      string
	Author       string
	Timestamp    time.Time
	ParentsCount int

	// Statistics against the first parent
	Stats CommitStats
	Paths []string
}

// IsMerge reports whether the commit has more than one parent
func (c Commit) IsMerge() bool {
	return c.ParentsCount > 1
}

// CommitStats represents commit statistics
type CommitStats struct {
	TotalFiles int `json:"total_files"`
	Additions  int `json:"additions"`
	Deletions  int `json:"deletions"`
}

// DatasetColumns is the column layout of the mined dataset.
var DatasetColumns = []string{
	"commit_hash", "lines_added", "lines_deleted", "files_changed", "has_fix_keyword", "changed_tests", "pipeline_failed",
}

// DatasetRow is one labeled commit of the mined dataset
type DatasetRow struct {
	CommitHash     string `csv:"commit_hash"`
	LinesAdded     int    `csv:"lines_added"`
	LinesDeleted   int    `csv:"lines_deleted"`
	FilesChanged   int    `csv:"files_changed"`
	HasFixKeyword  Flag   `csv:"has_fix_keyword"`
	ChangedTests   Flag   `csv:"changed_tests"`
	PipelineFailed Flag   `csv:"pipeline_failed"`
}

// ParseCount parses a line counter, dropping any non-numeric characters.
// "12", " 12 ", "12.0" and "+12" all give 12; garbage gives 0.
func ParseCount(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}
	if n, err := strconv.Atoi(cleaned); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// Flag is a 0/1 dataset column that also reads true/false spellings
type Flag int

// FlagOf converts a bool to a Flag
func FlagOf(b bool) Flag {
	if b {
		return 1
	}
	return 0
}

// Bool reports whether the flag is set
func (f Flag) Bool() bool {
	return f != 0
}

// MarshalCSV implements gocsv.TypeMarshaller
func (f Flag) MarshalCSV() (string, error) {
	if f != 0 {
		return "1", nil
	}
	return "0", nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller
func (f *Flag) UnmarshalCSV(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true", "t", "yes", "y":
		*f = 1
	case "0", "0.0", "false", "f", "no", "n", "":
		*f = 0
	default:
		return errm.New("invalid flag value %q", s)
	}
	return nil
}
