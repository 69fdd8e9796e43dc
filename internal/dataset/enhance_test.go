package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawHistory = `PROJECT_ID,FILE,COMMIT_HASH,DATE,COMMITTER_ID,LINES_ADDED,LINES_REMOVED,NOTE
org.apache:maven,pom.xml,abc123,2023-01-15,john.doe,+5,2.0,"fix: update dependency"
org.apache:commons,src/main/Foo.java,def456,2023-01-16,jane,10,1,Add feature,with comma
org.apache:commons,src/test/FooTest.java,def456,2023-01-16,jane,20,0,Add feature,with comma
org.apache:commons,src/main/Foo.java,def456,2023-01-16,jane,1,1,Add feature,with comma
org.apache:commons,README.md,fed789,2023-01-17,jane,1
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEnhance(t *testing.T) {
	in := writeFile(t, "raw.csv", rawHistory)
	out := filepath.Join(t.TempDir(), "nested", "enhanced.csv")

	e, err := NewEnhancer(EnhanceConfig{ChunkSize: 2}, nil)
	require.NoError(t, err)

	stats, err := e.Enhance(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Rows)
	assert.Equal(t, 3, stats.Commits)
	assert.Equal(t, 1, stats.WithFix)
	assert.Equal(t, 1, stats.WithTests)
	assert.Equal(t, 3, stats.Repair.Merged)
	assert.Equal(t, 1, stats.Repair.Padded)

	rows, err := ReadRows[model.EnhancedRow](out)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	maven := rows[0]
	assert.Equal(t, "abc123", maven.CommitHash)
	assert.Equal(t, "fix: update dependency", maven.Note)
	assert.Equal(t, model.Flag(1), maven.HasFixKeyword)
	assert.Equal(t, 1, maven.FilesChanged)
	assert.Equal(t, model.Flag(0), maven.ChangedTests)
	assert.Equal(t, "5", maven.LinesAdded)
	assert.Equal(t, "2", maven.LinesRemoved)

	for _, r := range rows[1:4] {
		assert.Equal(t, "def456", r.CommitHash)
		assert.Equal(t, "Add feature, with comma", r.Note)
		assert.Equal(t, 2, r.FilesChanged, "distinct paths")
		assert.Equal(t, model.Flag(1), r.ChangedTests)
		assert.Equal(t, model.Flag(0), r.HasFixKeyword)
	}

	assert.Equal(t, 1, rows[4].FilesChanged)
	assert.Equal(t, "1", rows[4].LinesAdded)
	assert.Equal(t, "0", rows[4].LinesRemoved, "padded counter is cleaned")
}

func TestEnhanceRoundTripKeepsColumns(t *testing.T) {
	in := writeFile(t, "raw.csv", rawHistory)
	dir := t.TempDir()
	out := filepath.Join(dir, "enhanced.csv")
	fixed := filepath.Join(dir, "fixed.csv")

	e, err := NewEnhancer(EnhanceConfig{FixedOut: fixed}, nil)
	require.NoError(t, err)
	_, err = e.Enhance(context.Background(), in, out)
	require.NoError(t, err)

	header, err := ReadHeader(out)
	require.NoError(t, err)
	want := append(append([]string{}, model.ChangeColumns...), "has_fix_keyword", "files_changed", "changed_tests")
	assert.Equal(t, want, header)

	rows, err := ReadRows[model.EnhancedRow](out)
	require.NoError(t, err)

	again := filepath.Join(dir, "again.csv")
	require.NoError(t, WriteRows(again, rows))

	header2, err := ReadHeader(again)
	require.NoError(t, err)
	rows2, err := ReadRows[model.EnhancedRow](again)
	require.NoError(t, err)
	assert.Equal(t, header, header2)
	assert.Equal(t, rows, rows2)

	fixedHeader, err := ReadHeader(fixed)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeColumns, fixedHeader)
	fixedRows, err := ReadRows[model.ChangeRow](fixed)
	require.NoError(t, err)
	assert.Len(t, fixedRows, 5)
}

func TestEnhanceMissingInputLeavesNoOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "enhanced.csv")

	e, err := NewEnhancer(EnhanceConfig{}, nil)
	require.NoError(t, err)
	_, err = e.Enhance(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), out)
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
