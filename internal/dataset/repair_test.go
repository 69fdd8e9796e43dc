package dataset

import (
	"context"
	"strings"
	"testing"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repairString(t *testing.T, input string) ([]model.ChangeRow, RepairStats, []ProblemLine) {
	t.Helper()

	p, err := NewRepairer(RepairConfig{})
	require.NoError(t, err)

	var rows []model.ChangeRow
	stats, problems, err := p.Repair(context.Background(), strings.NewReader(input), func(r model.ChangeRow) error {
		rows = append(rows, r)
		return nil
	})
	require.NoError(t, err)
	return rows, stats, problems
}

func TestRepairWellFormed(t *testing.T) {
	input := "PROJECT_ID,FILE,COMMIT_HASH,DATE,COMMITTER_ID,LINES_ADDED,LINES_REMOVED,NOTE\n" +
		"org.apache:maven,pom.xml,abc123,2023-01-15,john.doe,5,2,\"fix: update dependency\"\n"

	rows, stats, problems := repairString(t, input)

	require.Len(t, rows, 1)
	assert.True(t, stats.Header)
	assert.Equal(t, 2, stats.Lines)
	assert.Equal(t, 1, stats.Rows)
	assert.Empty(t, problems)
	assert.Equal(t, model.ChangeRow{
		ProjectID:    "org.apache:maven",
		File:         "pom.xml",
		CommitHash:   "abc123",
		Date:         "2023-01-15",
		CommitterID:  "john.doe",
		LinesAdded:   "5",
		LinesRemoved: "2",
		Note:         "fix: update dependency",
	}, rows[0])
	assert.Equal(t, 5, rows[0].Added())
	assert.Equal(t, 2, rows[0].Removed())
}

func TestRepairMergesOverflowIntoNote(t *testing.T) {
	input := "p,src/A.java,h1,2020-01-01,dev,1,0,fix bug,again,and more\n"

	rows, stats, problems := repairString(t, input)

	require.Len(t, rows, 1)
	assert.Equal(t, "fix bug, again, and more", rows[0].Note)
	assert.Equal(t, 1, stats.Merged)
	require.Len(t, problems, 1)
	assert.Equal(t, 1, problems[0].Number)
	assert.Equal(t, 10, problems[0].Fields)
}

func TestRepairPadsShortRows(t *testing.T) {
	input := "p,src/A.java,h1,2020-01-01,dev,3\n"

	rows, stats, _ := repairString(t, input)

	require.Len(t, rows, 1)
	assert.Equal(t, 1, stats.Padded)
	assert.Equal(t, "3", rows[0].LinesAdded)
	assert.Equal(t, "", rows[0].LinesRemoved)
	assert.Equal(t, "", rows[0].Note)
	assert.Equal(t, 0, rows[0].Removed())
}

func TestRepairSkipsRowsWithoutHash(t *testing.T) {
	input := "p,a.go,,2020-01-01,dev,1,1,note\n" +
		"\n" +
		"p,b.go,h2,2020-01-01,dev,1,1,note\r\n"

	rows, stats, _ := repairString(t, input)

	require.Len(t, rows, 1)
	assert.Equal(t, "h2", rows[0].CommitHash)
	assert.Equal(t, "note", rows[0].Note)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 3, stats.Lines)
}

func TestRepairStripsNulBytes(t *testing.T) {
	input := "p,a.go,h1,2020-01-01,dev,1,1,no\x00te\n"

	rows, _, _ := repairString(t, input)

	require.Len(t, rows, 1)
	assert.Equal(t, "note", rows[0].Note)
}

func TestRepairLimitsProblemSamples(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString("p,a.go,h1,2020-01-01\n")
	}

	p, err := NewRepairer(RepairConfig{ProblemSamples: 2})
	require.NoError(t, err)

	stats, problems, err := p.Repair(context.Background(), strings.NewReader(b.String()), func(model.ChangeRow) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Padded)
	assert.Len(t, problems, 2)
}

func TestRepairStopsOnCallbackError(t *testing.T) {
	p, err := NewRepairer(RepairConfig{})
	require.NoError(t, err)

	boom := assert.AnError
	_, _, err = p.Repair(context.Background(), strings.NewReader("p,a.go,h1,d,c,1,1,n\n"), func(model.ChangeRow) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRepairConfigRejectsNegative(t *testing.T) {
	_, err := NewRepairer(RepairConfig{ProblemSamples: -1})
	assert.Error(t, err)
}
