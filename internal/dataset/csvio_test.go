package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowWriterEmptyWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewRowWriter[model.DatasetRow](&buf, true, 10)
	require.NoError(t, w.Flush())

	assert.Equal(t, "commit_hash,lines_added,lines_deleted,files_changed,has_fix_keyword,changed_tests,pipeline_failed\n", buf.String())
	assert.Equal(t, 0, w.Written())
}

func TestRowWriterChunksWithoutRepeatingHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewRowWriter[model.DatasetRow](&buf, true, 2)
	for _, h := range []string{"a", "b", "c"} {
		require.NoError(t, w.Write(model.DatasetRow{CommitHash: h, PipelineFailed: 1}))
	}
	require.NoError(t, w.Flush())

	assert.Equal(t, "commit_hash,lines_added,lines_deleted,files_changed,has_fix_keyword,changed_tests,pipeline_failed\n"+
		"a,0,0,0,0,0,1\n"+
		"b,0,0,0,0,0,1\n"+
		"c,0,0,0,0,0,1\n", buf.String())
	assert.Equal(t, 3, w.Written())
}

func TestRowWriterAppendMode(t *testing.T) {
	var buf bytes.Buffer
	w := NewRowWriter[model.DatasetRow](&buf, false, 10)
	require.NoError(t, w.Flush())
	assert.Empty(t, buf.String())

	require.NoError(t, w.Write(model.DatasetRow{CommitHash: "a"}))
	require.NoError(t, w.Flush())
	assert.Equal(t, "a,0,0,0,0,0,0\n", buf.String())
}

func TestAtomicFileAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	f, err := CreateAtomic(path)
	require.NoError(t, err)
	_, err = f.WriteString("new")
	require.NoError(t, err)
	f.Abort()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicFileCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	f, err := CreateAtomic(path)
	require.NoError(t, err)
	_, err = f.WriteString("new")
	require.NoError(t, err)
	require.NoError(t, f.Commit())
	f.Abort()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestReadRowsReadsBooleanFlags(t *testing.T) {
	path := writeFile(t, "ds.csv", "commit_hash,lines_added,lines_deleted,files_changed,has_fix_keyword,changed_tests,pipeline_failed\n"+
		"a,1,2,3,True,False,1\n")

	rows, err := ReadRows[model.DatasetRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.Flag(1), rows[0].HasFixKeyword)
	assert.Equal(t, model.Flag(0), rows[0].ChangedTests)
	assert.Equal(t, 3, rows[0].FilesChanged)
}

func TestReadRowsEmptyFile(t *testing.T) {
	rows, err := ReadRows[model.DatasetRow](writeFile(t, "empty.csv", ""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamRows(t *testing.T) {
	path := writeFile(t, "ds.csv", "commit_hash,lines_added,lines_deleted,files_changed,has_fix_keyword,changed_tests,pipeline_failed\n"+
		"a,1,2,3,1,0,1\n"+
		"b,4,5,6,0,1,0\n")

	var hashes []string
	err := StreamRows(path, func(r model.DatasetRow) error {
		hashes = append(hashes, r.CommitHash)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hashes)

	err = StreamRows(path, func(model.DatasetRow) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}
