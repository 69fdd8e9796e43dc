package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
)

const defaultChunkSize = 10000

// AtomicFile is an output file that replaces its target only on Commit.
// Readers of the target never observe a half-written file.
type AtomicFile struct {
	*os.File
	path string
	done bool
}

// CreateAtomic creates a temporary file next to path
func CreateAtomic(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errm.Wrap(err, "failed to create output dir")
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, errm.Wrap(err, "failed to create temp file")
	}
	return &AtomicFile{File: f, path: path}, nil
}

// Commit syncs the temp file and renames it over the target
func (f *AtomicFile) Commit() error {
	if f.done {
		return nil
	}
	f.done = true
	if err := f.Sync(); err != nil {
		f.cleanup()
		return errm.Wrap(err, "failed to sync")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return errm.Wrap(err, "failed to close")
	}
	if err := os.Rename(f.Name(), f.path); err != nil {
		os.Remove(f.Name())
		return errm.Wrap(err, "failed to rename")
	}
	return nil
}

// Abort removes the temp file, it is a no-op after Commit
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.cleanup()
}

func (f *AtomicFile) cleanup() {
	f.Close()
	os.Remove(f.Name())
}

// RowWriter writes typed rows as CSV in chunks.
// The header is written with the first chunk, even when it is empty.
type RowWriter[T any] struct {
	w         *gocsv.SafeCSVWriter
	buf       []T
	chunk     int
	header    bool
	headerOut bool
	written   int
}

// NewRowWriter creates a RowWriter, withHeader=false is used when appending
func NewRowWriter[T any](w io.Writer, withHeader bool, chunk int) *RowWriter[T] {
	chunk = lang.Check(chunk, defaultChunkSize)
	return &RowWriter[T]{
		w:      gocsv.NewSafeCSVWriter(csv.NewWriter(w)),
		buf:    make([]T, 0, chunk),
		chunk:  chunk,
		header: withHeader,
	}
}

// Write buffers row and flushes a full chunk
func (rw *RowWriter[T]) Write(row T) error {
	rw.buf = append(rw.buf, row)
	if len(rw.buf) >= rw.chunk {
		return rw.Flush()
	}
	return nil
}

// Flush writes buffered rows
func (rw *RowWriter[T]) Flush() error {
	if len(rw.buf) == 0 && (!rw.header || rw.headerOut) {
		return nil
	}

	var err error
	if rw.header && !rw.headerOut {
		err = gocsv.MarshalCSV(rw.buf, rw.w)
		rw.headerOut = true
	} else {
		err = gocsv.MarshalCSVWithoutHeaders(rw.buf, rw.w)
	}
	if err != nil {
		return errm.Wrap(err, "failed to marshal rows")
	}

	rw.written += len(rw.buf)
	rw.buf = rw.buf[:0]
	return nil
}

// Written returns the number of rows already flushed
func (rw *RowWriter[T]) Written() int {
	return rw.written
}

// WriteRows writes rows with a header to path atomically
func WriteRows[T any](path string, rows []T) error {
	out, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	defer out.Abort()

	w := NewRowWriter[T](out, true, len(rows))
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return out.Commit()
}

// ReadRows reads every row of a CSV file with a header into T
func ReadRows[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errm.Wrap(err, "failed to open")
	}
	defer f.Close()

	var rows []T
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		if errm.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, errm.Wrap(err, "failed to unmarshal rows")
	}
	return rows, nil
}

// StreamRows calls fn for every row of a CSV file with a header without
// loading the whole file, an error from fn stops the stream
func StreamRows[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errm.Wrap(err, "failed to open")
	}
	defer f.Close()

	if err := gocsv.UnmarshalToCallbackWithError(f, fn); err != nil {
		if errm.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil
		}
		return err
	}
	return nil
}

// ReadHeader returns the header of a CSV file
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errm.Wrap(err, "failed to open")
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errm.Wrap(err, "failed to read header")
	}
	return header, nil
}
