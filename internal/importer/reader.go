package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// RowReader yields a lazy, finite, non-restartable sequence of data
// rows. Next returns io.EOF when the file is exhausted. Neither format
// supports random access, so Seek reads and discards from the current
// position; it cannot move backwards.
type RowReader interface {
	Header() []string
	Next() (*RawRow, error)
	Seek(rowNum int) error
	Close() error
}

// HeaderError is the fail-fast result of header validation.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Open builds a reader for the file based on its extension and
// validates the header before any data row is read.
func Open(path string) (RowReader, error) {
	var (
		r   RowReader
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		r, err = OpenCSV(path)
	case ".xlsx", ".xls":
		r, err = OpenXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if missing := MissingColumns(r.Header()); len(missing) > 0 {
		r.Close()
		return nil, &HeaderError{Missing: missing}
	}
	return r, nil
}

// CountRows streams the whole file and returns the number of data
// rows, blank rows excluded. The reader is positioned at EOF after.
func CountRows(r RowReader) (int, error) {
	n := 0
	for {
		row, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		if row.FormatError == "" && row.Empty() {
			continue
		}
		n++
	}
}

// discardTo advances by calling next until the upcoming data row is
// rowNum. Shared by both reader implementations.
func discardTo(next func() (*RawRow, error), current, rowNum int) error {
	if rowNum <= current+1 {
		return nil
	}
	for current < rowNum-1 {
		row, err := next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		current = row.Number
	}
	return nil
}
