package importer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const csvBufferSize = 1 << 20

// CSVReader streams a delimited text file one record at a time. Memory
// use is bounded by the bufio window regardless of file size.
type CSVReader struct {
	file    *os.File
	reader  *csv.Reader
	header  []string
	current int
}

// OpenCSV opens the file, strips a UTF-8 BOM if present, and reads the
// header row. The delimiter defaults to a comma.
func OpenCSV(path string) (*CSVReader, error) {
	return OpenCSVDelimited(path, ',')
}

func OpenCSVDelimited(path string, delimiter rune) (*CSVReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	buf := bufio.NewReaderSize(file, csvBufferSize)
	if bom, err := buf.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		buf.Discard(3)
	}

	cr := csv.NewReader(buf)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = false

	record, err := cr.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("csv file is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	header := make([]string, len(record))
	for i, cell := range record {
		header[i] = CanonicalColumn(cell)
	}

	return &CSVReader{file: file, reader: cr, header: header}, nil
}

func (r *CSVReader) Header() []string {
	return r.header
}

// Next returns the next non-blank data row. Ragged records and broken
// quoting surface as a row with FormatError set rather than aborting
// the stream.
func (r *CSVReader) Next() (*RawRow, error) {
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.current++
				return &RawRow{
					Number:      r.current,
					Fields:      map[string]string{},
					FormatError: fmt.Sprintf("malformed csv record: %v", parseErr.Err),
				}, nil
			}
			return nil, fmt.Errorf("read csv record: %w", err)
		}

		if blankRecord(record) {
			continue
		}

		r.current++
		row := &RawRow{Number: r.current, Fields: make(map[string]string, len(r.header))}

		if len(record) != len(r.header) {
			row.FormatError = fmt.Sprintf("expected %d columns, got %d", len(r.header), len(record))
		}
		for i, cell := range record {
			if i >= len(r.header) {
				break
			}
			row.Fields[r.header[i]] = strings.TrimSpace(cell)
		}
		return row, nil
	}
}

func (r *CSVReader) Seek(rowNum int) error {
	return discardTo(r.Next, r.current, rowNum)
}

func (r *CSVReader) Close() error {
	return r.file.Close()
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
