package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXReader streams the first sheet of a workbook row by row using
// the excelize iterator, so large files never load fully into memory.
type XLSXReader struct {
	file    *excelize.File
	rows    *excelize.Rows
	header  []string
	current int
}

func OpenXLSX(path string) (*XLSXReader, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		file.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheets[0], err)
	}

	if !rows.Next() {
		rows.Close()
		file.Close()
		return nil, fmt.Errorf("workbook is empty")
	}
	cells, err := rows.Columns()
	if err != nil {
		rows.Close()
		file.Close()
		return nil, fmt.Errorf("read workbook header: %w", err)
	}

	header := make([]string, len(cells))
	for i, cell := range cells {
		header[i] = CanonicalColumn(cell)
	}

	return &XLSXReader{file: file, rows: rows, header: header}, nil
}

func (r *XLSXReader) Header() []string {
	return r.header
}

// Next returns the next non-blank data row. Sheet dimensions routinely
// overcount trailing empty rows, so blanks are skipped instead of
// yielded.
func (r *XLSXReader) Next() (*RawRow, error) {
	for r.rows.Next() {
		cells, err := r.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read workbook row: %w", err)
		}
		if blankRecord(cells) {
			continue
		}

		r.current++
		row := &RawRow{Number: r.current, Fields: make(map[string]string, len(r.header))}
		for i, cell := range cells {
			if i >= len(r.header) {
				break
			}
			row.Fields[r.header[i]] = strings.TrimSpace(cell)
		}
		return row, nil
	}
	if err := r.rows.Error(); err != nil {
		return nil, fmt.Errorf("iterate workbook rows: %w", err)
	}
	return nil, io.EOF
}

func (r *XLSXReader) Seek(rowNum int) error {
	return discardTo(r.Next, r.current, rowNum)
}

func (r *XLSXReader) Close() error {
	r.rows.Close()
	return r.file.Close()
}
