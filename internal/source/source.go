// Package source reads incident exports into header-keyed rows.
package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one data row keyed by the raw header text. Line is the 1-based
// line (CSV) or row number (XLSX) in the source file.
type Row struct {
	Line   int
	Values map[string]string
}

func ReadFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(bytes.NewReader(data))
	case ".xlsx", ".xlsm":
		return ReadXLSX(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported incident file %s: want .csv or .xlsx", path)
	}
}

func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if row, ok := toRow(line, header, record); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in Excel file")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get Excel rows: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("Excel file is empty")
	}

	header := records[0]
	var rows []Row
	for i, record := range records[1:] {
		if row, ok := toRow(i+2, header, record); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// toRow pairs values with header names. Blank rows are dropped; short rows
// leave the trailing columns empty.
func toRow(line int, header, record []string) (Row, bool) {
	values := make(map[string]string, len(header))
	blank := true
	for i, name := range header {
		if _, dup := values[name]; dup {
			continue
		}
		v := ""
		if i < len(record) {
			v = record[i]
		}
		if strings.TrimSpace(v) != "" {
			blank = false
		}
		values[name] = v
	}
	if blank {
		return Row{}, false
	}
	return Row{Line: line, Values: values}, true
}
