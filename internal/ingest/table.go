package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// table is a header-indexed set of rows.
type table struct {
	index map[string]int
	rows  [][]string
}

func newTable(records [][]string) (*table, error) {
	if len(records) == 0 {
		return nil, eris.New("ingest: file has no header row")
	}
	t := &table{index: make(map[string]int, len(records[0]))}
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := t.index[key]; !dup && key != "" {
			t.index[key] = i
		}
	}
	for _, r := range records[1:] {
		if blank(r) {
			continue
		}
		t.rows = append(t.rows, r)
	}
	return t, nil
}

// get returns the first aliased column present in the header.
func (t *table) get(row []string, aliases []string) string {
	for _, a := range aliases {
		if i, ok := t.index[a]; ok {
			if i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
	}
	return ""
}

func readTable(path string, format Format) (*table, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSVFile(path)
	case FormatXLSX:
		records, err = ReadXLSX(path, XLSXOptions{})
	default:
		err = eris.Errorf("ingest: %s is not tabular", format)
	}
	if err != nil {
		return nil, err
	}
	return newTable(records)
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f)
}

// ReadCSV reads every record. Rows may have a variable number of fields and
// lines starting with '#' are comments.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.LazyQuotes = true

	var out [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		out = append(out, record)
	}
}

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads one sheet of an XLSX file as string rows.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
