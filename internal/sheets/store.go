package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRemoteUnavailable covers connectivity, auth and timeout failures
	// against the spreadsheet backend, including unknown workbooks or sheets.
	ErrRemoteUnavailable = errors.New("spreadsheet backend unavailable")
	// ErrMalformedData means the backend returned a shape we cannot map to rows.
	ErrMalformedData = errors.New("malformed sheet data")
	// ErrPartialFailure means some writes landed and others did not. Nothing is rolled back.
	ErrPartialFailure = errors.New("partial write")
)

// Color is an RGB background colour with components in [0, 1].
type Color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
}

var (
	LightGreen = Color{Red: 0.8, Green: 1, Blue: 0.8}
	LightBlue  = Color{Red: 0.8, Green: 0.9, Blue: 1}
)

// Row maps a header column name to the cell text of one data row.
type Row map[string]string

// Table is a sheet read back as a header plus named data rows.
type Table struct {
	Header []string
	Rows   []Row
	// FirstRow is the physical (1-based) sheet row holding Rows[0].
	FirstRow int
}

// RowIndex returns the physical sheet row of the i-th data row.
func (t *Table) RowIndex(i int) int {
	return t.FirstRow + i
}

// PendingRow is one row to append, identified by its business key.
type PendingRow struct {
	Key   string
	Cells []interface{}
}

// AppendResult reports where each appended key landed.
type AppendResult struct {
	FirstRow int
	Rows     map[string]int
	Keys     []string
}

// Store is a handle on a single workbook.
type Store interface {
	Read(ctx context.Context, sheet string) (*Table, error)
	Append(ctx context.Context, sheet string, rows []PendingRow, colors map[string]Color) (*AppendResult, error)
	DeleteRow(ctx context.Context, sheet string, rowIndex int) error
}

// Opener hands out a Store scoped to one workbook, addressed by name.
type Opener interface {
	Open(ctx context.Context, workbook string) (Store, error)
}

// Options holds the access-pattern constants of the remote sheet layout.
type Options struct {
	// ScanRows bounds the range scanned to find the last occupied row.
	ScanRows int
	// DataRowOffset is the physical row of the first data row: header on
	// row 1, a banner on row 2, data from row 3.
	DataRowOffset int
}

const (
	DefaultScanRows      = 200000
	DefaultDataRowOffset = 3

	scanLastColumn   = "J"
	formatLastColumn = "H"
	valueLastColumn  = "L"
	formatColumns    = 8
)

func DefaultOptions() Options {
	return Options{
		ScanRows:      DefaultScanRows,
		DataRowOffset: DefaultDataRowOffset,
	}
}

func (o Options) normalized() Options {
	if o.ScanRows <= 0 {
		o.ScanRows = DefaultScanRows
	}
	if o.DataRowOffset < 2 {
		o.DataRowOffset = DefaultDataRowOffset
	}
	return o
}

// buildTable maps raw cell values to a Table. values[0] is the header;
// data starts at the physical row given by dataRowOffset.
func buildTable(values [][]interface{}, dataRowOffset int) (*Table, error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrMalformedData)
	}

	header := make([]string, len(values[0]))
	for i := range values[0] {
		header[i] = extractStringField(values[0], i)
	}

	table := &Table{Header: header, FirstRow: dataRowOffset}
	start := dataRowOffset - 1
	if start >= len(values) {
		return table, nil
	}

	for i, raw := range values[start:] {
		if len(raw) > len(header) {
			return nil, fmt.Errorf("%w: row %d has %d cells but header has %d columns",
				ErrMalformedData, dataRowOffset+i, len(raw), len(header))
		}
		row := make(Row, len(header))
		for col, name := range header {
			row[name] = extractStringField(raw, col)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// extractStringField safely extracts a string field from a row at the given index
func extractStringField(row []interface{}, index int) string {
	if len(row) > index && row[index] != nil {
		return fmt.Sprintf("%v", row[index])
	}
	return ""
}

// quoteSheet renders a sheet title for use in an A1 range.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func rowRange(sheet string, row int, lastColumn string) string {
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), row, lastColumn, row)
}
