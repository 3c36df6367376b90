package sheets

import (
	"errors"
	"testing"
)

func TestBuildTable(t *testing.T) {
	values := [][]interface{}{
		{"SKU", "Product Name", "User"},
		{"banner"},
		{"SKU-1", "Tee", "alice"},
		{"SKU-2", "Hoodie"},
	}

	table, err := buildTable(values, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0]["SKU"] != "SKU-1" {
		t.Errorf("Expected SKU-1, got %q", table.Rows[0]["SKU"])
	}
	if table.Rows[1]["User"] != "" {
		t.Errorf("Expected missing cell to read as empty, got %q", table.Rows[1]["User"])
	}
	if table.RowIndex(1) != 4 {
		t.Errorf("Expected physical row 4, got %d", table.RowIndex(1))
	}
}

func TestBuildTableHeaderOnly(t *testing.T) {
	table, err := buildTable([][]interface{}{{"SKU"}}, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(table.Rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(table.Rows))
	}
}

func TestBuildTableMalformed(t *testing.T) {
	tests := []struct {
		name   string
		values [][]interface{}
	}{
		{"empty", nil},
		{"empty header", [][]interface{}{{}}},
		{"row wider than header", [][]interface{}{{"SKU"}, {}, {"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTable(tt.values, 3)
			if !errors.Is(err, ErrMalformedData) {
				t.Errorf("Expected ErrMalformedData, got %v", err)
			}
		})
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Designs"); got != "'Designs'" {
		t.Errorf("Expected 'Designs', got %s", got)
	}
	if got := quoteSheet("Bob's"); got != "'Bob''s'" {
		t.Errorf("Expected 'Bob''s', got %s", got)
	}
	if got := rowRange("Designs", 7, valueLastColumn); got != "'Designs'!A7:L7" {
		t.Errorf("Expected 'Designs'!A7:L7, got %s", got)
	}
}

func TestOptionsNormalized(t *testing.T) {
	opts := Options{}.normalized()
	if opts.ScanRows != DefaultScanRows {
		t.Errorf("Expected scan rows %d, got %d", DefaultScanRows, opts.ScanRows)
	}
	if opts.DataRowOffset != DefaultDataRowOffset {
		t.Errorf("Expected offset %d, got %d", DefaultDataRowOffset, opts.DataRowOffset)
	}

	opts = Options{ScanRows: 10, DataRowOffset: 2}.normalized()
	if opts.ScanRows != 10 || opts.DataRowOffset != 2 {
		t.Errorf("Expected explicit options to survive, got %+v", opts)
	}
}
