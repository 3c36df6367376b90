package sheets

import (
	"context"
	"fmt"
	"sync"
)

// Fault names a MemoryStore operation that can be made to fail.
type Fault string

const (
	FaultRead   Fault = "read"
	FaultFormat Fault = "format"
	FaultValues Fault = "values"
	FaultDelete Fault = "delete"
)

// MemoryBackend keeps workbooks in process. It backs local development
// (SHEETS_BACKEND=memory) and tests, and follows the same row arithmetic as
// the Google backend: blind append after the occupied rows, physical 1-based
// indices, rows shifting up on delete.
type MemoryBackend struct {
	mu        sync.Mutex
	opts      Options
	workbooks map[string]*MemoryStore
}

func NewMemoryBackend(opts Options) *MemoryBackend {
	return &MemoryBackend{
		opts:      opts.normalized(),
		workbooks: make(map[string]*MemoryStore),
	}
}

// Open returns the workbook, creating it empty on first use.
func (b *MemoryBackend) Open(_ context.Context, workbook string) (Store, error) {
	return b.Workbook(workbook), nil
}

// Workbook returns the concrete store so tests can seed and inspect it.
func (b *MemoryBackend) Workbook(name string) *MemoryStore {
	b.mu.Lock()
	defer b.mu.Unlock()

	wb, ok := b.workbooks[name]
	if !ok {
		wb = &MemoryStore{
			opts:   b.opts,
			sheets: make(map[string]*memorySheet),
			faults: make(map[Fault]error),
		}
		b.workbooks[name] = wb
	}
	return wb
}

type memorySheet struct {
	values      [][]interface{}
	backgrounds map[int]Color
	deletes     []int
}

// MemoryStore is one in-process workbook.
type MemoryStore struct {
	mu     sync.Mutex
	opts   Options
	sheets map[string]*memorySheet
	faults map[Fault]error
}

// Seed replaces the content of a sheet. values[0] is physical row 1.
func (m *MemoryStore) Seed(sheet string, values [][]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([][]interface{}, len(values))
	for i, row := range values {
		copied[i] = append([]interface{}(nil), row...)
	}
	m.sheets[sheet] = &memorySheet{values: copied, backgrounds: make(map[int]Color)}
}

// InjectFault makes the named operation fail with err until cleared with a nil err.
func (m *MemoryStore) InjectFault(op Fault, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// Values returns a copy of the raw cells of a sheet.
func (m *MemoryStore) Values(sheet string) [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sheets[sheet]
	if !ok {
		return nil
	}
	out := make([][]interface{}, len(s.values))
	for i, row := range s.values {
		out[i] = append([]interface{}(nil), row...)
	}
	return out
}

// Background returns the colour painted on a physical row, if any.
func (m *MemoryStore) Background(sheet string, row int) (Color, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sheets[sheet]
	if !ok {
		return Color{}, false
	}
	c, ok := s.backgrounds[row]
	return c, ok
}

// DeletedRows lists the row indices passed to DeleteRow, in call order.
func (m *MemoryStore) DeletedRows(sheet string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sheets[sheet]
	if !ok {
		return nil
	}
	return append([]int(nil), s.deletes...)
}

func (m *MemoryStore) sheet(name string) (*memorySheet, error) {
	s, ok := m.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: sheet %q not found", ErrRemoteUnavailable, name)
	}
	return s, nil
}

func (m *MemoryStore) fault(op Fault) error {
	if err, ok := m.faults[op]; ok {
		return fmt.Errorf("%w: %s: %w", ErrRemoteUnavailable, op, err)
	}
	return nil
}

func (m *MemoryStore) Read(_ context.Context, sheet string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault(FaultRead); err != nil {
		return nil, err
	}
	s, err := m.sheet(sheet)
	if err != nil {
		return nil, err
	}
	return buildTable(s.values, m.opts.DataRowOffset)
}

func (m *MemoryStore) Append(_ context.Context, sheet string, rows []PendingRow, colors map[string]Color) (*AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &AppendResult{Rows: make(map[string]int, len(rows))}
	if len(rows) == 0 {
		return result, nil
	}

	s, err := m.sheet(sheet)
	if err != nil {
		return nil, err
	}

	occupied := len(s.values)
	if occupied > m.opts.ScanRows {
		occupied = m.opts.ScanRows
	}
	result.FirstRow = occupied + 1

	for i, row := range rows {
		result.Rows[row.Key] = result.FirstRow + i
		result.Keys = append(result.Keys, row.Key)
	}

	if err := m.fault(FaultFormat); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if color, ok := colors[row.Key]; ok {
			s.backgrounds[result.Rows[row.Key]] = color
		}
	}

	if err := m.fault(FaultValues); err != nil {
		return result, fmt.Errorf("%w: value pass: %w", ErrPartialFailure, err)
	}
	for i, row := range rows {
		target := result.FirstRow + i
		for len(s.values) < target {
			s.values = append(s.values, nil)
		}
		s.values[target-1] = append([]interface{}(nil), row.Cells...)
	}
	return result, nil
}

func (m *MemoryStore) DeleteRow(_ context.Context, sheet string, rowIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault(FaultDelete); err != nil {
		return err
	}
	s, err := m.sheet(sheet)
	if err != nil {
		return err
	}
	if rowIndex < 1 {
		return fmt.Errorf("invalid row index %d", rowIndex)
	}
	s.deletes = append(s.deletes, rowIndex)

	if rowIndex <= len(s.values) {
		s.values = append(s.values[:rowIndex-1], s.values[rowIndex:]...)
	}

	shifted := make(map[int]Color, len(s.backgrounds))
	for row, c := range s.backgrounds {
		switch {
		case row < rowIndex:
			shifted[row] = c
		case row > rowIndex:
			shifted[row-1] = c
		}
	}
	s.backgrounds = shifted
	return nil
}
