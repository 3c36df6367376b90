package sku

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"aiotts_gateway/internal/metrics"
	"aiotts_gateway/internal/notifications"
	"aiotts_gateway/internal/sheets"

	"github.com/rs/zerolog/log"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	MsgInserted  = "Insert new SKU to sheet successfully"
	MsgMoved     = "Move designs to the last row successfully"
	MsgNoMatches = "No matched SKU ID to delete"
)

// ErrMissingKeyColumn means the sheet header has no SKU column.
var ErrMissingKeyColumn = fmt.Errorf("%w: no %q column", sheets.ErrMalformedData, KeyColumn)

// Result is the status envelope returned by insert and move.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	// Data lists the keys written, in row order.
	Data interface{} `json:"data,omitempty"`
	// Rows maps each written key to its physical sheet row.
	Rows map[string]int `json:"rows,omitempty"`
	// Deleted maps each moved key to the row it was removed from.
	Deleted map[string]int `json:"deleted_rows,omitempty"`
	// Skipped lists input keys that were not written: blank or repeated sku_ids.
	Skipped []string `json:"error_sku_data,omitempty"`
}

func failure(err error) *Result {
	return &Result{Status: StatusError, Message: err.Error()}
}

// Notifier receives alerts about writes that need manual reconciliation.
type Notifier interface {
	NotifyPartialWrite(ctx context.Context, alert notifications.PartialWrite)
}

// Service implements search, banded insert and move-to-last over a sheet
// whose first column holds the SKU key.
type Service struct {
	opener   sheets.Opener
	notifier Notifier
	locks    *keyedMutex
	now      func() time.Time
}

// NewService builds a Service. notifier may be nil.
func NewService(opener sheets.Opener, notifier Notifier) *Service {
	return &Service{
		opener:   opener,
		notifier: notifier,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Read returns every data row of a sheet.
func (s *Service) Read(ctx context.Context, workbook, sheet string) ([]sheets.Row, error) {
	store, err := s.opener.Open(ctx, workbook)
	if err != nil {
		return nil, err
	}
	table, err := store.Read(ctx, sheet)
	if err != nil {
		log.Error().Err(err).Str("workbook", workbook).Str("sheet", sheet).Msg("Error when reading data from sheet")
		return nil, err
	}
	rows := table.Rows
	if rows == nil {
		rows = []sheets.Row{}
	}
	return rows, nil
}

// SearchByKey returns one entry per distinct key: the first row holding that
// SKU, or nil when absent.
func (s *Service) SearchByKey(ctx context.Context, workbook, sheet string, keys []string) (map[string]sheets.Row, error) {
	store, err := s.opener.Open(ctx, workbook)
	if err != nil {
		return nil, err
	}
	table, err := store.Read(ctx, sheet)
	if err != nil {
		log.Error().Err(err).Str("workbook", workbook).Str("sheet", sheet).Msg("Error when searching sheet")
		return nil, err
	}
	if !hasColumn(table.Header, KeyColumn) {
		return nil, ErrMissingKeyColumn
	}

	index := make(map[string]sheets.Row, len(table.Rows))
	for _, row := range table.Rows {
		key := row[KeyColumn]
		if key == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = row
		}
	}

	result := make(map[string]sheets.Row)
	for _, key := range dedup(keys) {
		result[key] = index[key]
	}

	log.Debug().
		Str("sheet", sheet).
		Int("requested", len(result)).
		Int("indexed", len(index)).
		Msg("Searched sheet by SKU")
	return result, nil
}

// InsertBatch appends records after the last occupied row, in caller order,
// banded by variant. Blank and repeated sku_ids are skipped and reported.
func (s *Service) InsertBatch(ctx context.Context, workbook, sheet, sellerName string, records []Record) (*Result, error) {
	unlock := s.locks.Lock(sheetKey(workbook, sheet))
	defer unlock()

	store, err := s.opener.Open(ctx, workbook)
	if err != nil {
		return failure(err), err
	}
	result, err := s.insert(ctx, store, workbook, sheet, sellerName, records, "insert")
	if err != nil {
		return failure(err), err
	}
	return result, nil
}

func (s *Service) insert(ctx context.Context, store sheets.Store, workbook, sheet, sellerName string, records []Record, op string) (*Result, error) {
	accepted, skipped := uniqueRecords(records)
	if len(skipped) > 0 {
		log.Warn().Strs("sku_ids", skipped).Msg("Skipping blank or duplicate SKU IDs")
	}

	result := &Result{
		Status:  StatusSuccess,
		Message: MsgInserted,
		Data:    []string{},
		Skipped: skipped,
	}
	if len(accepted) == 0 {
		return result, nil
	}

	now := s.now()
	colors := assignBands(accepted)
	pending := make([]sheets.PendingRow, len(accepted))
	byKey := make(map[string]sheets.Color, len(accepted))
	for i := range accepted {
		accepted[i].SellerName = sellerName
		accepted[i].CreatedAt = Timestamp{Time: now}
		pending[i] = sheets.PendingRow{Key: accepted[i].SkuID, Cells: accepted[i].cells()}
		byKey[accepted[i].SkuID] = colors[i]
	}

	log.Info().
		Str("workbook", workbook).
		Str("sheet", sheet).
		Int("records", len(pending)).
		Msg("Inserting new SKUs")

	placed, err := store.Append(ctx, sheet, pending, byKey)
	if err != nil {
		log.Error().Err(err).Str("sheet", sheet).Msg("Error when inserting new SKU to sheet")
		if errors.Is(err, sheets.ErrPartialFailure) {
			alert := notifications.PartialWrite{
				Operation: op,
				Workbook:  workbook,
				Sheet:     sheet,
				Err:       err,
			}
			if placed != nil {
				alert.Keys = placed.Keys
				alert.Rows = placed.Rows
			}
			s.partialWrite(ctx, alert)
		}
		return nil, err
	}

	result.Data = placed.Keys
	result.Rows = placed.Rows
	return result, nil
}

type match struct {
	key  string
	row  int
	data sheets.Row
}

// MoveToLast deletes the first row of each distinct key, highest row first,
// then reinserts the removed designs at the bottom of the sheet. The seller
// comes from the User column of the first row deleted.
func (s *Service) MoveToLast(ctx context.Context, workbook, sheet string, keys []string) (*Result, error) {
	unlock := s.locks.Lock(sheetKey(workbook, sheet))
	defer unlock()

	store, err := s.opener.Open(ctx, workbook)
	if err != nil {
		return failure(err), err
	}
	table, err := store.Read(ctx, sheet)
	if err != nil {
		log.Error().Err(err).Str("sheet", sheet).Msg("Error when reading rows to move")
		return failure(err), err
	}
	if !hasColumn(table.Header, KeyColumn) {
		return failure(ErrMissingKeyColumn), ErrMissingKeyColumn
	}

	var matches []match
	for _, key := range dedup(keys) {
		if key == "" {
			continue
		}
		for i, row := range table.Rows {
			if row[KeyColumn] == key {
				matches = append(matches, match{key: key, row: table.RowIndex(i), data: row})
				break
			}
		}
	}
	if len(matches) == 0 {
		log.Info().Strs("sku_ids", keys).Msg("No matched SKU ID to delete")
		return &Result{Status: StatusSuccess, Message: MsgNoMatches}, nil
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].row > matches[j].row })

	deleted := make(map[string]int, len(matches))
	for _, m := range matches {
		if err := store.DeleteRow(ctx, sheet, m.row); err != nil {
			log.Error().Err(err).Str("sheet", sheet).Int("row", m.row).Msg("Error when deleting row")
			if len(deleted) > 0 {
				err = fmt.Errorf("%w: deleted %d of %d rows: %w", sheets.ErrPartialFailure, len(deleted), len(matches), err)
				s.partialWrite(ctx, notifications.PartialWrite{
					Operation: "move",
					Workbook:  workbook,
					Sheet:     sheet,
					Keys:      keysOf(matches[:len(deleted)]),
					Rows:      deleted,
					Err:       err,
				})
			}
			return failure(err), err
		}
		deleted[m.key] = m.row
		log.Debug().Str("sku_id", m.key).Int("row", m.row).Msg("Deleted row")
	}

	records := make([]Record, len(matches))
	for i, m := range matches {
		records[i] = recordFromRow(m.key, m.data)
	}
	sellerName := matches[0].data[UserColumn]

	result, err := s.insert(ctx, store, workbook, sheet, sellerName, records, "move")
	if err != nil {
		if !errors.Is(err, sheets.ErrPartialFailure) {
			err = fmt.Errorf("%w: rows deleted but not reinserted: %w", sheets.ErrPartialFailure, err)
			s.partialWrite(ctx, notifications.PartialWrite{
				Operation: "move",
				Workbook:  workbook,
				Sheet:     sheet,
				Keys:      keysOf(matches),
				Rows:      deleted,
				Err:       err,
			})
		}
		return failure(err), err
	}

	result.Message = MsgMoved
	result.Deleted = deleted
	log.Info().
		Str("sheet", sheet).
		Int("moved", len(deleted)).
		Msg("Moved designs to the last row")
	return result, nil
}

func (s *Service) partialWrite(ctx context.Context, alert notifications.PartialWrite) {
	metrics.IncPartialFailure()
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyPartialWrite(context.WithoutCancel(ctx), alert)
}

// uniqueRecords keeps the first record for each non-blank sku_id.
func uniqueRecords(records []Record) (accepted []Record, skipped []string) {
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.SkuID == "" || seen[rec.SkuID] {
			skipped = append(skipped, rec.SkuID)
			continue
		}
		seen[rec.SkuID] = true
		accepted = append(accepted, rec)
	}
	return accepted, skipped
}

func dedup(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func keysOf(matches []match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.key
	}
	return out
}

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}
