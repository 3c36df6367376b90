package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aiotts_gateway/internal/config"
	"aiotts_gateway/internal/metrics"
	"aiotts_gateway/internal/retry"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/sheets/v4"
)

// GoogleOpener opens GoogleStores on a shared Client.
type GoogleOpener struct {
	client     *Client
	opts       Options
	resilience config.ResilienceConfig
}

func NewGoogleOpener(client *Client, opts Options, resilience config.ResilienceConfig) *GoogleOpener {
	return &GoogleOpener{
		client:     client,
		opts:       opts.normalized(),
		resilience: resilience,
	}
}

func (o *GoogleOpener) Open(ctx context.Context, workbook string) (Store, error) {
	start := time.Now()
	id, err := retry.WithRetry(ctx, o.resilience.WorkbookResolve, func(ctx context.Context) (string, error) {
		id, err := o.client.ResolveWorkbook(ctx, workbook)
		if errors.Is(err, ErrWorkbookNotFound) {
			return "", retry.Permanent(err)
		}
		return id, err
	})
	metrics.ObserveSheetOp("open", start, err)
	if err != nil {
		log.Error().Err(err).Str("workbook", workbook).Msg("Failed to open workbook")
		return nil, fmt.Errorf("%w: open workbook %q: %w", ErrRemoteUnavailable, workbook, err)
	}

	log.Debug().Str("workbook", workbook).Str("spreadsheet_id", id).Msg("Opened workbook")
	return &GoogleStore{
		client:        o.client,
		workbook:      workbook,
		spreadsheetID: id,
		opts:          o.opts,
		resilience:    o.resilience,
	}, nil
}

// GoogleStore is a Store backed by one Google Sheets spreadsheet.
type GoogleStore struct {
	client        *Client
	workbook      string
	spreadsheetID string
	opts          Options
	resilience    config.ResilienceConfig
	sheetIDs      map[string]int64
}

func (s *GoogleStore) Read(ctx context.Context, sheet string) (*Table, error) {
	log.Info().Str("workbook", s.workbook).Str("sheet", sheet).Msg("Reading data from sheet")
	start := time.Now()

	values, err := s.readValues(ctx, quoteSheet(sheet))
	if err != nil {
		metrics.ObserveSheetOp("read", start, err)
		return nil, err
	}

	table, err := buildTable(values, s.opts.DataRowOffset)
	metrics.ObserveSheetOp("read", start, err)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("sheet", sheet).
		Int("rows", len(table.Rows)).
		Int("columns", len(table.Header)).
		Msg("Retrieved sheet data")
	return table, nil
}

func (s *GoogleStore) readValues(ctx context.Context, range_ string) ([][]interface{}, error) {
	values, err := retry.WithRetry(ctx, s.resilience.SheetRead, func(ctx context.Context) ([][]interface{}, error) {
		return s.client.ReadSheet(ctx, s.spreadsheetID, range_)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrRemoteUnavailable, range_, err)
	}
	return values, nil
}

func (s *GoogleStore) sheetID(ctx context.Context, sheet string) (int64, error) {
	if id, ok := s.sheetIDs[sheet]; ok {
		return id, nil
	}

	id, err := retry.WithRetry(ctx, s.resilience.SheetRead, func(ctx context.Context) (int64, error) {
		id, err := s.client.SheetID(ctx, s.spreadsheetID, sheet)
		if errors.Is(err, ErrSheetNotFound) {
			return 0, retry.Permanent(err)
		}
		return id, err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: resolve sheet %q: %w", ErrRemoteUnavailable, sheet, err)
	}

	if s.sheetIDs == nil {
		s.sheetIDs = make(map[string]int64)
	}
	s.sheetIDs[sheet] = id
	return id, nil
}

// Append snapshots the occupied row count, then writes formats and values in
// two separate calls. A failed value pass leaves the formatted rows behind and
// returns the attempted placement together with ErrPartialFailure.
func (s *GoogleStore) Append(ctx context.Context, sheet string, rows []PendingRow, colors map[string]Color) (*AppendResult, error) {
	result := &AppendResult{Rows: make(map[string]int, len(rows))}
	if len(rows) == 0 {
		return result, nil
	}
	start := time.Now()

	sheetID, err := s.sheetID(ctx, sheet)
	if err != nil {
		metrics.ObserveSheetOp("append", start, err)
		return nil, err
	}

	scanRange := fmt.Sprintf("%s!A1:%s%d", quoteSheet(sheet), scanLastColumn, s.opts.ScanRows)
	occupied, err := s.readValues(ctx, scanRange)
	if err != nil {
		metrics.ObserveSheetOp("append", start, err)
		return nil, err
	}
	result.FirstRow = len(occupied) + 1

	rowColors := make(map[int]Color, len(rows))
	data := make([]*sheets.ValueRange, 0, len(rows))
	for i, row := range rows {
		target := result.FirstRow + i
		result.Rows[row.Key] = target
		result.Keys = append(result.Keys, row.Key)
		if color, ok := colors[row.Key]; ok {
			rowColors[target] = color
		}
		data = append(data, &sheets.ValueRange{
			Range:  rowRange(sheet, target, valueLastColumn),
			Values: [][]interface{}{row.Cells},
		})
	}

	log.Debug().
		Str("sheet", sheet).
		Int("first_row", result.FirstRow).
		Int("rows", len(rows)).
		Msg("Appending rows")

	_, err = retry.Once(ctx, s.resilience.SheetWrite, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.client.FormatBackgrounds(ctx, s.spreadsheetID, sheetID, rowColors)
	})
	if err != nil {
		err = fmt.Errorf("%w: format pass: %w", ErrRemoteUnavailable, err)
		metrics.ObserveSheetOp("append", start, err)
		return nil, err
	}

	_, err = retry.Once(ctx, s.resilience.SheetWrite, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.client.UpdateRanges(ctx, s.spreadsheetID, data)
	})
	if err != nil {
		err = fmt.Errorf("%w: value pass after formatting rows %d-%d: %w",
			ErrPartialFailure, result.FirstRow, result.FirstRow+len(rows)-1, err)
		metrics.ObserveSheetOp("append", start, err)
		return result, err
	}

	metrics.ObserveSheetOp("append", start, nil)
	return result, nil
}

func (s *GoogleStore) DeleteRow(ctx context.Context, sheet string, rowIndex int) error {
	start := time.Now()

	sheetID, err := s.sheetID(ctx, sheet)
	if err != nil {
		metrics.ObserveSheetOp("delete", start, err)
		return err
	}

	_, err = retry.Once(ctx, s.resilience.SheetWrite, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.client.DeleteRow(ctx, s.spreadsheetID, sheetID, rowIndex)
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	metrics.ObserveSheetOp("delete", start, err)
	if err != nil {
		return err
	}

	log.Debug().Str("sheet", sheet).Int("row", rowIndex).Msg("Deleted row")
	return nil
}
