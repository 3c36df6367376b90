package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
	workbookCacheTTL    = 5 * time.Minute
)

var (
	// ErrWorkbookNotFound is returned when no spreadsheet matches a workbook name.
	ErrWorkbookNotFound = errors.New("workbook not found")
	ErrSheetNotFound    = errors.New("sheet not found")
)

var scopes = []string{
	sheets.SpreadsheetsScope,
	drive.DriveScope,
}

type Client struct {
	service   *sheets.Service
	drive     *drive.Service
	workbooks sync.Map
}

type cachedWorkbook struct {
	spreadsheetID string
	timestamp     time.Time
}

// NewClient authenticates with a service-account key given as raw JSON.
func NewClient(ctx context.Context, credentialsJSON []byte) (*Client, error) {
	common := []option.ClientOption{
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(scopes...),
	}
	return NewClientWithOptions(ctx, common, common)
}

// NewClientWithOptions builds the Sheets and Drive services from separate
// option sets, which lets tests point each at its own endpoint.
func NewClientWithOptions(ctx context.Context, sheetsOpts, driveOpts []option.ClientOption) (*Client, error) {
	service, err := sheets.NewService(ctx, sheetsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	driveService, err := drive.NewService(ctx, driveOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		service: service,
		drive:   driveService,
	}, nil
}

// ResolveWorkbook finds the spreadsheet ID for a workbook name. Lookups are
// cached for a few minutes; row data never is.
func (c *Client) ResolveWorkbook(ctx context.Context, name string) (string, error) {
	if cached, ok := c.workbooks.Load(name); ok {
		wb := cached.(cachedWorkbook)
		if time.Since(wb.timestamp) < workbookCacheTTL {
			return wb.spreadsheetID, nil
		}
	}

	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(name, "'", `\'`), spreadsheetMimeType)

	resp, err := c.drive.Files.List().
		Q(query).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up workbook: %w", err)
	}
	if len(resp.Files) == 0 {
		return "", fmt.Errorf("%w: %s", ErrWorkbookNotFound, name)
	}

	id := resp.Files[0].Id
	c.workbooks.Store(name, cachedWorkbook{spreadsheetID: id, timestamp: time.Now()})
	return id, nil
}

func (c *Client) ReadSheet(ctx context.Context, spreadsheetID, range_ string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, range_).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	return resp.Values, nil
}

// SheetID returns the numeric id of the tab titled title.
func (c *Client) SheetID(ctx context.Context, spreadsheetID, title string) (int64, error) {
	resp, err := c.service.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, s := range resp.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrSheetNotFound, title)
}

// FormatBackgrounds paints each row's first columns with its colour in a single batch call.
func (c *Client) FormatBackgrounds(ctx context.Context, spreadsheetID string, sheetID int64, colors map[int]Color) error {
	if len(colors) == 0 {
		return nil
	}

	requests := make([]*sheets.Request, 0, len(colors))
	for row, color := range colors {
		requests = append(requests, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    int64(row - 1),
					EndRowIndex:      int64(row),
					StartColumnIndex: 0,
					EndColumnIndex:   formatColumns,
					ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: &sheets.Color{
							Red:   color.Red,
							Green: color.Green,
							Blue:  color.Blue,
						},
					},
				},
				Fields: "userEnteredFormat.backgroundColor",
			},
		})
	}

	_, err := c.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to format rows: %w", err)
	}
	return nil
}

// UpdateRanges writes several ranges in one values batch call.
func (c *Client) UpdateRanges(ctx context.Context, spreadsheetID string, data []*sheets.ValueRange) error {
	_, err := c.service.Spreadsheets.Values.BatchUpdate(spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update ranges: %w", err)
	}
	return nil
}

// DeleteRow removes one physical (1-based) row, shifting later rows up.
func (c *Client) DeleteRow(ctx context.Context, spreadsheetID string, sheetID int64, rowIndex int) error {
	_, err := c.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(rowIndex - 1),
					EndIndex:        int64(rowIndex),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete row %d: %w", rowIndex, err)
	}
	return nil
}
