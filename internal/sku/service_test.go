package sku

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aiotts_gateway/internal/notifications"
	"aiotts_gateway/internal/sheets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var header = []interface{}{
	KeyColumn, ProductNameColumn, VariationColumn,
	Image1FrontColumn, Image2BackColumn, MockupFrontColumn, MockupBackColumn,
	MockupOnosColumn, ImageFrontBeefunColumn, ImageBackBeefunColumn,
	"Created at", UserColumn,
}

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notifications.PartialWrite
}

func (n *recordingNotifier) NotifyPartialWrite(_ context.Context, alert notifications.PartialWrite) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

// newTestService seeds sheet "Designs" with data rows on physical rows
// 3..lastRow, keyed SKU-<row> and sold by seller-<row>.
func newTestService(t *testing.T, lastRow int) (*Service, *sheets.MemoryStore, *recordingNotifier) {
	t.Helper()
	backend := sheets.NewMemoryBackend(sheets.DefaultOptions())
	store := backend.Workbook("Orders")

	values := [][]interface{}{header, {"Designs banner"}}
	for row := 3; row <= lastRow; row++ {
		values = append(values, []interface{}{
			fmt.Sprintf("SKU-%02d", row),
			fmt.Sprintf("Product %d", row),
			fmt.Sprintf("VAR-%d", row),
			fmt.Sprintf("https://img/%d/front.png", row),
			"", "", "", "", "", "",
			"2025-01-01 00:00:00",
			fmt.Sprintf("seller-%d", row),
		})
	}
	store.Seed("Designs", values)

	notifier := &recordingNotifier{}
	svc := NewService(backend, notifier)
	svc.now = func() time.Time { return fixedNow }
	return svc, store, notifier
}

func TestSearchByKeyOneEntryPerDistinctKey(t *testing.T) {
	svc, _, _ := newTestService(t, 6)

	got, err := svc.SearchByKey(context.Background(), "Orders", "Designs",
		[]string{"SKU-03", "SKU-05", "SKU-03", "missing"})
	require.NoError(t, err)

	assert.Len(t, got, 3)
	assert.Equal(t, "Product 3", got["SKU-03"][ProductNameColumn])
	assert.Equal(t, "Product 5", got["SKU-05"][ProductNameColumn])
	v, ok := got["missing"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestSearchByKeyFirstOccurrenceWins(t *testing.T) {
	svc, store, _ := newTestService(t, 3)
	values := store.Values("Designs")
	dup := append([]interface{}(nil), values[2]...)
	dup[1] = "Later copy"
	store.Seed("Designs", append(values, dup))

	got, err := svc.SearchByKey(context.Background(), "Orders", "Designs", []string{"SKU-03"})
	require.NoError(t, err)
	assert.Equal(t, "Product 3", got["SKU-03"][ProductNameColumn])
}

func TestSearchByKeyMissingKeyColumn(t *testing.T) {
	svc, store, _ := newTestService(t, 3)
	store.Seed("Designs", [][]interface{}{{"Name"}, {}, {"x"}})

	_, err := svc.SearchByKey(context.Background(), "Orders", "Designs", []string{"x"})
	assert.ErrorIs(t, err, sheets.ErrMalformedData)
}

func TestSearchByKeyRemoteFailure(t *testing.T) {
	svc, store, _ := newTestService(t, 3)
	store.InjectFault(sheets.FaultRead, errors.New("offline"))

	_, err := svc.SearchByKey(context.Background(), "Orders", "Designs", []string{"SKU-03"})
	assert.ErrorIs(t, err, sheets.ErrRemoteUnavailable)
}

func TestReadReturnsDataRows(t *testing.T) {
	svc, _, _ := newTestService(t, 5)

	rows, err := svc.Read(context.Background(), "Orders", "Designs")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "SKU-03", rows[0][KeyColumn])
	assert.Equal(t, "seller-5", rows[2][UserColumn])
}

func TestInsertBatchEmpty(t *testing.T) {
	svc, store, _ := newTestService(t, 4)
	before := store.Values("Designs")

	res, err := svc.InsertBatch(context.Background(), "Orders", "Designs", "alice", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{}, res.Data)
	assert.Equal(t, before, store.Values("Designs"))
}

func TestInsertBatchBands(t *testing.T) {
	svc, store, _ := newTestService(t, 4)

	res, err := svc.InsertBatch(context.Background(), "Orders", "Designs", "alice", []Record{
		{SkuID: "N1", SellerSku: "A", Color: "red", ProductType: "tee"},
		{SkuID: "N2", SellerSku: "A", Color: "red", ProductType: "tee"},
		{SkuID: "N3", SellerSku: "B", Color: "blue", ProductType: "tee"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"N1", "N2", "N3"}, res.Data)
	assert.Equal(t, map[string]int{"N1": 5, "N2": 6, "N3": 7}, res.Rows)

	first, _ := store.Background("Designs", 5)
	second, _ := store.Background("Designs", 6)
	third, _ := store.Background("Designs", 7)
	assert.Equal(t, sheets.LightBlue, first)
	assert.Equal(t, first, second)
	assert.Equal(t, sheets.LightGreen, third)
}

func TestAssignBandsFlipsOnEachChange(t *testing.T) {
	colors := assignBands([]Record{
		{SellerSku: "A"},
		{SellerSku: "A", ProductType: "hoodie"},
		{SellerSku: "A", ProductType: "hoodie"},
		{SellerSku: "A", ProductType: "hoodie", Color: "black"},
	})
	assert.Equal(t, []sheets.Color{sheets.LightBlue, sheets.LightGreen, sheets.LightGreen, sheets.LightBlue}, colors)
}

func TestInsertBatchWritesTwelveColumns(t *testing.T) {
	svc, store, _ := newTestService(t, 3)

	_, err := svc.InsertBatch(context.Background(), "Orders", "Designs", "alice", []Record{{
		SkuID:       "N1",
		ProductName: "Cat Tee",
		SellerSku:   "CAT",
		Color:       "white",
		ProductType: "tee",
		Size:        "L",
		Image1Front: "https://img/front.png",
		MockupOnos:  "https://img/onos.png",
	}})
	require.NoError(t, err)

	values := store.Values("Designs")
	row := values[len(values)-1]
	require.Len(t, row, 12)
	assert.Equal(t, "N1", row[0])
	assert.Equal(t, "Cat Tee", row[1])
	assert.Equal(t, "CAT; white; tee; L", row[2])
	assert.Equal(t, "https://img/front.png", row[3])
	assert.Equal(t, "https://img/onos.png", row[7])
	assert.Equal(t, "2026-03-14 09:26:53", row[10])
	assert.Equal(t, "alice", row[11])
}

func TestInsertBatchSkipsDuplicatesAndBlanks(t *testing.T) {
	svc, store, _ := newTestService(t, 3)

	res, err := svc.InsertBatch(context.Background(), "Orders", "Designs", "alice", []Record{
		{SkuID: "N1"}, {SkuID: ""}, {SkuID: "N1", ProductName: "again"}, {SkuID: "N2"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"N1", "N2"}, res.Data)
	assert.Equal(t, []string{"", "N1"}, res.Skipped)
	assert.Len(t, store.Values("Designs"), 5)
}

func TestInsertThenSearchRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t, 4)
	ctx := context.Background()

	_, err := svc.InsertBatch(ctx, "Orders", "Designs", "alice", []Record{{SkuID: "ROUND-1", ProductName: "Mug"}})
	require.NoError(t, err)

	got, err := svc.SearchByKey(ctx, "Orders", "Designs", []string{"ROUND-1"})
	require.NoError(t, err)
	require.NotNil(t, got["ROUND-1"])
	assert.Equal(t, "ROUND-1", got["ROUND-1"][KeyColumn])
	assert.Equal(t, "alice", got["ROUND-1"][UserColumn])
}

func TestInsertBatchValuePassFailureKeepsFormatting(t *testing.T) {
	svc, store, notifier := newTestService(t, 4)
	store.InjectFault(sheets.FaultValues, errors.New("quota exceeded"))

	res, err := svc.InsertBatch(context.Background(), "Orders", "Designs", "alice", []Record{{SkuID: "N1"}})

	require.ErrorIs(t, err, sheets.ErrPartialFailure)
	assert.Equal(t, StatusError, res.Status)
	assert.NotEmpty(t, res.Message)

	color, ok := store.Background("Designs", 5)
	assert.True(t, ok, "format pass is not rolled back")
	assert.Equal(t, sheets.LightBlue, color)
	assert.Len(t, store.Values("Designs"), 4)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "insert", notifier.alerts[0].Operation)
	assert.Equal(t, map[string]int{"N1": 5}, notifier.alerts[0].Rows)
}

func TestInsertBatchFormatFailure(t *testing.T) {
	svc, store, notifier := newTestService(t, 4)
	store.InjectFault(sheets.FaultFormat, errors.New("offline"))

	res, err := svc.InsertBatch(context.Background(), "Orders", "Designs", "alice", []Record{{SkuID: "N1"}})

	assert.ErrorIs(t, err, sheets.ErrRemoteUnavailable)
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, notifier.alerts)
}

func TestInsertBatchConcurrentWritersDoNotOverlap(t *testing.T) {
	svc, store, _ := newTestService(t, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			_, err := svc.InsertBatch(ctx, "Orders", "Designs", "alice", []Record{
				{SkuID: fmt.Sprintf("W%d-1", w)},
				{SkuID: fmt.Sprintf("W%d-2", w)},
			})
			assert.NoError(t, err)
		}(w)
	}
	wg.Wait()

	values := store.Values("Designs")
	assert.Len(t, values, 3+8)
	seen := make(map[interface{}]bool)
	for _, row := range values[3:] {
		assert.False(t, seen[row[0]], "row %v written twice", row[0])
		seen[row[0]] = true
	}
}

func TestMoveToLastNoMatches(t *testing.T) {
	svc, store, _ := newTestService(t, 5)
	before := store.Values("Designs")

	res, err := svc.MoveToLast(context.Background(), "Orders", "Designs", []string{"nope", "nada"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, MsgNoMatches, res.Message)
	assert.Equal(t, before, store.Values("Designs"))
	assert.Empty(t, store.DeletedRows("Designs"))
}

func TestMoveToLastDeletesHighestRowFirst(t *testing.T) {
	svc, store, _ := newTestService(t, 16)

	_, err := svc.MoveToLast(context.Background(), "Orders", "Designs", []string{"SKU-10", "SKU-07", "SKU-15", "SKU-10"})
	require.NoError(t, err)

	assert.Equal(t, []int{15, 10, 7}, store.DeletedRows("Designs"))
}

func TestMoveToLastReinsertsAtBottom(t *testing.T) {
	svc, store, _ := newTestService(t, 8)
	ctx := context.Background()

	res, err := svc.MoveToLast(ctx, "Orders", "Designs", []string{"SKU-04", "SKU-06", "missing"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, MsgMoved, res.Message)
	assert.Equal(t, map[string]int{"SKU-06": 6, "SKU-04": 4}, res.Deleted)
	assert.Equal(t, []string{"SKU-06", "SKU-04"}, res.Data)

	values := store.Values("Designs")
	require.Len(t, values, 8)
	last := values[len(values)-2:]

	assert.Equal(t, "SKU-06", last[0][0])
	assert.Equal(t, "Product 6", last[0][1])
	assert.Equal(t, "VAR-6; ; ; ", last[0][2])
	assert.Equal(t, "https://img/6/front.png", last[0][3])
	assert.Equal(t, "2026-03-14 09:26:53", last[0][10])
	assert.Equal(t, "SKU-04", last[1][0])

	// Seller comes from the highest row removed, for every moved record.
	assert.Equal(t, "seller-6", last[0][11])
	assert.Equal(t, "seller-6", last[1][11])

	got, err := svc.SearchByKey(ctx, "Orders", "Designs", []string{"SKU-05"})
	require.NoError(t, err)
	assert.NotNil(t, got["SKU-05"])
}

func TestMoveToLastDeleteFailure(t *testing.T) {
	svc, store, notifier := newTestService(t, 6)
	store.InjectFault(sheets.FaultDelete, errors.New("offline"))

	res, err := svc.MoveToLast(context.Background(), "Orders", "Designs", []string{"SKU-04"})

	assert.ErrorIs(t, err, sheets.ErrRemoteUnavailable)
	assert.NotErrorIs(t, err, sheets.ErrPartialFailure)
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, notifier.alerts)
}

func TestMoveToLastReinsertFailureIsPartial(t *testing.T) {
	svc, store, notifier := newTestService(t, 6)
	store.InjectFault(sheets.FaultFormat, errors.New("offline"))

	res, err := svc.MoveToLast(context.Background(), "Orders", "Designs", []string{"SKU-04"})

	assert.ErrorIs(t, err, sheets.ErrPartialFailure)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, []int{4}, store.DeletedRows("Designs"))

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "move", notifier.alerts[0].Operation)
	assert.Equal(t, map[string]int{"SKU-04": 4}, notifier.alerts[0].Rows)
}

func TestMoveToLastRemoteUnavailable(t *testing.T) {
	svc, store, _ := newTestService(t, 6)
	store.InjectFault(sheets.FaultRead, errors.New("offline"))

	res, err := svc.MoveToLast(context.Background(), "Orders", "Designs", []string{"SKU-04"})

	assert.ErrorIs(t, err, sheets.ErrRemoteUnavailable)
	assert.Equal(t, StatusError, res.Status)
}
