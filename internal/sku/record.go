package sku

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aiotts_gateway/internal/sheets"
)

// Sheet column names read back when a design is moved.
const (
	KeyColumn              = "SKU"
	ProductNameColumn      = "Product Name"
	VariationColumn        = "Variation"
	Image1FrontColumn      = "Image 1 (front)"
	Image2BackColumn       = "Image 2 (back)"
	MockupFrontColumn      = "Mockup Front"
	MockupBackColumn       = "Mockup Back"
	MockupOnosColumn       = "Mockup (For Onos)"
	ImageFrontBeefunColumn = "Image front (Beefun)"
	ImageBackBeefunColumn  = "Image back (Beefun)"
	UserColumn             = "User"
)

const timestampLayout = "2006-01-02 15:04:05"

// Timestamp accepts the sheet's own "2006-01-02 15:04:05" form as well as
// RFC 3339 and renders in the sheet form.
type Timestamp struct {
	time.Time
}

var timestampInputLayouts = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("created_at must be a string: %w", err)
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		t.Time = time.Time{}
		return nil
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range timestampInputLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised created_at %q", value)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(timestampLayout))
}

// Record is one design variant written as a single sheet row.
type Record struct {
	SkuID       string `json:"sku_id"`
	Color       string `json:"color"`
	ProductType string `json:"product_type"`
	Size        string `json:"size"`
	SellerSku   string `json:"seller_sku"`
	ProductName string `json:"product_name"`

	Image1Front      string `json:"image_1_front,omitempty"`
	Image2Back       string `json:"image_2_back,omitempty"`
	MockupFront      string `json:"mockup_front,omitempty"`
	MockupBack       string `json:"mockup_back,omitempty"`
	MockupOnos       string `json:"mockup_onos,omitempty"`
	ImageFrontBeefun string `json:"image_front_beefun,omitempty"`
	ImageBackBeefun  string `json:"image_back_beefun,omitempty"`

	SellerName string `json:"seller_name,omitempty"`
	// CreatedAt is stamped when the row is written; any caller value is replaced.
	CreatedAt Timestamp `json:"created_at,omitzero"`
}

// Descriptor is the composed third column, "seller_sku; color; product_type; size".
func (r Record) Descriptor() string {
	return fmt.Sprintf("%s; %s; %s; %s", r.SellerSku, r.Color, r.ProductType, r.Size)
}

func (r Record) sameBand(next Record) bool {
	return r.SellerSku == next.SellerSku &&
		r.Color == next.Color &&
		r.ProductType == next.ProductType
}

// cells renders the twelve columns A..L of a record row.
func (r Record) cells() []interface{} {
	return []interface{}{
		r.SkuID,
		r.ProductName,
		r.Descriptor(),
		r.Image1Front,
		r.Image2Back,
		r.MockupFront,
		r.MockupBack,
		r.MockupOnos,
		r.ImageFrontBeefun,
		r.ImageBackBeefun,
		r.CreatedAt.Format(timestampLayout),
		r.SellerName,
	}
}

// recordFromRow rebuilds a record from a row being moved. Colour, product
// type and size are not recoverable from the sheet and stay empty.
func recordFromRow(key string, row sheets.Row) Record {
	return Record{
		SkuID:            key,
		ProductName:      row[ProductNameColumn],
		SellerSku:        row[VariationColumn],
		Image1Front:      row[Image1FrontColumn],
		Image2Back:       row[Image2BackColumn],
		MockupFront:      row[MockupFrontColumn],
		MockupBack:       row[MockupBackColumn],
		MockupOnos:       row[MockupOnosColumn],
		ImageFrontBeefun: row[ImageFrontBeefunColumn],
		ImageBackBeefun:  row[ImageBackBeefunColumn],
	}
}

// assignBands gives each record its background. The first record is light
// blue; the band flips after any record whose seller_sku, color or
// product_type differs from the next one.
func assignBands(records []Record) []sheets.Color {
	colors := make([]sheets.Color, len(records))
	green := false
	for i, rec := range records {
		if green {
			colors[i] = sheets.LightGreen
		} else {
			colors[i] = sheets.LightBlue
		}
		if i < len(records)-1 && !rec.sameBand(records[i+1]) {
			green = !green
		}
	}
	return colors
}
