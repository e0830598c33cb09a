package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bucket names one of the logical record collections
type Bucket string

const (
	BucketDraft    Bucket = "draft"
	BucketUnfilled Bucket = "unfilled"
	BucketLive     Bucket = "live"
	BucketTrash    Bucket = "trash"
)

// LockOrder is the order in which bucket locks must be acquired
var LockOrder = []Bucket{BucketDraft, BucketUnfilled, BucketLive, BucketTrash}

// Common stock status values. Any other text is accepted as-is.
const (
	StockReady   = "Ready to Ship"
	StockLow     = "Low Stock"
	StockSoldOut = "Sold Out"
)

// Product represents a catalog entry in any bucket
type Product struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	Fabric        string     `json:"fabric"`
	Color         string     `json:"color"`
	Price         Price      `json:"price"`
	DiscountPrice *Price     `json:"discount_price"`
	Description   string     `json:"desc"`
	Stars         int        `json:"stars"`
	Stock         string     `json:"stock"`
	StockCount    int        `json:"stock_count"`
	Visible       *bool      `json:"visible,omitempty"`
	Image         *MediaRef  `json:"image"`
	Gallery       []MediaRef `json:"gallery"`
	Timestamp     int64      `json:"timestamp"`
}

// Refs returns the main image followed by every gallery entry
func (p *Product) Refs() []MediaRef {
	refs := make([]MediaRef, 0, len(p.Gallery)+1)
	if p.Image != nil {
		refs = append(refs, *p.Image)
	}
	return append(refs, p.Gallery...)
}

// IsVisible reports whether the storefront should show the product
func (p *Product) IsVisible() bool {
	return p.Visible != nil && *p.Visible
}

// Price is a decimal amount. The admin form posts it either as a JSON
// number or as a numeric string, so both are accepted on input.
type Price float64

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(p), 'f', -1, 64)), nil
}

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*p = 0
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid price %q", raw)
	}
	*p = Price(v)
	return nil
}
