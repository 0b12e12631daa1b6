// Package catalog manages the product catalog shown to customers and the
// admin tooling used to maintain it.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Only visible products are listed on the
// public storefront.
type Product struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Category    string          `json:"category"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    *string         `json:"image_url,omitempty"`
	IsVisible   bool            `json:"is_visible"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ImportResult summarises the outcome of a CSV import.
type ImportResult struct {
	Created int
	Updated int
	Skipped int
	Errors  []string
}
