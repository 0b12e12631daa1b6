package catalog

import (
	"github.com/shopspring/decimal"
)

// ProductInput carries create/update fields for a product.
type ProductInput struct {
	Code        string          `validate:"required,max=64"`
	Name        string          `validate:"required,max=255"`
	Description string          `validate:"max=2000"`
	Category    string          `validate:"max=255"`
	Unit        string          `validate:"max=32"`
	Price       decimal.Decimal `validate:"-"`
	ImageURL    string          `validate:"omitempty,url,max=2048"`
	IsVisible   bool
}

// ListRequest filters the admin product listing.
type ListRequest struct {
	Search      string
	VisibleOnly bool
	Page        int
	PerPage     int
}
