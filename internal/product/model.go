package product

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row as the order core reads it.
type Product struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Slug      string              `json:"slug"`
	Thumbnail string              `json:"thumbnail"`
	Price     decimal.Decimal     `json:"price"`
	SalePrice decimal.NullDecimal `json:"salePrice"`
	Stock     int                 `json:"stock"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// HTTPError represents a standard error in JSON.
// swagger:model
type HTTPError struct {
	// Error message
	// example: not found
	Error string `json:"error"`
}
