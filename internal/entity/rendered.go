package entity

import "github.com/shopspring/decimal"

// RenderedCart is the outward view of a cart. It is computed, never stored.
type RenderedCart struct {
	CartID    string
	AccountID string
	SessionID string
	Lines     []RenderedLine
	ItemCount int
	Total     decimal.Decimal
}

// RenderedLine carries the stored snapshot price plus display fields fetched
// fresh from the catalog.
type RenderedLine struct {
	LineID       string
	ProductID    string
	VariantID    string
	ProductName  string
	ProductImage string
	Quantity     int
	UnitPrice    decimal.Decimal
	LineTotal    decimal.Decimal
}
