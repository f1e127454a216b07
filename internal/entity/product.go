package entity

import "github.com/shopspring/decimal"

// Product is the catalog view the cart needs: price and stock for adding,
// name and images for rendering.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Images   []string        `json:"images"`
	Variants []Variant       `json:"variants,omitempty"`
}

// Variant is a purchasable option of a product. A nil Price means the variant
// sells at the product price.
type Variant struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Stock int              `json:"stock"`
}

// Variant returns the variant with the given id.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// FirstImage returns the primary image URL, or "".
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Offer is the price and stock that apply to a (product, variant) pair.
type Offer struct {
	Price decimal.Decimal
	Stock int
}

// OfferFor resolves the price and stock for variantID ("" = the product itself).
// ok is false when a named variant does not exist.
func (p Product) OfferFor(variantID string) (Offer, bool) {
	if variantID == "" {
		return Offer{Price: p.Price, Stock: p.Stock}, true
	}
	v, found := p.Variant(variantID)
	if !found {
		return Offer{}, false
	}
	price := p.Price
	if v.Price != nil {
		price = *v.Price
	}
	return Offer{Price: price, Stock: v.Stock}, true
}
