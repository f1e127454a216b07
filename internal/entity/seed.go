package entity

import "github.com/shopspring/decimal"

// SeedProducts returns the demo catalog loaded when SEED_PRODUCTS is set.
func SeedProducts() []Product {
	large := decimal.RequireFromString("1499.00")
	return []Product{
		{
			ID:     "prod-001",
			Name:   "Wireless Noise-Cancelling Headphones",
			Price:  decimal.RequireFromString("349.99"),
			Stock:  50,
			Images: []string{"https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=400"},
		},
		{
			ID:     "prod-002",
			Name:   "Mechanical Keyboard RGB",
			Price:  decimal.RequireFromString("179.99"),
			Stock:  120,
			Images: []string{"https://images.unsplash.com/photo-1618384887929-16ec33fab9ef?w=400"},
		},
		{
			ID:     "prod-003",
			Name:   "Pashmina Shawl",
			Price:  decimal.RequireFromString("1199.00"),
			Stock:  40,
			Images: []string{"https://images.unsplash.com/photo-1601924994987-69e26d50dc26?w=400"},
			Variants: []Variant{
				{ID: "standard", Name: "Standard 70x200", Stock: 30},
				{ID: "large", Name: "Large 90x220", Price: &large, Stock: 10},
			},
		},
		{
			ID:     "prod-004",
			Name:   "Ergonomic Office Chair",
			Price:  decimal.RequireFromString("549.99"),
			Stock:  25,
			Images: []string{"https://images.unsplash.com/photo-1592078615290-033ee584e267?w=400"},
		},
		{
			ID:     "prod-005",
			Name:   "Smart LED Desk Lamp",
			Price:  decimal.RequireFromString("89.99"),
			Stock:  200,
			Images: []string{"https://images.unsplash.com/photo-1507473885765-e6ed057ab6fe?w=400"},
		},
		{
			ID:     "prod-006",
			Name:   "Premium Laptop Backpack",
			Price:  decimal.RequireFromString("129.99"),
			Stock:  80,
			Images: []string{"https://images.unsplash.com/photo-1553062407-98eeb64c6a62?w=400"},
		},
	}
}
