package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func line(id, cartID, productID string, qty int, price string) CartLine {
	return CartLine{
		ID:        id,
		CartID:    cartID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func TestMergeLines(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("account snapshot wins on shared product", func(t *testing.T) {
		target := []CartLine{
			line("t-a", "acct", "A", 1, "9.00"),
			line("t-b", "acct", "B", 1, "5.00"),
		}
		source := []CartLine{line("s-a", "anon", "A", 2, "10.00")}

		plan := MergeLines("acct", target, source, now)

		if len(plan.Updated) != 1 || plan.Updated[0].ID != "t-a" {
			t.Fatalf("expected t-a updated, got %+v", plan.Updated)
		}
		if plan.Updated[0].Quantity != 3 {
			t.Fatalf("expected quantity 3, got %d", plan.Updated[0].Quantity)
		}
		if !plan.Updated[0].UnitPrice.Equal(decimal.RequireFromString("9.00")) {
			t.Fatalf("expected account price 9.00, got %s", plan.Updated[0].UnitPrice)
		}
		if len(plan.Moved) != 0 {
			t.Fatalf("expected nothing moved, got %+v", plan.Moved)
		}
		if len(plan.Absorbed) != 1 || plan.Absorbed[0].ID != "s-a" {
			t.Fatalf("expected s-a absorbed, got %+v", plan.Absorbed)
		}
		if target[0].Quantity != 1 {
			t.Fatalf("input slice must not be mutated")
		}
	})

	t.Run("unmatched lines are re-parented unchanged", func(t *testing.T) {
		source := []CartLine{line("s-c", "anon", "C", 4, "2.50")}

		plan := MergeLines("acct", nil, source, now)

		if len(plan.Moved) != 1 {
			t.Fatalf("expected one moved line, got %d", len(plan.Moved))
		}
		got := plan.Moved[0]
		if got.ID != "s-c" || got.CartID != "acct" || got.Quantity != 4 {
			t.Fatalf("unexpected moved line %+v", got)
		}
		if !got.UnitPrice.Equal(decimal.RequireFromString("2.50")) {
			t.Fatalf("moved line must keep its snapshot, got %s", got.UnitPrice)
		}
	})

	t.Run("variants are distinct keys", func(t *testing.T) {
		target := []CartLine{line("t-a", "acct", "A", 1, "9.00")}
		src := line("s-a", "anon", "A", 1, "9.00")
		src.VariantID = "red"

		plan := MergeLines("acct", target, []CartLine{src}, now)

		if len(plan.Updated) != 0 || len(plan.Moved) != 1 {
			t.Fatalf("expected variant line moved, got %+v", plan)
		}
	})

	t.Run("empty source is empty plan", func(t *testing.T) {
		plan := MergeLines("acct", []CartLine{line("t-a", "acct", "A", 1, "1.00")}, nil, now)
		if !plan.Empty() {
			t.Fatalf("expected empty plan, got %+v", plan)
		}
	})
}

func TestCartOwner(t *testing.T) {
	acct := AccountOwner("u-1")
	if acct.AccountID() != "u-1" || acct.SessionID() != "" || !acct.Valid() {
		t.Fatalf("unexpected account owner %+v", acct)
	}
	sess := SessionOwner("s-1")
	if sess.SessionID() != "s-1" || sess.AccountID() != "" || sess.Key() != "session:s-1" {
		t.Fatalf("unexpected session owner %+v", sess)
	}
	if (CartOwner{}).Valid() || AccountOwner("").Valid() {
		t.Fatalf("zero and empty owners must be invalid")
	}
}

func TestProductOfferFor(t *testing.T) {
	vp := decimal.RequireFromString("12.00")
	p := Product{
		ID:    "p",
		Price: decimal.RequireFromString("10.00"),
		Stock: 5,
		Variants: []Variant{
			{ID: "big", Price: &vp, Stock: 2},
			{ID: "plain", Stock: 7},
		},
	}

	tests := []struct {
		variant   string
		wantOK    bool
		wantPrice string
		wantStock int
	}{
		{"", true, "10.00", 5},
		{"big", true, "12.00", 2},
		{"plain", true, "10.00", 7},
		{"missing", false, "0", 0},
	}
	for _, tt := range tests {
		t.Run("variant="+tt.variant, func(t *testing.T) {
			offer, ok := p.OfferFor(tt.variant)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !offer.Price.Equal(decimal.RequireFromString(tt.wantPrice)) || offer.Stock != tt.wantStock {
				t.Fatalf("got %s/%d, want %s/%d", offer.Price, offer.Stock, tt.wantPrice, tt.wantStock)
			}
		})
	}
}

func TestCartLineTotal(t *testing.T) {
	l := line("l", "c", "p", 3, "0.10")
	if got := l.Total().StringFixed(2); got != "0.30" {
		t.Fatalf("expected exact 0.30, got %s", got)
	}
}
