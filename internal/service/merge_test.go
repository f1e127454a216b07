package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
)

func TestMergeCartsAccountSnapshotWins(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// Account cart: A x1 @ 9, B x1 @ 5.
	f.catalog.Put(entity.Product{ID: "A", Name: "Alpha", Price: money("9.00"), Stock: 100})
	if _, err := f.svc.AddToCart(ctx, alice, "A", "", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.svc.AddToCart(ctx, alice, "B", "", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Anonymous cart: A x2 @ 10, C x4 @ 0.10.
	f.catalog.Put(entity.Product{ID: "A", Name: "Alpha", Price: money("10.00"), Stock: 100})
	if _, err := f.svc.AddToCart(ctx, guest, "A", "", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.svc.AddToCart(ctx, guest, "C", "", 4); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := f.svc.MergeCarts(ctx, guest.SessionID, alice.AccountID); err != nil {
		t.Fatalf("MergeCarts: %v", err)
	}

	cart, err := f.svc.GetCart(ctx, alice)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	got := make(map[string]entity.RenderedLine)
	for _, l := range cart.Lines {
		got[l.ProductID] = l
	}
	if len(got) != 3 {
		t.Fatalf("expected lines A, B, C, got %+v", cart.Lines)
	}
	if a := got["A"]; a.Quantity != 3 || a.UnitPrice.StringFixed(2) != "9.00" {
		t.Fatalf("expected A x3 @ 9.00, got x%d @ %s", a.Quantity, a.UnitPrice)
	}
	if b := got["B"]; b.Quantity != 1 || b.UnitPrice.StringFixed(2) != "5.00" {
		t.Fatalf("expected B x1 @ 5.00, got x%d @ %s", b.Quantity, b.UnitPrice)
	}
	if c := got["C"]; c.Quantity != 4 || c.UnitPrice.StringFixed(2) != "0.10" {
		t.Fatalf("expected C x4 @ 0.10, got x%d @ %s", c.Quantity, c.UnitPrice)
	}
	if cart.Total.StringFixed(2) != "32.40" {
		t.Fatalf("expected total 32.40, got %s", cart.Total)
	}

	if _, err := f.store.GetCartByOwner(ctx, entity.SessionOwner(guest.SessionID)); !errors.Is(err, repository.ErrCartNotFound) {
		t.Fatalf("anonymous cart must be deleted, got %v", err)
	}

	pending, _ := f.store.PendingEvents(ctx, 100)
	last := pending[len(pending)-1]
	if last.EventType != "CartsMerged" || last.CartID != cart.CartID {
		t.Fatalf("expected CartsMerged on the account cart, got %+v", last)
	}
}

func TestMergeEmptyAnonymousCartLeavesAccountUnchanged(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.svc.AddToCart(ctx, alice, "A", "", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.svc.GetCart(ctx, guest); err != nil {
		t.Fatalf("create anonymous cart: %v", err)
	}

	acctBefore, _ := f.store.GetCartByOwner(ctx, entity.AccountOwner(alice.AccountID))
	linesBefore, _ := f.store.ListLines(ctx, acctBefore.ID)

	if err := f.svc.MergeCarts(ctx, guest.SessionID, alice.AccountID); err != nil {
		t.Fatalf("MergeCarts: %v", err)
	}

	acctAfter, _ := f.store.GetCartByOwner(ctx, entity.AccountOwner(alice.AccountID))
	linesAfter, _ := f.store.ListLines(ctx, acctAfter.ID)
	if !reflect.DeepEqual(acctBefore, acctAfter) || !reflect.DeepEqual(linesBefore, linesAfter) {
		t.Fatalf("account cart changed:\n%+v %+v\n%+v %+v", acctBefore, linesBefore, acctAfter, linesAfter)
	}
}

func TestMergeWithoutAnonymousCartIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.svc.MergeCarts(ctx, "never-seen", alice.AccountID); err != nil {
		t.Fatalf("MergeCarts: %v", err)
	}
	if _, err := f.store.GetCartByOwner(ctx, entity.AccountOwner(alice.AccountID)); !errors.Is(err, repository.ErrCartNotFound) {
		t.Fatalf("account cart must not be created, got %v", err)
	}
}

func TestMergeCreatesAccountCart(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	anon, err := f.svc.AddToCart(ctx, guest, "B", "", 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.svc.MergeCarts(ctx, guest.SessionID, alice.AccountID); err != nil {
		t.Fatalf("MergeCarts: %v", err)
	}
	cart, err := f.svc.GetCart(ctx, alice)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].LineID != anon.Lines[0].LineID {
		t.Fatalf("expected the anonymous line re-parented, got %+v", cart.Lines)
	}

	// The session starts over with a fresh cart.
	fresh, err := f.svc.GetCart(ctx, guest)
	if err != nil {
		t.Fatalf("GetCart guest: %v", err)
	}
	if fresh.CartID == anon.CartID || len(fresh.Lines) != 0 {
		t.Fatalf("expected a new empty session cart, got %+v", fresh)
	}
}

func TestMergeIsIdempotentAfterFirstRun(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.svc.AddToCart(ctx, guest, "A", "", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.svc.MergeCarts(ctx, guest.SessionID, alice.AccountID); err != nil {
			t.Fatalf("MergeCarts #%d: %v", i, err)
		}
	}
	cart, _ := f.svc.GetCart(ctx, alice)
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 1 {
		t.Fatalf("second merge must not change the account cart, got %+v", cart.Lines)
	}
}

func TestMergeMissingIdentity(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	if err := f.svc.MergeCarts(ctx, "", "acct"); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if err := f.svc.MergeCarts(ctx, "sess", ""); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

// sharedCartStore answers every owner lookup with the same cart.
type sharedCartStore struct {
	repository.CartStore
	cart entity.Cart
}

func (s *sharedCartStore) GetCartByOwner(ctx context.Context, owner entity.CartOwner) (entity.Cart, error) {
	return s.cart, nil
}

func TestMergeIdentityConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("session bound to account cart", func(t *testing.T) {
		store := &sharedCartStore{CartStore: nil, cart: entity.Cart{ID: "c1", Owner: entity.AccountOwner("acct-1")}}
		svc := NewCartService(store, testCatalog(), Options{})
		if err := svc.MergeCarts(ctx, "sess-1", "acct-1"); !errors.Is(err, ErrIdentityConflict) {
			t.Fatalf("expected ErrIdentityConflict, got %v", err)
		}
	})

	t.Run("both identities share a cart", func(t *testing.T) {
		store := &sharedCartStore{CartStore: nil, cart: entity.Cart{ID: "c1", Owner: entity.SessionOwner("sess-1")}}
		svc := NewCartService(store, testCatalog(), Options{})
		if err := svc.MergeCarts(ctx, "sess-1", "acct-1"); !errors.Is(err, ErrIdentityConflict) {
			t.Fatalf("expected ErrIdentityConflict, got %v", err)
		}
	})
}
