package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("NEPSHOP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NEPSHOP_TEST_DATABASE_URL not set")
	}
	driver := os.Getenv("NEPSHOP_TEST_DB_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	db, err := InitDB(context.Background(), driver, dsn)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCartStoreLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewCartStore(db)
	outbox := NewOutboxStore(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	session := entity.SessionOwner("sess-" + uuid.NewString())
	account := entity.AccountOwner("acct-" + uuid.NewString())

	anon, err := store.CreateCart(ctx, session, now)
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	if _, err := store.CreateCart(ctx, session, now); !errors.Is(err, repository.ErrOwnerTaken) {
		t.Fatalf("expected ErrOwnerTaken, got %v", err)
	}
	acct, err := store.CreateCart(ctx, account, now)
	if err != nil {
		t.Fatalf("CreateCart account: %v", err)
	}

	line := entity.CartLine{
		ID:        uuid.NewString(),
		CartID:    anon.ID,
		ProductID: "prod-001",
		Quantity:  2,
		UnitPrice: decimal.RequireFromString("19.90"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = store.WithCartLock(ctx, []string{anon.ID}, func(tx repository.CartTx) error {
		if err := tx.InsertLine(ctx, line); err != nil {
			return err
		}
		dup := line
		dup.ID = uuid.NewString()
		if err := tx.InsertLine(ctx, dup); !errors.Is(err, repository.ErrDuplicateLine) {
			t.Errorf("expected ErrDuplicateLine, got %v", err)
		}
		return errors.New("abort after duplicate")
	})
	if err == nil {
		t.Fatalf("expected aborted transaction")
	}

	err = store.WithCartLock(ctx, []string{anon.ID}, func(tx repository.CartTx) error {
		if err := tx.InsertLine(ctx, line); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, anon.ID, entity.ItemAddedToCart{CartID: anon.ID, LineID: line.ID, Quantity: 2})
	})
	if err != nil {
		t.Fatalf("insert line: %v", err)
	}

	err = store.WithCartLock(ctx, []string{acct.ID, anon.ID}, func(tx repository.CartTx) error {
		moved := line
		moved.CartID = acct.ID
		if err := tx.UpdateLine(ctx, moved); err != nil {
			return err
		}
		return tx.DeleteCart(ctx, anon.ID)
	})
	if err != nil {
		t.Fatalf("move line: %v", err)
	}

	lines, err := store.ListLines(ctx, acct.ID)
	if err != nil {
		t.Fatalf("ListLines: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 || lines[0].UnitPrice.StringFixed(2) != "19.90" {
		t.Fatalf("unexpected lines %+v", lines)
	}
	if _, err := store.GetCartByOwner(ctx, session); !errors.Is(err, repository.ErrCartNotFound) {
		t.Fatalf("expected anonymous cart removed, got %v", err)
	}

	pending, err := outbox.PendingEvents(ctx, 1000)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	var ids []string
	for _, r := range pending {
		if r.CartID == anon.ID {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) != 2 {
		t.Fatalf("expected CartCreated and ItemAddedToCart for the cart, got %d", len(ids))
	}
	if err := outbox.MarkPublished(ctx, ids, now); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
}

func TestProductRepositoryFindByID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewProductRepository(db)

	if err := repo.Seed(ctx, entity.SeedProducts()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if _, err := repo.FindByID(ctx, "missing-"+uuid.NewString()); !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
