package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sijan324/nepshop/internal/entity"
)

var (
	// ErrCartNotFound is returned when no cart matches the lookup, including a
	// cart that was deleted by a merge while the caller waited for its lock.
	ErrCartNotFound = errors.New("cart not found")
	// ErrLineNotFound is returned when a line does not exist in the locked carts.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrProductNotFound is returned by product lookups.
	ErrProductNotFound = errors.New("product not found")
	// ErrOwnerTaken is returned by CreateCart when another cart already belongs
	// to the same account or session.
	ErrOwnerTaken = errors.New("cart owner already has a cart")
	// ErrDuplicateLine is returned when a line would break the one line per
	// (product, variant) rule.
	ErrDuplicateLine = errors.New("duplicate cart line")
	// ErrUnavailable marks transient storage failures (lost connection,
	// serialization failure). Callers may retry.
	ErrUnavailable = errors.New("storage unavailable")
)

// CartStore handles persistence for carts and their lines.
type CartStore interface {
	// GetCartByOwner returns the cart owned by owner or ErrCartNotFound.
	GetCartByOwner(ctx context.Context, owner entity.CartOwner) (entity.Cart, error)
	// CreateCart inserts a cart if its owner has none and records a
	// CartCreated event with it. It fails with ErrOwnerTaken when the owner
	// already has a cart.
	CreateCart(ctx context.Context, owner entity.CartOwner, now time.Time) (entity.Cart, error)
	// ListLines returns the lines of a cart ordered by creation time.
	ListLines(ctx context.Context, cartID string) ([]entity.CartLine, error)
	// WithCartLock runs fn in one transaction holding exclusive locks on every
	// listed cart. Locks are taken in ascending id order. If fn returns an error
	// nothing it did is kept. A missing cart fails with ErrCartNotFound before
	// fn runs.
	WithCartLock(ctx context.Context, cartIDs []string, fn func(tx CartTx) error) error
}

// CartTx is the view of the store inside WithCartLock. It only sees the
// locked carts.
type CartTx interface {
	GetCart(ctx context.Context, cartID string) (entity.Cart, error)
	ListLines(ctx context.Context, cartID string) ([]entity.CartLine, error)
	// GetLine returns a line of one of the locked carts or ErrLineNotFound.
	GetLine(ctx context.Context, lineID string) (entity.CartLine, error)
	InsertLine(ctx context.Context, line entity.CartLine) error
	// UpdateLine writes quantity, cart id and updated_at of an existing line.
	UpdateLine(ctx context.Context, line entity.CartLine) error
	DeleteLine(ctx context.Context, lineID string) error
	// DeleteLines removes every line of a cart and reports how many there were.
	DeleteLines(ctx context.Context, cartID string) (int, error)
	DeleteCart(ctx context.Context, cartID string) error
	TouchCart(ctx context.Context, cartID string, at time.Time) error
	// AppendEvents writes events to the outbox in the same transaction.
	AppendEvents(ctx context.Context, cartID string, events ...entity.Event) error
}

// ProductRepository resolves catalog products.
type ProductRepository interface {
	// FindByID returns the product or ErrProductNotFound.
	FindByID(ctx context.Context, id string) (entity.Product, error)
	// Seed inserts initial products if none exist.
	Seed(ctx context.Context, products []entity.Product) error
}

// OutboxStore hands pending events to the relay.
type OutboxStore interface {
	// PendingEvents returns up to limit unpublished records, oldest first.
	PendingEvents(ctx context.Context, limit int) ([]entity.OutboxRecord, error)
	// MarkPublished flags records as delivered.
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
