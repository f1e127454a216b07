package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/lock"
	"github.com/sijan324/nepshop/internal/repository"
)

// StockPolicy selects how AddToCart checks stock.
type StockPolicy string

const (
	// StockCumulative rejects an add when the line's resulting quantity
	// would exceed stock.
	StockCumulative StockPolicy = "cumulative"
	// StockPerRequest only compares the requested quantity with stock.
	StockPerRequest StockPolicy = "request"
)

// ParseStockPolicy accepts "cumulative" and "request". Empty means cumulative.
func ParseStockPolicy(s string) (StockPolicy, error) {
	switch StockPolicy(s) {
	case "", StockCumulative:
		return StockCumulative, nil
	case StockPerRequest:
		return StockPerRequest, nil
	}
	return "", fmt.Errorf("unknown stock policy %q", s)
}

// Options tunes a CartService. The zero value is usable.
type Options struct {
	StockPolicy       StockPolicy
	RenderConcurrency int
	// Locker serializes cart creation per owner. Nil relies on the store's
	// uniqueness alone.
	Locker lock.Locker
	Now    func() time.Time
}

// CartService is the cart API: identity resolution, line aggregation,
// merging and rendering.
type CartService struct {
	carts     repository.CartStore
	products  repository.ProductRepository
	resolver  *Resolver
	projector *Projector
	policy    StockPolicy
	now       func() time.Time
}

func NewCartService(carts repository.CartStore, products repository.ProductRepository, opts Options) *CartService {
	if opts.StockPolicy == "" {
		opts.StockPolicy = StockCumulative
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	resolver := NewResolver(carts, opts.Locker)
	resolver.now = opts.Now
	return &CartService{
		carts:     carts,
		products:  products,
		resolver:  resolver,
		projector: NewProjector(carts, products, opts.RenderConcurrency),
		policy:    opts.StockPolicy,
		now:       opts.Now,
	}
}

// GetCart returns the caller's cart, creating an empty one on first use.
func (s *CartService) GetCart(ctx context.Context, id Identity) (entity.RenderedCart, error) {
	cart, err := s.resolver.Resolve(ctx, id)
	if err != nil {
		return entity.RenderedCart{}, err
	}
	return s.projector.Render(ctx, cart)
}

// mutate runs fn on the caller's cart under its lock and renders the result.
// A cart retired by a concurrent merge between resolution and locking is
// resolved again once.
func (s *CartService) mutate(ctx context.Context, id Identity, fn func(tx repository.CartTx, cart entity.Cart) error) (entity.RenderedCart, error) {
	for attempt := 0; ; attempt++ {
		cart, err := s.resolver.Resolve(ctx, id)
		if err != nil {
			return entity.RenderedCart{}, err
		}

		err = s.carts.WithCartLock(ctx, []string{cart.ID}, func(tx repository.CartTx) error {
			return fn(tx, cart)
		})
		if errors.Is(err, repository.ErrCartNotFound) && attempt == 0 {
			slog.Info("Service: cart retired before lock, resolving again", "cart_id", cart.ID)
			continue
		}
		if err != nil {
			return entity.RenderedCart{}, err
		}
		return s.projector.Render(ctx, cart)
	}
}

// AddToCart adds quantity of a product (and optional variant) to the cart.
// An existing line for the same product and variant grows; its price
// snapshot is kept.
func (s *CartService) AddToCart(ctx context.Context, id Identity, productID, variantID string, quantity int) (entity.RenderedCart, error) {
	if quantity <= 0 {
		return entity.RenderedCart{}, ErrInvalidQuantity
	}

	product, err := s.products.FindByID(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return entity.RenderedCart{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return entity.RenderedCart{}, fmt.Errorf("failed to look up product %s: %w", productID, err)
	}
	offer, ok := product.OfferFor(variantID)
	if !ok {
		return entity.RenderedCart{}, fmt.Errorf("%w: %s variant %s", ErrProductNotFound, productID, variantID)
	}

	slog.Info("Service: Adding item to cart", "product_id", productID, "variant_id", variantID, "quantity", quantity)

	return s.mutate(ctx, id, func(tx repository.CartTx, cart entity.Cart) error {
		lines, err := tx.ListLines(ctx, cart.ID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		key := entity.LineKey{ProductID: productID, VariantID: variantID}
		idx := entity.FindLine(lines, key)

		requested := quantity
		if idx >= 0 && s.policy == StockCumulative {
			requested += lines[idx].Quantity
		}
		if requested > offer.Stock {
			return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, productID, offer.Stock, requested)
		}

		var line entity.CartLine
		if idx >= 0 {
			line = lines[idx]
			line.Quantity += quantity
			line.UpdatedAt = now
			if err := tx.UpdateLine(ctx, line); err != nil {
				return err
			}
		} else {
			line = entity.CartLine{
				ID:        uuid.NewString(),
				CartID:    cart.ID,
				ProductID: productID,
				VariantID: variantID,
				Quantity:  quantity,
				UnitPrice: entity.RoundMoney(offer.Price),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}

		if err := tx.TouchCart(ctx, cart.ID, now); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, cart.ID, entity.ItemAddedToCart{
			CartID:    cart.ID,
			LineID:    line.ID,
			ProductID: productID,
			VariantID: variantID,
			Quantity:  quantity,
			LineQty:   line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	})
}

// ownedLine returns the line if it belongs to cart.
func ownedLine(ctx context.Context, tx repository.CartTx, cart entity.Cart, lineID string) (entity.CartLine, error) {
	line, err := tx.GetLine(ctx, lineID)
	if errors.Is(err, repository.ErrLineNotFound) || (err == nil && line.CartID != cart.ID) {
		return entity.CartLine{}, fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
	}
	return line, err
}

// UpdateCartItem replaces a line's quantity. A quantity of zero or less
// removes the line.
func (s *CartService) UpdateCartItem(ctx context.Context, id Identity, lineID string, quantity int) (entity.RenderedCart, error) {
	return s.mutate(ctx, id, func(tx repository.CartTx, cart entity.Cart) error {
		line, err := ownedLine(ctx, tx, cart, lineID)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		var event entity.Event
		if quantity <= 0 {
			if err := tx.DeleteLine(ctx, line.ID); err != nil {
				return err
			}
			event = entity.CartItemRemoved{CartID: cart.ID, LineID: line.ID, ProductID: line.ProductID, VariantID: line.VariantID}
		} else {
			line.Quantity = quantity
			line.UpdatedAt = now
			if err := tx.UpdateLine(ctx, line); err != nil {
				return err
			}
			event = entity.CartItemUpdated{CartID: cart.ID, LineID: line.ID, Quantity: quantity}
		}

		if err := tx.TouchCart(ctx, cart.ID, now); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, cart.ID, event)
	})
}

// RemoveFromCart deletes a line from the caller's cart.
func (s *CartService) RemoveFromCart(ctx context.Context, id Identity, lineID string) (entity.RenderedCart, error) {
	return s.mutate(ctx, id, func(tx repository.CartTx, cart entity.Cart) error {
		line, err := ownedLine(ctx, tx, cart, lineID)
		if err != nil {
			return err
		}
		if err := tx.DeleteLine(ctx, line.ID); err != nil {
			return err
		}
		if err := tx.TouchCart(ctx, cart.ID, s.now().UTC()); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, cart.ID, entity.CartItemRemoved{
			CartID:    cart.ID,
			LineID:    line.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
		})
	})
}

// ClearCart removes every line. Clearing an empty cart is a no-op.
func (s *CartService) ClearCart(ctx context.Context, id Identity) (entity.RenderedCart, error) {
	return s.mutate(ctx, id, func(tx repository.CartTx, cart entity.Cart) error {
		n, err := tx.DeleteLines(ctx, cart.ID)
		if err != nil || n == 0 {
			return err
		}
		if err := tx.TouchCart(ctx, cart.ID, s.now().UTC()); err != nil {
			return err
		}
		return tx.AppendEvents(ctx, cart.ID, entity.CartCleared{CartID: cart.ID, RemovedLines: n})
	})
}
