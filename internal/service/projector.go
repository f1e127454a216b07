package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
)

// Projector renders carts. It never writes.
type Projector struct {
	carts    repository.CartStore
	products repository.ProductRepository
	limit    int
}

func NewProjector(carts repository.CartStore, products repository.ProductRepository, concurrency int) *Projector {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Projector{carts: carts, products: products, limit: concurrency}
}

type display struct {
	name  string
	image string
}

// Render loads the cart's lines and fetches display fields fresh from the
// catalog. Prices always come from the line snapshots.
func (p *Projector) Render(ctx context.Context, cart entity.Cart) (entity.RenderedCart, error) {
	lines, err := p.carts.ListLines(ctx, cart.ID)
	if err != nil {
		return entity.RenderedCart{}, fmt.Errorf("failed to load cart lines: %w", err)
	}

	displays, err := p.fetchDisplays(ctx, lines)
	if err != nil {
		return entity.RenderedCart{}, err
	}

	out := entity.RenderedCart{
		CartID:    cart.ID,
		AccountID: cart.Owner.AccountID(),
		SessionID: cart.Owner.SessionID(),
		Lines:     make([]entity.RenderedLine, 0, len(lines)),
		Total:     decimal.Zero,
	}
	for _, l := range lines {
		d := displays[l.ProductID]
		lineTotal := l.Total()
		out.Lines = append(out.Lines, entity.RenderedLine{
			LineID:       l.ID,
			ProductID:    l.ProductID,
			VariantID:    l.VariantID,
			ProductName:  d.name,
			ProductImage: d.image,
			Quantity:     l.Quantity,
			UnitPrice:    entity.RoundMoney(l.UnitPrice),
			LineTotal:    lineTotal,
		})
		out.ItemCount += l.Quantity
		out.Total = out.Total.Add(lineTotal)
	}
	out.Total = entity.RoundMoney(out.Total)
	return out, nil
}

func (p *Projector) fetchDisplays(ctx context.Context, lines []entity.CartLine) (map[string]display, error) {
	displays := make(map[string]display)
	if len(lines) == 0 {
		return displays, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	seen := make(map[string]bool)
	for _, l := range lines {
		if seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		productID := l.ProductID

		g.Go(func() error {
			product, err := p.products.FindByID(gctx, productID)
			if errors.Is(err, repository.ErrProductNotFound) {
				// Delisted products still render from the snapshot.
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to fetch product %s: %w", productID, err)
			}
			mu.Lock()
			displays[productID] = display{name: product.Name, image: product.FirstImage()}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return displays, nil
}
