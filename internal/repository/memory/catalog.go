package memory

import (
	"context"
	"sync"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
)

// Catalog implements repository.ProductRepository over a map.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]entity.Product
}

func NewCatalog(products ...entity.Product) *Catalog {
	c := &Catalog{products: make(map[string]entity.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) FindByID(ctx context.Context, id string) (entity.Product, error) {
	if err := ctx.Err(); err != nil {
		return entity.Product{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return entity.Product{}, repository.ErrProductNotFound
	}
	return p, nil
}

func (c *Catalog) Seed(ctx context.Context, products []entity.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.products) > 0 {
		return nil
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return nil
}

// Put inserts or replaces a product.
func (c *Catalog) Put(p entity.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// Delete removes a product. Carts holding it keep their lines.
func (c *Catalog) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}
