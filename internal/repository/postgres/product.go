package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new ProductRepository backed by Postgres.
func NewProductRepository(db *sql.DB) repository.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) FindByID(ctx context.Context, id string) (entity.Product, error) {
	var p entity.Product
	err := r.db.QueryRowContext(ctx, "SELECT id, name, price, stock FROM products WHERE id = $1", id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Product{}, repository.ErrProductNotFound
	}
	if err != nil {
		return entity.Product{}, wrapErr("query product "+id, err)
	}

	images, err := r.db.QueryContext(ctx, "SELECT url FROM product_images WHERE product_id = $1 ORDER BY position", id)
	if err != nil {
		return entity.Product{}, wrapErr("query product images", err)
	}
	defer images.Close()
	for images.Next() {
		var url string
		if err := images.Scan(&url); err != nil {
			return entity.Product{}, fmt.Errorf("failed to scan product image: %w", err)
		}
		p.Images = append(p.Images, url)
	}
	if err := images.Err(); err != nil {
		return entity.Product{}, wrapErr("iterate product images", err)
	}

	variants, err := r.db.QueryContext(ctx, "SELECT id, name, price, stock FROM product_variants WHERE product_id = $1 ORDER BY position, id", id)
	if err != nil {
		return entity.Product{}, wrapErr("query product variants", err)
	}
	defer variants.Close()
	for variants.Next() {
		var (
			v     entity.Variant
			price decimal.NullDecimal
		)
		if err := variants.Scan(&v.ID, &v.Name, &price, &v.Stock); err != nil {
			return entity.Product{}, fmt.Errorf("failed to scan product variant: %w", err)
		}
		if price.Valid {
			d := price.Decimal
			v.Price = &d
		}
		p.Variants = append(p.Variants, v)
	}
	if err := variants.Err(); err != nil {
		return entity.Product{}, wrapErr("iterate product variants", err)
	}

	return p, nil
}

func (r *productRepository) Seed(ctx context.Context, products []entity.Product) error {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count)
	if err != nil {
		return wrapErr("count products", err)
	}
	if count > 0 {
		return nil // already seeded
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	for _, p := range products {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO products (id, name, price, stock) VALUES ($1, $2, $3, $4)",
			p.ID, p.Name, p.Price, p.Stock,
		)
		if err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
		for i, url := range p.Images {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO product_images (product_id, position, url) VALUES ($1, $2, $3)",
				p.ID, i, url,
			); err != nil {
				return fmt.Errorf("failed to seed image for %s: %w", p.ID, err)
			}
		}
		for i, v := range p.Variants {
			price := decimal.NullDecimal{}
			if v.Price != nil {
				price = decimal.NewNullDecimal(*v.Price)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO product_variants (product_id, id, position, name, price, stock) VALUES ($1, $2, $3, $4, $5, $6)",
				p.ID, v.ID, i, v.Name, price, v.Stock,
			); err != nil {
				return fmt.Errorf("failed to seed variant %s/%s: %w", p.ID, v.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}

	slog.Info("Seeded products", "count", len(products))
	return nil
}
