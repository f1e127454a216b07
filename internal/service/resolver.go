package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/lock"
	"github.com/sijan324/nepshop/internal/repository"
)

// Resolver maps an identity to its cart, creating the cart on first use.
// Uniqueness per owner is enforced by the store; the optional locker only
// keeps concurrent first requests from racing each other into the store.
type Resolver struct {
	carts  repository.CartStore
	locker lock.Locker
	now    func() time.Time
}

func NewResolver(carts repository.CartStore, locker lock.Locker) *Resolver {
	return &Resolver{carts: carts, locker: locker, now: time.Now}
}

// Resolve returns the cart for the identity, creating it if absent.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (entity.Cart, error) {
	owner, err := id.Owner()
	if err != nil {
		return entity.Cart{}, err
	}
	return r.ResolveOwner(ctx, owner)
}

// Lookup returns the owner's cart without creating one. ok is false if none exists.
func (r *Resolver) Lookup(ctx context.Context, owner entity.CartOwner) (cart entity.Cart, ok bool, err error) {
	cart, err = r.carts.GetCartByOwner(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return entity.Cart{}, false, nil
	}
	if err != nil {
		return entity.Cart{}, false, fmt.Errorf("failed to find cart for %s: %w", owner, err)
	}
	return cart, true, nil
}

// ResolveOwner is Resolve for an owner that was already chosen.
func (r *Resolver) ResolveOwner(ctx context.Context, owner entity.CartOwner) (entity.Cart, error) {
	cart, ok, err := r.Lookup(ctx, owner)
	if err != nil || ok {
		return cart, err
	}

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, "owner:"+owner.Key())
		if err != nil {
			return entity.Cart{}, fmt.Errorf("failed to lock %s: %w", owner, err)
		}
		defer unlock()

		cart, ok, err := r.Lookup(ctx, owner)
		if err != nil || ok {
			return cart, err
		}
	}

	cart, err = r.create(ctx, owner)
	if errors.Is(err, repository.ErrOwnerTaken) {
		// Lost the race to another request; use the winner's cart.
		cart, ok, err = r.Lookup(ctx, owner)
		if err != nil {
			return entity.Cart{}, err
		}
		if !ok {
			return entity.Cart{}, fmt.Errorf("cart for %s vanished after create conflict: %w", owner, repository.ErrCartNotFound)
		}
		return cart, nil
	}
	return cart, err
}

func (r *Resolver) create(ctx context.Context, owner entity.CartOwner) (entity.Cart, error) {
	cart, err := r.carts.CreateCart(ctx, owner, r.now().UTC())
	if errors.Is(err, repository.ErrUnavailable) {
		slog.Warn("Resolver: retrying cart creation", "owner", owner.Key(), "err", err)
		cart, err = r.carts.CreateCart(ctx, owner, r.now().UTC())
	}
	if err != nil {
		if errors.Is(err, repository.ErrOwnerTaken) {
			return entity.Cart{}, err
		}
		return entity.Cart{}, fmt.Errorf("failed to create cart for %s: %w", owner, err)
	}
	slog.Info("Resolver: created cart", "cart_id", cart.ID, "owner", owner.Kind().String())
	return cart, nil
}
