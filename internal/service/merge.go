package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
)

// MergeCarts folds the session's anonymous cart into the account's cart and
// deletes the anonymous cart, all in one transaction holding both cart locks.
// Lines for the same product and variant have their quantities summed and
// keep the account cart's price. Without an anonymous cart nothing happens.
func (s *CartService) MergeCarts(ctx context.Context, sessionID, accountID string) error {
	if sessionID == "" || accountID == "" {
		return ErrMissingIdentity
	}

	for attempt := 0; ; attempt++ {
		anon, ok, err := s.resolver.Lookup(ctx, entity.SessionOwner(sessionID))
		if err != nil {
			return err
		}
		if !ok {
			slog.Debug("Service: no anonymous cart to merge", "account_id", accountID)
			return nil
		}
		if anon.Owner.Kind() != entity.OwnerSession {
			return fmt.Errorf("%w: session %s resolved to %s", ErrIdentityConflict, sessionID, anon.Owner)
		}

		acct, err := s.resolver.ResolveOwner(ctx, entity.AccountOwner(accountID))
		if err != nil {
			return err
		}
		if acct.ID == anon.ID {
			return fmt.Errorf("%w: session and account share cart %s", ErrIdentityConflict, acct.ID)
		}

		err = s.carts.WithCartLock(ctx, []string{anon.ID, acct.ID}, func(tx repository.CartTx) error {
			return s.fold(ctx, tx, anon, acct)
		})
		if errors.Is(err, repository.ErrCartNotFound) && attempt == 0 {
			// A concurrent merge may have retired the anonymous cart.
			continue
		}
		return err
	}
}

func (s *CartService) fold(ctx context.Context, tx repository.CartTx, anon, acct entity.Cart) error {
	source, err := tx.ListLines(ctx, anon.ID)
	if err != nil {
		return err
	}
	target, err := tx.ListLines(ctx, acct.ID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	plan := entity.MergeLines(acct.ID, target, source, now)

	for _, l := range plan.Absorbed {
		if err := tx.DeleteLine(ctx, l.ID); err != nil {
			return err
		}
	}
	for _, l := range plan.Updated {
		if err := tx.UpdateLine(ctx, l); err != nil {
			return err
		}
	}
	for _, l := range plan.Moved {
		if err := tx.UpdateLine(ctx, l); err != nil {
			return err
		}
	}
	if err := tx.DeleteCart(ctx, anon.ID); err != nil {
		return err
	}
	if !plan.Empty() {
		if err := tx.TouchCart(ctx, acct.ID, now); err != nil {
			return err
		}
	}

	slog.Info("Service: Merged carts",
		"source_cart_id", anon.ID,
		"target_cart_id", acct.ID,
		"moved", len(plan.Moved),
		"summed", len(plan.Updated),
	)

	return tx.AppendEvents(ctx, acct.ID, entity.CartsMerged{
		SourceCartID: anon.ID,
		TargetCartID: acct.ID,
		SessionID:    anon.Owner.SessionID(),
		AccountID:    acct.Owner.AccountID(),
		MovedLines:   len(plan.Moved),
		SummedLines:  len(plan.Updated),
		MergedAt:     now,
	})
}
