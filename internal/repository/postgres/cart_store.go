package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
)

const cartColumns = "id, account_id, session_id, created_at, updated_at"

const lineColumns = "id, cart_id, product_id, variant_id, quantity, unit_price, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

type cartStore struct {
	db *sql.DB
}

// NewCartStore creates a CartStore backed by Postgres.
func NewCartStore(db *sql.DB) repository.CartStore {
	return &cartStore{db: db}
}

func scanCart(row rowScanner) (entity.Cart, error) {
	var (
		c         entity.Cart
		accountID sql.NullString
		sessionID sql.NullString
	)
	if err := row.Scan(&c.ID, &accountID, &sessionID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return entity.Cart{}, err
	}
	switch {
	case accountID.Valid:
		c.Owner = entity.AccountOwner(accountID.String)
	case sessionID.Valid:
		c.Owner = entity.SessionOwner(sessionID.String)
	}
	return c, nil
}

func scanLine(row rowScanner) (entity.CartLine, error) {
	var l entity.CartLine
	err := row.Scan(&l.ID, &l.CartID, &l.ProductID, &l.VariantID, &l.Quantity, &l.UnitPrice, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func ownerColumn(owner entity.CartOwner) (string, error) {
	switch owner.Kind() {
	case entity.OwnerAccount:
		return "account_id", nil
	case entity.OwnerSession:
		return "session_id", nil
	default:
		return "", fmt.Errorf("invalid cart owner %q", owner)
	}
}

func (s *cartStore) GetCartByOwner(ctx context.Context, owner entity.CartOwner) (entity.Cart, error) {
	col, err := ownerColumn(owner)
	if err != nil {
		return entity.Cart{}, err
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+cartColumns+" FROM carts WHERE "+col+" = $1", owner.ID())
	cart, err := scanCart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Cart{}, repository.ErrCartNotFound
	}
	if err != nil {
		return entity.Cart{}, wrapErr("get cart by owner", err)
	}
	return cart, nil
}

func (s *cartStore) CreateCart(ctx context.Context, owner entity.CartOwner, now time.Time) (entity.Cart, error) {
	if !owner.Valid() {
		return entity.Cart{}, fmt.Errorf("invalid cart owner %q", owner)
	}
	cart := entity.Cart{ID: uuid.NewString(), Owner: owner, CreatedAt: now, UpdatedAt: now}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.Cart{}, wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO carts (id, account_id, session_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		cart.ID, nullString(owner.AccountID()), nullString(owner.SessionID()), now, now,
	)
	if isUniqueViolation(err) {
		return entity.Cart{}, repository.ErrOwnerTaken
	}
	if err != nil {
		return entity.Cart{}, wrapErr("insert cart", err)
	}

	created := entity.CartCreated{
		CartID:    cart.ID,
		AccountID: owner.AccountID(),
		SessionID: owner.SessionID(),
		CreatedAt: now,
	}
	if err := appendEvents(ctx, tx, cart.ID, created); err != nil {
		return entity.Cart{}, err
	}

	if err := tx.Commit(); err != nil {
		return entity.Cart{}, wrapErr("commit transaction", err)
	}
	return cart, nil
}

func (s *cartStore) ListLines(ctx context.Context, cartID string) ([]entity.CartLine, error) {
	return listLines(ctx, s.db, cartID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listLines(ctx context.Context, q queryer, cartID string) ([]entity.CartLine, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+lineColumns+" FROM cart_lines WHERE cart_id = $1 ORDER BY created_at, id", cartID)
	if err != nil {
		return nil, wrapErr("query cart lines", err)
	}
	defer rows.Close()

	lines := []entity.CartLine{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate cart lines", err)
	}
	return lines, nil
}

func (s *cartStore) WithCartLock(ctx context.Context, cartIDs []string, fn func(tx repository.CartTx) error) error {
	ids := append([]string(nil), cartIDs...)
	sort.Strings(ids)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	view := &pgTx{tx: tx, carts: make(map[string]entity.Cart, len(ids))}
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		row := tx.QueryRowContext(ctx, "SELECT "+cartColumns+" FROM carts WHERE id = $1 FOR UPDATE", id)
		cart, err := scanCart(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", repository.ErrCartNotFound, id)
		}
		if err != nil {
			return wrapErr("lock cart", err)
		}
		view.carts[id] = cart
	}

	if err := fn(view); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

// pgTx exposes the carts locked by WithCartLock.
type pgTx struct {
	tx    *sql.Tx
	carts map[string]entity.Cart
}

func (t *pgTx) locked(cartID string) error {
	if _, ok := t.carts[cartID]; !ok {
		return fmt.Errorf("%w: %s is not locked", repository.ErrCartNotFound, cartID)
	}
	return nil
}

func (t *pgTx) GetCart(ctx context.Context, cartID string) (entity.Cart, error) {
	if err := t.locked(cartID); err != nil {
		return entity.Cart{}, err
	}
	return t.carts[cartID], nil
}

func (t *pgTx) ListLines(ctx context.Context, cartID string) ([]entity.CartLine, error) {
	if err := t.locked(cartID); err != nil {
		return nil, err
	}
	return listLines(ctx, t.tx, cartID)
}

func (t *pgTx) GetLine(ctx context.Context, lineID string) (entity.CartLine, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT "+lineColumns+" FROM cart_lines WHERE id = $1", lineID)
	l, err := scanLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.CartLine{}, repository.ErrLineNotFound
	}
	if err != nil {
		return entity.CartLine{}, wrapErr("get cart line", err)
	}
	if _, ok := t.carts[l.CartID]; !ok {
		return entity.CartLine{}, repository.ErrLineNotFound
	}
	return l, nil
}

func (t *pgTx) InsertLine(ctx context.Context, l entity.CartLine) error {
	if err := t.locked(l.CartID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO cart_lines ("+lineColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		l.ID, l.CartID, l.ProductID, l.VariantID, l.Quantity, l.UnitPrice, l.CreatedAt, l.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s in cart %s", repository.ErrDuplicateLine, l.ProductID, l.VariantID, l.CartID)
	}
	if err != nil {
		return wrapErr("insert cart line", err)
	}
	return nil
}

func (t *pgTx) UpdateLine(ctx context.Context, l entity.CartLine) error {
	if err := t.locked(l.CartID); err != nil {
		return err
	}
	if _, err := t.GetLine(ctx, l.ID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		"UPDATE cart_lines SET cart_id = $2, quantity = $3, updated_at = $4 WHERE id = $1",
		l.ID, l.CartID, l.Quantity, l.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s in cart %s", repository.ErrDuplicateLine, l.ProductID, l.VariantID, l.CartID)
	}
	if err != nil {
		return wrapErr("update cart line", err)
	}
	return nil
}

func (t *pgTx) DeleteLine(ctx context.Context, lineID string) error {
	if _, err := t.GetLine(ctx, lineID); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM cart_lines WHERE id = $1", lineID); err != nil {
		return wrapErr("delete cart line", err)
	}
	return nil
}

func (t *pgTx) DeleteLines(ctx context.Context, cartID string) (int, error) {
	if err := t.locked(cartID); err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, "DELETE FROM cart_lines WHERE cart_id = $1", cartID)
	if err != nil {
		return 0, wrapErr("delete cart lines", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted lines: %w", err)
	}
	return int(n), nil
}

func (t *pgTx) DeleteCart(ctx context.Context, cartID string) error {
	if err := t.locked(cartID); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", cartID); err != nil {
		return wrapErr("delete cart", err)
	}
	delete(t.carts, cartID)
	return nil
}

func (t *pgTx) TouchCart(ctx context.Context, cartID string, at time.Time) error {
	if err := t.locked(cartID); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "UPDATE carts SET updated_at = $2 WHERE id = $1", cartID, at); err != nil {
		return wrapErr("touch cart", err)
	}
	cart := t.carts[cartID]
	cart.UpdatedAt = at
	t.carts[cartID] = cart
	return nil
}

func (t *pgTx) AppendEvents(ctx context.Context, cartID string, events ...entity.Event) error {
	return appendEvents(ctx, t.tx, cartID, events...)
}

func appendEvents(ctx context.Context, tx *sql.Tx, cartID string, events ...entity.Event) error {
	if len(events) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO cart_outbox (id, cart_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)")
	if err != nil {
		return wrapErr("prepare outbox insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, event := range events {
		rec, err := entity.NewOutboxRecord(uuid.NewString(), cartID, event, now)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.CartID, rec.EventType, string(rec.Payload), rec.CreatedAt); err != nil {
			return wrapErr("insert outbox event "+rec.EventType, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
