// Package memory keeps carts, the outbox and the catalog in process memory.
// It is used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/lock"
	"github.com/sijan324/nepshop/internal/repository"
)

// Store implements repository.CartStore and repository.OutboxStore.
type Store struct {
	mu     sync.Mutex
	carts  map[string]entity.Cart
	owners map[string]string
	lines  map[string]map[string]entity.CartLine
	outbox []entity.OutboxRecord

	locks *lock.KeyedMutex
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		carts:  make(map[string]entity.Cart),
		owners: make(map[string]string),
		lines:  make(map[string]map[string]entity.CartLine),
		locks:  lock.NewKeyedMutex(),
		now:    time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) GetCartByOwner(ctx context.Context, owner entity.CartOwner) (entity.Cart, error) {
	if err := ctx.Err(); err != nil {
		return entity.Cart{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.owners[owner.Key()]
	if !ok {
		return entity.Cart{}, repository.ErrCartNotFound
	}
	return s.carts[id], nil
}

func (s *Store) CreateCart(ctx context.Context, owner entity.CartOwner, now time.Time) (entity.Cart, error) {
	if !owner.Valid() {
		return entity.Cart{}, fmt.Errorf("invalid cart owner %q", owner)
	}
	if err := ctx.Err(); err != nil {
		return entity.Cart{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owners[owner.Key()]; ok {
		return entity.Cart{}, repository.ErrOwnerTaken
	}
	cart := entity.Cart{
		ID:        uuid.NewString(),
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec, err := entity.NewOutboxRecord(uuid.NewString(), cart.ID, cartCreated(cart), s.now())
	if err != nil {
		return entity.Cart{}, err
	}
	s.carts[cart.ID] = cart
	s.owners[owner.Key()] = cart.ID
	s.outbox = append(s.outbox, rec)
	return cart, nil
}

func (s *Store) ListLines(ctx context.Context, cartID string) ([]entity.CartLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedLines(s.lines[cartID]), nil
}

func (s *Store) WithCartLock(ctx context.Context, cartIDs []string, fn func(tx repository.CartTx) error) error {
	ids := sortedUnique(cartIDs)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "cart:" + id
	}
	unlock, err := lock.LockAll(ctx, s.locks, keys)
	if err != nil {
		return fmt.Errorf("failed to lock carts: %w", err)
	}
	defer unlock()

	tx, err := s.begin(ids)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) begin(ids []string) (*memTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:   s,
		locked:  ids,
		carts:   make(map[string]entity.Cart, len(ids)),
		lines:   make(map[string]entity.CartLine),
		deleted: make(map[string]entity.Cart),
	}
	for _, id := range ids {
		cart, ok := s.carts[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", repository.ErrCartNotFound, id)
		}
		tx.carts[id] = cart
		for lineID, l := range s.lines[id] {
			tx.lines[lineID] = l
		}
	}
	return tx, nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.locked {
		delete(s.lines, id)
		if cart, ok := tx.deleted[id]; ok {
			delete(s.carts, id)
			delete(s.owners, cart.Owner.Key())
			continue
		}
		s.carts[id] = tx.carts[id]
	}
	for _, l := range tx.lines {
		if s.lines[l.CartID] == nil {
			s.lines[l.CartID] = make(map[string]entity.CartLine)
		}
		s.lines[l.CartID][l.ID] = l
	}
	s.outbox = append(s.outbox, tx.outbox...)
}

func (s *Store) PendingEvents(ctx context.Context, limit int) ([]entity.OutboxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []entity.OutboxRecord
	for _, r := range s.outbox {
		if r.PublishedAt != nil {
			continue
		}
		pending = append(pending, r)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *Store) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.outbox {
		if want[s.outbox[i].ID] && s.outbox[i].PublishedAt == nil {
			t := at
			s.outbox[i].PublishedAt = &t
		}
	}
	return nil
}

// memTx buffers writes against copies of the locked carts. Nothing reaches
// the Store unless WithCartLock commits it.
type memTx struct {
	store   *Store
	locked  []string
	carts   map[string]entity.Cart
	lines   map[string]entity.CartLine
	deleted map[string]entity.Cart
	outbox  []entity.OutboxRecord
}

func (tx *memTx) cart(cartID string) (entity.Cart, error) {
	cart, ok := tx.carts[cartID]
	if !ok {
		return entity.Cart{}, fmt.Errorf("%w: %s", repository.ErrCartNotFound, cartID)
	}
	return cart, nil
}

func (tx *memTx) GetCart(ctx context.Context, cartID string) (entity.Cart, error) {
	return tx.cart(cartID)
}

func (tx *memTx) ListLines(ctx context.Context, cartID string) ([]entity.CartLine, error) {
	if _, err := tx.cart(cartID); err != nil {
		return nil, err
	}
	own := make(map[string]entity.CartLine)
	for id, l := range tx.lines {
		if l.CartID == cartID {
			own[id] = l
		}
	}
	return sortedLines(own), nil
}

func (tx *memTx) GetLine(ctx context.Context, lineID string) (entity.CartLine, error) {
	l, ok := tx.lines[lineID]
	if !ok {
		return entity.CartLine{}, repository.ErrLineNotFound
	}
	return l, nil
}

func (tx *memTx) checkUnique(line entity.CartLine) error {
	for id, l := range tx.lines {
		if id != line.ID && l.CartID == line.CartID && l.Key() == line.Key() {
			return fmt.Errorf("%w: %s/%s in cart %s", repository.ErrDuplicateLine, line.ProductID, line.VariantID, line.CartID)
		}
	}
	return nil
}

func (tx *memTx) InsertLine(ctx context.Context, line entity.CartLine) error {
	if _, err := tx.cart(line.CartID); err != nil {
		return err
	}
	if line.Quantity <= 0 {
		return fmt.Errorf("invalid quantity %d for line %s", line.Quantity, line.ID)
	}
	if _, ok := tx.lines[line.ID]; ok {
		return fmt.Errorf("%w: line id %s", repository.ErrDuplicateLine, line.ID)
	}
	if err := tx.checkUnique(line); err != nil {
		return err
	}
	tx.lines[line.ID] = line
	return nil
}

func (tx *memTx) UpdateLine(ctx context.Context, line entity.CartLine) error {
	existing, ok := tx.lines[line.ID]
	if !ok {
		return repository.ErrLineNotFound
	}
	if _, err := tx.cart(line.CartID); err != nil {
		return err
	}
	if line.Quantity <= 0 {
		return fmt.Errorf("invalid quantity %d for line %s", line.Quantity, line.ID)
	}
	existing.CartID = line.CartID
	existing.Quantity = line.Quantity
	existing.UpdatedAt = line.UpdatedAt
	if err := tx.checkUnique(existing); err != nil {
		return err
	}
	tx.lines[line.ID] = existing
	return nil
}

func (tx *memTx) DeleteLine(ctx context.Context, lineID string) error {
	if _, ok := tx.lines[lineID]; !ok {
		return repository.ErrLineNotFound
	}
	delete(tx.lines, lineID)
	return nil
}

func (tx *memTx) DeleteLines(ctx context.Context, cartID string) (int, error) {
	if _, err := tx.cart(cartID); err != nil {
		return 0, err
	}
	n := 0
	for id, l := range tx.lines {
		if l.CartID == cartID {
			delete(tx.lines, id)
			n++
		}
	}
	return n, nil
}

func (tx *memTx) DeleteCart(ctx context.Context, cartID string) error {
	cart, err := tx.cart(cartID)
	if err != nil {
		return err
	}
	if _, err := tx.DeleteLines(ctx, cartID); err != nil {
		return err
	}
	delete(tx.carts, cartID)
	tx.deleted[cartID] = cart
	return nil
}

func (tx *memTx) TouchCart(ctx context.Context, cartID string, at time.Time) error {
	cart, err := tx.cart(cartID)
	if err != nil {
		return err
	}
	cart.UpdatedAt = at
	tx.carts[cartID] = cart
	return nil
}

func (tx *memTx) AppendEvents(ctx context.Context, cartID string, events ...entity.Event) error {
	now := tx.store.now()
	for _, e := range events {
		rec, err := entity.NewOutboxRecord(uuid.NewString(), cartID, e, now)
		if err != nil {
			return err
		}
		tx.outbox = append(tx.outbox, rec)
	}
	return nil
}

func cartCreated(c entity.Cart) entity.CartCreated {
	return entity.CartCreated{
		CartID:    c.ID,
		AccountID: c.Owner.AccountID(),
		SessionID: c.Owner.SessionID(),
		CreatedAt: c.CreatedAt,
	}
}

func sortedLines(m map[string]entity.CartLine) []entity.CartLine {
	lines := make([]entity.CartLine, 0, len(m))
	for _, l := range m {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].CreatedAt.Equal(lines[j].CreatedAt) {
			return lines[i].CreatedAt.Before(lines[j].CreatedAt)
		}
		return lines[i].ID < lines[j].ID
	})
	return lines
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
