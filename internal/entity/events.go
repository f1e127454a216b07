package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event represents a cart domain event.
type Event interface {
	EventType() string
}

// OutboxRecord represents an event waiting in the outbox for publication.
type OutboxRecord struct {
	ID          string     `json:"id"`
	CartID      string     `json:"cart_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// NewOutboxRecord marshals an event into an outbox record.
func NewOutboxRecord(id, cartID string, e Event, now time.Time) (OutboxRecord, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return OutboxRecord{}, fmt.Errorf("failed to marshal event %s: %w", e.EventType(), err)
	}
	return OutboxRecord{
		ID:        id,
		CartID:    cartID,
		EventType: e.EventType(),
		Payload:   payload,
		CreatedAt: now,
	}, nil
}

// CartCreated is emitted when a cart is created for an identity.
type CartCreated struct {
	CartID    string    `json:"cart_id"`
	AccountID string    `json:"account_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (e CartCreated) EventType() string { return "CartCreated" }

// ItemAddedToCart is emitted when a product is added or its quantity incremented.
type ItemAddedToCart struct {
	CartID    string          `json:"cart_id"`
	LineID    string          `json:"line_id"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	LineQty   int             `json:"line_quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (e ItemAddedToCart) EventType() string { return "ItemAddedToCart" }

// CartItemUpdated is emitted when a line quantity is replaced.
type CartItemUpdated struct {
	CartID   string `json:"cart_id"`
	LineID   string `json:"line_id"`
	Quantity int    `json:"quantity"`
}

func (e CartItemUpdated) EventType() string { return "CartItemUpdated" }

// CartItemRemoved is emitted when a line is deleted.
type CartItemRemoved struct {
	CartID    string `json:"cart_id"`
	LineID    string `json:"line_id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

func (e CartItemRemoved) EventType() string { return "CartItemRemoved" }

// CartCleared is emitted when all lines of a cart are deleted.
type CartCleared struct {
	CartID       string `json:"cart_id"`
	RemovedLines int    `json:"removed_lines"`
}

func (e CartCleared) EventType() string { return "CartCleared" }

// CartsMerged is emitted when an anonymous cart is folded into an account cart
// and retired.
type CartsMerged struct {
	SourceCartID string    `json:"source_cart_id"`
	TargetCartID string    `json:"target_cart_id"`
	SessionID    string    `json:"session_id"`
	AccountID    string    `json:"account_id"`
	MovedLines   int       `json:"moved_lines"`
	SummedLines  int       `json:"summed_lines"`
	MergedAt     time.Time `json:"merged_at"`
}

func (e CartsMerged) EventType() string { return "CartsMerged" }
