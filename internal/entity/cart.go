package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerKind tells which identity a cart belongs to.
type OwnerKind int

const (
	OwnerNone OwnerKind = iota
	OwnerAccount
	OwnerSession
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerAccount:
		return "account"
	case OwnerSession:
		return "session"
	default:
		return "none"
	}
}

// CartOwner is either an account or an anonymous session, never both.
// The zero value owns nothing and is rejected by stores.
type CartOwner struct {
	kind OwnerKind
	id   string
}

// AccountOwner returns an owner bound to an authenticated account.
func AccountOwner(accountID string) CartOwner {
	return CartOwner{kind: OwnerAccount, id: accountID}
}

// SessionOwner returns an owner bound to an anonymous session.
func SessionOwner(sessionID string) CartOwner {
	return CartOwner{kind: OwnerSession, id: sessionID}
}

func (o CartOwner) Kind() OwnerKind { return o.kind }
func (o CartOwner) ID() string      { return o.id }

// Valid reports whether the owner names exactly one identity.
func (o CartOwner) Valid() bool {
	return o.kind != OwnerNone && o.id != ""
}

// AccountID returns the account id, or "" for session-owned carts.
func (o CartOwner) AccountID() string {
	if o.kind == OwnerAccount {
		return o.id
	}
	return ""
}

// SessionID returns the session id, or "" for account-owned carts.
func (o CartOwner) SessionID() string {
	if o.kind == OwnerSession {
		return o.id
	}
	return ""
}

// Key is a stable string form used for locking and logging.
func (o CartOwner) Key() string {
	return o.kind.String() + ":" + o.id
}

func (o CartOwner) String() string { return o.Key() }

// Cart is the stored cart header. Lines are loaded separately.
type Cart struct {
	ID        string
	Owner     CartOwner
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineKey identifies a line within a cart. VariantID is empty for products
// bought without a variant.
type LineKey struct {
	ProductID string
	VariantID string
}

// CartLine is one (product, variant) entry. UnitPrice is the snapshot taken when
// the line was created and is never refreshed from the catalog.
type CartLine struct {
	ID        string
	CartID    string
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

// Total returns UnitPrice × Quantity rounded to cents.
func (l CartLine) Total() decimal.Decimal {
	return RoundMoney(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// FindLine returns the index of the line matching key, or -1.
func FindLine(lines []CartLine, key LineKey) int {
	for i, l := range lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

// RoundMoney rounds to two fractional digits.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
