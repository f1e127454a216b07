package service

import "github.com/sijan324/nepshop/internal/entity"

// Identity is what the edge knows about the caller. AccountID wins when both
// are set.
type Identity struct {
	AccountID string
	SessionID string
}

// Owner picks the cart owner for the identity.
func (id Identity) Owner() (entity.CartOwner, error) {
	switch {
	case id.AccountID != "":
		return entity.AccountOwner(id.AccountID), nil
	case id.SessionID != "":
		return entity.SessionOwner(id.SessionID), nil
	default:
		return entity.CartOwner{}, ErrMissingIdentity
	}
}
