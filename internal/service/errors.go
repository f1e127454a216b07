package service

import (
	"errors"

	"github.com/sijan324/nepshop/internal/repository"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLineNotFound      = errors.New("cart item not found")
	// ErrIdentityConflict is returned when a merge finds both identities bound
	// to the same cart or the session bound to an account cart.
	ErrIdentityConflict = errors.New("cart identity conflict")
	// ErrMissingIdentity is returned when a request carries neither an account
	// nor a session.
	ErrMissingIdentity = errors.New("missing cart identity")
	// ErrUnavailable is the storage error callers may retry.
	ErrUnavailable = repository.ErrUnavailable
)
