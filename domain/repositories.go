package domain

import (
	"context"
	"errors"
)

var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrBindingNotFound is returned when an unlink targets a namespace
	// the account holds no binding in.
	ErrBindingNotFound = errors.New("binding not found")
	// ErrBindingConflict is returned when a write would bind an external
	// id that another account already holds. Repositories map their
	// store-level uniqueness violation to this error, which makes the
	// uniqueness check and the write race-free across replicas.
	ErrBindingConflict = errors.New("external identity already bound to another account")
)

// AccountRepository is the account store consumed by the linking flow.
type AccountRepository interface {
	// GetAccountByID returns the account or ErrAccountNotFound.
	GetAccountByID(ctx context.Context, id string) (*Account, error)

	// FindByExternalID returns the account currently bound to the given
	// external id in the namespace, or ErrAccountNotFound.
	FindByExternalID(ctx context.Context, ns Namespace, externalID string) (*Account, error)

	// UpdateBinding writes the binding onto the account and returns the
	// updated account. Rebinding the same namespace overwrites display
	// attributes. Returns ErrBindingConflict if the store's uniqueness
	// constraint rejects the write.
	UpdateBinding(ctx context.Context, accountID string, b Binding) (*Account, error)

	// RemoveBinding clears the account's binding in the namespace.
	// Returns ErrBindingNotFound if no binding exists.
	RemoveBinding(ctx context.Context, accountID string, ns Namespace) error
}
