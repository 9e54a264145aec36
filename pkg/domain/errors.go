package domain

import "errors"

// Error kinds for circulation and catalog failures. Call sites wrap
// these with context via fmt.Errorf("...: %w", Err...) so callers can
// match the kind with errors.Is while keeping a readable message.
var (
	// ErrNotFound reports an absent item, member, or loan.
	ErrNotFound = errors.New("not found")

	// ErrOutOfStock reports a borrow against an item with no copies left.
	ErrOutOfStock = errors.New("out of stock")

	// ErrAlreadyBorrowed reports a duplicate active loan for the same
	// member and item.
	ErrAlreadyBorrowed = errors.New("already borrowed")

	// ErrBadRequest reports malformed or missing request input, such as a
	// staff-initiated action without a target username.
	ErrBadRequest = errors.New("bad request")

	// ErrForbidden reports a failed permission check.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicate reports a unique-key violation on add.
	ErrDuplicate = errors.New("already exists")

	// ErrInternal reports a persistence failure after which the whole
	// operation was rolled back.
	ErrInternal = errors.New("internal error")
)
