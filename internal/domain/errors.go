package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while running a judgement session.
var (
	// ErrUnknownItem indicates that an operation referenced an item outside
	// the fixed item set. It is a programming error and should end the
	// session.
	ErrUnknownItem = errors.New("unknown item")

	// ErrInsufficientItems indicates that fewer than two items are available,
	// so no pair can ever be formed.
	ErrInsufficientItems = errors.New("insufficient items")

	// ErrPairsExhausted reports that every distinct pair has already been
	// compared under an exclusion policy. It is an expected terminal
	// condition, comparable to io.EOF: callers stop requesting trials.
	ErrPairsExhausted = errors.New("all pairs exhausted")

	// ErrInvalidWinner indicates that a resolution named a winner that is
	// not one of the two presented items.
	ErrInvalidWinner = errors.New("invalid winner")

	// ErrInvalidPair indicates that a pair referenced the same item twice.
	ErrInvalidPair = errors.New("invalid pair")

	// ErrDuplicateItem indicates that the item set contained the same
	// identifier more than once.
	ErrDuplicateItem = errors.New("duplicate item")

	// ErrEmptyItemID indicates that an item identifier was empty.
	ErrEmptyItemID = errors.New("empty item id")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ItemError represents an error tied to a specific item.
// It provides context about which item and operation caused the error.
type ItemError struct {
	// Item is the identifier involved in the failed operation.
	Item ItemID

	// Operation describes what was being performed when the error occurred.
	Operation string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for ItemError.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item error: operation=%s, item=%q, err=%v", e.Operation, e.Item, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *ItemError) Unwrap() error { return e.Err }

// NewItemError creates a new ItemError with the given details.
func NewItemError(item ItemID, operation string, err error) *ItemError {
	return &ItemError{
		Item:      item,
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets callers match any ValidationError against ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
