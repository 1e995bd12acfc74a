package clone

import (
	"fmt"

	"gitlab.com/tozd/go/errors"

	"graphclone/pkg/domain"
)

var (
	// ErrOperationUsed is returned when Make is called more than once.
	ErrOperationUsed = errors.Base("clone operation already made")
	// ErrTransactionRequired is returned when an operation must save or open
	// a transaction but has neither a store nor an ambient transaction.
	ErrTransactionRequired = errors.Base("clone operation requires a transaction")
	// ErrDuplicateStrategy is returned when a type is registered twice.
	ErrDuplicateStrategy = errors.Base("clone strategy already registered")
	// ErrMaxDepthExceeded is returned when recursion passes the engine's depth limit.
	ErrMaxDepthExceeded = errors.Base("clone depth limit exceeded")
)

// InvalidTargetError reports an absent clone target.
type InvalidTargetError struct{}

func (e *InvalidTargetError) Error() string { return "clone target is absent" }

// StrategyNotFoundError reports an entity type without a registered Spec.
type StrategyNotFoundError struct {
	Type domain.EntityType
}

func (e *StrategyNotFoundError) Error() string {
	return fmt.Sprintf("no clone strategy registered for %q", e.Type)
}

// AssociationReadError reports a declared association that cannot be read
// off an entity, which means the Spec does not match the entity's schema.
type AssociationReadError struct {
	Type domain.EntityType
	Name string
	Err  error
}

func (e *AssociationReadError) Error() string {
	return fmt.Sprintf("read association %s.%s: %v", e.Type, e.Name, e.Err)
}

func (e *AssociationReadError) Unwrap() error { return e.Err }

// PersistenceFailedError reports a forced save that did not store the copy.
// Err is set when the store returned an error rather than a refusal.
type PersistenceFailedError struct {
	Type domain.EntityType
	Err  error
}

func (e *PersistenceFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("persist %s copy: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("persist %s copy: record was not stored", e.Type)
}

func (e *PersistenceFailedError) Unwrap() error { return e.Err }
