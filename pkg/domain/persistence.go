package domain

import "context"

// Transaction exposes the operations a persistence implementation supports
// within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	// Save durably stores e within the transaction. It reports false, with a
	// nil error, when the record is invalid and was not stored. Unsaved
	// members of e's associations are saved first.
	Save(e Entity) (bool, error)
	// Find hydrates the record and everything reachable from it through
	// stored association links.
	Find(t EntityType, id string) (*Record, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	RuleView
	Types() []EntityType
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Get(t EntityType, id string) (*Record, bool)
	List(t EntityType) []*Record
}
