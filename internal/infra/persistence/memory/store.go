// Package memory provides an in-memory implementation of the persistence
// store used for tests, ephemeral environments, and as the transactional core
// of the snapshotting backends.
package memory

import (
	"context"
	"graphclone/pkg/domain"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Record aliases domain.Record.
	Record = domain.Record
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitHook runs with the state a transaction is about to commit. An error
// aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides the generator used for new record IDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithCommitHook registers a hook run before each commit is applied.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commitHook = hook }
}

// Store provides an in-memory transactional store for records.
type Store struct {
	mu         sync.RWMutex
	state      memoryState
	model      *domain.Model
	engine     *RulesEngine
	nowFn      func() time.Time
	newID      func() string
	commitHook CommitHook
}

// NewStore constructs an in-memory store validating saves against model and
// evaluating engine at commit. Both may be nil.
func NewStore(model *domain.Model, engine *RulesEngine, opts ...Option) *Store {
	if model == nil {
		model = domain.NewModel()
	}
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		model:  model,
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// Model returns the entity model used to validate saves.
func (s *Store) Model() *domain.Model { return s.model }

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type savedRecord struct {
	rec       *Record
	base      domain.Base
	persisted bool
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	saved   []savedRecord
	tracked map[*Record]bool
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// Find hydrates a record within the transaction snapshot.
func (v transactionView) Find(t domain.EntityType, id string) (*Record, bool) {
	return v.state.hydrate(t, id, make(map[Ref]*Record))
}

// List returns every record of type t ordered by creation time.
func (v transactionView) List(t domain.EntityType) []*Record {
	return v.state.list(t)
}

// Types lists entity types that have stored records.
func (v transactionView) Types() []domain.EntityType {
	return v.state.types()
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds, no blocking
// rule fires, and the commit hook accepts it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := zerolog.Ctx(ctx)
	if err := ctx.Err(); err != nil {
		return Result{}, errors.WithStack(err)
	}

	tx := &transaction{
		store:   s,
		state:   s.state.clone(),
		tracked: make(map[*Record]bool),
		now:     s.nowFn(),
	}

	if err := fn(tx); err != nil {
		tx.rollback()
		logger.Debug().Err(err).Int("changes", len(tx.changes)).Msg("transaction rolled back")
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			tx.rollback()
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			tx.rollback()
			logger.Debug().Int("violations", len(res.Violations)).Msg("transaction blocked by rules")
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commitHook != nil {
		if err := s.commitHook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			tx.rollback()
			logger.Debug().Err(err).Msg("commit hook rejected transaction")
			return result, err
		}
	}

	s.state = tx.state
	logger.Debug().Int("changes", len(tx.changes)).Msg("transaction committed")
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Find hydrates a record from the transactional state.
func (tx *transaction) Find(t domain.EntityType, id string) (*Record, bool) {
	return tx.state.hydrate(t, id, make(map[Ref]*Record))
}

// Save stores rec and cascades to its unsaved association members.
func (tx *transaction) Save(e domain.Entity) (bool, error) {
	rec, ok := e.(*Record)
	if !ok || rec == nil {
		return false, errors.Errorf("memory store cannot save %T", e)
	}
	return tx.save(rec, make(map[*Record]bool))
}

func (tx *transaction) save(rec *Record, visiting map[*Record]bool) (bool, error) {
	if visiting[rec] {
		return true, nil
	}
	visiting[rec] = true
	if rec.Type == "" {
		return false, errors.New("record has no entity type")
	}
	if missing := tx.store.model.Missing(rec); len(missing) > 0 {
		return false, nil
	}

	tx.track(rec)
	prev := rec.Base
	if rec.ID == "" {
		rec.ID = tx.store.newID()
	}
	before, exists := tx.state.row(rec.Type, rec.ID)

	for _, name := range rec.AssociationNames() {
		c, _ := rec.Collection(name)
		if len(c.Records()) != c.Len() {
			rec.Base = prev
			return false, errors.Errorf("%s.%s holds members the memory store cannot save", rec.Type, name)
		}
		for _, member := range c.Records() {
			if member.Persisted() {
				continue
			}
			stored, err := tx.save(member, visiting)
			if err != nil || !stored {
				rec.Base = prev
				return stored, err
			}
		}
	}

	if !exists {
		rec.CreatedAt = tx.now
	}
	rec.UpdatedAt = tx.now
	row := rowFromRecord(rec)
	tx.state.put(row)
	rec.SetPersisted(true)
	if exists {
		tx.recordChange(Change{Entity: rec.Type, Action: domain.ActionUpdate, Before: recordFromRow(before), After: recordFromRow(row)})
	} else {
		tx.recordChange(Change{Entity: rec.Type, Action: domain.ActionCreate, After: recordFromRow(row)})
	}

	for _, c := range rec.Owners() {
		owner := c.Owner()
		if owner == nil || !owner.Persisted() || visiting[owner] {
			continue
		}
		tx.relink(owner, c)
	}
	return true, nil
}

// relink rewrites the stored link of a persisted owner after a member was saved.
func (tx *transaction) relink(owner *Record, c *domain.Collection) {
	current, ok := tx.state.row(owner.Type, owner.ID)
	if !ok {
		return
	}
	before := cloneRow(current)
	updated := cloneRow(current)
	if updated.Links == nil {
		updated.Links = make(map[string]Link)
	}
	if _, declared := updated.Links[c.Name()]; !declared {
		updated.Order = append(updated.Order, c.Name())
	}
	updated.Links[c.Name()] = linkFromCollection(c)
	updated.UpdatedAt = tx.now
	tx.state.put(updated)
	tx.recordChange(Change{Entity: owner.Type, Action: domain.ActionUpdate, Before: recordFromRow(before), After: recordFromRow(updated)})
}

func (tx *transaction) track(rec *Record) {
	if tx.tracked[rec] {
		return
	}
	tx.tracked[rec] = true
	tx.saved = append(tx.saved, savedRecord{rec: rec, base: rec.Base, persisted: rec.Persisted()})
}

// rollback restores the in-memory records saved by this transaction.
func (tx *transaction) rollback() {
	for i := len(tx.saved) - 1; i >= 0; i-- {
		s := tx.saved[i]
		s.rec.Base = s.base
		s.rec.SetPersisted(s.persisted)
	}
}

// Read helpers ---------------------------------------------------------------

// Get hydrates a record from committed state.
func (s *Store) Get(t domain.EntityType, id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.hydrate(t, id, make(map[Ref]*Record))
}

// List returns all records of type t from committed state.
func (s *Store) List(t domain.EntityType) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.list(t)
}

// Types lists entity types that have committed records.
func (s *Store) Types() []domain.EntityType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.types()
}
