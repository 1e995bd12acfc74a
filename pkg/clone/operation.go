package clone

import (
	"context"

	"gitlab.com/tozd/go/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"graphclone/pkg/domain"
)

// State is the lifecycle position of an Operation.
type State int

// Operation states in execution order. Done and Failed are terminal.
const (
	StateCreated State = iota
	StateValidating
	StateDuplicating
	StateClearingAttributes
	StateBeforeHook
	StateAttaching
	StateCopyingAssociations
	StateAfterHook
	StatePersisting
	StateDone
	StateFailed
)

var stateNames = [...]string{
	"created",
	"validating",
	"duplicating",
	"clearing_attributes",
	"before_hook",
	"attaching",
	"copying_associations",
	"after_hook",
	"persisting",
	"done",
	"failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Operation is one execution of cloning a single target. It is not reusable.
type Operation struct {
	engine      *Engine
	target      domain.Entity
	destination domain.Association
	options     Options
	depth       int

	state  State
	copy   domain.Entity
	result domain.Result
}

// State returns the current lifecycle state.
func (op *Operation) State() State { return op.state }

// Copy returns the produced clone, or nil before a successful Make.
func (op *Operation) Copy() domain.Entity { return op.copy }

// Result returns the rule findings of the commit this operation opened. It
// is empty for operations that joined an ambient transaction.
func (op *Operation) Result() domain.Result { return op.result }

// Make runs the clone. It returns the copy, or an error after which nothing
// from this operation tree remains in the store.
func (op *Operation) Make(ctx context.Context) (domain.Entity, error) {
	if op.state != StateCreated {
		return nil, errors.WithStack(ErrOperationUsed)
	}
	started := op.engine.now()
	entityType := op.targetType()
	ctx, span := op.engine.tracer.Start(ctx, "clone.make", trace.WithAttributes(
		attribute.String("clone.entity_type", string(entityType)),
		attribute.Int("clone.depth", op.depth),
		attribute.Bool("clone.force", op.options.Force),
		attribute.Bool("clone.skip_transaction", op.options.SkipTransaction),
	))
	defer span.End()

	copied, err := op.run(ctx)
	op.engine.recorder.Observe(ctx, entityType, err == nil, op.engine.now().Sub(started))
	if err != nil {
		op.state = StateFailed
		op.copy = nil
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	op.state = StateDone
	op.copy = copied
	return copied, nil
}

func (op *Operation) run(ctx context.Context) (domain.Entity, error) {
	if op.options.SkipTransaction {
		return op.makeOrFail(ctx, op.options.Transaction)
	}
	if op.engine.store == nil {
		return nil, errors.WithStack(ErrTransactionRequired)
	}
	var copied domain.Entity
	res, err := op.engine.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var runErr error
		copied, runErr = op.makeOrFail(ctx, tx)
		return runErr
	})
	op.result = res
	if err != nil {
		return nil, err
	}
	return copied, nil
}

func (op *Operation) makeOrFail(ctx context.Context, tx domain.Transaction) (domain.Entity, error) {
	op.state = StateValidating
	if domain.IsNil(op.target) || op.target.EntityType() == "" {
		return nil, &InvalidTargetError{}
	}
	if op.engine.maxDepth > 0 && op.depth >= op.engine.maxDepth {
		return nil, errors.Errorf("%w: %d levels below %s", ErrMaxDepthExceeded, op.depth, op.target.EntityType())
	}
	spec, err := op.engine.registry.Resolve(op.target.EntityType())
	if err != nil {
		return nil, err
	}

	op.state = StateDuplicating
	clon := op.target.Duplicate()
	if domain.IsNil(clon) {
		return nil, errors.Errorf("duplicate %s returned nil", spec.entityType)
	}

	op.state = StateClearingAttributes
	for _, name := range spec.cleared {
		if err := clon.SetAttribute(name, nil); err != nil {
			return nil, errors.Errorf("clear %s.%s: %w", spec.entityType, name, err)
		}
	}

	op.state = StateBeforeHook
	if err := runHooks(ctx, clon, op.options.Before, spec.before); err != nil {
		return nil, err
	}

	op.state = StateAttaching
	if !isNilAssociation(op.destination) {
		if err := op.destination.Append(clon); err != nil {
			return nil, errors.Errorf("attach %s copy: %w", spec.entityType, err)
		}
	}

	op.state = StateCopyingAssociations
	for _, assoc := range spec.associations {
		if err := op.copyAssociation(ctx, tx, spec, clon, assoc); err != nil {
			return nil, err
		}
	}

	op.state = StateAfterHook
	if err := runHooks(ctx, clon, op.options.After, spec.after); err != nil {
		return nil, err
	}

	if op.options.Force {
		op.state = StatePersisting
		if tx == nil {
			return nil, errors.WithStack(ErrTransactionRequired)
		}
		stored, err := tx.Save(clon)
		if err != nil {
			return nil, &PersistenceFailedError{Type: spec.entityType, Err: err}
		}
		if !stored {
			return nil, &PersistenceFailedError{Type: spec.entityType}
		}
	}
	return clon, nil
}

// copyAssociation reads members from the original target and appends their
// copies to the same-named association of clon.
func (op *Operation) copyAssociation(ctx context.Context, tx domain.Transaction, spec *Spec, clon domain.Entity, assoc AssociationSpec) error {
	source, err := op.target.Association(assoc.Name)
	if err != nil {
		return &AssociationReadError{Type: spec.entityType, Name: assoc.Name, Err: err}
	}
	destination, err := clon.Association(assoc.Name)
	if err != nil {
		return &AssociationReadError{Type: spec.entityType, Name: assoc.Name, Err: err}
	}
	opts := assoc.Options.nested(tx)
	for _, member := range source.Members() {
		nested := op.engine.New(member, destination, opts)
		nested.depth = op.depth + 1
		if _, err := nested.Make(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (op *Operation) targetType() domain.EntityType {
	if domain.IsNil(op.target) {
		return ""
	}
	return op.target.EntityType()
}

func runHooks(ctx context.Context, clon domain.Entity, hooks ...Hook) error {
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if err := h(ctx, clon); err != nil {
			return err
		}
	}
	return nil
}

func isNilAssociation(a domain.Association) bool {
	if a == nil {
		return true
	}
	c, ok := a.(*domain.Collection)
	return ok && c == nil
}
