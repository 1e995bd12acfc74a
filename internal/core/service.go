// Package core wires the clone engine to a persistent store and exposes the
// application-level operations used by the CLI.
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

// ErrNotStored is returned by Seed when the store refuses a record, usually
// because a required attribute is blank.
var ErrNotStored = errors.Base("record not stored")

// ErrNotFound is returned when a request names a record that does not exist.
type ErrNotFound struct {
	Entity domain.EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Destination names a stored owner and the association the copy joins.
type Destination struct {
	Type        domain.EntityType
	ID          string
	Association string
}

// ParseDestination reads the type/id/association form used on the command line.
func ParseDestination(s string) (Destination, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Destination{}, errors.Errorf("destination %q is not type/id/association", s)
	}
	return Destination{Type: domain.EntityType(parts[0]), ID: parts[1], Association: parts[2]}, nil
}

func (d Destination) String() string {
	return fmt.Sprintf("%s/%s/%s", d.Type, d.ID, d.Association)
}

// CloneRequest asks for a copy of the stored record Type/ID.
type CloneRequest struct {
	Type  domain.EntityType
	ID    string
	Force bool
	Into  *Destination
}

// CloneResult is the copy produced for one request and the non-blocking rule
// findings of the commit it was part of.
type CloneResult struct {
	Request CloneRequest
	Copy    *domain.Record
	Result  domain.Result
}

// Service runs clone requests against one store.
type Service struct {
	store  domain.PersistentStore
	engine *clone.Engine
}

// NewService constructs a service. engine must have been built for store.
func NewService(store domain.PersistentStore, engine *clone.Engine) *Service {
	return &Service{store: store, engine: engine}
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Engine returns the clone engine.
func (s *Service) Engine() *clone.Engine {
	return s.engine
}

// Clone runs one request in its own transaction.
func (s *Service) Clone(ctx context.Context, req CloneRequest) (CloneResult, error) {
	results, err := s.CloneBatch(ctx, []CloneRequest{req})
	if err != nil {
		return CloneResult{}, err
	}
	return results[0], nil
}

// CloneBatch runs every request inside one shared transaction. Either all
// forced copies are stored or none are.
func (s *Service) CloneBatch(ctx context.Context, reqs []CloneRequest) ([]CloneResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	logger := zerolog.Ctx(ctx)
	var copies []*domain.Record
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		copies = copies[:0]
		for _, req := range reqs {
			rec, err := s.cloneIn(ctx, tx, req)
			if err != nil {
				return err
			}
			copies = append(copies, rec)
		}
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Int("requests", len(reqs)).Msg("clone failed")
		return nil, err
	}

	out := make([]CloneResult, len(reqs))
	for i, req := range reqs {
		out[i] = CloneResult{Request: req, Copy: copies[i], Result: res}
		logger.Info().
			Str("entity_type", string(req.Type)).
			Str("source_id", req.ID).
			Str("copy_id", copies[i].ID).
			Bool("persisted", copies[i].Persisted()).
			Msg("cloned")
	}
	if len(res.Violations) > 0 {
		logger.Warn().Int("violations", len(res.Violations)).Msg("clone committed with rule findings")
	}
	return out, nil
}

func (s *Service) cloneIn(ctx context.Context, tx domain.Transaction, req CloneRequest) (*domain.Record, error) {
	target, ok := tx.Find(req.Type, req.ID)
	if !ok {
		return nil, ErrNotFound{Entity: req.Type, ID: req.ID}
	}
	var destination domain.Association
	if req.Into != nil {
		owner, ok := tx.Find(req.Into.Type, req.Into.ID)
		if !ok {
			return nil, ErrNotFound{Entity: req.Into.Type, ID: req.Into.ID}
		}
		assoc, err := owner.Association(req.Into.Association)
		if err != nil {
			return nil, errors.Errorf("destination %s: %w", req.Into, err)
		}
		destination = assoc
	}

	op := s.engine.New(target, destination, clone.Options{
		Force:           req.Force,
		SkipTransaction: true,
		Transaction:     tx,
	})
	copied, err := op.Make(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := copied.(*domain.Record)
	if !ok {
		return nil, errors.Errorf("clone of %s produced %T", req.Type, copied)
	}
	return rec, nil
}

// Seed saves record graphs in one transaction. Unsaved members are stored
// with their owners.
func (s *Service) Seed(ctx context.Context, roots ...*domain.Record) (domain.Result, error) {
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, root := range roots {
			stored, err := tx.Save(root)
			if err != nil {
				return errors.Errorf("seed %s: %w", root, err)
			}
			if !stored {
				return errors.Errorf("%w: %s", ErrNotStored, root)
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	zerolog.Ctx(ctx).Info().Int("roots", len(roots)).Msg("seeded")
	return res, nil
}

// Get loads a committed record graph.
func (s *Service) Get(t domain.EntityType, id string) (*domain.Record, error) {
	rec, ok := s.store.Get(t, id)
	if !ok {
		return nil, ErrNotFound{Entity: t, ID: id}
	}
	return rec, nil
}

// List returns the committed records of t.
func (s *Service) List(t domain.EntityType) []*domain.Record {
	return s.store.List(t)
}
