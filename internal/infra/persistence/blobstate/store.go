// Package blobstate persists the in-memory store as immutable snapshot
// objects in a blob store. Each commit writes snapshots/<seq>.json and
// startup loads the highest sequence.
package blobstate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"graphclone/internal/infra/blob/core"
	"graphclone/internal/infra/persistence/memory"
	"graphclone/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Prefix is the key prefix every snapshot object is written under.
const Prefix = "snapshots/"

const contentType = "application/json"

// Option configures a Store.
type Option func(*Store)

// WithRetention keeps only the newest n snapshots after each commit. Zero
// keeps every snapshot.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.retain = n
		}
	}
}

// WithMemoryOptions forwards options to the wrapped in-memory store.
func WithMemoryOptions(opts ...memory.Option) Option {
	return func(s *Store) { s.memOpts = append(s.memOpts, opts...) }
}

// Store wraps memory.Store, writing a snapshot object per commit.
type Store struct {
	*memory.Store
	blobs   core.Store
	mu      sync.Mutex
	seq     uint64
	retain  int
	memOpts []memory.Option
}

// NewStore loads the newest snapshot from blobs, if any, and returns a store
// writing new snapshots to it.
func NewStore(ctx context.Context, blobs core.Store, model *domain.Model, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blob store required")
	}
	s := &Store{blobs: blobs}
	for _, opt := range opts {
		opt(s)
	}
	s.Store = memory.NewStore(model, engine, append(s.memOpts, memory.WithCommitHook(s.persist))...)
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Sequence returns the sequence of the newest snapshot written or loaded.
func (s *Store) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Blobs returns the underlying blob store.
func (s *Store) Blobs() core.Store { return s.blobs }

// SnapshotKey returns the object key for seq. Sequences are zero padded so
// lexical order matches numeric order.
func SnapshotKey(seq uint64) string {
	return fmt.Sprintf("%s%020d.json", Prefix, seq)
}

// ParseSnapshotKey extracts the sequence from a snapshot key.
func ParseSnapshotKey(key string) (uint64, bool) {
	name, ok := strings.CutPrefix(key, Prefix)
	if !ok {
		return 0, false
	}
	name, ok = strings.CutSuffix(name, ".json")
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func (s *Store) snapshotSequences(ctx context.Context) ([]uint64, error) {
	infos, err := s.blobs.List(ctx, Prefix)
	if err != nil {
		return nil, errors.Errorf("list snapshots: %w", err)
	}
	seqs := make([]uint64, 0, len(infos))
	for _, info := range infos {
		if seq, ok := ParseSnapshotKey(info.Key); ok {
			seqs = append(seqs, seq)
		}
	}
	return seqs, nil
}

func (s *Store) load(ctx context.Context) error {
	seqs, err := s.snapshotSequences(ctx)
	if err != nil {
		return err
	}
	if len(seqs) == 0 {
		return nil
	}
	latest := seqs[len(seqs)-1]
	key := SnapshotKey(latest)
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return errors.Errorf("read %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return errors.Errorf("read %s: %w", key, err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return errors.Errorf("decode %s: %w", key, err)
	}
	s.ImportState(snapshot)
	s.seq = latest
	zerolog.Ctx(ctx).Debug().Str("key", key).Msg("blob snapshot loaded")
	return nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Errorf("encode snapshot: %w", err)
	}
	next := s.seq + 1
	key := SnapshotKey(next)
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(payload), core.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"sequence": strconv.FormatUint(next, 10)},
	}); err != nil {
		return errors.Errorf("write %s: %w", key, err)
	}
	s.seq = next
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("key", key).Int("bytes", len(payload)).Msg("blob snapshot written")
	if s.retain > 0 {
		s.prune(ctx, logger)
	}
	return nil
}

// prune drops snapshots older than the retention window. Failures are logged;
// the commit has already succeeded.
func (s *Store) prune(ctx context.Context, logger *zerolog.Logger) {
	seqs, err := s.snapshotSequences(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("snapshot prune skipped")
		return
	}
	if len(seqs) <= s.retain {
		return
	}
	for _, seq := range seqs[:len(seqs)-s.retain] {
		if _, err := s.blobs.Delete(ctx, SnapshotKey(seq)); err != nil {
			logger.Warn().Err(err).Uint64("sequence", seq).Msg("snapshot prune failed")
		}
	}
}
