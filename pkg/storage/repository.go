package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/governance-platform/assessment/pkg/evaluation"
)

// ErrCorruptRecord marks a stored record that cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt evaluation record")

// DefaultKeyPrefix is prepended to the evaluation id to form its key.
const DefaultKeyPrefix = "evaluation_"

// Repository loads and saves whole evaluation records.
type Repository struct {
	backend Backend
	prefix  string
	logger  *slog.Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RepositoryOption {
	return func(r *Repository) { r.prefix = prefix }
}

// WithLogger sets the repository logger.
func WithLogger(l *slog.Logger) RepositoryOption {
	return func(r *Repository) { r.logger = l }
}

// NewRepository creates a repository over backend.
func NewRepository(backend Backend, opts ...RepositoryOption) *Repository {
	r := &Repository{backend: backend, prefix: DefaultKeyPrefix, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Key returns the backend key for id.
func (r *Repository) Key(id int64) string {
	return r.prefix + strconv.FormatInt(id, 10)
}

func (r *Repository) load(ctx context.Context, id int64) (*evaluation.Evaluation, error) {
	e, _, err := r.loadRaw(ctx, id)
	return e, err
}

// loadRaw also returns the stored bytes, which a later conditional write
// compares against.
func (r *Repository) loadRaw(ctx context.Context, id int64) (*evaluation.Evaluation, []byte, error) {
	raw, err := r.backend.Get(ctx, r.Key(id))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil, evaluation.NotFoundError(id)
		}
		return nil, nil, fmt.Errorf("load evaluation %d: %w", id, err)
	}
	e, err := Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("load evaluation %d: %w: %w", id, ErrCorruptRecord, err)
	}
	return e, raw, nil
}

// Get returns the evaluation with id, or an error matching
// evaluation.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*evaluation.Evaluation, error) {
	return r.load(ctx, id)
}

// Exists reports whether a record for id is stored.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := r.backend.Get(ctx, r.Key(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("check evaluation %d: %w", id, err)
}

// NextID derives an id from now in milliseconds, moving forward past ids
// already taken.
func (r *Repository) NextID(ctx context.Context, now time.Time) (int64, error) {
	id := now.UnixMilli()
	for {
		exists, err := r.Exists(ctx, id)
		if err != nil {
			return 0, err
		}
		if !exists {
			return id, nil
		}
		id++
	}
}

// Create stores a new record at revision 1. It fails with
// evaluation.ErrConflict when the id is taken.
func (r *Repository) Create(ctx context.Context, e *evaluation.Evaluation) error {
	e.SchemaVersion = evaluation.SchemaVersion
	e.Revision = 1
	if err := r.write(ctx, e, nil); err != nil {
		e.Revision = 0
		if errors.Is(err, ErrValueChanged) {
			return fmt.Errorf("evaluation %d already exists: %w", e.ID, evaluation.ErrConflict)
		}
		return err
	}
	return nil
}

// Save replaces a stored record and increments e.Revision. It fails with
// evaluation.ErrConflict when the stored revision differs from e.Revision,
// or when another writer replaces the record between the revision check and
// the write.
func (r *Repository) Save(ctx context.Context, e *evaluation.Evaluation) error {
	stored, raw, err := r.loadRaw(ctx, e.ID)
	if err != nil {
		return err
	}
	if stored.Revision != e.Revision {
		return fmt.Errorf("evaluation %d: revision %d is stale, stored revision is %d: %w",
			e.ID, e.Revision, stored.Revision, evaluation.ErrConflict)
	}
	e.SchemaVersion = evaluation.SchemaVersion
	e.Revision++
	if err := r.write(ctx, e, raw); err != nil {
		e.Revision--
		switch {
		case errors.Is(err, ErrValueChanged):
			return fmt.Errorf("evaluation %d changed while saving revision %d: %w",
				e.ID, e.Revision, evaluation.ErrConflict)
		case errors.Is(err, ErrKeyNotFound):
			return evaluation.NotFoundError(e.ID)
		}
		return err
	}
	return nil
}

// write stores e if the backend still holds old; see Backend.CompareAndSet.
func (r *Repository) write(ctx context.Context, e *evaluation.Evaluation, old []byte) error {
	raw, err := Encode(e)
	if err != nil {
		return err
	}
	if err := r.backend.CompareAndSet(ctx, r.Key(e.ID), old, raw); err != nil {
		return fmt.Errorf("save evaluation %d: %w", e.ID, err)
	}
	return nil
}

// Delete removes the record for id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	exists, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return evaluation.NotFoundError(id)
	}
	if err := r.backend.Remove(ctx, r.Key(id)); err != nil {
		return fmt.Errorf("delete evaluation %d: %w", id, err)
	}
	return nil
}

// List returns every stored evaluation. Records that cannot be decoded are
// logged and skipped.
func (r *Repository) List(ctx context.Context) ([]*evaluation.Evaluation, error) {
	keys, err := r.backend.List(ctx, r.prefix)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	out := make([]*evaluation.Evaluation, 0, len(keys))
	for _, key := range keys {
		idPart := strings.TrimPrefix(key, r.prefix)
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			r.logger.Warn("skipping key with non-numeric id", "key", key)
			continue
		}
		e, err := r.load(ctx, id)
		if err != nil {
			if errors.Is(err, evaluation.ErrNotFound) {
				continue
			}
			if errors.Is(err, ErrCorruptRecord) {
				r.logger.Warn("skipping unreadable evaluation record", "key", key, "error", err)
				continue
			}
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
