package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"partnertrack/internal/domain"
)

// ErrPersist wraps a failed save. The in-memory state has already been updated when it is returned.
var ErrPersist = errors.New("persist state")

// Backend is the durable storage the Store writes through to.
type Backend interface {
	Load(ctx context.Context) domain.AppState
	Save(ctx context.Context, state domain.AppState) error
}

// Store owns the single AppState. All mutations go through Dispatch or Update,
// which share one mutex and persist the whole state before returning.
type Store struct {
	mu      sync.Mutex
	state   domain.AppState
	reducer Reducer
	backend Backend
	log     *slog.Logger
}

// New loads the initial state from backend.
func New(ctx context.Context, backend Backend, reducer Reducer, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		state:   backend.Load(ctx).Normalize(),
		reducer: reducer,
		backend: backend,
		log:     log,
	}
}

// Dispatch applies action and saves the resulting state.
func (s *Store) Dispatch(ctx context.Context, action Action) (domain.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, action)
}

// Update calls build with the current state and commits the action it returns
// under the same lock. build must not modify the state it is given. An error from build is returned
// as is and nothing is applied; a nil action leaves the state untouched.
func (s *Store) Update(ctx context.Context, build func(domain.AppState) (Action, error)) (domain.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, err := build(s.state)
	if err != nil {
		return domain.AppState{}, err
	}
	if action == nil {
		return s.state.Clone(), nil
	}
	return s.commit(ctx, action)
}

func (s *Store) commit(ctx context.Context, action Action) (domain.AppState, error) {
	s.state = s.reducer.Apply(s.state, action)
	kind := "unknown"
	if action != nil {
		kind = action.Kind()
	}
	if err := s.backend.Save(ctx, s.state); err != nil {
		s.log.Error("save state failed", slog.String("action", kind), slog.Any("error", err))
		return s.state.Clone(), fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.log.Debug("action applied", slog.String("action", kind))
	return s.state.Clone(), nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() domain.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}
