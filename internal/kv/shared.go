package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/ProjectMoon/reed/internal/config"
	"github.com/ProjectMoon/reed/internal/errs"
)

// Dialer opens a Store for a configuration.
type Dialer func(ctx context.Context, cfg config.Store) (Store, error)

// Shared is a reference-counted Store connection. The first Acquire dials;
// the last Release closes. Owners must not Close the returned Store
// themselves.
type Shared struct {
	mu    sync.Mutex
	cfg   config.Store
	dial  Dialer
	store Store
	refs  int
}

// NewShared returns a Shared that will dial cfg with dial, or with Open when
// dial is nil.
func NewShared(cfg config.Store, dial Dialer) *Shared {
	if dial == nil {
		dial = Open
	}
	return &Shared{cfg: cfg, dial: dial}
}

// Configure merges the non-zero fields of cfg into the connection settings.
// Settings take effect on the next dial; an open connection is not replaced.
func (s *Shared) Configure(cfg config.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = s.cfg.Merge(cfg)
}

// Config returns the current connection settings.
func (s *Shared) Config() config.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Acquire returns the shared Store, dialing it when no owner holds it.
func (s *Shared) Acquire(ctx context.Context) (Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		store, err := s.dial(ctx, s.cfg)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	s.refs++
	return s.store, nil
}

// Release drops one reference and closes the Store when none remain.
func (s *Shared) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return fmt.Errorf("%w: release without acquire", errs.ErrPrecondition)
	}
	s.refs--
	if s.refs > 0 {
		return nil
	}

	store := s.store
	s.store = nil
	return store.Close()
}

// Refs returns the number of current owners.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}
