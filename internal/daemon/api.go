package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ProjectMoon/reed/internal/content"
	"github.com/ProjectMoon/reed/internal/errs"
	"github.com/ProjectMoon/reed/internal/index"
)

// do runs fn against the ready session. While initializing, fn is queued and
// the caller blocks until it is replayed, fails, or ctx ends. Before Open and
// after Close the call fails with errs.ErrPrecondition.
//
// fn counts as session work: Close cancels its context and waits for it
// before releasing the store.
func (d *Daemon) do(ctx context.Context, fn func(ctx context.Context, s *session) error) error {
	d.mu.Lock()
	switch d.state {
	case StateReady:
		s := d.sess
		s.wg.Add(1)
		d.mu.Unlock()
		defer s.wg.Done()

		ctx, cancel := s.bind(ctx)
		defer cancel()
		return fn(ctx, s)

	case StateInitializing:
		c := newCall(ctx, fn)
		err := d.sess.queue.push(c)
		d.mu.Unlock()
		if err != nil {
			return err
		}
		return c.wait()

	default:
		state := d.state
		d.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", errs.ErrPrecondition, d.config.Kind, state)
	}
}

// Get returns the item titled title.
func (d *Daemon) Get(ctx context.Context, title string) (*index.Item, error) {
	var item *index.Item
	err := d.do(ctx, func(ctx context.Context, s *session) error {
		var err error
		item, err = s.rec.Index().Get(ctx, title)
		return err
	})
	return item, err
}

// GetMetadata returns only the metadata of the item titled title.
func (d *Daemon) GetMetadata(ctx context.Context, title string) (*content.Metadata, error) {
	item, err := d.Get(ctx, title)
	if err != nil {
		return nil, err
	}
	return item.Metadata, nil
}

// List returns every title: posts most recent first, pages alphabetically.
func (d *Daemon) List(ctx context.Context) ([]string, error) {
	var titles []string
	err := d.do(ctx, func(ctx context.Context, s *session) error {
		var err error
		titles, err = s.rec.Index().ListTitles(ctx)
		return err
	})
	return titles, err
}

// ListBetween returns post titles last modified within [from, to]; a zero
// bound is open.
func (d *Daemon) ListBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	var titles []string
	err := d.do(ctx, func(ctx context.Context, s *session) error {
		var err error
		titles, err = s.rec.Index().ListTitlesBetween(ctx, from, to)
		return err
	})
	return titles, err
}

// All loads every item in List order, one at a time.
func (d *Daemon) All(ctx context.Context) ([]index.Item, error) {
	var items []index.Item
	err := d.do(ctx, func(ctx context.Context, s *session) error {
		ix := s.rec.Index()
		titles, err := ix.ListTitles(ctx)
		if err != nil {
			return err
		}
		items = make([]index.Item, 0, len(titles))
		for _, title := range titles {
			item, err := ix.Get(ctx, title)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", title, err)
			}
			items = append(items, *item)
		}
		return nil
	})
	return items, err
}

// Remove deletes the item titled title from the index, then deletes its
// source file.
func (d *Daemon) Remove(ctx context.Context, title string) error {
	return d.do(ctx, func(ctx context.Context, s *session) error {
		path, err := s.rec.Index().Resolve(ctx, title)
		if err != nil {
			return err
		}
		if err := s.rec.Delete(ctx, path); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	})
}

// RemoveAll wipes the whole index in one atomic batch, then deletes every
// source file that was indexed. It returns the removed paths.
func (d *Daemon) RemoveAll(ctx context.Context) ([]string, error) {
	var paths []string
	err := d.do(ctx, func(ctx context.Context, s *session) error {
		var err error
		paths, err = s.rec.Index().RemoveAll(ctx)
		if err != nil {
			return err
		}

		var errList []error
		for _, path := range paths {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				errList = append(errList, fmt.Errorf("failed to remove %s: %w", path, err))
			}
		}
		return errors.Join(errList...)
	})
	return paths, err
}

// Reconcile runs a full pass over the directory on demand, emitting the same
// events as the initial pass.
func (d *Daemon) Reconcile(ctx context.Context) error {
	return d.do(ctx, func(ctx context.Context, s *session) error {
		return d.syncDir(ctx, s)
	})
}
