// Package reconcile brings an index in line with the files on disk.
//
// Upsert indexes one file when it is new or has been modified since it was
// last indexed. Cleanup removes every indexed path that is no longer among a
// set of candidates, typically the current directory listing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/ProjectMoon/reed/internal/content"
	"github.com/ProjectMoon/reed/internal/errs"
	"github.com/ProjectMoon/reed/internal/index"
	"github.com/ProjectMoon/reed/internal/logging"
)

// Transformer produces index documents from source files.
type Transformer interface {
	Transform(ctx context.Context, path string) (*content.Document, error)
	LastModified(path string) (time.Time, error)
}

// Result is the outcome of an Upsert.
type Result int

const (
	// ResultNone means the index was already current; nothing was written.
	ResultNone Result = iota
	// ResultNew means the path was indexed for the first time.
	ResultNew
	// ResultUpdate means a modified file replaced its index entry.
	ResultUpdate
)

// String returns a human-readable representation of the result.
func (r Result) String() string {
	switch r {
	case ResultNew:
		return "new"
	case ResultUpdate:
		return "update"
	default:
		return "none"
	}
}

// PathError records a failure to reconcile one path.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// Reconciler applies file changes to an index.
type Reconciler struct {
	index       *index.Index
	transformer Transformer
	concurrency int
	logger      *log.Logger
}

// New returns a Reconciler for ix. concurrency bounds parallel deletions
// during Cleanup; values below 1 mean 1.
func New(ix *index.Index, tr Transformer, concurrency int, logger *log.Logger) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		index:       ix,
		transformer: tr,
		concurrency: concurrency,
		logger:      logging.OrDefault(logger, "reconcile"),
	}
}

// Index returns the index being reconciled.
func (r *Reconciler) Index() *index.Index {
	return r.index
}

// Upsert indexes path if it is not indexed yet, or re-indexes it if the file
// was modified after its recorded lastModified. A missing or unreadable
// recorded time forces a re-index.
func (r *Reconciler) Upsert(ctx context.Context, path string) (Result, error) {
	item, err := r.index.GetByPath(ctx, path)
	if errors.Is(err, errs.ErrNotFound) {
		if err := r.write(ctx, path); err != nil {
			return ResultNone, err
		}
		return ResultNew, nil
	}
	if err != nil {
		return ResultNone, err
	}

	current, err := r.transformer.LastModified(path)
	if err != nil {
		return ResultNone, err
	}

	stored, _ := item.Metadata.LastModified()
	if !current.After(stored) {
		return ResultNone, nil
	}

	if err := r.write(ctx, path); err != nil {
		return ResultNone, err
	}
	return ResultUpdate, nil
}

func (r *Reconciler) write(ctx context.Context, path string) error {
	doc, err := r.transformer.Transform(ctx, path)
	if err != nil {
		return err
	}
	return r.index.Put(ctx, path, doc.ModTime, doc.Metadata, doc.Body)
}

// Delete removes path from the index.
func (r *Reconciler) Delete(ctx context.Context, path string) error {
	return r.index.Delete(ctx, path)
}

// Cleanup deletes every indexed path not in candidates and returns the paths
// it removed, sorted. Deletions run concurrently; a failed deletion does not
// stop the others and is reported as a *PathError in the joined error.
//
// Cleanups of one kind must not overlap: they share the transient set.
func (r *Reconciler) Cleanup(ctx context.Context, candidates []string) ([]string, error) {
	if err := r.index.StageCandidates(ctx, candidates); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to stage candidates: %w", err), r.index.DiscardCandidates(ctx))
	}

	removed, err := r.index.Removed(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to diff index: %w", err), r.index.DiscardCandidates(ctx))
	}

	var (
		mu   sync.Mutex
		done []string
	)
	p := pool.New().WithErrors().WithMaxGoroutines(r.concurrency)
	for _, path := range removed {
		p.Go(func() error {
			if err := r.index.Delete(ctx, path); err != nil {
				r.logger.Printf("Warning: failed to remove %s: %v", path, err)
				return &PathError{Path: path, Err: err}
			}
			mu.Lock()
			done = append(done, path)
			mu.Unlock()
			return nil
		})
	}
	err = p.Wait()

	if derr := r.index.DiscardCandidates(ctx); derr != nil {
		err = errors.Join(err, fmt.Errorf("failed to discard candidates: %w", derr))
	}

	sort.Strings(done)
	return done, err
}
