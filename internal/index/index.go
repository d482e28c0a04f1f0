// Package index maintains the content index of one kind (posts or pages) in
// a kv.Store.
//
// For every indexed file the index holds four structures: a content hash
// (metadata and rendered body), a title pointer, a member of the existence
// set and, for posts, a member of the recency set. Writes touching several
// structures are pipelined in a fixed order and are not atomic; a failure
// mid-batch leaves the earlier writes in place.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/ProjectMoon/reed/internal/content"
	"github.com/ProjectMoon/reed/internal/errs"
	"github.com/ProjectMoon/reed/internal/keys"
	"github.com/ProjectMoon/reed/internal/kv"
	"github.com/ProjectMoon/reed/internal/logging"
)

// Hash fields of a content entry.
const (
	fieldMetadata = "metadata"
	fieldBody     = "post"
)

// Item is an indexed file.
type Item struct {
	Path     string
	Title    string
	Metadata *content.Metadata
	Body     string
}

// Index is the content index of one kind.
type Index struct {
	kind   keys.Kind
	store  kv.Store
	logger *log.Logger
}

// New returns an Index of kind stored in store.
func New(kind keys.Kind, store kv.Store, logger *log.Logger) *Index {
	return &Index{
		kind:   kind,
		store:  store,
		logger: logging.OrDefault(logger, "index"),
	}
}

// Kind returns the content kind.
func (x *Index) Kind() keys.Kind {
	return x.kind
}

// GetByPath returns the item indexed for path, or errs.ErrNotFound.
// Unreadable metadata is replaced with an empty map so the item still loads.
func (x *Index) GetByPath(ctx context.Context, path string) (*Item, error) {
	key := x.kind.ContentKey(path)
	fields, err := x.store.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, path)
	}

	meta := content.NewMetadata()
	if raw, ok := fields[fieldMetadata]; ok {
		if err := json.Unmarshal([]byte(raw), meta); err != nil {
			x.logger.Printf("Warning: corrupt metadata for %s: %v", path, err)
			meta = content.NewMetadata()
		}
	}

	p := x.kind.PathFromContentKey(key)
	return &Item{
		Path:     p,
		Title:    keys.Title(p),
		Metadata: meta,
		Body:     fields[fieldBody],
	}, nil
}

// Put writes the item for path, replacing any previous entry. modTime is
// recorded as the metadata's lastModified entry and as the recency score.
func (x *Index) Put(ctx context.Context, path string, modTime time.Time, meta *content.Metadata, body string) error {
	if meta == nil {
		meta = content.NewMetadata()
	}
	meta.SetLastModified(modTime)

	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", path, err)
	}

	contentKey := x.kind.ContentKey(path)
	title := keys.Title(path)

	return x.store.Pipeline(ctx, func(w kv.Writer) {
		w.Del(contentKey)
		w.HSet(contentKey, map[string]string{
			fieldMetadata: string(encoded),
			fieldBody:     body,
		})
		w.Set(x.kind.TitlePointerKey(title), path)
		w.SAdd(x.kind.IndexKey(), path)
		if dates, ok := x.kind.DatesKey(); ok {
			w.ZAdd(dates, float64(modTime.UnixMilli()), title)
		}
	})
}

// Delete removes every structure for path. Deleting an absent path succeeds.
func (x *Index) Delete(ctx context.Context, path string) error {
	title := keys.Title(path)

	return x.store.Pipeline(ctx, func(w kv.Writer) {
		w.Del(x.kind.TitlePointerKey(title))
		w.Del(x.kind.ContentKey(path))
		if dates, ok := x.kind.DatesKey(); ok {
			w.ZRem(dates, title)
		}
		w.SRem(x.kind.IndexKey(), path)
	})
}

// ListTitles returns every indexed title. Posts are ordered most recent
// first; pages alphabetically.
func (x *Index) ListTitles(ctx context.Context) ([]string, error) {
	if dates, ok := x.kind.DatesKey(); ok {
		return x.store.ZRevRange(ctx, dates)
	}

	paths, err := x.store.SMembers(ctx, x.kind.IndexKey())
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(paths))
	for _, p := range paths {
		titles = append(titles, keys.Title(p))
	}
	sort.Strings(titles)
	return titles, nil
}

// ListTitlesBetween returns post titles modified within [from, to], most
// recent first. A zero from or to leaves that side open.
func (x *Index) ListTitlesBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	dates, ok := x.kind.DatesKey()
	if !ok {
		return nil, fmt.Errorf("%w: %s are not ordered by date", errs.ErrPrecondition, x.kind)
	}

	lo, hi := math.Inf(-1), math.Inf(1)
	if !from.IsZero() {
		lo = float64(from.UnixMilli())
	}
	if !to.IsZero() {
		hi = float64(to.UnixMilli())
	}
	return x.store.ZRevRangeByScore(ctx, dates, lo, hi)
}

// Resolve returns the path a title points to, or errs.ErrNotFound.
func (x *Index) Resolve(ctx context.Context, title string) (string, error) {
	path, ok, err := x.store.Get(ctx, x.kind.TitlePointerKey(title))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", errs.ErrNotFound, title)
	}
	return path, nil
}

// Get resolves title and returns its item.
func (x *Index) Get(ctx context.Context, title string) (*Item, error) {
	path, err := x.Resolve(ctx, title)
	if err != nil {
		return nil, err
	}
	return x.GetByPath(ctx, path)
}

// Paths returns the members of the existence set.
func (x *Index) Paths(ctx context.Context) ([]string, error) {
	return x.store.SMembers(ctx, x.kind.IndexKey())
}

// StageCandidates adds paths to the transient candidate set.
func (x *Index) StageCandidates(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return x.store.Pipeline(ctx, func(w kv.Writer) {
		w.SAdd(x.kind.NewIndexKey(), paths...)
	})
}

// Removed returns indexed paths missing from the candidate set.
func (x *Index) Removed(ctx context.Context) ([]string, error) {
	return x.store.SDiff(ctx, x.kind.IndexKey(), x.kind.NewIndexKey())
}

// DiscardCandidates deletes the transient candidate set.
func (x *Index) DiscardCandidates(ctx context.Context) error {
	return x.store.Pipeline(ctx, func(w kv.Writer) {
		w.Del(x.kind.NewIndexKey())
	})
}

// RemoveAll deletes every structure of this kind in one atomic batch and
// returns the paths that were indexed, sorted.
func (x *Index) RemoveAll(ctx context.Context) ([]string, error) {
	paths, err := x.Paths(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	err = x.store.Atomic(ctx, func(w kv.Writer) {
		for _, p := range paths {
			w.Del(x.kind.ContentKey(p), x.kind.PointerKey(p))
		}
		w.Del(x.kind.IndexKey(), x.kind.NewIndexKey())
		if dates, ok := x.kind.DatesKey(); ok {
			w.Del(dates)
		}
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
