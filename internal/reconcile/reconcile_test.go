package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProjectMoon/reed/internal/content"
	"github.com/ProjectMoon/reed/internal/errs"
	"github.com/ProjectMoon/reed/internal/index"
	"github.com/ProjectMoon/reed/internal/keys"
	"github.com/ProjectMoon/reed/internal/kv"
	"github.com/ProjectMoon/reed/internal/logging"
)

var errInjected = errors.New("injected failure")

// failingStore fails any pipeline that touches failOn. Commands queued before
// that key are applied; the rest are dropped, like a server error mid-batch.
type failingStore struct {
	kv.Store
	failOn string
}

func (f *failingStore) Pipeline(ctx context.Context, fn func(w kv.Writer)) error {
	failed := false
	err := f.Store.Pipeline(ctx, func(w kv.Writer) {
		fn(&cutWriter{Writer: w, failOn: f.failOn, failed: &failed})
	})
	if err != nil {
		return err
	}
	if failed {
		return errInjected
	}
	return nil
}

type cutWriter struct {
	kv.Writer
	failOn string
	failed *bool
}

func (c *cutWriter) pass(k keys.Key) bool {
	if *c.failed {
		return false
	}
	if k.String() == c.failOn {
		*c.failed = true
		return false
	}
	return true
}

func (c *cutWriter) Set(k keys.Key, v string) {
	if c.pass(k) {
		c.Writer.Set(k, v)
	}
}

func (c *cutWriter) Del(ks ...keys.Key) {
	for _, k := range ks {
		if c.pass(k) {
			c.Writer.Del(k)
		}
	}
}

func (c *cutWriter) HSet(k keys.Key, fields map[string]string) {
	if c.pass(k) {
		c.Writer.HSet(k, fields)
	}
}

func (c *cutWriter) ZAdd(k keys.Key, score float64, member string) {
	if c.pass(k) {
		c.Writer.ZAdd(k, score, member)
	}
}

func (c *cutWriter) ZRem(k keys.Key, members ...string) {
	if c.pass(k) {
		c.Writer.ZRem(k, members...)
	}
}

func (c *cutWriter) SAdd(k keys.Key, members ...string) {
	if c.pass(k) {
		c.Writer.SAdd(k, members...)
	}
}

func (c *cutWriter) SRem(k keys.Key, members ...string) {
	if c.pass(k) {
		c.Writer.SRem(k, members...)
	}
}

type fixture struct {
	dir   string
	mr    *miniredis.Miniredis
	store kv.Store
	rec   *Reconciler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kv.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })

	ix := index.New(keys.Posts, store, logging.Discard())
	return &fixture{
		dir:   t.TempDir(),
		mr:    mr,
		store: store,
		rec:   New(ix, content.NewTransformer(), 4, logging.Discard()),
	}
}

func (f *fixture) write(t *testing.T, name, body string, mod time.Time) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
	return path
}

func TestUpsert_NewThenNone(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	path := f.write(t, "hello-world.md", "Title: Hello\n# Hi\n", time.Now().Add(-time.Hour))

	res, err := f.rec.Upsert(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ResultNew, res)

	res, err = f.rec.Upsert(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ResultNone, res)

	item, err := f.rec.Index().Get(ctx, "hello-world")
	require.NoError(t, err)
	assert.Contains(t, item.Body, "<h1>Hi</h1>")
}

func TestUpsert_Update(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	mod := time.Now().Add(-time.Hour)
	path := f.write(t, "a.md", "# One\n", mod)

	_, err := f.rec.Upsert(ctx, path)
	require.NoError(t, err)

	f.write(t, "a.md", "# Two\n", mod.Add(time.Minute))
	res, err := f.rec.Upsert(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ResultUpdate, res)

	item, err := f.rec.Index().GetByPath(ctx, path)
	require.NoError(t, err)
	assert.Contains(t, item.Body, "<h1>Two</h1>")
}

func TestUpsert_OlderFileIsNone(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	mod := time.Now().Add(-time.Hour)
	path := f.write(t, "a.md", "# One\n", mod)

	_, err := f.rec.Upsert(ctx, path)
	require.NoError(t, err)

	f.write(t, "a.md", "# Restored\n", mod.Add(-time.Minute))
	res, err := f.rec.Upsert(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ResultNone, res)
}

func TestUpsert_CorruptMetadataForcesUpdate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	path := f.write(t, "a.md", "# One\n", time.Now().Add(-time.Hour))

	_, err := f.rec.Upsert(ctx, path)
	require.NoError(t, err)
	f.mr.HSet("reed:blog:"+path, "metadata", "garbage")

	res, err := f.rec.Upsert(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ResultUpdate, res)
}

func TestUpsert_MissingFile(t *testing.T) {
	f := setup(t)
	res, err := f.rec.Upsert(context.Background(), filepath.Join(f.dir, "gone.md"))
	assert.ErrorIs(t, err, errs.ErrTransform)
	assert.Equal(t, ResultNone, res)
	assert.Empty(t, f.mr.Keys(), "failed insert must not write")
}

func TestCleanup_NothingRemoved(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.write(t, "a.md", "a", time.Now())
	b := f.write(t, "b.md", "b", time.Now())
	for _, p := range []string{a, b} {
		_, err := f.rec.Upsert(ctx, p)
		require.NoError(t, err)
	}
	before := f.mr.Keys()

	removed, err := f.rec.Cleanup(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, before, f.mr.Keys())
}

func TestCleanup_RemovesMissing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.write(t, "a.md", "a", time.Now())
	b := f.write(t, "b.md", "b", time.Now())
	for _, p := range []string{a, b} {
		_, err := f.rec.Upsert(ctx, p)
		require.NoError(t, err)
	}

	removed, err := f.rec.Cleanup(ctx, []string{a})
	require.NoError(t, err)
	assert.Equal(t, []string{b}, removed)

	_, err = f.rec.Index().GetByPath(ctx, b)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.False(t, f.mr.Exists("reed:blog:newindex"))
}

func TestCleanup_EmptyCandidatesRemovesAll(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.write(t, "a.md", "a", time.Now())
	_, err := f.rec.Upsert(ctx, a)
	require.NoError(t, err)

	removed, err := f.rec.Cleanup(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, removed)
	assert.Empty(t, f.mr.Keys())
}

func TestCleanup_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.write(t, "a.md", "a", time.Now())
	b := f.write(t, "b.md", "b", time.Now())
	c := f.write(t, "c.md", "c", time.Now())
	for _, p := range []string{a, b, c} {
		_, err := f.rec.Upsert(ctx, p)
		require.NoError(t, err)
	}

	failing := &failingStore{Store: f.store, failOn: "reed:blog:" + b}
	rec := New(index.New(keys.Posts, failing, logging.Discard()), content.NewTransformer(), 4, logging.Discard())

	removed, err := rec.Cleanup(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, []string{a, c}, removed)

	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, b, pe.Path)
	assert.ErrorIs(t, err, errInjected)

	// The pointer goes first, so the failed deletion left only the content entry.
	assert.False(t, f.mr.Exists("reed:blogpointer:b"))
	assert.True(t, f.mr.Exists("reed:blog:"+b))
	assert.False(t, f.mr.Exists("reed:blog:newindex"))
}
