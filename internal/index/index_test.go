package index

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProjectMoon/reed/internal/content"
	"github.com/ProjectMoon/reed/internal/errs"
	"github.com/ProjectMoon/reed/internal/keys"
	"github.com/ProjectMoon/reed/internal/kv"
	"github.com/ProjectMoon/reed/internal/logging"
)

func newTestIndex(t *testing.T, kind keys.Kind) (*Index, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kv.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return New(kind, store, logging.Discard()), mr
}

func meta(pairs ...string) *content.Metadata {
	m := content.NewMetadata()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	x, mr := newTestIndex(t, keys.Posts)

	mod := time.Date(2024, 5, 6, 7, 8, 9, 987654321, time.UTC)
	require.NoError(t, x.Put(ctx, "/srv/posts/hello-world.md", mod, meta("title", "Hello"), "<h1>Hi</h1>\n"))

	item, err := x.GetByPath(ctx, "/srv/posts/hello-world.md")
	require.NoError(t, err)
	assert.Equal(t, "hello-world", item.Title)
	assert.Equal(t, "/srv/posts/hello-world.md", item.Path)
	assert.Equal(t, "<h1>Hi</h1>\n", item.Body)

	title, _ := item.Metadata.Get("title")
	assert.Equal(t, "Hello", title)
	lm, ok := item.Metadata.LastModified()
	require.True(t, ok)
	assert.True(t, lm.Equal(mod), "lastModified %v != %v", lm, mod)

	// Raw layout stays readable by other consumers of the store.
	got, err := mr.Get("reed:blogpointer:hello-world")
	require.NoError(t, err)
	assert.Equal(t, "/srv/posts/hello-world.md", got)
	assert.Equal(t, "<h1>Hi</h1>\n", mr.HGet("reed:blog:/srv/posts/hello-world.md", "post"))
	score, err := mr.ZScore("reed:blog:dates", "hello-world")
	require.NoError(t, err)
	assert.Equal(t, float64(mod.UnixMilli()), score)

	byTitle, err := x.Get(ctx, "hello-world")
	require.NoError(t, err)
	assert.Equal(t, item.Path, byTitle.Path)
}

func TestGetByPath_NotFound(t *testing.T) {
	x, _ := newTestIndex(t, keys.Posts)
	_, err := x.GetByPath(context.Background(), "/nope.md")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = x.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetByPath_CorruptMetadata(t *testing.T) {
	x, mr := newTestIndex(t, keys.Posts)
	mr.HSet("reed:blog:/a.md", "metadata", "{not json", "post", "<p>x</p>")

	item, err := x.GetByPath(context.Background(), "/a.md")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Metadata.Len())
	assert.Equal(t, "<p>x</p>", item.Body)
}

func TestPut_Overwrites(t *testing.T) {
	ctx := context.Background()
	x, _ := newTestIndex(t, keys.Posts)
	mod := time.Now()

	require.NoError(t, x.Put(ctx, "/a.md", mod, meta("title", "One", "draft", "yes"), "1"))
	require.NoError(t, x.Put(ctx, "/a.md", mod.Add(time.Second), meta("title", "Two"), "2"))

	item, err := x.GetByPath(ctx, "/a.md")
	require.NoError(t, err)
	_, hasDraft := item.Metadata.Get("draft")
	assert.False(t, hasDraft, "stale metadata should be replaced")
	assert.Equal(t, []string{"title", content.LastModifiedKey}, item.Metadata.Keys())
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	x, mr := newTestIndex(t, keys.Posts)
	require.NoError(t, x.Put(ctx, "/a.md", time.Now(), meta(), "x"))

	require.NoError(t, x.Delete(ctx, "/a.md"))
	require.NoError(t, x.Delete(ctx, "/a.md"))

	assert.False(t, mr.Exists("reed:blog:/a.md"))
	assert.False(t, mr.Exists("reed:blogpointer:a"))
	assert.False(t, mr.Exists("reed:blog:dates"))
	assert.False(t, mr.Exists("reed:blog:index"))

	titles, err := x.ListTitles(ctx)
	require.NoError(t, err)
	assert.Empty(t, titles)
}

func TestListTitles_PostsByRecency(t *testing.T) {
	ctx := context.Background()
	x, _ := newTestIndex(t, keys.Posts)
	base := time.Now()

	require.NoError(t, x.Put(ctx, "/old.md", base.Add(-2*time.Hour), meta(), ""))
	require.NoError(t, x.Put(ctx, "/new.md", base, meta(), ""))
	require.NoError(t, x.Put(ctx, "/mid.md", base.Add(-time.Hour), meta(), ""))

	titles, err := x.ListTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, titles)

	between, err := x.ListTitlesBetween(ctx, base.Add(-90*time.Minute), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid"}, between)
}

func TestListTitles_PagesAlphabetical(t *testing.T) {
	ctx := context.Background()
	x, mr := newTestIndex(t, keys.Pages)

	require.NoError(t, x.Put(ctx, "/zeta.md", time.Now(), meta(), ""))
	require.NoError(t, x.Put(ctx, "/about.md", time.Now(), meta(), ""))

	titles, err := x.ListTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"about", "zeta"}, titles)
	assert.False(t, mr.Exists("reed:pages:dates"), "pages have no recency set")

	_, err = x.ListTitlesBetween(ctx, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, errs.ErrPrecondition)
}

func TestDuplicateTitle_LastPutWins(t *testing.T) {
	ctx := context.Background()
	x, _ := newTestIndex(t, keys.Pages)

	require.NoError(t, x.Put(ctx, "/a/post.md", time.Now(), meta(), "a"))
	require.NoError(t, x.Put(ctx, "/b/post.markdown", time.Now(), meta(), "b"))

	path, err := x.Resolve(ctx, "post")
	require.NoError(t, err)
	assert.Equal(t, "/b/post.markdown", path)
}

func TestCandidates(t *testing.T) {
	ctx := context.Background()
	x, mr := newTestIndex(t, keys.Posts)
	for _, p := range []string{"/a.md", "/b.md", "/c.md"} {
		require.NoError(t, x.Put(ctx, p, time.Now(), meta(), ""))
	}

	require.NoError(t, x.StageCandidates(ctx, []string{"/a.md", "/c.md"}))
	removed, err := x.Removed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/b.md"}, removed)

	require.NoError(t, x.DiscardCandidates(ctx))
	assert.False(t, mr.Exists("reed:blog:newindex"))

	// Nothing staged means everything is removed.
	removed, err = x.Removed(ctx)
	require.NoError(t, err)
	sort.Strings(removed)
	assert.Equal(t, []string{"/a.md", "/b.md", "/c.md"}, removed)
}

func TestRemoveAll(t *testing.T) {
	ctx := context.Background()
	x, mr := newTestIndex(t, keys.Posts)
	for _, p := range []string{"/b.md", "/a.md"} {
		require.NoError(t, x.Put(ctx, p, time.Now(), meta(), ""))
	}

	paths, err := x.RemoveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.md", "/b.md"}, paths)
	assert.Empty(t, mr.Keys())
}

func TestRemoveAll_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "reed.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	x := New(keys.Pages, store, logging.Discard())
	require.NoError(t, x.Put(ctx, "/about.md", time.Now(), meta("title", "About"), "<p>about</p>"))

	item, err := x.Get(ctx, "about")
	require.NoError(t, err)
	assert.Equal(t, "<p>about</p>", item.Body)

	paths, err := x.RemoveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/about.md"}, paths)

	_, err = x.Get(ctx, "about")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
