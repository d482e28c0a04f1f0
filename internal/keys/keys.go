// Package keys maps source file paths to the namespaced store keys of the
// content index, and back.
//
// Key namespace (per content kind):
//
//	reed:blog:<path>           content hash (metadata + rendered body)
//	reed:blogpointer:<title>   title -> canonical path
//	reed:blog:index            existence set of indexed paths
//	reed:blog:newindex         transient candidate set used by cleanup
//	reed:blog:dates            recency sorted set, posts only
//
// Pages use the same layout under reed:pages: and reed:pagespointer:, and
// have no recency set.
package keys

import (
	"path/filepath"
	"strings"
)

// Key is an opaque, namespaced store key. Only this package can build one, so
// a bare string can never be passed where a namespaced key is expected.
type Key struct {
	s string
}

// String returns the raw key as sent to the store.
func (k Key) String() string {
	return k.s
}

// IsZero reports whether k was never built.
func (k Key) IsZero() bool {
	return k.s == ""
}

// Kind selects the namespace of a content index.
type Kind int

const (
	// Posts are blog posts; they are additionally ordered by recency.
	Posts Kind = iota
	// Pages are static pages.
	Pages
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Posts:
		return "posts"
	case Pages:
		return "pages"
	default:
		return "unknown"
	}
}

// HasRecency reports whether items of this kind are kept in a recency set.
func (k Kind) HasRecency() bool {
	return k == Posts
}

func (k Kind) contentPrefix() string {
	if k == Pages {
		return "reed:pages:"
	}
	return "reed:blog:"
}

func (k Kind) pointerPrefix() string {
	if k == Pages {
		return "reed:pagespointer:"
	}
	return "reed:blogpointer:"
}

// Title returns the item title for a path: its basename without extension.
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ContentKey returns the content hash key for path. It is idempotent: a path
// that already carries the content prefix is returned as-is.
func (k Kind) ContentKey(path string) Key {
	prefix := k.contentPrefix()
	if strings.HasPrefix(path, prefix) {
		return Key{s: path}
	}
	return Key{s: prefix + path}
}

// PathFromContentKey is the inverse of ContentKey.
func (k Kind) PathFromContentKey(key Key) string {
	return strings.TrimPrefix(key.s, k.contentPrefix())
}

// PointerKey returns the title pointer key for path.
func (k Kind) PointerKey(path string) Key {
	return k.TitlePointerKey(Title(path))
}

// TitlePointerKey returns the pointer key for an already-derived title.
func (k Kind) TitlePointerKey(title string) Key {
	return Key{s: k.pointerPrefix() + title}
}

// IndexKey returns the existence set key.
func (k Kind) IndexKey() Key {
	return Key{s: k.contentPrefix() + "index"}
}

// NewIndexKey returns the transient candidate set key used during cleanup.
func (k Kind) NewIndexKey() Key {
	return Key{s: k.contentPrefix() + "newindex"}
}

// DatesKey returns the recency set key. The second result is false for
// kinds without a recency set.
func (k Kind) DatesKey() (Key, bool) {
	if !k.HasRecency() {
		return Key{}, false
	}
	return Key{s: k.contentPrefix() + "dates"}, true
}
