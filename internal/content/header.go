package content

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// headerLine matches one "Key: value" header line.
var headerLine = regexp.MustCompile(`^([A-Za-z]+):[ \t]*(.*?)[ \t]*$`)

var frontMatterFormats = []*frontmatter.Format{
	frontmatter.NewFormat("---", "---", yaml.Unmarshal),
	frontmatter.NewFormat("+++", "+++", toml.Unmarshal),
}

// ParseHeader splits src into its metadata and the remaining markdown.
//
// Two header styles are recognized. A file starting with a "---" (YAML) or
// "+++" (TOML) fence carries front matter; its values are stringified and its
// keys inserted in sorted order. Otherwise leading "Key: value" lines form the
// header, ending at the first line that does not match; each key has its
// first letter lower-cased.
//
// A "---" block that is not a YAML mapping is plain markdown (a thematic
// break or setext heading) and falls through to the key-value header.
func ParseHeader(src []byte) (*Metadata, []byte, error) {
	if bytes.HasPrefix(src, []byte("---")) || bytes.HasPrefix(src, []byte("+++")) {
		meta, body, err := parseFrontMatter(src)
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			return meta, body, err
		}
	}
	meta, body := parseKeyValueHeader(src)
	return meta, body, nil
}

func parseKeyValueHeader(src []byte) (*Metadata, []byte) {
	meta := NewMetadata()
	rest := src

	for len(rest) > 0 {
		line := rest
		next := []byte(nil)
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, next = rest[:i], rest[i+1:]
		} else {
			// A header needs its terminating newline.
			break
		}

		m := headerLine.FindSubmatch(bytes.TrimSuffix(line, []byte("\r")))
		if m == nil {
			break
		}
		meta.Set(lowerFirst(string(m[1])), string(m[2]))
		rest = next
	}

	return meta, rest
}

func parseFrontMatter(src []byte) (*Metadata, []byte, error) {
	var raw map[string]interface{}
	body, err := frontmatter.Parse(bytes.NewReader(src), &raw, frontMatterFormats...)
	if err != nil {
		return nil, nil, fmt.Errorf("parse front matter: %w", err)
	}

	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	meta := NewMetadata()
	for _, k := range names {
		meta.Set(k, stringify(raw[k]))
	}
	return meta, body, nil
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case []interface{}:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
