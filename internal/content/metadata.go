package content

import (
	"encoding/json"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// LastModifiedKey is the metadata key holding the source file's modification
// time at indexing.
const LastModifiedKey = "lastModified"

// Metadata is an insertion-ordered string map.
type Metadata struct {
	om *orderedmap.OrderedMap[string, string]
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{om: orderedmap.New[string, string]()}
}

func (m *Metadata) init() {
	if m.om == nil {
		m.om = orderedmap.New[string, string]()
	}
}

// Set stores value under key. An existing key keeps its position.
func (m *Metadata) Set(key, value string) {
	m.init()
	m.om.Set(key, value)
}

// Get returns the value for key.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil || m.om == nil {
		return "", false
	}
	return m.om.Get(key)
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	if m == nil || m.om == nil {
		return 0
	}
	return m.om.Len()
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	var out []string
	m.Each(func(k, _ string) { out = append(out, k) })
	return out
}

// Each calls fn for every entry in insertion order.
func (m *Metadata) Each(fn func(key, value string)) {
	if m == nil || m.om == nil {
		return
	}
	for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// LastModified parses the lastModified entry. The bool is false when the
// entry is missing or malformed.
func (m *Metadata) LastModified() (time.Time, bool) {
	v, ok := m.Get(LastModifiedKey)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetLastModified writes t as the last entry, replacing any existing value.
func (m *Metadata) SetLastModified(t time.Time) {
	m.init()
	m.om.Delete(LastModifiedKey)
	m.om.Set(LastModifiedKey, t.UTC().Format(time.RFC3339Nano))
}

// MarshalJSON encodes the entries as a JSON object in insertion order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	if m == nil || m.om == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.om)
}

// UnmarshalJSON decodes a JSON object of strings, keeping key order.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	om := orderedmap.New[string, string]()
	if err := json.Unmarshal(data, om); err != nil {
		return err
	}
	m.om = om
	return nil
}

// MarshalYAML encodes the entries as a YAML mapping in insertion order.
func (m *Metadata) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	m.Each(func(k, v string) {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v},
		)
	})
	return node, nil
}
