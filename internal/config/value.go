package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is a configuration tree node: an object, an array, a scalar or null.
// Values are never mutated after construction.
type Value struct {
	kind   Kind
	scalar any
	items  []Value
	keys   []string
	fields map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Scalar wraps a string, bool or number.
func Scalar(v any) Value {
	if v == nil {
		return Null()
	}
	return Value{kind: KindScalar, scalar: v}
}

// Array builds an array value.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value(nil), items...)}
}

// Object builds an object whose key order follows keys.
func Object(keys []string, values map[string]Value) Value {
	o := Value{kind: KindObject, fields: make(map[string]Value, len(values))}
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		if _, dup := o.fields[k]; !dup {
			o.keys = append(o.keys, k)
		}
		o.fields[k] = v
	}
	return o
}

// EmptyObject returns an object with no keys.
func EmptyObject() Value {
	return Value{kind: KindObject, fields: map[string]Value{}}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsObject() bool { return v.kind == KindObject }
func (v Value) Keys() []string { return append([]string(nil), v.keys...) }
func (v Value) Items() []Value { return append([]Value(nil), v.items...) }
func (v Value) Raw() any { return v.scalar }
func (v Value) Len() int { return len(v.keys) + len(v.items) }

// Field returns the direct child of an object.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	f, ok := v.fields[key]
	return f, ok
}

// Lookup walks a dotted path such as "telegram.session_name".
func (v Value) Lookup(path string) (Value, bool) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		next, ok := cur.Field(part)
		if !ok {
			return Null(), false
		}
		cur = next
	}
	return cur, true
}

// String renders a scalar as text. Non-scalars render as "".
func (v Value) String() string {
	if v.kind != KindScalar {
		return ""
	}
	return fmt.Sprint(v.scalar)
}

// Equal reports deep equality. Object key order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindScalar:
		return fmt.Sprint(v.scalar) == fmt.Sprint(o.scalar)
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	default:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for k, fv := range v.fields {
			ov, ok := o.fields[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	}
}

// Parse decodes YAML (and therefore JSON) into a Value. Empty input is null.
func Parse(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Null(), err
	}
	return fromNode(&doc)
}

func fromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case 0:
		return Null(), nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		keys := make([]string, 0, len(n.Content)/2)
		fields := make(map[string]Value, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			child, err := fromNode(n.Content[i+1])
			if err != nil {
				return Null(), fmt.Errorf("key %q: %w", key, err)
			}
			keys = append(keys, key)
			fields[key] = child
		}
		return Object(keys, fields), nil
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for i, c := range n.Content {
			child, err := fromNode(c)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, child)
		}
		return Value{kind: KindArray, items: items}, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return Null(), nil
		}
		var raw any
		if err := n.Decode(&raw); err != nil {
			return Null(), err
		}
		return Scalar(raw), nil
	default:
		return Null(), fmt.Errorf("unsupported yaml node kind %d", n.Kind)
	}
}

func (v Value) toNode() (*yaml.Node, error) {
	switch v.kind {
	case KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case KindScalar:
		n := &yaml.Node{}
		if err := n.Encode(v.scalar); err != nil {
			return nil, err
		}
		return n, nil
	case KindArray:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, it := range v.items {
			c, err := it.toNode()
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, c)
		}
		return n, nil
	default:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.keys {
			c, err := v.fields[k].toNode()
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, c)
		}
		return n, nil
	}
}

// Decode fills out (a pointer to a yaml-tagged struct) from the tree.
func (v Value) Decode(out any) error {
	n, err := v.toNode()
	if err != nil {
		return err
	}
	return n.Decode(out)
}

// Marshal renders the tree as YAML.
func (v Value) Marshal() ([]byte, error) {
	n, err := v.toNode()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(n)
}

// SortedKeys returns the object keys in lexical order.
func (v Value) SortedKeys() []string {
	keys := v.Keys()
	sort.Strings(keys)
	return keys
}
