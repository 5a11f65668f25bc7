// Package schema loads input schema documents and resolves them into typed
// Schema values.
//
// A schema document is YAML. It is parsed into a Node tree, merged over the
// built-in default document once at load time, validated against a JSON
// Schema, and resolved into a Schema whose rule lists and patterns are
// compiled. Nothing reads the node tree after resolution.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the type of a Node.
type Kind int

const (
	ScalarNode Kind = iota
	ListNode
	MapNode
)

// Node is a schema document value: a scalar, a list or a map.
type Node struct {
	Kind Kind

	// Value and Tag describe a scalar. Tag is the YAML tag without "!!".
	Value string
	Tag   string

	Items []*Node

	Keys   []string
	Fields map[string]*Node
}

// Parse reads a YAML document into a node tree.
func Parse(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: parse yaml: %w", err)
	}
	if doc.Kind == 0 {
		return &Node{Kind: MapNode, Fields: map[string]*Node{}}, nil
	}
	return fromYAML(&doc)
}

func fromYAML(n *yaml.Node) (*Node, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &Node{Kind: MapNode, Fields: map[string]*Node{}}, nil
		}
		return fromYAML(n.Content[0])
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.ScalarNode:
		return &Node{Kind: ScalarNode, Value: n.Value, Tag: strings.TrimPrefix(n.ShortTag(), "!!")}, nil
	case yaml.SequenceNode:
		out := &Node{Kind: ListNode, Items: make([]*Node, 0, len(n.Content))}
		for _, c := range n.Content {
			item, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, item)
		}
		return out, nil
	case yaml.MappingNode:
		out := &Node{Kind: MapNode, Fields: make(map[string]*Node, len(n.Content)/2)}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			val, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			if _, dup := out.Fields[key]; !dup {
				out.Keys = append(out.Keys, key)
			}
			out.Fields[key] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("schema: unsupported yaml node kind %d at line %d", n.Kind, n.Line)
}

// Merge returns active layered over defaults. Maps merge key by key at
// every depth; any other value in active replaces the default outright.
func Merge(active, defaults *Node) *Node {
	switch {
	case active == nil:
		return defaults
	case defaults == nil:
		return active
	case active.Kind != MapNode || defaults.Kind != MapNode:
		return active
	}
	out := &Node{Kind: MapNode, Fields: make(map[string]*Node, len(active.Fields)+len(defaults.Fields))}
	for _, k := range active.Keys {
		out.Keys = append(out.Keys, k)
		out.Fields[k] = Merge(active.Fields[k], defaults.Fields[k])
	}
	for _, k := range defaults.Keys {
		if _, ok := out.Fields[k]; !ok {
			out.Keys = append(out.Keys, k)
			out.Fields[k] = defaults.Fields[k]
		}
	}
	return out
}

// Get walks a slash-separated path of map keys.
func (n *Node) Get(path string) *Node {
	cur := n
	for _, k := range strings.Split(path, "/") {
		if cur == nil || cur.Kind != MapNode {
			return nil
		}
		cur = cur.Fields[k]
	}
	return cur
}

// String returns the scalar at path.
func (n *Node) String(path string) (string, bool) {
	v := n.Get(path)
	if v == nil || v.Kind != ScalarNode || v.Tag == "null" {
		return "", false
	}
	return v.Value, true
}

// StringOr returns the scalar at path or def.
func (n *Node) StringOr(path, def string) string {
	if s, ok := n.String(path); ok {
		return s
	}
	return def
}

// Strings returns the scalars of the list at path. A lone scalar counts as
// a one-item list.
func (n *Node) Strings(path string) []string {
	v := n.Get(path)
	if v == nil {
		return nil
	}
	if v.Kind == ScalarNode {
		if v.Tag == "null" {
			return nil
		}
		return []string{v.Value}
	}
	if v.Kind != ListNode {
		return nil
	}
	out := make([]string, 0, len(v.Items))
	for _, it := range v.Items {
		if it.Kind == ScalarNode {
			out = append(out, it.Value)
		}
	}
	return out
}

// Bool returns the boolean at path or def.
func (n *Node) Bool(path string, def bool) bool {
	s, ok := n.String(path)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

// Int returns the integer at path or def.
func (n *Node) Int(path string, def int) int {
	s, ok := n.String(path)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// Plain converts the tree into JSON-compatible Go values.
func (n *Node) Plain() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case ListNode:
		out := make([]any, len(n.Items))
		for i, it := range n.Items {
			out[i] = it.Plain()
		}
		return out
	case MapNode:
		out := make(map[string]any, len(n.Fields))
		for k, v := range n.Fields {
			out[k] = v.Plain()
		}
		return out
	}
	switch n.Tag {
	case "null":
		return nil
	case "bool":
		if b, err := strconv.ParseBool(n.Value); err == nil {
			return b
		}
	case "int", "float":
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return f
		}
	}
	return n.Value
}
