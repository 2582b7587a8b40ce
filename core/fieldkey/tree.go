package fieldkey

import (
	"sort"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
)

// FieldTree is either a Leaf (sample value) or a Node (nested object).
type FieldTree interface {
	fieldTree()
}

type (
	Leaf struct {
		Value interface{}
	}

	Node struct {
		Keys     []string // sorted
		Children map[string]FieldTree
	}
)

func (Leaf) fieldTree() {}
func (Node) fieldTree() {}

// BuildTree converts a document value. Objects become Nodes; primitives, arrays, dates and null are Leaves.
func BuildTree(v interface{}) FieldTree {
	var m map[string]interface{}
	switch val := v.(type) {
	case core.Document:
		m = val
	case map[string]interface{}:
		m = val
	case time.Time:
		return Leaf{Value: val}
	default:
		return Leaf{Value: v}
	}

	node := Node{Keys: make([]string, 0, len(m)), Children: make(map[string]FieldTree, len(m))}
	for k, child := range m {
		node.Keys = append(node.Keys, k)
		node.Children[k] = BuildTree(child)
	}
	sort.Strings(node.Keys)
	return node
}

// sample is a discovered path and the first non-null value seen for it.
type sample struct {
	placeholderKey string
	path           string
	value          interface{}
}

// fieldSet is an insertion-ordered set of samples keyed by placeholder.
type fieldSet struct {
	index   map[string]int
	samples []sample
}

func newFieldSet() *fieldSet {
	return &fieldSet{index: make(map[string]int)}
}

// insertIfAbsent records a sample the first time a key is seen. A later non-null value
// only replaces a null one.
func (s *fieldSet) insertIfAbsent(placeholderKey, path string, value interface{}) {
	if i, ok := s.index[placeholderKey]; ok {
		if s.samples[i].value == nil && value != nil {
			s.samples[i].value = value
		}
		return
	}
	s.index[placeholderKey] = len(s.samples)
	s.samples = append(s.samples, sample{placeholderKey: placeholderKey, path: path, value: value})
}

func (s *fieldSet) len() int { return len(s.samples) }

// walk records every leaf of `tree` under `prefix`, skipping the keys `skip` accepts.
func (s *fieldSet) walk(tree FieldTree, prefix string, skip func(key string) bool) {
	switch t := tree.(type) {
	case Leaf:
		if prefix != "" {
			s.insertIfAbsent(prefix, prefix, t.Value)
		}
	case Node:
		for _, key := range t.Keys {
			if skip != nil && skip(key) {
				continue
			}
			s.walk(t.Children[key], joinPath(prefix, key), skip)
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}
