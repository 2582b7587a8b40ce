// Package docutil holds the document helpers shared by the stores that evaluate filters in Go.
package docutil

import (
	"strings"
	"time"

	"github.com/trezcool/academia/core"
)

// Lookup resolves a dotted path in a document.
func Lookup(doc core.Document, path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(doc)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Assign sets a dotted path in a document, creating intermediate maps.
func Assign(doc core.Document, path string, value interface{}) {
	segs := strings.Split(path, ".")
	m := map[string]interface{}(doc)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asMap(m[seg])
		if !ok {
			next = make(map[string]interface{})
			m[seg] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = value
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case core.Document:
		return m, true
	case core.Filter:
		return m, true
	}
	return nil, false
}

// Copy deep-copies a document so stores never share nested maps or slices with callers.
func Copy(doc core.Document) core.Document {
	if doc == nil {
		return nil
	}
	c := make(core.Document, len(doc))
	for k, v := range doc {
		c[k] = copyValue(v)
	}
	return c
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			m[k] = copyValue(vv)
		}
		return m
	case core.Document:
		return map[string]interface{}(Copy(val))
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, vv := range val {
			s[i] = copyValue(vv)
		}
		return s
	case []string:
		s := make([]interface{}, len(val))
		for i, vv := range val {
			s[i] = vv
		}
		return s
	case time.Time:
		return val.UTC()
	default:
		return val
	}
}
