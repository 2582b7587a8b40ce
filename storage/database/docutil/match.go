package docutil

import (
	"sort"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
)

// Match reports whether the document satisfies the filter.
func Match(doc core.Document, filter core.Filter) bool {
	for path, want := range filter {
		got, found := Lookup(doc, path)
		if ops, ok := operators(want); ok {
			if !matchOperators(got, found, ops) {
				return false
			}
			continue
		}
		if !matchEqual(got, found, want) {
			return false
		}
	}
	return true
}

// EqualityFields returns the plain equality conditions of a filter (used to seed upserted documents).
func EqualityFields(filter core.Filter) core.Document {
	doc := make(core.Document, len(filter))
	for path, want := range filter {
		if _, ok := operators(want); ok {
			continue
		}
		Assign(doc, path, copyValue(want))
	}
	return doc
}

func operators(v interface{}) (map[string]interface{}, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperators(got interface{}, found bool, ops map[string]interface{}) bool {
	for op, arg := range ops {
		switch op {
		case core.OpIn:
			var hit bool
			for _, candidate := range toList(arg) {
				if matchEqual(got, found, candidate) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		case core.OpNe:
			if matchEqual(got, found, arg) {
				return false
			}
		case core.OpExists:
			want, _ := arg.(bool)
			if found != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchEqual(got interface{}, found bool, want interface{}) bool {
	if want == nil {
		return !found || got == nil
	}
	if !found {
		return false
	}
	if list, ok := got.([]interface{}); ok {
		if _, wantList := want.([]interface{}); !wantList {
			for _, item := range list {
				if Compare(item, want) == 0 {
					return true
				}
			}
			return false
		}
	}
	return Compare(got, want) == 0
}

func toList(v interface{}) []interface{} {
	switch l := v.(type) {
	case []interface{}:
		return l
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return []interface{}{v}
}

// Sort orders documents in place following the given orderings. Missing values sort first.
func Sort(docs []core.Document, orderings []core.DBOrdering) {
	if len(orderings) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, ord := range orderings {
			a, _ := Lookup(docs[i], ord.Field)
			b, _ := Lookup(docs[j], ord.Field)
			c := Compare(a, b)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

// Compare orders two values the way MongoDB does across types:
// null < numbers < strings < objects < arrays < booleans < dates.
func Compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankNumber:
		fa, _ := core.ToFloat(a)
		fb, _ := core.ToFloat(b)
		return cmpFloat(fa, fb)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case rankDate:
		ta, tb := a.(time.Time), b.(time.Time)
		switch {
		case ta.Equal(tb):
			return 0
		case ta.Before(tb):
			return -1
		default:
			return 1
		}
	case rankArray:
		la, lb := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := Compare(la[i], lb[i]); c != 0 {
				return c
			}
		}
		return cmpFloat(float64(len(la)), float64(len(lb)))
	}
	return 0
}

const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankBool
	rankDate
)

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNull
	case string:
		return rankString
	case bool:
		return rankBool
	case time.Time:
		return rankDate
	case []interface{}:
		return rankArray
	case map[string]interface{}, core.Document:
		return rankObject
	}
	if _, ok := core.ToFloat(v); ok {
		return rankNumber
	}
	return rankObject
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
