package mongodb

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/academia/core"
)

// toBSONFilter converts a filter, turning `_id` hex strings (also inside operators) into ObjectIDs.
func toBSONFilter(filter core.Filter) bson.M {
	m := make(bson.M, len(filter))
	for k, v := range filter {
		if k == core.IDKey {
			m[k] = toObjectIDs(v)
			continue
		}
		m[k] = toBSONValue(v)
	}
	return m
}

func toObjectIDs(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if oid, err := primitive.ObjectIDFromHex(val); err == nil {
			return oid
		}
		return val
	case []string:
		ids := make(bson.A, len(val))
		for i, s := range val {
			ids[i] = toObjectIDs(s)
		}
		return ids
	case []interface{}:
		ids := make(bson.A, len(val))
		for i, s := range val {
			ids[i] = toObjectIDs(s)
		}
		return ids
	case core.Filter:
		return toObjectIDs(map[string]interface{}(val))
	case map[string]interface{}:
		ops := make(bson.M, len(val))
		for op, arg := range val {
			ops[op] = toObjectIDs(arg)
		}
		return ops
	}
	return v
}

func toBSONDoc(doc core.Document) bson.M {
	m := make(bson.M, len(doc))
	for k, v := range doc {
		if k == core.IDKey {
			m[k] = toObjectIDs(v)
			continue
		}
		m[k] = toBSONValue(v)
	}
	return m
}

func toBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case core.Filter:
		return toBSONFilter(val)
	case core.Document:
		return toBSONDoc(val)
	case map[string]interface{}:
		return toBSONDoc(val)
	case []interface{}:
		a := make(bson.A, len(val))
		for i, vv := range val {
			a[i] = toBSONValue(vv)
		}
		return a
	case time.Time:
		return val.UTC()
	}
	return v
}

func normalizeDoc(m bson.M) core.Document {
	doc := make(core.Document, len(m))
	for k, v := range m {
		doc[k] = normalize(v)
	}
	return doc
}

// normalize maps BSON decoded values onto the value set documented on core.Document.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	case int32:
		return int64(val)
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(val.String(), 64); err == nil {
			return f
		}
		return val.String()
	case bson.M:
		return map[string]interface{}(normalizeDoc(val))
	case map[string]interface{}:
		return map[string]interface{}(normalizeDoc(val))
	case bson.D:
		m := make(map[string]interface{}, len(val))
		for _, e := range val {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		return normalizeList(val)
	case []interface{}:
		return normalizeList(val)
	case primitive.Null, primitive.Undefined:
		return nil
	case string, bool, int64, float64:
		return val
	case primitive.Binary, primitive.Regex, primitive.Timestamp, primitive.JavaScript, primitive.Symbol:
		return fmt.Sprint(val)
	}
	return v
}

func normalizeList(list []interface{}) []interface{} {
	out := make([]interface{}, len(list))
	for i, v := range list {
		out[i] = normalize(v)
	}
	return out
}
