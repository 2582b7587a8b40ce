package docutil

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const dateKey = "$date"

// MarshalJSON encodes a document, wrapping dates as {"$date": RFC3339Nano} so they survive a round trip.
func MarshalJSON(doc core.Document) ([]byte, error) {
	return json.Marshal(encodeValue(map[string]interface{}(doc)))
}

// UnmarshalJSON decodes a document encoded by MarshalJSON. Integral numbers come back as int64.
func UnmarshalJSON(data []byte) (core.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding document")
	}
	return core.Document(decodeValue(raw).(map[string]interface{})), nil
}

func encodeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return map[string]interface{}{dateKey: val.UTC().Format(time.RFC3339Nano)}
	case core.Document:
		return encodeValue(map[string]interface{}(val))
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			m[k] = encodeValue(vv)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, vv := range val {
			s[i] = encodeValue(vv)
		}
		return s
	}
	return v
}

func decodeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 1 {
			if s, ok := val[dateKey].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t.UTC()
				}
			}
		}
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			m[k] = decodeValue(vv)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, vv := range val {
			s[i] = decodeValue(vv)
		}
		return s
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, err := val.Float64()
		if err != nil || math.IsInf(f, 0) {
			return val.String()
		}
		return f
	}
	return v
}
