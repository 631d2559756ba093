package filestore

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// resolve returns every value reachable through path. Arrays met along the
// way fan out over their document elements; a numeric part indexes into an
// array.
func resolve(v any, parts []string) []any {
	if len(parts) == 0 {
		return []any{v}
	}
	switch x := v.(type) {
	case bson.D:
		for _, e := range x {
			if e.Key == parts[0] {
				return resolve(e.Value, parts[1:])
			}
		}
	case bson.A:
		if idx, err := strconv.Atoi(parts[0]); err == nil && idx >= 0 {
			if idx < len(x) {
				return resolve(x[idx], parts[1:])
			}
			return nil
		}
		var out []any
		for _, el := range x {
			if d, ok := el.(bson.D); ok {
				out = append(out, resolve(d, parts)...)
			}
		}
		return out
	}
	return nil
}

func lookup(doc bson.D, path string) []any {
	return resolve(doc, strings.Split(path, "."))
}

// get returns the single value at path, or false when absent.
func get(doc bson.D, path string) (any, bool) {
	vals := lookup(doc, path)
	switch len(vals) {
	case 0:
		return nil, false
	case 1:
		return vals[0], true
	default:
		return bson.A(vals), true
	}
}

// setPath sets path in doc, creating intermediate documents. Existing keys
// keep their position; new keys are appended.
func setPath(doc bson.D, path string, v any) bson.D {
	key, rest, nested := strings.Cut(path, ".")
	for i, e := range doc {
		if e.Key != key {
			continue
		}
		if !nested {
			doc[i].Value = v
			return doc
		}
		sub, _ := e.Value.(bson.D)
		doc[i].Value = setPath(sub, rest, v)
		return doc
	}
	if !nested {
		return append(doc, bson.E{Key: key, Value: v})
	}
	return append(doc, bson.E{Key: key, Value: setPath(nil, rest, v)})
}

// unsetPath removes path from doc and reports whether it was present.
func unsetPath(doc bson.D, path string) (bson.D, bool) {
	key, rest, nested := strings.Cut(path, ".")
	for i, e := range doc {
		if e.Key != key {
			continue
		}
		if !nested {
			return append(doc[:i:i], doc[i+1:]...), true
		}
		sub, ok := e.Value.(bson.D)
		if !ok {
			return doc, false
		}
		sub, removed := unsetPath(sub, rest)
		doc[i].Value = sub
		return doc, removed
	}
	return doc, false
}

// clone deep-copies documents and arrays so that stored data is never
// mutated through a result.
func clone(v any) any {
	switch x := v.(type) {
	case bson.D:
		out := make(bson.D, len(x))
		for i, e := range x {
			out[i] = bson.E{Key: e.Key, Value: clone(e.Value)}
		}
		return out
	case bson.A:
		out := make(bson.A, len(x))
		for i, el := range x {
			out[i] = clone(el)
		}
		return out
	default:
		return v
	}
}

func cloneDoc(d bson.D) bson.D {
	return clone(d).(bson.D)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case bson.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}

func isNumber(v any) bool {
	_, ok := toFloat64(v)
	return ok
}

// truthy reads projection flags and boolean options.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	}
	if f, ok := toFloat64(v); ok {
		return f != 0
	}
	return true
}

// rank orders values of different types the way the server does.
func rank(v any) int {
	switch v.(type) {
	case bson.MinKey:
		return 0
	case nil, bson.Null, bson.Undefined:
		return 1
	case int32, int64, float64, int, bson.Decimal128:
		return 2
	case string, bson.Symbol:
		return 3
	case bson.D:
		return 4
	case bson.A:
		return 5
	case bson.Binary:
		return 6
	case bson.ObjectID:
		return 7
	case bool:
		return 8
	case bson.DateTime:
		return 9
	case bson.Timestamp:
		return 10
	case bson.Regex:
		return 11
	case bson.MaxKey:
		return 13
	default:
		return 12
	}
}

// compare is a total order over values: by type rank first, then by value.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch x := a.(type) {
	case string:
		return strings.Compare(x, b.(string))
	case bson.Symbol:
		return strings.Compare(string(x), string(b.(bson.Symbol)))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case bson.DateTime:
		return cmpInt(int64(x), int64(b.(bson.DateTime)))
	case bson.ObjectID:
		y := b.(bson.ObjectID)
		return bytes.Compare(x[:], y[:])
	case bson.Timestamp:
		y := b.(bson.Timestamp)
		if x.T != y.T {
			return cmpInt(x.T, y.T)
		}
		return cmpInt(x.I, y.I)
	case bson.Binary:
		y := b.(bson.Binary)
		if len(x.Data) != len(y.Data) {
			return cmpInt(len(x.Data), len(y.Data))
		}
		if x.Subtype != y.Subtype {
			return cmpInt(x.Subtype, y.Subtype)
		}
		return bytes.Compare(x.Data, y.Data)
	case bson.D:
		y := b.(bson.D)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := strings.Compare(x[i].Key, y[i].Key); c != 0 {
				return c
			}
			if c := compare(x[i].Value, y[i].Value); c != 0 {
				return c
			}
		}
		return cmpInt(len(x), len(y))
	case bson.A:
		y := b.(bson.A)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(x), len(y))
	case bson.Regex:
		y := b.(bson.Regex)
		if c := strings.Compare(x.Pattern, y.Pattern); c != 0 {
			return c
		}
		return strings.Compare(x.Options, y.Options)
	}
	if ra == 2 {
		fa, _ := toFloat64(a)
		fb, _ := toFloat64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		case math.IsNaN(fa) && !math.IsNaN(fb):
			return -1
		case !math.IsNaN(fa) && math.IsNaN(fb):
			return 1
		}
		return 0
	}
	return 0
}

func cmpInt[T int | int64 | uint32 | byte](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func equal(a, b any) bool {
	return rank(a) == rank(b) && compare(a, b) == 0
}

// sameClass reports whether range operators may compare a with b.
func sameClass(a, b any) bool {
	return rank(a) == rank(b)
}
