package filestore

import (
	"fmt"
	"math"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// missing marks an expression that resolved to no value, so that it can be
// left out of projections and skipped by accumulators.
type missing struct{}

// eval computes an aggregation expression against doc. Strings starting with
// "$" are field paths; documents with a single "$" key are operators.
func eval(doc bson.D, expr any) (any, error) {
	switch x := expr.(type) {
	case string:
		if strings.HasPrefix(x, "$") && len(x) > 1 {
			v, ok := get(doc, x[1:])
			if !ok {
				return missing{}, nil
			}
			return v, nil
		}
		return x, nil
	case bson.A:
		out := make(bson.A, 0, len(x))
		for _, el := range x {
			v, err := eval(doc, el)
			if err != nil {
				return nil, err
			}
			if _, ok := v.(missing); ok {
				v = nil
			}
			out = append(out, v)
		}
		return out, nil
	case bson.D:
		if len(x) == 1 && strings.HasPrefix(x[0].Key, "$") {
			return evalOperator(doc, x[0].Key, x[0].Value)
		}
		out := make(bson.D, 0, len(x))
		for _, e := range x {
			v, err := eval(doc, e.Value)
			if err != nil {
				return nil, err
			}
			if _, ok := v.(missing); ok {
				continue
			}
			out = append(out, bson.E{Key: e.Key, Value: v})
		}
		return out, nil
	default:
		return expr, nil
	}
}

func evalArgs(doc bson.D, op string, arg any) ([]any, error) {
	arr, ok := arg.(bson.A)
	if !ok {
		arr = bson.A{arg}
	}
	out := make([]any, len(arr))
	for i, a := range arr {
		v, err := eval(doc, a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out[i] = v
	}
	return out, nil
}

func evalOperator(doc bson.D, op string, arg any) (any, error) {
	if op == "$literal" {
		return arg, nil
	}
	args, err := evalArgs(doc, op, arg)
	if err != nil {
		return nil, err
	}

	switch op {
	case "$add", "$multiply":
		var acc numeric
		if op == "$multiply" {
			acc = numeric{i: 1, f: 1}
		}
		for _, a := range args {
			if isNullish(a) {
				return nil, nil
			}
			if !isNumber(a) {
				return nil, fmt.Errorf("%s only supports numeric types, not %T", op, a)
			}
			if op == "$add" {
				acc = acc.add(a)
			} else {
				acc = acc.mul(a)
			}
		}
		return acc.value(), nil
	case "$subtract", "$divide":
		if len(args) != 2 {
			return nil, fmt.Errorf("%s takes exactly 2 arguments", op)
		}
		if isNullish(args[0]) || isNullish(args[1]) {
			return nil, nil
		}
		a, okA := toFloat64(args[0])
		b, okB := toFloat64(args[1])
		if !okA || !okB {
			return nil, fmt.Errorf("%s only supports numeric types", op)
		}
		if op == "$divide" {
			if b == 0 {
				return nil, fmt.Errorf("can't $divide by zero")
			}
			return a / b, nil
		}
		return numeric{}.add(args[0]).add(negate(args[1])).value(), nil
	case "$concat":
		var b strings.Builder
		for _, a := range args {
			if isNullish(a) {
				return nil, nil
			}
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("$concat only supports strings, not %T", a)
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case "$toUpper", "$toLower":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes exactly 1 argument", op)
		}
		if isNullish(args[0]) {
			return "", nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s only supports strings, not %T", op, args[0])
		}
		if op == "$toUpper" {
			return strings.ToUpper(s), nil
		}
		return strings.ToLower(s), nil
	case "$size":
		if len(args) != 1 {
			return nil, fmt.Errorf("$size takes exactly 1 argument")
		}
		arr, ok := args[0].(bson.A)
		if !ok {
			return nil, fmt.Errorf("the argument to $size must be an array, not %T", args[0])
		}
		return int32(len(arr)), nil
	case "$ifNull":
		for _, a := range args {
			if !isNullish(a) {
				return a, nil
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unrecognized expression operator %s", op)
	}
}

func isNullish(v any) bool {
	switch v.(type) {
	case nil, missing, bson.Null, bson.Undefined:
		return true
	}
	return false
}

func negate(v any) any {
	switch n := v.(type) {
	case int32:
		if n == math.MinInt32 {
			return -int64(n)
		}
		return -n
	case int64:
		return -n
	}
	f, _ := toFloat64(v)
	return -f
}

// numeric keeps integer arithmetic exact until a double shows up.
type numeric struct {
	i       int64
	f       float64
	isFloat bool
	wide    bool
}

func (n numeric) add(v any) numeric {
	switch x := v.(type) {
	case int32:
		n.i += int64(x)
		n.f += float64(x)
	case int64:
		n.i += x
		n.f += float64(x)
		n.wide = true
	default:
		f, _ := toFloat64(v)
		n.f += f
		n.isFloat = true
	}
	return n
}

func (n numeric) mul(v any) numeric {
	switch x := v.(type) {
	case int32:
		n.i *= int64(x)
		n.f *= float64(x)
	case int64:
		n.i *= x
		n.f *= float64(x)
		n.wide = true
	default:
		f, _ := toFloat64(v)
		n.f *= f
		n.isFloat = true
	}
	return n
}

// value returns an int32 while the result is integral and fits, as the
// server does.
func (n numeric) value() any {
	switch {
	case n.isFloat:
		return n.f
	case !n.wide && n.i >= -1<<31 && n.i < 1<<31:
		return int32(n.i)
	default:
		return n.i
	}
}
