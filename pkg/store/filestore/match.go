package filestore

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Matcher reports whether a document satisfies a filter.
type Matcher func(doc bson.D) bool

func matchAll(bson.D) bool { return true }

// CompileFilter turns a query filter into a Matcher. A nil or empty filter
// matches every document.
func CompileFilter(filter bson.D) (Matcher, error) {
	if len(filter) == 0 {
		return matchAll, nil
	}
	clauses := make([]Matcher, 0, len(filter))
	for _, e := range filter {
		m, err := compileClause(e.Key, e.Value)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, m)
	}
	return and(clauses), nil
}

func and(ms []Matcher) Matcher {
	if len(ms) == 1 {
		return ms[0]
	}
	return func(doc bson.D) bool {
		for _, m := range ms {
			if !m(doc) {
				return false
			}
		}
		return true
	}
}

func compileClause(key string, value any) (Matcher, error) {
	switch key {
	case "$and", "$or", "$nor":
		subs, err := compileList(key, value)
		if err != nil {
			return nil, err
		}
		switch key {
		case "$and":
			return and(subs), nil
		case "$or":
			return func(doc bson.D) bool {
				for _, m := range subs {
					if m(doc) {
						return true
					}
				}
				return false
			}, nil
		default:
			return func(doc bson.D) bool {
				for _, m := range subs {
					if m(doc) {
						return false
					}
				}
				return true
			}, nil
		}
	}
	if strings.HasPrefix(key, "$") {
		return nil, fmt.Errorf("unknown top level operator: %s", key)
	}

	cond, err := compileCondition(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return func(doc bson.D) bool {
		vals := lookup(doc, key)
		return cond(vals, len(vals) > 0)
	}, nil
}

func compileList(op string, value any) ([]Matcher, error) {
	arr, ok := value.(bson.A)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("%s must be a nonempty array", op)
	}
	subs := make([]Matcher, 0, len(arr))
	for _, el := range arr {
		d, ok := el.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%s entries must be documents", op)
		}
		m, err := CompileFilter(d)
		if err != nil {
			return nil, err
		}
		subs = append(subs, m)
	}
	return subs, nil
}

// condition tests the values found at a field path.
type condition func(vals []any, found bool) bool

func isOperatorDoc(v any) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 || !strings.HasPrefix(d[0].Key, "$") {
		return nil, false
	}
	return d, true
}

func compileCondition(value any) (condition, error) {
	ops, ok := isOperatorDoc(value)
	if !ok {
		if re, ok := value.(bson.Regex); ok {
			return compileRegex(re.Pattern, re.Options)
		}
		return eqCondition(value), nil
	}

	var regexOpts string
	for _, e := range ops {
		if e.Key == "$options" {
			s, ok := e.Value.(string)
			if !ok {
				return nil, fmt.Errorf("$options must be a string")
			}
			regexOpts = s
		}
	}

	conds := make([]condition, 0, len(ops))
	for _, e := range ops {
		var (
			c   condition
			err error
		)
		switch e.Key {
		case "$eq":
			c = eqCondition(e.Value)
		case "$ne":
			c = not(eqCondition(e.Value))
		case "$gt", "$gte", "$lt", "$lte":
			c = rangeCondition(e.Key, e.Value)
		case "$in":
			c, err = inCondition(e.Value)
		case "$nin":
			c, err = inCondition(e.Value)
			c = not(c)
		case "$exists":
			want := truthy(e.Value)
			c = func(_ []any, found bool) bool { return found == want }
		case "$regex":
			switch p := e.Value.(type) {
			case string:
				c, err = compileRegex(p, regexOpts)
			case bson.Regex:
				c, err = compileRegex(p.Pattern, p.Options+regexOpts)
			default:
				err = fmt.Errorf("$regex must be a string")
			}
		case "$options":
			continue
		case "$not":
			var inner condition
			inner, err = compileCondition(e.Value)
			c = not(inner)
		case "$size":
			n, ok := toFloat64(e.Value)
			if !ok {
				return nil, fmt.Errorf("$size needs a number")
			}
			c = func(vals []any, _ bool) bool {
				for _, v := range vals {
					if arr, ok := v.(bson.A); ok && float64(len(arr)) == n {
						return true
					}
				}
				return false
			}
		default:
			return nil, fmt.Errorf("unknown operator: %s", e.Key)
		}
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}

	return func(vals []any, found bool) bool {
		for _, c := range conds {
			if !c(vals, found) {
				return false
			}
		}
		return true
	}, nil
}

func not(c condition) condition {
	return func(vals []any, found bool) bool { return !c(vals, found) }
}

// anyValue applies test to each value and, for arrays, to each element.
func anyValue(vals []any, test func(any) bool) bool {
	for _, v := range vals {
		if test(v) {
			return true
		}
		if arr, ok := v.(bson.A); ok {
			for _, el := range arr {
				if test(el) {
					return true
				}
			}
		}
	}
	return false
}

func eqCondition(target any) condition {
	return func(vals []any, found bool) bool {
		if !found {
			// {field: null} matches missing fields
			return target == nil
		}
		return anyValue(vals, func(v any) bool { return equal(v, target) })
	}
}

func rangeCondition(op string, target any) condition {
	return func(vals []any, _ bool) bool {
		return anyValue(vals, func(v any) bool {
			if !sameClass(v, target) {
				return false
			}
			c := compare(v, target)
			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			default:
				return c <= 0
			}
		})
	}
}

func inCondition(value any) (condition, error) {
	arr, ok := value.(bson.A)
	if !ok {
		return nil, fmt.Errorf("$in needs an array")
	}
	eqs := make([]condition, len(arr))
	for i, target := range arr {
		if re, ok := target.(bson.Regex); ok {
			c, err := compileRegex(re.Pattern, re.Options)
			if err != nil {
				return nil, err
			}
			eqs[i] = c
			continue
		}
		eqs[i] = eqCondition(target)
	}
	return func(vals []any, found bool) bool {
		for _, c := range eqs {
			if c(vals, found) {
				return true
			}
		}
		return false
	}, nil
}

func compileRegex(pattern, options string) (condition, error) {
	var flags strings.Builder
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags.WriteRune(o)
		default:
			return nil, fmt.Errorf("unsupported regex option %q", o)
		}
	}
	if flags.Len() > 0 {
		pattern = "(?" + flags.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return func(vals []any, _ bool) bool {
		return anyValue(vals, func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		})
	}, nil
}
