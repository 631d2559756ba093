package filestore

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// groupSpec is a compiled $group stage.
type groupSpec struct {
	id     any
	fields []accumulatorSpec
}

type accumulatorSpec struct {
	name string
	op   string
	expr any
}

func compileGroup(v any) (*groupSpec, error) {
	d, ok := v.(bson.D)
	if !ok {
		return nil, fmt.Errorf("a group's fields must be specified in an object")
	}
	spec := &groupSpec{}
	hasID := false
	for _, e := range d {
		if e.Key == "_id" {
			spec.id = e.Value
			hasID = true
			continue
		}
		acc, ok := e.Value.(bson.D)
		if !ok || len(acc) != 1 {
			return nil, fmt.Errorf("the field '%s' must be an accumulator object", e.Key)
		}
		op := acc[0].Key
		if newAccumulator(op) == nil {
			return nil, fmt.Errorf("unknown group operator '%s'", op)
		}
		spec.fields = append(spec.fields, accumulatorSpec{name: e.Key, op: op, expr: acc[0].Value})
	}
	if !hasID {
		return nil, fmt.Errorf("a group specification must include an _id")
	}
	return spec, nil
}

type groupState struct {
	id   any
	aggs []fieldAggregator
}

// run groups docs by the _id expression. Groups come out in the order their
// first document was seen.
func (g *groupSpec) run(docs []bson.D) ([]bson.D, error) {
	var order []string
	groups := make(map[string]*groupState)

	for _, doc := range docs {
		id, err := eval(doc, g.id)
		if err != nil {
			return nil, err
		}
		if _, ok := id.(missing); ok {
			id = nil
		}
		key, err := groupKey(id)
		if err != nil {
			return nil, err
		}

		state, ok := groups[key]
		if !ok {
			state = &groupState{id: id, aggs: make([]fieldAggregator, len(g.fields))}
			for i, f := range g.fields {
				state.aggs[i] = newAccumulator(f.op)
			}
			groups[key] = state
			order = append(order, key)
		}

		for i, f := range g.fields {
			v, err := eval(doc, f.expr)
			if err != nil {
				return nil, err
			}
			state.aggs[i].Add(v)
		}
	}

	out := make([]bson.D, 0, len(order))
	for _, key := range order {
		state := groups[key]
		row := make(bson.D, 0, len(g.fields)+1)
		row = append(row, bson.E{Key: "_id", Value: state.id})
		for i, f := range g.fields {
			row = append(row, bson.E{Key: f.name, Value: state.aggs[i].Result()})
		}
		out = append(out, row)
	}
	return out, nil
}

func groupKey(id any) (string, error) {
	out, err := bson.MarshalExtJSON(bson.D{{Key: "k", Value: id}}, true, false)
	if err != nil {
		return "", fmt.Errorf("group key: %w", err)
	}
	return string(out), nil
}

// Field Aggregators

type fieldAggregator interface {
	Add(val any)
	Result() any
}

func newAccumulator(op string) fieldAggregator {
	switch strings.ToLower(op) {
	case "$max":
		return &maxAggregator{}
	case "$min":
		return &minAggregator{}
	case "$avg":
		return &avgAggregator{}
	case "$count":
		return &countAggregator{}
	case "$sum":
		return &sumAggregator{}
	case "$first":
		return &firstAggregator{}
	case "$last":
		return &lastAggregator{}
	case "$push":
		return &pushAggregator{vals: bson.A{}}
	default:
		return nil
	}
}

// MAX
type maxAggregator struct {
	val any
	set bool
}

func (a *maxAggregator) Add(v any) {
	if isNullish(v) {
		return
	}
	if !a.set || compare(v, a.val) > 0 {
		a.val = v
		a.set = true
	}
}

func (a *maxAggregator) Result() any {
	return a.val
}

// MIN
type minAggregator struct {
	val any
	set bool
}

func (a *minAggregator) Add(v any) {
	if isNullish(v) {
		return
	}
	if !a.set || compare(v, a.val) < 0 {
		a.val = v
		a.set = true
	}
}

func (a *minAggregator) Result() any {
	return a.val
}

// AVG ignores non-numeric values and yields null when there were none.
type avgAggregator struct {
	sum   float64
	count int
}

func (a *avgAggregator) Add(v any) {
	if f, ok := toFloat64(v); ok {
		a.sum += f
		a.count++
	}
}

func (a *avgAggregator) Result() any {
	if a.count == 0 {
		return nil
	}
	return a.sum / float64(a.count)
}

// COUNT counts documents; its argument is ignored.
type countAggregator struct {
	count int32
}

func (a *countAggregator) Add(any) {
	a.count++
}

func (a *countAggregator) Result() any {
	return a.count
}

// SUM ignores non-numeric values. Integer sums stay integers.
type sumAggregator struct {
	sum numeric
}

func (a *sumAggregator) Add(v any) {
	if isNumber(v) {
		a.sum = a.sum.add(v)
	}
}

func (a *sumAggregator) Result() any {
	return a.sum.value()
}

// FIRST
type firstAggregator struct {
	val any
	set bool
}

func (a *firstAggregator) Add(v any) {
	if a.set {
		return
	}
	if _, ok := v.(missing); ok {
		v = nil
	}
	a.val = v
	a.set = true
}

func (a *firstAggregator) Result() any {
	return a.val
}

// LAST
type lastAggregator struct {
	val any
}

func (a *lastAggregator) Add(v any) {
	if _, ok := v.(missing); ok {
		v = nil
	}
	a.val = v
}

func (a *lastAggregator) Result() any {
	return a.val
}

// PUSH
type pushAggregator struct {
	vals bson.A
}

func (a *pushAggregator) Add(v any) {
	if _, ok := v.(missing); ok {
		return
	}
	a.vals = append(a.vals, v)
}

func (a *pushAggregator) Result() any {
	return a.vals
}
