package filestore

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// stage transforms the full document set. Stages run in memory, one after
// the other.
type stage func(docs []bson.D) ([]bson.D, error)

// compilePipeline validates every stage before anything runs.
func compilePipeline(pipeline []bson.D) ([]stage, error) {
	stages := make([]stage, 0, len(pipeline))
	for i, d := range pipeline {
		if len(d) != 1 {
			return nil, fmt.Errorf("stage %d: a pipeline stage specification object must contain exactly one field", i)
		}
		s, err := compileStage(d[0].Key, d[0].Value)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, d[0].Key, err)
		}
		stages = append(stages, s)
	}
	return stages, nil
}

func compileStage(name string, arg any) (stage, error) {
	switch name {
	case "$match":
		filter, ok := arg.(bson.D)
		if !ok {
			return nil, fmt.Errorf("the match filter must be an expression in an object")
		}
		m, err := CompileFilter(filter)
		if err != nil {
			return nil, err
		}
		return func(docs []bson.D) ([]bson.D, error) {
			return filterDocs(docs, m), nil
		}, nil
	case "$sort":
		spec, ok := arg.(bson.D)
		if !ok || len(spec) == 0 {
			return nil, fmt.Errorf("the $sort key specification must be a nonempty object")
		}
		if err := validateSort(spec); err != nil {
			return nil, err
		}
		return func(docs []bson.D) ([]bson.D, error) {
			sortDocs(docs, spec)
			return docs, nil
		}, nil
	case "$skip", "$limit":
		n, ok := toFloat64(arg)
		if !ok || n < 0 || (name == "$limit" && n == 0) {
			return nil, fmt.Errorf("invalid argument %v", arg)
		}
		return func(docs []bson.D) ([]bson.D, error) {
			if name == "$skip" {
				return skipDocs(docs, int64(n)), nil
			}
			return limitDocs(docs, int64(n)), nil
		}, nil
	case "$project", "$addFields", "$set":
		spec, ok := arg.(bson.D)
		if !ok {
			return nil, fmt.Errorf("specification must be an object")
		}
		var p *projection
		if name == "$project" {
			var err error
			if p, err = compileProjection(spec); err != nil {
				return nil, err
			}
		}
		return func(docs []bson.D) ([]bson.D, error) {
			out := make([]bson.D, len(docs))
			for i, d := range docs {
				var err error
				if p != nil {
					out[i], err = p.apply(d)
				} else {
					out[i], err = addFields(d, spec)
				}
				if err != nil {
					return nil, err
				}
			}
			return out, nil
		}, nil
	case "$group":
		g, err := compileGroup(arg)
		if err != nil {
			return nil, err
		}
		return g.run, nil
	case "$count":
		field, ok := arg.(string)
		if !ok || field == "" || strings.HasPrefix(field, "$") || strings.Contains(field, ".") {
			return nil, fmt.Errorf("the count field must be a non-empty string without '$' or '.'")
		}
		return func(docs []bson.D) ([]bson.D, error) {
			if len(docs) == 0 {
				return nil, nil
			}
			return []bson.D{{{Key: field, Value: int32(len(docs))}}}, nil
		}, nil
	case "$unwind":
		u, err := compileUnwind(arg)
		if err != nil {
			return nil, err
		}
		return u.run, nil
	default:
		return nil, fmt.Errorf("unrecognized pipeline stage name")
	}
}

func filterDocs(docs []bson.D, m Matcher) []bson.D {
	out := docs[:0:0]
	for _, d := range docs {
		if m(d) {
			out = append(out, d)
		}
	}
	return out
}

func skipDocs(docs []bson.D, n int64) []bson.D {
	if n >= int64(len(docs)) {
		return nil
	}
	return docs[n:]
}

// limitDocs keeps the first n documents; 0 means no limit and a negative n
// is read as its absolute value, like the server's find.
func limitDocs(docs []bson.D, n int64) []bson.D {
	if n < 0 {
		n = -n
	}
	if n == 0 || n >= int64(len(docs)) {
		return docs
	}
	return docs[:n]
}

func validateSort(spec bson.D) error {
	for _, e := range spec {
		dir, ok := toFloat64(e.Value)
		if !ok || (dir != 1 && dir != -1) {
			return fmt.Errorf("$sort key ordering must be 1 (for ascending) or -1 (for descending)")
		}
	}
	return nil
}

// sortKey is the value a document sorts by on path. Arrays sort by their
// smallest element ascending and their largest descending.
func sortKey(doc bson.D, path string, desc bool) any {
	vals := lookup(doc, path)
	if len(vals) == 0 {
		return nil
	}
	var flat []any
	for _, v := range vals {
		if arr, ok := v.(bson.A); ok && len(arr) > 0 {
			flat = append(flat, arr...)
			continue
		}
		flat = append(flat, v)
	}
	best := flat[0]
	for _, v := range flat[1:] {
		c := compare(v, best)
		if (desc && c > 0) || (!desc && c < 0) {
			best = v
		}
	}
	return best
}

// sortDocs sorts in place and keeps ties in input order.
func sortDocs(docs []bson.D, spec bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, e := range spec {
			dir, _ := toFloat64(e.Value)
			desc := dir < 0
			c := compare(sortKey(docs[i], e.Key, desc), sortKey(docs[j], e.Key, desc))
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// projection is a compiled inclusion or exclusion projection. Inclusion
// projections may also compute fields from expressions.
type projection struct {
	include bool
	keepID  bool
	tree    *projNode
}

type projNode struct {
	children map[string]*projNode
	order    []string
	// expr is set for computed fields.
	expr     any
	computed bool
}

func newProjNode() *projNode {
	return &projNode{children: make(map[string]*projNode)}
}

func (n *projNode) child(key string) *projNode {
	c, ok := n.children[key]
	if !ok {
		c = newProjNode()
		n.children[key] = c
		n.order = append(n.order, key)
	}
	return c
}

func compileProjection(spec bson.D) (*projection, error) {
	p := &projection{keepID: true, tree: newProjNode()}
	mode := 0 // 1 include, -1 exclude
	for _, e := range spec {
		if e.Key == "_id" {
			if !isExpression(e.Value) {
				p.keepID = truthy(e.Value)
				continue
			}
			p.keepID = false
		}
		node := p.tree
		for _, part := range strings.Split(e.Key, ".") {
			node = node.child(part)
		}
		fieldMode := -1
		if isExpression(e.Value) {
			node.expr = e.Value
			node.computed = true
			fieldMode = 1
		} else if truthy(e.Value) {
			fieldMode = 1
		}
		if mode != 0 && mode != fieldMode {
			return nil, fmt.Errorf("cannot mix inclusion and exclusion in projection")
		}
		mode = fieldMode
	}
	p.include = mode >= 0
	if mode == 0 {
		// only _id was given
		p.include = p.keepID
	}
	return p, nil
}

// isExpression tells computed projection values from 0/1/true/false flags.
func isExpression(v any) bool {
	switch v.(type) {
	case string, bson.D, bson.A:
		return true
	}
	return false
}

func (p *projection) apply(doc bson.D) (bson.D, error) {
	var out bson.D
	var err error
	if p.include {
		out, err = includeFields(doc, doc, p.tree, true)
		if err != nil {
			return nil, err
		}
		if p.keepID {
			if id, ok := get(doc, "_id"); ok {
				out = append(bson.D{{Key: "_id", Value: id}}, out...)
			}
		}
		return out, nil
	}
	out = excludeFields(doc, p.tree)
	if !p.keepID {
		out, _ = unsetPath(out, "_id")
	}
	return out, nil
}

// includeFields copies the fields of d named by node, in d's order, then
// appends computed fields that d did not have. root is the whole document
// expressions are evaluated against; the top level _id is handled by apply.
func includeFields(root, d bson.D, node *projNode, top bool) (bson.D, error) {
	var out bson.D
	seen := make(map[string]bool)
	for _, e := range d {
		if top && e.Key == "_id" {
			continue
		}
		c, ok := node.children[e.Key]
		if !ok {
			continue
		}
		seen[e.Key] = true
		v, keep, err := projectValue(root, e.Value, c)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, bson.E{Key: e.Key, Value: v})
		}
	}
	for _, key := range node.order {
		c := node.children[key]
		if seen[key] || (!c.computed && !hasComputed(c)) {
			continue
		}
		v, keep, err := projectValue(root, nil, c)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, bson.E{Key: key, Value: v})
		}
	}
	return out, nil
}

func hasComputed(n *projNode) bool {
	for _, c := range n.children {
		if c.computed || hasComputed(c) {
			return true
		}
	}
	return false
}

func projectValue(root bson.D, v any, node *projNode) (any, bool, error) {
	if node.computed {
		out, err := eval(root, node.expr)
		if err != nil {
			return nil, false, err
		}
		if _, ok := out.(missing); ok {
			return nil, false, nil
		}
		return out, true, nil
	}
	if len(node.children) == 0 {
		return v, true, nil
	}
	switch x := v.(type) {
	case bson.D:
		sub, err := includeFields(root, x, node, false)
		return sub, true, err
	case bson.A:
		out := make(bson.A, 0, len(x))
		for _, el := range x {
			if d, ok := el.(bson.D); ok {
				sub, err := includeFields(root, d, node, false)
				if err != nil {
					return nil, false, err
				}
				out = append(out, sub)
			}
		}
		return out, true, nil
	case nil:
		if hasComputed(node) {
			sub, err := includeFields(root, nil, node, false)
			return sub, true, err
		}
	}
	return nil, false, nil
}

func excludeFields(d bson.D, node *projNode) bson.D {
	out := make(bson.D, 0, len(d))
	for _, e := range d {
		c, ok := node.children[e.Key]
		if !ok {
			out = append(out, e)
			continue
		}
		if len(c.children) == 0 {
			continue
		}
		switch x := e.Value.(type) {
		case bson.D:
			out = append(out, bson.E{Key: e.Key, Value: excludeFields(x, c)})
		case bson.A:
			arr := make(bson.A, len(x))
			for i, el := range x {
				if sub, ok := el.(bson.D); ok {
					arr[i] = excludeFields(sub, c)
				} else {
					arr[i] = el
				}
			}
			out = append(out, bson.E{Key: e.Key, Value: arr})
		default:
			out = append(out, e)
		}
	}
	return out
}

func addFields(doc bson.D, spec bson.D) (bson.D, error) {
	out := cloneDoc(doc)
	for _, e := range spec {
		v, err := eval(doc, e.Value)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(missing); ok {
			continue
		}
		out = setPath(out, e.Key, v)
	}
	return out, nil
}

type unwind struct {
	path       string
	indexField string
	preserve   bool
}

func compileUnwind(arg any) (*unwind, error) {
	u := &unwind{}
	switch x := arg.(type) {
	case string:
		u.path = x
	case bson.D:
		for _, e := range x {
			switch e.Key {
			case "path":
				s, ok := e.Value.(string)
				if !ok {
					return nil, fmt.Errorf("expected a string as the path for $unwind stage")
				}
				u.path = s
			case "includeArrayIndex":
				s, ok := e.Value.(string)
				if !ok {
					return nil, fmt.Errorf("expected a string as the includeArrayIndex option")
				}
				u.indexField = s
			case "preserveNullAndEmptyArrays":
				u.preserve = truthy(e.Value)
			default:
				return nil, fmt.Errorf("unrecognized option to $unwind stage: %s", e.Key)
			}
		}
	default:
		return nil, fmt.Errorf("expected either a string or an object as specification for $unwind stage")
	}
	if !strings.HasPrefix(u.path, "$") || len(u.path) < 2 {
		return nil, fmt.Errorf("path option to $unwind stage should be prefixed with a '$'")
	}
	u.path = u.path[1:]
	return u, nil
}

func (u *unwind) run(docs []bson.D) ([]bson.D, error) {
	var out []bson.D
	for _, doc := range docs {
		v, found := get(doc, u.path)
		arr, isArray := v.(bson.A)
		switch {
		case isArray && len(arr) > 0:
			for i, el := range arr {
				d := setPath(cloneDoc(doc), u.path, clone(el))
				if u.indexField != "" {
					d = setPath(d, u.indexField, int64(i))
				}
				out = append(out, d)
			}
		case found && !isArray && v != nil:
			d := cloneDoc(doc)
			if u.indexField != "" {
				d = setPath(d, u.indexField, nil)
			}
			out = append(out, d)
		case u.preserve:
			d := cloneDoc(doc)
			if isArray {
				d, _ = unsetPath(d, u.path)
			}
			if u.indexField != "" {
				d = setPath(d, u.indexField, nil)
			}
			out = append(out, d)
		}
	}
	return out, nil
}
