// Package translate turns a small SELECT dialect into command documents.
// Plain selections become find commands; aggregates, GROUP BY and aliases
// become aggreg commands. Nothing is executed here.
package translate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Field represents a selected field with optional alias and aggregation
type Field struct {
	Path      string
	Alias     string
	Aggregate string // "MAX", "MIN", "AVG", "COUNT", "SUM" or empty
}

func (f Field) String() string {
	s := f.Path
	if f.Aggregate != "" {
		s = fmt.Sprintf("%s(%s)", f.Aggregate, f.Path)
	}
	if f.Alias != "" && f.Alias != f.Path {
		s += " AS " + f.Alias
	}
	return s
}

// Order is one ORDER BY key.
type Order struct {
	Path string
	Desc bool
}

// Query is a parsed SELECT.
type Query struct {
	// Fields is empty for SELECT *.
	Fields     []Field
	Collection string
	Filter     bson.D
	GroupBy    string
	OrderBy    []Order
	Limit      *int64
	Offset     *int64
}

// Grouped reports whether the query needs a $group stage.
func (q *Query) Grouped() bool {
	if q.GroupBy != "" {
		return true
	}
	for _, f := range q.Fields {
		if f.Aggregate != "" {
			return true
		}
	}
	return false
}

func (q *Query) renamed() bool {
	for _, f := range q.Fields {
		if f.Alias != f.Path {
			return true
		}
	}
	return false
}

var aggregates = map[string]string{
	"COUNT": "$sum",
	"SUM":   "$sum",
	"AVG":   "$avg",
	"MIN":   "$min",
	"MAX":   "$max",
}

// Parse parses a SELECT string using Participle
func Parse(input string) (*Query, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, sqlerr.InvalidCommand("empty query")
	}

	ast, err := sqlParser.ParseString("", input)
	if err != nil {
		return nil, sqlerr.InvalidCommand("parse error: %w", err)
	}
	return ast.query()
}

// Translate parses input and returns the command document that runs it.
func Translate(input string) (bson.D, error) {
	q, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return q.Command()
}

func (s *ASTSelect) query() (*Query, error) {
	q := &Query{}
	aliases := make(map[string]bool)
	for _, f := range s.Fields {
		if f.Star {
			if len(s.Fields) > 1 {
				return nil, sqlerr.InvalidCommand("* cannot be combined with other columns")
			}
			if f.Alias != "" {
				return nil, sqlerr.InvalidCommand("* cannot have an alias")
			}
			continue
		}
		field := Field{Alias: f.Alias}
		if f.Function != nil {
			agg := strings.ToUpper(f.Function.Name)
			if _, ok := aggregates[agg]; !ok {
				return nil, sqlerr.InvalidCommand("unknown function %s", f.Function.Name)
			}
			if f.Function.Arg == "*" && agg != "COUNT" {
				return nil, sqlerr.InvalidCommand("%s(*) is not supported", agg)
			}
			field.Aggregate = agg
			field.Path = f.Function.Arg
			if field.Alias == "" {
				field.Alias = fmtKey(agg, field.Path)
			}
		} else {
			field.Path = *f.Path
			if field.Alias == "" {
				field.Alias = field.Path
			}
		}
		if aliases[field.Alias] {
			return nil, sqlerr.InvalidCommand("duplicate column %s", field.Alias)
		}
		aliases[field.Alias] = true
		q.Fields = append(q.Fields, field)
	}

	if s.From != nil {
		q.Collection = *s.From
	}
	if s.Where != nil {
		filter, err := s.Where.filter()
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	}
	if s.GroupBy != nil {
		q.GroupBy = *s.GroupBy
	}
	for _, o := range s.OrderBy {
		q.OrderBy = append(q.OrderBy, Order{Path: o.Path, Desc: strings.EqualFold(o.Dir, "DESC")})
	}

	var err error
	if q.Limit, err = count("LIMIT", s.Limit); err != nil {
		return nil, err
	}
	if q.Limit != nil && *q.Limit == 0 {
		return nil, sqlerr.InvalidCommand("LIMIT must be greater than zero")
	}
	if q.Offset, err = count("OFFSET", s.Offset); err != nil {
		return nil, err
	}
	return q, nil
}

func count(clause string, s *string) (*int64, error) {
	if s == nil {
		return nil, nil
	}
	n, err := strconv.ParseInt(*s, 10, 64)
	if err != nil || n < 0 {
		return nil, sqlerr.InvalidCommand("%s needs a non-negative integer, got %s", clause, *s)
	}
	return &n, nil
}

func fmtKey(agg, path string) string {
	agg = strings.ToLower(agg)
	if path == "*" {
		return agg
	}
	return agg + "_" + strings.ReplaceAll(path, ".", "_")
}

// Command renders the query as a command document.
func (q *Query) Command() (bson.D, error) {
	cmd := bson.D{}
	if q.Collection != "" {
		cmd = append(cmd, bson.E{Key: engine.KeyFind, Value: q.Collection})
	}
	if !q.Grouped() && !q.renamed() {
		return q.findCommand(cmd), nil
	}
	pipeline, err := q.pipeline()
	if err != nil {
		return nil, err
	}
	return append(cmd, bson.E{Key: engine.KeyAggreg, Value: pipeline}), nil
}

func (q *Query) findCommand(cmd bson.D) bson.D {
	filter := q.Filter
	if filter == nil {
		filter = bson.D{}
	}
	cmd = append(cmd, bson.E{Key: engine.KeyFilter, Value: filter})
	if len(q.Fields) > 0 {
		proj := bson.D{}
		withID := false
		for _, f := range q.Fields {
			proj = append(proj, bson.E{Key: f.Path, Value: int32(1)})
			withID = withID || f.Path == "_id"
		}
		if !withID {
			proj = append(proj, bson.E{Key: "_id", Value: int32(0)})
		}
		cmd = append(cmd, bson.E{Key: engine.KeyProjection, Value: proj})
	}
	if len(q.OrderBy) > 0 {
		cmd = append(cmd, bson.E{Key: engine.KeySort, Value: sortSpec(q.OrderBy, nil)})
	}
	if q.Offset != nil {
		cmd = append(cmd, bson.E{Key: engine.KeySkip, Value: *q.Offset})
	}
	if q.Limit != nil {
		cmd = append(cmd, bson.E{Key: engine.KeyLimit, Value: *q.Limit})
	}
	return cmd
}

func sortSpec(keys []Order, rename map[string]string) bson.D {
	spec := bson.D{}
	for _, o := range keys {
		dir := int32(1)
		if o.Desc {
			dir = -1
		}
		path := o.Path
		if alias, ok := rename[path]; ok {
			path = alias
		}
		spec = append(spec, bson.E{Key: path, Value: dir})
	}
	return spec
}

// pipeline builds the aggreg stages. Grouped queries sort on output column
// names, other queries sort before the renaming $project.
func (q *Query) pipeline() (bson.A, error) {
	stages := bson.A{}
	if len(q.Filter) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: q.Filter}})
	}

	if !q.Grouped() {
		if len(q.OrderBy) > 0 {
			stages = append(stages, bson.D{{Key: "$sort", Value: sortSpec(q.OrderBy, nil)}})
		}
		stages = q.window(stages)
		proj := bson.D{}
		if !q.hasColumn("_id") {
			proj = append(proj, bson.E{Key: "_id", Value: int32(0)})
		}
		for _, f := range q.Fields {
			proj = append(proj, bson.E{Key: f.Alias, Value: "$" + f.Path})
		}
		return append(stages, bson.D{{Key: "$project", Value: proj}}), nil
	}

	var id any
	if q.GroupBy != "" {
		id = "$" + q.GroupBy
	}
	group := bson.D{{Key: "_id", Value: id}}
	proj := bson.D{{Key: "_id", Value: int32(0)}}
	// output columns are referred to by alias or by what they select
	names := make(map[string]string)
	for i, f := range q.Fields {
		names[f.Alias] = f.Alias
		switch {
		case f.Aggregate != "":
			key := "f" + strconv.Itoa(i)
			var arg any = "$" + f.Path
			if f.Aggregate == "COUNT" {
				arg = int32(1)
			}
			group = append(group, bson.E{Key: key, Value: bson.D{{Key: aggregates[f.Aggregate], Value: arg}}})
			proj = append(proj, bson.E{Key: f.Alias, Value: "$" + key})
		case f.Path == q.GroupBy:
			proj = append(proj, bson.E{Key: f.Alias, Value: "$_id"})
			names[f.Path] = f.Alias
		default:
			return nil, sqlerr.InvalidCommand("column %s must appear in GROUP BY or be used in an aggregate", f.Path)
		}
	}
	if len(q.Fields) == 0 {
		return nil, sqlerr.InvalidCommand("SELECT * cannot be used with GROUP BY")
	}
	stages = append(stages,
		bson.D{{Key: "$group", Value: group}},
		bson.D{{Key: "$project", Value: proj}},
	)
	if len(q.OrderBy) > 0 {
		for _, o := range q.OrderBy {
			if _, ok := names[o.Path]; !ok {
				return nil, sqlerr.InvalidCommand("ORDER BY %s must name a selected column", o.Path)
			}
		}
		stages = append(stages, bson.D{{Key: "$sort", Value: sortSpec(q.OrderBy, names)}})
	}
	return q.window(stages), nil
}

func (q *Query) window(stages bson.A) bson.A {
	if q.Offset != nil && *q.Offset > 0 {
		stages = append(stages, bson.D{{Key: "$skip", Value: *q.Offset}})
	}
	if q.Limit != nil {
		stages = append(stages, bson.D{{Key: "$limit", Value: *q.Limit}})
	}
	return stages
}

func (q *Query) hasColumn(name string) bool {
	for _, f := range q.Fields {
		if f.Alias == name {
			return true
		}
	}
	return false
}

// Filters

func (e *ASTExpression) filter() (bson.D, error) {
	if len(e.Or) == 1 {
		return e.Or[0].filter()
	}
	clauses := bson.A{}
	for _, or := range e.Or {
		d, err := or.filter()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, d)
	}
	return bson.D{{Key: "$or", Value: clauses}}, nil
}

func (o *ASTOrCondition) filter() (bson.D, error) {
	if len(o.And) == 1 {
		return o.And[0].filter()
	}
	clauses := bson.A{}
	for _, c := range o.And {
		d, err := c.filter()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, d)
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func (c *ASTCondition) filter() (bson.D, error) {
	if c.Grouped != nil {
		return c.Grouped.filter()
	}
	return c.Simple.filter()
}

var comparisons = map[string]string{
	"!=": "$ne",
	"<>": "$ne",
	">":  "$gt",
	">=": "$gte",
	"<":  "$lt",
	"<=": "$lte",
}

func (s *ASTSimpleCondition) filter() (bson.D, error) {
	switch {
	case s.Null != nil:
		if s.Null.Not {
			return bson.D{{Key: s.Path, Value: bson.D{{Key: "$ne", Value: nil}}}}, nil
		}
		return bson.D{{Key: s.Path, Value: nil}}, nil
	case s.In != nil:
		vals := bson.A{}
		for _, l := range s.In {
			v, err := l.Value()
			if err != nil {
				return nil, sqlerr.InvalidCommand("%w", err)
			}
			vals = append(vals, v)
		}
		return bson.D{{Key: s.Path, Value: bson.D{{Key: "$in", Value: vals}}}}, nil
	}

	v, err := s.Value.Value()
	if err != nil {
		return nil, sqlerr.InvalidCommand("%w", err)
	}
	op := strings.ToUpper(*s.Op)
	switch op {
	case "=", "CONTAINS":
		return bson.D{{Key: s.Path, Value: v}}, nil
	case "LIKE":
		pattern, ok := v.(string)
		if !ok {
			return nil, sqlerr.InvalidCommand("LIKE needs a string pattern")
		}
		return bson.D{{Key: s.Path, Value: bson.D{{Key: "$regex", Value: likePattern(pattern)}}}}, nil
	default:
		return bson.D{{Key: s.Path, Value: bson.D{{Key: comparisons[op], Value: v}}}}, nil
	}
}

// likePattern anchors a LIKE pattern as a regular expression: % matches any
// run of characters and _ exactly one.
func likePattern(like string) string {
	var b strings.Builder
	b.WriteString("^")
	lit := 0
	flush := func(i int) {
		b.WriteString(regexp.QuoteMeta(like[lit:i]))
	}
	for i := 0; i < len(like); i++ {
		switch like[i] {
		case '%':
			flush(i)
			b.WriteString(".*")
			lit = i + 1
		case '_':
			flush(i)
			b.WriteString(".")
			lit = i + 1
		}
	}
	flush(len(like))
	b.WriteString("$")
	return b.String()
}
