package filestore

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RunCommand answers ping, count, insert, update and delete with replies
// shaped like the server's.
func (s *Store) RunCommand(ctx context.Context, cmd bson.D) (bson.Raw, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(cmd) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	name := cmd[0].Key
	var (
		reply bson.D
		err   error
	)
	switch name {
	case "ping":
		reply = bson.D{}
	case "count":
		reply, err = s.count(cmd)
	case "insert":
		reply, err = s.insert(cmd)
	case "update":
		reply, err = s.update(cmd)
	case "delete":
		reply, err = s.delete(cmd)
	default:
		return nil, fmt.Errorf("no such command: '%s'", name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	reply = append(reply, bson.E{Key: "ok", Value: 1.0})
	s.log.Debug("command", "name", name, "reply", reply)
	return bson.Marshal(reply)
}

func target(cmd bson.D) (string, error) {
	name, ok := cmd[0].Value.(string)
	if !ok || name == "" {
		return "", fmt.Errorf("collection name has invalid type %T", cmd[0].Value)
	}
	return name, nil
}

// field returns the value of key in d, nil when absent.
func field(d bson.D, key string) any {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// documents reads an array of documents option.
func documents(cmd bson.D, key string) ([]bson.D, error) {
	arr, ok := field(cmd[1:], key).(bson.A)
	if !ok {
		return nil, fmt.Errorf("'%s' must be an array of documents", key)
	}
	out := make([]bson.D, len(arr))
	for i, el := range arr {
		d, ok := el.(bson.D)
		if !ok {
			return nil, fmt.Errorf("'%s.%d' must be a document", key, i)
		}
		out[i] = d
	}
	return out, nil
}

func optionalDoc(v any, key string) (bson.D, error) {
	switch d := v.(type) {
	case nil:
		return bson.D{}, nil
	case bson.D:
		return d, nil
	default:
		return nil, fmt.Errorf("'%s' must be a document", key)
	}
}

func (s *Store) count(cmd bson.D) (bson.D, error) {
	coll, err := target(cmd)
	if err != nil {
		return nil, err
	}
	query, err := optionalDoc(field(cmd[1:], "query"), "query")
	if err != nil {
		return nil, err
	}
	m, err := CompileFilter(query)
	if err != nil {
		return nil, err
	}
	docs, err := s.catalog.Snapshot(coll)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "n", Value: int32(len(filterDocs(docs, m)))}}, nil
}

func (s *Store) insert(cmd bson.D) (bson.D, error) {
	coll, err := target(cmd)
	if err != nil {
		return nil, err
	}
	docs, err := documents(cmd, "documents")
	if err != nil {
		return nil, err
	}
	added := make([]bson.D, len(docs))
	for i, d := range docs {
		added[i] = withID(cloneDoc(d))
	}
	err = s.catalog.Mutate(coll, func(stored []bson.D) ([]bson.D, error) {
		return append(stored, added...), nil
	})
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "n", Value: int32(len(added))}}, nil
}

// withID puts a generated _id first when d has none.
func withID(d bson.D) bson.D {
	if _, ok := get(d, "_id"); ok {
		return d
	}
	return append(bson.D{{Key: "_id", Value: bson.NewObjectID()}}, d...)
}

func (s *Store) update(cmd bson.D) (bson.D, error) {
	coll, err := target(cmd)
	if err != nil {
		return nil, err
	}
	updates, err := documents(cmd, "updates")
	if err != nil {
		return nil, err
	}
	specs := make([]updateSpec, len(updates))
	for i, u := range updates {
		if specs[i], err = compileUpdate(u); err != nil {
			return nil, fmt.Errorf("updates.%d: %w", i, err)
		}
	}

	var matched, modified int32
	var upserted bson.A
	err = s.catalog.Mutate(coll, func(docs []bson.D) ([]bson.D, error) {
		for i, spec := range specs {
			hits := 0
			for j, d := range docs {
				if !spec.match(d) {
					continue
				}
				hits++
				next, err := spec.apply(d)
				if err != nil {
					return nil, fmt.Errorf("updates.%d: %w", i, err)
				}
				if compare(next, d) != 0 {
					docs[j] = next
					modified++
				}
				if !spec.multi {
					break
				}
			}
			matched += int32(hits)
			if hits == 0 && spec.upsert {
				doc, err := spec.seed()
				if err != nil {
					return nil, fmt.Errorf("updates.%d: %w", i, err)
				}
				docs = append(docs, doc)
				matched++
				id, _ := get(doc, "_id")
				upserted = append(upserted, bson.D{{Key: "index", Value: int32(i)}, {Key: "_id", Value: id}})
			}
		}
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	reply := bson.D{{Key: "n", Value: matched}, {Key: "nModified", Value: modified}}
	if len(upserted) > 0 {
		reply = append(reply, bson.E{Key: "upserted", Value: upserted})
	}
	return reply, nil
}

// updateSpec is one compiled entry of an update command.
type updateSpec struct {
	query  bson.D
	match  Matcher
	change bson.D
	// replace is set for replacement documents, as opposed to $-operators.
	replace bool
	multi   bool
	upsert  bool
}

func compileUpdate(u bson.D) (updateSpec, error) {
	var spec updateSpec
	for _, e := range u {
		var err error
		switch e.Key {
		case "q":
			spec.query, err = optionalDoc(e.Value, "q")
		case "u":
			var ok bool
			if spec.change, ok = e.Value.(bson.D); !ok {
				err = fmt.Errorf("'u' must be a document")
			}
		case "multi":
			spec.multi = truthy(e.Value)
		case "upsert":
			spec.upsert = truthy(e.Value)
		default:
			err = fmt.Errorf("unrecognized field '%s'", e.Key)
		}
		if err != nil {
			return spec, err
		}
	}
	if spec.change == nil {
		return spec, fmt.Errorf("missing 'u'")
	}
	m, err := CompileFilter(spec.query)
	if err != nil {
		return spec, err
	}
	spec.match = m

	spec.replace = len(spec.change) == 0 || !strings.HasPrefix(spec.change[0].Key, "$")
	for _, e := range spec.change {
		isOp := strings.HasPrefix(e.Key, "$")
		if isOp == spec.replace {
			return spec, fmt.Errorf("update document cannot mix operators and fields")
		}
		if !isOp {
			continue
		}
		if _, ok := e.Value.(bson.D); !ok {
			return spec, fmt.Errorf("modifier %s needs a document", e.Key)
		}
		switch e.Key {
		case "$set", "$unset", "$inc":
		default:
			return spec, fmt.Errorf("unknown modifier: %s", e.Key)
		}
	}
	if spec.replace && spec.multi {
		return spec, fmt.Errorf("multi update is not supported for replacement-style update")
	}
	return spec, nil
}

func (u updateSpec) apply(doc bson.D) (bson.D, error) {
	if u.replace {
		out := bson.D{}
		if id, ok := get(doc, "_id"); ok {
			out = append(out, bson.E{Key: "_id", Value: id})
		}
		for _, e := range u.change {
			if e.Key == "_id" {
				id, ok := get(doc, "_id")
				if !ok {
					out = append(bson.D{{Key: "_id", Value: e.Value}}, out...)
				} else if !equal(id, e.Value) {
					return nil, fmt.Errorf("the _id field cannot be changed")
				}
				continue
			}
			out = append(out, bson.E{Key: e.Key, Value: clone(e.Value)})
		}
		return out, nil
	}

	out := cloneDoc(doc)
	for _, op := range u.change {
		for _, e := range op.Value.(bson.D) {
			if e.Key == "_id" || strings.HasPrefix(e.Key, "_id.") {
				return nil, fmt.Errorf("performing an update on the path '_id' would modify the immutable field '_id'")
			}
			switch op.Key {
			case "$set":
				out = setPath(out, e.Key, clone(e.Value))
			case "$unset":
				out, _ = unsetPath(out, e.Key)
			case "$inc":
				if !isNumber(e.Value) {
					return nil, fmt.Errorf("cannot increment with non-numeric argument: {%s: %v}", e.Key, e.Value)
				}
				cur, ok := get(out, e.Key)
				if !ok || cur == nil {
					out = setPath(out, e.Key, e.Value)
					continue
				}
				if !isNumber(cur) {
					return nil, fmt.Errorf("cannot apply $inc to a value of non-numeric type %T", cur)
				}
				out = setPath(out, e.Key, numeric{}.add(cur).add(e.Value).value())
			}
		}
	}
	return out, nil
}

// seed builds the document an upsert inserts: the equality fields of the
// query, then the update applied on top.
func (u updateSpec) seed() (bson.D, error) {
	base := bson.D{}
	if !u.replace {
		for _, e := range u.query {
			if strings.HasPrefix(e.Key, "$") {
				continue
			}
			if _, isOp := isOperatorDoc(e.Value); isOp {
				continue
			}
			base = setPath(base, e.Key, clone(e.Value))
		}
	}
	doc, err := u.apply(base)
	if err != nil {
		return nil, err
	}
	return withID(doc), nil
}

func (s *Store) delete(cmd bson.D) (bson.D, error) {
	coll, err := target(cmd)
	if err != nil {
		return nil, err
	}
	deletes, err := documents(cmd, "deletes")
	if err != nil {
		return nil, err
	}
	type deleteSpec struct {
		match Matcher
		one   bool
	}
	specs := make([]deleteSpec, len(deletes))
	for i, d := range deletes {
		q, err := optionalDoc(field(d, "q"), "q")
		if err != nil {
			return nil, fmt.Errorf("deletes.%d: %w", i, err)
		}
		m, err := CompileFilter(q)
		if err != nil {
			return nil, fmt.Errorf("deletes.%d: %w", i, err)
		}
		limit, _ := toFloat64(field(d, "limit"))
		if limit != 0 && limit != 1 {
			return nil, fmt.Errorf("deletes.%d: the limit field must be 0 or 1", i)
		}
		specs[i] = deleteSpec{match: m, one: limit == 1}
	}

	var n int32
	err = s.catalog.Mutate(coll, func(docs []bson.D) ([]bson.D, error) {
		for _, spec := range specs {
			kept := docs[:0]
			removed := 0
			for _, d := range docs {
				if spec.match(d) && (!spec.one || removed == 0) {
					removed++
					continue
				}
				kept = append(kept, d)
			}
			docs = kept
			n += int32(removed)
		}
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "n", Value: n}}, nil
}
